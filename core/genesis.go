package core

import (
	"log/slog"

	"fundchain/core/genesis"
	fundstate "fundchain/core/state"
	"fundchain/native/bank"
)

// ApplyGenesis credits the allocations exactly once per store. It reports
// whether the allocations were applied by this call.
func (n *Node) ApplyGenesis(allocs []genesis.Allocation) (bool, error) {
	locks := []string{fundstate.IndexLock}
	for _, alloc := range allocs {
		locks = append(locks, fundstate.AccountLock(alloc.Address))
	}
	applied := false
	err := n.state.Update(locks, func(txn *fundstate.Txn) error {
		done, err := txn.GenesisApplied()
		if err != nil || done {
			return err
		}
		ledger := bank.NewLedger(txn)
		for _, alloc := range allocs {
			if err := ledger.Mint(alloc.Address, alloc.Amount); err != nil {
				return err
			}
		}
		applied = true
		return txn.MarkGenesisApplied()
	})
	if err != nil {
		return false, err
	}
	if applied {
		n.logger.Info("genesis allocations applied", slog.Int("accounts", len(allocs)))
	}
	return applied, nil
}
