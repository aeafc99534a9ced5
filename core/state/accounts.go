package state

import (
	"fmt"
	"math/big"
)

func balanceKey(addr [20]byte) []byte { return prefixed(balancePrefix, addr[:]) }

// BalanceGet returns the holding of addr. Unknown holdings read as zero.
func (t *Txn) BalanceGet(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := t.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// BalancePut overwrites the holding of addr.
func (t *Txn) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %x", addr)
	}
	return t.KVPut(balanceKey(addr), amount)
}

// GenesisApplied reports whether the genesis allocations were already
// credited.
func (t *Txn) GenesisApplied() (bool, error) {
	return t.KVGet(genesisMarkerKey, nil)
}

// MarkGenesisApplied records that genesis allocations were credited.
func (t *Txn) MarkGenesisApplied() error {
	return t.KVPut(genesisMarkerKey, true)
}
