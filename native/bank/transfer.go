package bank

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds is returned when the debited holding cannot cover the
	// requested amount. The ledger is left untouched.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("bank: balance overflow")

	errNegativeAmount = errors.New("bank: negative amount")
	errNilState       = errors.New("bank: balance state not configured")
)

// BalanceState is the storage surface the ledger needs. Missing holdings read
// as zero.
type BalanceState interface {
	BalanceGet(addr [20]byte) (*big.Int, error)
	BalancePut(addr [20]byte, amount *big.Int) error
}

// Ledger moves value between holdings stored in a BalanceState.
type Ledger struct {
	state BalanceState
}

// NewLedger binds a ledger to the supplied balance state.
func NewLedger(state BalanceState) *Ledger {
	return &Ledger{state: state}
}

// Transfer debits from and credits to by amount. A zero amount is a no-op and
// a transfer onto the same holding only checks the balance.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt, err := toUint256(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() {
		return nil
	}
	fromBal, err := l.balance(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amt) {
		return ErrInsufficientFunds
	}
	if bytes.Equal(from[:], to[:]) {
		return nil
	}
	toBal, err := l.balance(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBal, amt)
	if overflow {
		return ErrBalanceOverflow
	}
	debited := new(uint256.Int).Sub(fromBal, amt)
	if err := l.state.BalancePut(from, debited.ToBig()); err != nil {
		return err
	}
	return l.state.BalancePut(to, credited.ToBig())
}

// Mint credits amount to addr out of thin air. Used for genesis allocations
// and development faucets.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt, err := toUint256(amount)
	if err != nil {
		return err
	}
	bal, err := l.balance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(bal, amt)
	if overflow {
		return ErrBalanceOverflow
	}
	return l.state.BalancePut(addr, next.ToBig())
}

// Balance returns the holding of addr, zero when absent.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.balance(addr)
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

func (l *Ledger) balance(addr [20]byte) (*uint256.Int, error) {
	raw, err := l.state.BalanceGet(addr)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(raw)
	if overflow || raw.Sign() < 0 {
		return nil, fmt.Errorf("bank: stored balance out of range for %x", addr)
	}
	return value, nil
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, errNegativeAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return value, nil
}
