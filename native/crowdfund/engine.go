package crowdfund

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/native/bank"
)

var (
	errNilState  = errors.New("crowdfund engine: state not configured")
	errNilLedger = errors.New("crowdfund engine: ledger not configured")

	ErrCampaignNotFound  = errors.New("crowdfund: campaign not found")
	ErrCampaignNotActive = errors.New("crowdfund: campaign is no longer active")
	ErrUnauthorized      = errors.New("crowdfund: caller is not the campaign authority")

	ErrInvalidStartTime = errors.New("crowdfund: the start time is too early")
	ErrInvalidWindow    = errors.New("crowdfund: the end time must follow the start time")
	ErrWindowTooShort   = errors.New("crowdfund: the new end time must extend the window")
	ErrInvalidGoal      = errors.New("crowdfund: the goal cannot be zero")
	ErrAlreadyStarted   = errors.New("crowdfund: the campaign has already started")
	ErrNotStarted       = errors.New("crowdfund: the campaign has not started")
	ErrCampaignOver     = errors.New("crowdfund: the campaign has already ended")
	ErrGoalAlreadyMet   = errors.New("crowdfund: the donation goal has been met")
	ErrZeroAmount       = errors.New("crowdfund: the donation amount cannot be zero")
	ErrNotYetOver       = errors.New("crowdfund: the campaign is not yet over")
	ErrGoalNotMet       = errors.New("crowdfund: the donation goal has not been met")
	ErrAlreadyClaimed   = errors.New("crowdfund: the donations have already been claimed")
	ErrNothingToRefund  = errors.New("crowdfund: nothing left to refund")

	// ErrInsufficientFunds is raised by the ledger when the debited holding is
	// short. Re-exported so callers of this package need not import bank.
	ErrInsufficientFunds = bank.ErrInsufficientFunds
)

type engineState interface {
	CampaignGet(id [32]byte) (*Campaign, bool, error)
	CampaignPut(c *Campaign) error
	// CampaignNextID assigns a fresh identifier for a campaign owned by authority.
	CampaignNextID(authority [20]byte) ([32]byte, error)
	ContributionGet(id [32]byte, donor [20]byte) (*Contribution, bool, error)
	ContributionPut(c *Contribution) error
}

// Ledger moves value between holdings atomically and fails without effect on
// insufficient balance.
type Ledger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

var vaultDomain = []byte("crowdfund/vault")

// VaultAddress derives the escrow holding of the campaign.
func VaultAddress(id [32]byte) [20]byte {
	digest := ethcrypto.Keccak256(vaultDomain, id[:])
	var addr [20]byte
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// Engine wires the campaign state machine with the record store, the transfer
// ledger and event emission. An engine is bound to a single operation's state
// view; callers construct a fresh engine per operation.
type Engine struct {
	state   engineState
	ledger  Ledger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the transfer service used to move funds.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) loadCampaign(id [32]byte) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	campaign, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign.Clone(), nil
}

// loadAuthorized loads the campaign and verifies the caller is its authority.
func (e *Engine) loadAuthorized(id [32]byte, caller [20]byte) (*Campaign, error) {
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if campaign.Authority != caller {
		return nil, ErrUnauthorized
	}
	return campaign, nil
}

func (e *Engine) storeCampaign(c *Campaign) error {
	sanitized, err := SanitizeCampaign(c)
	if err != nil {
		return fmt.Errorf("crowdfund: %w", err)
	}
	return e.state.CampaignPut(sanitized)
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if err := e.ledger.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("crowdfund: transfer: %w", err)
	}
	return nil
}

// FormatID renders a campaign identifier as 0x-prefixed hex.
func FormatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParseID decodes a campaign identifier, with or without the 0x prefix.
func ParseID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 64 {
		return id, fmt.Errorf("crowdfund: campaign id must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("crowdfund: decode campaign id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}
