package core

import (
	"errors"
	"log/slog"
	"math/big"
	"time"

	"fundchain/core/events"
	fundstate "fundchain/core/state"
	"fundchain/crypto"
	"fundchain/native/bank"
	"fundchain/native/crowdfund"
	"fundchain/observability"
	"fundchain/observability/logging"
	"fundchain/storage"
)

var errNilDatabase = errors.New("core: database required")

// Node executes crowdfund operations against the record store. Each operation
// runs in its own state transaction; notifications are delivered only after
// the transaction commits.
type Node struct {
	state   *fundstate.Manager
	clock   Clock
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.CrowdfundMetrics
}

// Option customises a Node.
type Option func(*Node)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(n *Node) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithEmitter sets the downstream notifier.
func WithEmitter(emitter events.Emitter) Option {
	return func(n *Node) {
		if emitter != nil {
			n.emitter = emitter
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNode wires a node over db. Without options it uses a monotonic wall clock,
// discards notifications and logs through slog.Default.
func NewNode(db storage.Database, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	n := &Node{
		state:   fundstate.NewManager(db),
		clock:   NewMonotonicClock(SystemClock{}),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Crowdfund(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// SetEmitter replaces the downstream notifier. Passing nil discards events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

// Now returns the node's current time in unix seconds.
func (n *Node) Now() int64 { return n.clock.Now() }

func (n *Node) newCrowdfundEngine(txn *fundstate.Txn, buffer *events.Buffer, now int64) *crowdfund.Engine {
	engine := crowdfund.NewEngine()
	engine.SetState(txn)
	engine.SetLedger(bank.NewLedger(txn))
	engine.SetEmitter(buffer)
	engine.SetNowFunc(func() int64 { return now })
	return engine
}

func (n *Node) notify(evt events.Event) {
	observability.Notifications().RecordEmitted(evt.EventType())
	n.emitter.Emit(evt)
}

// execute runs fn inside a state transaction holding locks. The clock is read
// once so every check within the operation sees the same instant.
func (n *Node) execute(operation string, id [32]byte, locks []string, fn func(*crowdfund.Engine) error) error {
	started := time.Now()
	now := n.clock.Now()
	err := n.state.Update(locks, func(txn *fundstate.Txn) error {
		buffer := &events.Buffer{}
		if err := fn(n.newCrowdfundEngine(txn, buffer, now)); err != nil {
			return err
		}
		txn.OnCommit(func() { buffer.Flush(events.EmitterFunc(n.notify)) })
		return nil
	})
	n.metrics.RecordOperation(operation, err, time.Since(started))
	attrs := []any{
		slog.String("operation", operation),
		slog.Int64("now", now),
	}
	if id != ([32]byte{}) {
		attrs = append(attrs, slog.String("campaign", crowdfund.FormatID(id)))
	}
	if err != nil {
		n.logger.Warn("crowdfund operation rejected", append(attrs, slog.String("error", err.Error()))...)
		return err
	}
	n.logger.Info("crowdfund operation applied", attrs...)
	return nil
}

// CreateCampaign registers a new campaign owned by authority.
func (n *Node) CreateCampaign(authority [20]byte, params crowdfund.CreateParams) (*crowdfund.Campaign, error) {
	var created *crowdfund.Campaign
	err := n.execute("create_campaign", [32]byte{}, []string{fundstate.IndexLock}, func(engine *crowdfund.Engine) error {
		var err error
		created, err = engine.CreateCampaign(authority, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.logger.Debug("campaign created",
		slog.String("campaign", crowdfund.FormatID(created.ID)),
		slog.String("authority", logging.ShortAddress(crypto.FormatFundAddress(authority))))
	return created, nil
}

// CancelCampaign cancels a campaign that has not started.
func (n *Node) CancelCampaign(id [32]byte, caller [20]byte) error {
	return n.execute("cancel_campaign", id, []string{fundstate.CampaignLock(id)}, func(engine *crowdfund.Engine) error {
		return engine.CancelCampaign(id, caller)
	})
}

// UpdateCampaignMetadata replaces descriptive fields of a campaign.
func (n *Node) UpdateCampaignMetadata(id [32]byte, caller [20]byte, update crowdfund.MetadataUpdate) (*crowdfund.Campaign, error) {
	var updated *crowdfund.Campaign
	err := n.execute("update_campaign_metadata", id, []string{fundstate.CampaignLock(id)}, func(engine *crowdfund.Engine) error {
		var err error
		updated, err = engine.UpdateCampaignMetadata(id, caller, update)
		return err
	})
	return updated, err
}

// ExtendCampaign moves the end of the donation window later.
func (n *Node) ExtendCampaign(id [32]byte, caller [20]byte, newEndAt int64) error {
	return n.execute("extend_campaign", id, []string{fundstate.CampaignLock(id)}, func(engine *crowdfund.Engine) error {
		return engine.ExtendCampaign(id, caller, newEndAt)
	})
}

// CloseCampaign marks an ended campaign closed.
func (n *Node) CloseCampaign(id [32]byte, caller [20]byte) error {
	return n.execute("close_campaign", id, []string{fundstate.CampaignLock(id)}, func(engine *crowdfund.Engine) error {
		return engine.CloseCampaign(id, caller)
	})
}

// Donate moves up to amount from donor into the campaign's escrow and returns
// the accepted amount.
func (n *Node) Donate(id [32]byte, donor [20]byte, amount *big.Int) (*big.Int, error) {
	var accepted *big.Int
	err := n.execute("donate", id, escrowLocks(id, donor), func(engine *crowdfund.Engine) error {
		var err error
		accepted, err = engine.Donate(id, donor, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordFlow("donated", accepted)
	return accepted, nil
}

// CancelDonation returns the donor's contribution after a failed campaign.
func (n *Node) CancelDonation(id [32]byte, donor [20]byte) (*big.Int, error) {
	return n.settle("cancel_donation", id, donor, (*crowdfund.Engine).CancelDonation)
}

// RefundDonations refunds the donor's contribution after a failed campaign.
func (n *Node) RefundDonations(id [32]byte, donor [20]byte) (*big.Int, error) {
	return n.settle("refund_donations", id, donor, (*crowdfund.Engine).RefundDonations)
}

func (n *Node) settle(operation string, id [32]byte, donor [20]byte, op func(*crowdfund.Engine, [32]byte, [20]byte) (*big.Int, error)) (*big.Int, error) {
	var amount *big.Int
	err := n.execute(operation, id, escrowLocks(id, donor), func(engine *crowdfund.Engine) error {
		var err error
		amount, err = op(engine, id, donor)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordFlow("refunded", amount)
	return amount, nil
}

// ClaimDonations pays the escrowed total to the campaign authority.
func (n *Node) ClaimDonations(id [32]byte, caller [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("claim_donations", id, escrowLocks(id, caller), func(engine *crowdfund.Engine) error {
		var err error
		amount, err = engine.ClaimDonations(id, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordFlow("claimed", amount)
	return amount, nil
}

// escrowLocks covers the campaign record and both holdings a transfer between
// the vault and party can touch.
func escrowLocks(id [32]byte, party [20]byte) []string {
	return []string{
		fundstate.CampaignLock(id),
		fundstate.AccountLock(party),
		fundstate.AccountLock(crowdfund.VaultAddress(id)),
	}
}
