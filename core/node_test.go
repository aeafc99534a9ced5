package core

import (
	"bytes"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/core/events"
	"fundchain/core/genesis"
	"fundchain/native/crowdfund"
	"fundchain/storage"
)

type nodeFixture struct {
	node     *Node
	clock    *FixedClock
	recorder *events.Recorder
	db       *storage.MemDB
}

func newTestNode(t *testing.T) *nodeFixture {
	t.Helper()
	db := storage.NewMemDB()
	clock := NewFixedClock(1_000)
	recorder := events.NewRecorder()
	node, err := NewNode(db,
		WithClock(clock),
		WithEmitter(recorder),
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return &nodeFixture{node: node, clock: clock, recorder: recorder, db: db}
}

func testAddr(fill byte) [20]byte {
	var a [20]byte
	copy(a[:], bytes.Repeat([]byte{fill}, 20))
	return a
}

func (f *nodeFixture) fund(t *testing.T, allocs ...genesis.Allocation) {
	t.Helper()
	applied, err := f.node.ApplyGenesis(allocs)
	require.NoError(t, err)
	require.True(t, applied)
}

func (f *nodeFixture) createCampaign(t *testing.T, authority [20]byte, goal int64) *crowdfund.Campaign {
	t.Helper()
	c, err := f.node.CreateCampaign(authority, crowdfund.CreateParams{
		Title:       "Solar school",
		Description: "Panels for the roof",
		Goal:        big.NewInt(goal),
		StartAt:     1_100,
		EndAt:       2_000,
	})
	require.NoError(t, err)
	return c
}

func TestNewNodeRequiresDatabase(t *testing.T) {
	_, err := NewNode(nil)
	require.ErrorIs(t, err, errNilDatabase)
}

func TestNodeSuccessfulCampaign(t *testing.T) {
	f := newTestNode(t)
	authority, alice, bob := testAddr(0x01), testAddr(0x02), testAddr(0x03)
	f.fund(t,
		genesis.Allocation{Address: alice, Amount: big.NewInt(700)},
		genesis.Allocation{Address: bob, Amount: big.NewInt(700)},
	)
	c := f.createCampaign(t, authority, 1_000)

	f.clock.Set(1_100)
	accepted, err := f.node.Donate(c.ID, alice, big.NewInt(600))
	require.NoError(t, err)
	require.Equal(t, int64(600), accepted.Int64())
	accepted, err = f.node.Donate(c.ID, bob, big.NewInt(700))
	require.NoError(t, err)
	require.Equal(t, int64(400), accepted.Int64())

	vault, err := f.node.Balance(f.node.VaultAddress(c.ID))
	require.NoError(t, err)
	require.Equal(t, int64(1_000), vault.Int64())

	f.clock.Set(2_001)
	_, err = f.node.RefundDonations(c.ID, alice)
	require.ErrorIs(t, err, crowdfund.ErrGoalAlreadyMet)
	paid, err := f.node.ClaimDonations(c.ID, authority)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), paid.Int64())
	_, err = f.node.ClaimDonations(c.ID, authority)
	require.ErrorIs(t, err, crowdfund.ErrAlreadyClaimed)

	balance, err := f.node.Balance(authority)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), balance.Int64())
	bobBalance, err := f.node.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(300), bobBalance.Int64())

	require.Equal(t, []string{
		crowdfund.EventTypeCampaignCreated,
		crowdfund.EventTypeDonationReceived,
		crowdfund.EventTypeDonationReceived,
		crowdfund.EventTypeDonationsClaimed,
	}, f.recorder.Types())
}

func TestNodeFailedCampaignRefunds(t *testing.T) {
	f := newTestNode(t)
	authority, donor := testAddr(0x01), testAddr(0x02)
	f.fund(t, genesis.Allocation{Address: donor, Amount: big.NewInt(50)})
	c := f.createCampaign(t, authority, 1_000)
	f.clock.Set(1_500)
	_, err := f.node.Donate(c.ID, donor, big.NewInt(50))
	require.NoError(t, err)

	f.clock.Set(2_001)
	_, err = f.node.ClaimDonations(c.ID, authority)
	require.ErrorIs(t, err, crowdfund.ErrGoalNotMet)
	amount, err := f.node.CancelDonation(c.ID, donor)
	require.NoError(t, err)
	require.Equal(t, int64(50), amount.Int64())
	_, err = f.node.RefundDonations(c.ID, donor)
	require.ErrorIs(t, err, crowdfund.ErrNothingToRefund)

	contribution, err := f.node.Contribution(c.ID, donor)
	require.NoError(t, err)
	require.Zero(t, contribution.Amount.Sign())
	contributions, err := f.node.Contributions(c.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 1)

	balance, err := f.node.Balance(donor)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance.Int64())
}

func TestNodeFailedOperationEmitsNothing(t *testing.T) {
	f := newTestNode(t)
	authority, donor := testAddr(0x01), testAddr(0x02)
	c := f.createCampaign(t, authority, 100)
	f.recorder.Reset()
	f.clock.Set(1_200)
	_, err := f.node.Donate(c.ID, donor, big.NewInt(10))
	require.ErrorIs(t, err, crowdfund.ErrInsufficientFunds)
	require.Empty(t, f.recorder.Types())

	stored, err := f.node.Campaign(c.ID)
	require.NoError(t, err)
	require.Zero(t, stored.TotalDonated.Sign())
	_, err = f.node.Contribution(c.ID, donor)
	require.NoError(t, err)
}

func TestNodeQueries(t *testing.T) {
	f := newTestNode(t)
	alice, bob := testAddr(0x01), testAddr(0x02)
	first := f.createCampaign(t, alice, 10)
	second := f.createCampaign(t, bob, 20)
	require.NoError(t, f.node.CancelCampaign(second.ID, bob))

	all, err := f.node.Campaigns(CampaignFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)

	active := crowdfund.CampaignActive
	filtered, err := f.node.Campaigns(CampaignFilter{Status: &active})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, first.ID, filtered[0].ID)

	byBob, err := f.node.Campaigns(CampaignFilter{Authority: &bob})
	require.NoError(t, err)
	require.Len(t, byBob, 1)
	require.Equal(t, crowdfund.CampaignCancelled, byBob[0].Status)

	_, err = f.node.Campaign([32]byte{0xEE})
	require.ErrorIs(t, err, crowdfund.ErrCampaignNotFound)
	_, err = f.node.Contribution([32]byte{0xEE}, alice)
	require.ErrorIs(t, err, crowdfund.ErrCampaignNotFound)
	_, err = f.node.Contributions([32]byte{0xEE})
	require.ErrorIs(t, err, crowdfund.ErrCampaignNotFound)
}

func TestNodeMetadataExtendClose(t *testing.T) {
	f := newTestNode(t)
	authority := testAddr(0x01)
	c := f.createCampaign(t, authority, 10)
	title := "Solar school phase two"
	updated, err := f.node.UpdateCampaignMetadata(c.ID, authority, crowdfund.MetadataUpdate{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)

	require.NoError(t, f.node.ExtendCampaign(c.ID, authority, 3_000))
	f.clock.Set(3_000)
	require.ErrorIs(t, f.node.CloseCampaign(c.ID, authority), crowdfund.ErrNotYetOver)
	f.clock.Set(3_001)
	require.NoError(t, f.node.CloseCampaign(c.ID, authority))
	stored, err := f.node.Campaign(c.ID)
	require.NoError(t, err)
	require.Equal(t, crowdfund.CampaignClosed, stored.Status)
	require.Equal(t, int64(3_000), stored.EndAt)
}

func TestApplyGenesisOnce(t *testing.T) {
	f := newTestNode(t)
	addr := testAddr(0x09)
	f.fund(t, genesis.Allocation{Address: addr, Amount: big.NewInt(5)})
	applied, err := f.node.ApplyGenesis([]genesis.Allocation{{Address: addr, Amount: big.NewInt(5)}})
	require.NoError(t, err)
	require.False(t, applied)
	balance, err := f.node.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, int64(5), balance.Int64())
}

func TestConcurrentDonationsNeverExceedGoal(t *testing.T) {
	f := newTestNode(t)
	authority := testAddr(0x01)
	donors := make([][20]byte, 16)
	allocs := make([]genesis.Allocation, 0, len(donors))
	for i := range donors {
		donors[i] = testAddr(byte(0x10 + i))
		allocs = append(allocs, genesis.Allocation{Address: donors[i], Amount: big.NewInt(100)})
	}
	f.fund(t, allocs...)
	c := f.createCampaign(t, authority, 1_000)
	f.clock.Set(1_100)

	var wg sync.WaitGroup
	for _, donor := range donors {
		wg.Add(1)
		go func(donor [20]byte) {
			defer wg.Done()
			_, _ = f.node.Donate(c.ID, donor, big.NewInt(100))
		}(donor)
	}
	wg.Wait()

	stored, err := f.node.Campaign(c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), stored.TotalDonated.Int64())
	require.True(t, stored.DonationCompleted)
	vault, err := f.node.Balance(f.node.VaultAddress(c.ID))
	require.NoError(t, err)
	require.Equal(t, int64(1_000), vault.Int64())

	var sum int64
	for _, donor := range donors {
		contribution, err := f.node.Contribution(c.ID, donor)
		require.NoError(t, err)
		sum += contribution.Amount.Int64()
	}
	require.Equal(t, int64(1_000), sum)
}
