package core

import (
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/core/genesis"
	"fundchain/native/crowdfund"
	"fundchain/storage"
)

func TestNodeStatePersistsAcrossRestart(t *testing.T) {
	for _, backend := range []string{storage.BackendLevelDB, storage.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state")
			clock := NewFixedClock(1_000)
			quiet := WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
			authority, donor := testAddr(0x01), testAddr(0x02)

			db, err := storage.Open(backend, path)
			require.NoError(t, err)
			node, err := NewNode(db, WithClock(clock), quiet)
			require.NoError(t, err)
			_, err = node.ApplyGenesis([]genesis.Allocation{{Address: donor, Amount: big.NewInt(30)}})
			require.NoError(t, err)
			c, err := node.CreateCampaign(authority, crowdfund.CreateParams{Goal: big.NewInt(100), StartAt: 1_000, EndAt: 1_500})
			require.NoError(t, err)
			_, err = node.Donate(c.ID, donor, big.NewInt(30))
			require.NoError(t, err)
			db.Close()

			db, err = storage.Open(backend, path)
			require.NoError(t, err)
			defer db.Close()
			node, err = NewNode(db, WithClock(clock), quiet)
			require.NoError(t, err)
			applied, err := node.ApplyGenesis([]genesis.Allocation{{Address: donor, Amount: big.NewInt(30)}})
			require.NoError(t, err)
			require.False(t, applied)

			stored, err := node.Campaign(c.ID)
			require.NoError(t, err)
			require.Equal(t, int64(30), stored.TotalDonated.Int64())
			contribution, err := node.Contribution(c.ID, donor)
			require.NoError(t, err)
			require.Equal(t, int64(30), contribution.Amount.Int64())

			second, err := node.CreateCampaign(authority, crowdfund.CreateParams{Goal: big.NewInt(1), StartAt: 1_000, EndAt: 1_100})
			require.NoError(t, err)
			require.NotEqual(t, c.ID, second.ID)
		})
	}
}
