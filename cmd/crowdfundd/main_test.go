package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/config"
	"fundchain/core/events"
	"fundchain/native/crowdfund"
	"fundchain/observability/logging"
)

const (
	addrOnes = "fund1qyqszqgpqyqszqgpqyqszqgpqyqszqgp727zvj"
	addrTwos = "fund1qgpqyqszqgpqyqszqgpqyqszqgpqyqsz0wc88y"
)

func TestLoadAllocationsMergesFileAndInline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alloc":{"`+addrOnes+`":"100"}}`), 0o600))

	cfg := config.Default()
	cfg.GenesisFile = path
	cfg.Alloc = map[string]string{addrTwos: "32"}
	allocs, err := loadAllocations(cfg)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, int64(100), allocs[0].Amount.Int64())
	require.Equal(t, int64(32), allocs[1].Amount.Int64())

	cfg.Alloc = map[string]string{addrOnes: "5"}
	_, err = loadAllocations(cfg)
	require.ErrorContains(t, err, "duplicate")
}

func TestLoadAllocationsInlineOnly(t *testing.T) {
	cfg := config.Default()
	allocs, err := loadAllocations(cfg)
	require.NoError(t, err)
	require.Empty(t, allocs)
}

func TestEventLoggerFansOutWithJournalSinks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewHandler(&buf, slog.LevelDebug))
	rec := events.NewRecorder()
	sinks := events.Multi{rec, eventLogger(logger)}

	var id [32]byte
	id[0] = 0x07
	sinks.Emit(crowdfund.WrapEvent(crowdfund.DonationsClaimedEvent(id, big.NewInt(5))))

	require.Equal(t, []string{crowdfund.EventTypeDonationsClaimed}, rec.Types())
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "notification committed", line["message"])
	require.Equal(t, crowdfund.EventTypeDonationsClaimed, line["event"])
	require.Equal(t, crowdfund.FormatID(id), line["campaign"])
}
