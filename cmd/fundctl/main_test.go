package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/config"
	"fundchain/core/types"
	"fundchain/crypto"
	"fundchain/native/crowdfund"
	"fundchain/rpc"
	"fundchain/storage/journal"
)

func TestKeygenThenAddr(t *testing.T) {
	dir := t.TempDir()
	keystore := filepath.Join(dir, "op.keystore")
	t.Setenv(defaultPassEnv, "correct horse")

	var out bytes.Buffer
	require.NoError(t, dispatch([]string{"keygen", "-keystore", keystore}, &out))
	require.Contains(t, out.String(), "address:  fund1")

	err := dispatch([]string{"keygen", "-keystore", keystore}, &out)
	require.ErrorContains(t, err, "already exists")

	out.Reset()
	require.NoError(t, dispatch([]string{"addr", "-keystore", keystore}, &out))
	require.Contains(t, out.String(), "bech32: fund1")
}

func TestAddrAcceptsHexAndBech32(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dispatch([]string{"addr", "0x" + strings.Repeat("01", 20)}, &out))
	require.Contains(t, out.String(), "fund1qyqszqgpqyqszqgpqyqszqgpqyqszqgp727zvj")

	out.Reset()
	require.NoError(t, dispatch([]string{"addr", "fund1qyqszqgpqyqszqgpqyqszqgpqyqszqgp727zvj"}, &out))
	require.Contains(t, out.String(), "0x"+strings.Repeat("01", 20))

	require.Error(t, dispatch([]string{"addr", "zz"}, &out))
}

func TestTokenVerifiesAgainstConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	subject := "fund1qyqszqgpqyqszqgpqyqszqgpqyqszqgp727zvj"

	var out bytes.Buffer
	require.NoError(t, dispatch([]string{"token", "-config", configPath, "-subject", subject}, &out))
	token := strings.TrimSpace(out.String())
	require.NotEmpty(t, token)

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "JWTSecret")

	cfgSecret := secretFrom(t, configPath)
	auth, err := rpc.NewAuthenticator(rpc.AuthConfig{HMACSecret: cfgSecret, Issuer: "fundchain"})
	require.NoError(t, err)
	caller, err := auth.Authenticate("Bearer " + token)
	require.NoError(t, err)
	require.Equal(t, subject, crypto.FormatFundAddress(caller))
}

func TestVault(t *testing.T) {
	var id [32]byte
	id[0] = 0x42
	var out bytes.Buffer
	require.NoError(t, dispatch([]string{"vault", crowdfund.FormatID(id)}, &out))
	require.Equal(t, crypto.FormatFundAddress(crowdfund.VaultAddress(id)), strings.TrimSpace(out.String()))
	require.ErrorIs(t, dispatch(nil, &out), errUsage)
}

func secretFrom(t *testing.T, path string) string {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg.Auth.JWTSecret
}

func TestExportEvents(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")
	j, err := journal.Open(journalPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	_, err = j.Append(context.Background(), &types.Event{Type: "crowdfund.campaign.created", Attributes: map[string]string{"campaign": "0x01"}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	outPath := filepath.Join(dir, "events.parquet")
	var out bytes.Buffer
	require.NoError(t, dispatch([]string{"export-events", "-journal", journalPath, "-out", outPath}, &out))
	require.Contains(t, out.String(), "exported 1 entries")
	_, err = os.Stat(outPath)
	require.NoError(t, err)

	require.ErrorContains(t, dispatch([]string{"export-events"}, &out), "-journal")
}
