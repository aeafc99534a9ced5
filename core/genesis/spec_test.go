package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/crypto"
)

func TestLoadSpecAndAllocations(t *testing.T) {
	a := crypto.FormatFundAddress([20]byte{0x02})
	b := crypto.FormatFundAddress([20]byte{0x01})
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alloc":{"`+a+`":"100","`+b+`":"7"}}`), 0o600))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	allocs, err := spec.Allocations()
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, [20]byte{0x01}, allocs[0].Address)
	require.Equal(t, int64(7), allocs[0].Amount.Int64())
	require.Equal(t, int64(100), allocs[1].Amount.Int64())
}

func TestLoadSpecRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"validators":[]}`), 0o600))
	_, err := LoadSpec(path)
	require.Error(t, err)
	_, err = LoadSpec(" ")
	require.Error(t, err)
}

func TestAllocationsValidation(t *testing.T) {
	addr := crypto.FormatFundAddress([20]byte{0x03})
	for name, alloc := range map[string]map[string]string{
		"bad address":     {"cosmos1xyz": "1"},
		"negative amount": {addr: "-5"},
		"not a number":    {addr: "ten"},
		"empty amount":    {addr: " "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := (&Spec{Alloc: alloc}).Allocations()
			require.Error(t, err)
		})
	}
}

func TestMergeRejectsDuplicates(t *testing.T) {
	addr := crypto.FormatFundAddress([20]byte{0x04})
	spec := &Spec{}
	require.NoError(t, spec.Merge(map[string]string{addr: "1"}))
	require.Error(t, spec.Merge(map[string]string{addr: "2"}))
}
