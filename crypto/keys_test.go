package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFundAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = 0x01
	}
	encoded := FormatFundAddress(raw)
	require.Equal(t, "fund1qyqszqgpqyqszqgpqyqszqgpqyqszqgp727zvj", encoded)

	decoded, err := ParseFundAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestParseFundAddressRejectsOtherPrefix(t *testing.T) {
	other := MustNewAddress(AddressPrefix("cosmos"), make([]byte, 20)).String()
	_, err := ParseFundAddress(other)
	require.ErrorContains(t, err, "unexpected address prefix")

	_, err = ParseFundAddress("fund1notvalid")
	require.Error(t, err)

	_, err = NewAddress(FundPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "op.keystore")
	require.NoError(t, SaveToKeystore(path, key, "hunter22"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "hunter22")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Array(), loaded.PubKey().Address().Array())
	require.True(t, strings.HasPrefix(loaded.PubKey().Address().String(), "fund1"))

	_, err = LoadFromKeystore(path, "wrong")
	require.ErrorContains(t, err, "decrypt keystore")

	require.Error(t, SaveToKeystore("", key, "x"))
	require.Error(t, SaveToKeystore(path, nil, "x"))
}
