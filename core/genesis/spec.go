package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"fundchain/crypto"
)

// Spec lists the balances credited when a fresh store is first opened.
type Spec struct {
	// Alloc maps bech32 fund addresses to decimal amounts.
	Alloc map[string]string `json:"alloc"`
}

// Allocation is a single validated genesis credit.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// LoadSpec reads a JSON genesis file. Unknown fields are rejected.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	return &spec, nil
}

// Merge adds the entries of other, failing on an address listed twice.
func (s *Spec) Merge(other map[string]string) error {
	if s.Alloc == nil {
		s.Alloc = make(map[string]string, len(other))
	}
	for addr, amount := range other {
		if _, exists := s.Alloc[addr]; exists {
			return fmt.Errorf("genesis: duplicate allocation for %s", addr)
		}
		s.Alloc[addr] = amount
	}
	return nil
}

// Allocations validates the spec and returns the credits ordered by address.
func (s *Spec) Allocations() ([]Allocation, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]Allocation, 0, len(s.Alloc))
	seen := make(map[[20]byte]struct{}, len(s.Alloc))
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := crypto.ParseFundAddress(strings.TrimSpace(rawAddr))
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", rawAddr, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("genesis: duplicate allocation for %s", rawAddr)
		}
		seen[addr] = struct{}{}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", rawAddr, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func parseAmountString(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}
