package state

import (
	"encoding/hex"
	"sort"
	"sync"
)

// IndexLock guards the campaign index and per-authority nonces.
const IndexLock = "index"

// CampaignLock names the lock guarding a campaign and its contributions.
func CampaignLock(id [32]byte) string {
	return "campaign:" + hex.EncodeToString(id[:])
}

// AccountLock names the lock guarding a balance holding.
func AccountLock(addr [20]byte) string {
	return "account:" + hex.EncodeToString(addr[:])
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per name. Entries are dropped once no caller
// holds or waits on them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock acquires every named lock in sorted order and returns the release
// function.
func (k *keyedMutex) Lock(names []string) func() {
	sorted := dedupe(names)
	held := make([]*lockEntry, 0, len(sorted))
	for _, name := range sorted {
		k.mu.Lock()
		entry, ok := k.entries[name]
		if !ok {
			entry = &lockEntry{}
			k.entries[name] = entry
		}
		entry.refs++
		k.mu.Unlock()

		entry.mu.Lock()
		held = append(held, entry)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.entries, sorted[i])
			}
			k.mu.Unlock()
		}
	}
}

func dedupe(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	uniq := make([]string, 0, len(out))
	for _, name := range out {
		if len(uniq) > 0 && uniq[len(uniq)-1] == name {
			continue
		}
		uniq = append(uniq, name)
	}
	return uniq
}
