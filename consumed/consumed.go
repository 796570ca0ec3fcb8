// Package consumed implements the kernel's consumed-token store (C5):
// durable one-use enforcement over hashed token IDs. Raw token IDs are
// never stored — only SHA-256(token.id) — matching the wire-format rule
// that persisted consumed-token records carry hashes only (spec §6).
package consumed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/quaylabs/capkernel/atomicfile"
)

// Entry is one persisted consumed-token record.
type Entry struct {
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store is a durable, process-restart-safe set of consumed token hashes.
// Consumption is an atomic compare-and-insert: concurrent Consume calls
// for the same token ID race safely, and exactly one wins.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]time.Time // tokenHash -> expiresAt
	// pruneGrace extends how long a consumed entry is retained past its
	// token's own expiry, so a replay attempt presented slightly after
	// expiry is still caught as "already consumed" rather than merely
	// "expired" (spec §6: pruned on load, keeping expiresAt + 120s > now).
	pruneGrace time.Duration
}

// DefaultPruneGrace is the retention window past a token's expiry, per the
// persisted-state layout in spec §6.
const DefaultPruneGrace = 120 * time.Second

// HashTokenID returns hex(SHA-256(tokenID)), the only form of a token ID
// ever persisted.
func HashTokenID(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}

// Open loads a consumed-token store from path, pruning entries whose
// expiresAt + pruneGrace has already elapsed relative to now.
func Open(path string, now time.Time) (*Store, error) {
	return OpenWithGrace(path, now, DefaultPruneGrace)
}

// OpenWithGrace is Open with an explicit prune grace period, used by
// tests and by the model-call-token parallel store (whose grace period
// the kernel may configure independently).
func OpenWithGrace(path string, now time.Time, grace time.Duration) (*Store, error) {
	s := &Store{path: path, entries: map[string]time.Time{}, pruneGrace: grace}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("consumed: reading store: %w", err)
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("consumed: decoding store: %w", err)
	}
	for _, e := range raw {
		if now.Before(e.ExpiresAt.Add(grace)) {
			s.entries[e.TokenHash] = e.ExpiresAt
		}
	}
	return s, nil
}

// Consume attempts to insert tokenID's hash into the store. It returns
// true the first time a given token ID is consumed and false on every
// subsequent call (replay) across the process and its restarts (spec P3).
func (s *Store) Consume(tokenID string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashTokenID(tokenID)
	if _, already := s.entries[hash]; already {
		return false, nil
	}
	s.entries[hash] = expiresAt
	if err := s.persistLocked(); err != nil {
		delete(s.entries, hash)
		return false, err
	}
	return true, nil
}

// IsConsumed reports whether tokenID has already been consumed, without
// mutating the store.
func (s *Store) IsConsumed(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[HashTokenID(tokenID)]
	return ok
}

// Prune removes entries whose retention window has elapsed relative to
// now, and persists the result.
func (s *Store) Prune(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, expiresAt := range s.entries {
		if !now.Before(expiresAt.Add(s.pruneGrace)) {
			delete(s.entries, hash)
		}
	}
	return s.persistLocked()
}

// Len returns the number of retained entries (test/diagnostic use).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) persistLocked() error {
	raw := make([]Entry, 0, len(s.entries))
	for hash, expiresAt := range s.entries {
		raw = append(raw, Entry{TokenHash: hash, ExpiresAt: expiresAt})
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("consumed: encoding store: %w", err)
	}
	return atomicfile.WriteFile(s.path, data, 0o600)
}
