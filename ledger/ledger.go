// Package ledger implements the kernel's evidence ledger (C6): an
// append-only, hash-chained log of entries signed with HMAC-SHA256. Unlike
// the teacher's SignedLogger, which falls back to writing an unsigned
// entry when signing fails (fail-open, optimizing for availability), every
// append here fails closed: a signing or I/O error aborts the append and
// returns to the caller rather than ever landing an entry whose signature
// cannot be trusted (spec §7 category 4 — fatal integrity errors must
// never be silently downgraded).
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/quaylabs/capkernel/atomicfile"
	"github.com/quaylabs/capkernel/primitives"
)

// GenesisHash is the previousHash value of the first entry in a chain.
const GenesisHash = "GENESIS"

// EntryType is the closed set of evidence kinds the ledger records.
type EntryType string

const (
	EntryExecutionChain EntryType = "execution_chain"
	EntryArtifact       EntryType = "artifact"
	EntryViolation      EntryType = "violation"
	EntrySystemEvent    EntryType = "system_event"
)

func (t EntryType) String() string { return string(t) }

// Entry is one persisted, hash-chained evidence record.
type Entry struct {
	ID           string          `json:"id"`
	ChainID      string          `json:"chainId"`
	Type         EntryType       `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Signature    string          `json:"signature"`
	CreatedAt    time.Time       `json:"createdAt"`
	PreviousHash string          `json:"previousHash"`
	CurrentHash  string          `json:"currentHash"`
}

// header returns the canonical byte form signed and hashed for an entry:
// id, chainId, type, createdAt (RFC3339Nano, stable precision), and
// previousHash — every field except the signature and hash themselves.
func header(id, chainID string, typ EntryType, createdAt time.Time, previousHash string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s", id, chainID, typ, createdAt.UTC().Format(time.RFC3339Nano), previousHash))
}

// computeCurrentHash reproduces currentHash = SHA-256(id | chainId | type |
// signature | createdAt | previousHash) exactly as spec §3 defines it.
func computeCurrentHash(id, chainID string, typ EntryType, signature string, createdAt time.Time, previousHash string) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%s|%s", id, chainID, typ, signature, createdAt.UTC().Format(time.RFC3339Nano), previousHash)
	sum := primitives.Sum256([]byte(material))
	return fmt.Sprintf("%x", sum)
}

// Ledger owns the append-only chain.jsonl file and the in-memory tail
// hash. It is single-writer: the kernel's composition root is expected to
// hold exactly one Ledger per process.
type Ledger struct {
	path     string
	hmacKey  []byte
	tailHash string
	count    int
}

// Open recovers a ledger from path, reading the last record to restore
// the in-memory tail hash. A missing file starts a fresh chain with
// tailHash = GenesisHash.
func Open(path string, hmacKey []byte) (*Ledger, error) {
	l := &Ledger{path: path, hmacKey: hmacKey, tailHash: GenesisHash}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var last Entry
	found := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger: decoding entry at count %d: %w", l.count, err)
		}
		last = e
		found = true
		l.count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scanning %s: %w", path, err)
	}
	if found {
		l.tailHash = last.CurrentHash
	}
	return l, nil
}

// Append signs and appends a new entry, linking it to the current tail
// hash, and advances the in-memory tail on success. On any failure
// (signing, marshaling, or I/O) it returns the error and leaves the
// ledger's on-disk and in-memory state exactly as it was — no partial
// entry is ever written (spec: "cancellation never leaves a half-written
// ledger entry").
func (l *Ledger) Append(id, chainID string, typ EntryType, payload any, createdAt time.Time) (Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: marshaling payload: %w", err)
	}

	previousHash := l.tailHash
	signingMaterial := header(id, chainID, typ, createdAt, previousHash)
	sigBytes, err := primitives.HMACSign(signingMaterial, l.hmacKey)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: signing entry: %w", err)
	}
	signature := fmt.Sprintf("%x", sigBytes)

	currentHash := computeCurrentHash(id, chainID, typ, signature, createdAt, previousHash)

	entry := Entry{
		ID:           id,
		ChainID:      chainID,
		Type:         typ,
		Payload:      payloadJSON,
		Signature:    signature,
		CreatedAt:    createdAt,
		PreviousHash: previousHash,
		CurrentHash:  currentHash,
	}

	record, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: marshaling entry: %w", err)
	}
	if err := atomicfile.AppendFile(l.path, record, 0o600); err != nil {
		return Entry{}, fmt.Errorf("ledger: appending entry: %w", err)
	}

	l.tailHash = currentHash
	l.count++
	return entry, nil
}

// TailHash returns the current chain tail hash.
func (l *Ledger) TailHash() string {
	return l.tailHash
}

// Count returns the number of entries appended so far (including those
// recovered from disk on Open).
func (l *Ledger) Count() int {
	return l.count
}
