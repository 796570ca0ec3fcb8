package ledger

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/quaylabs/capkernel/primitives"
)

// ViolationCategory classifies how a chain failed integrity verification.
type ViolationCategory string

const (
	ViolationSignatureMismatch ViolationCategory = "signature_mismatch"
	ViolationSequenceGap       ViolationCategory = "sequence_gap"
	ViolationTimestampAnomaly  ViolationCategory = "timestamp_anomaly"
	ViolationDataCorruption    ViolationCategory = "data_corruption"
)

// Violation names one entry that failed a specific integrity check.
type Violation struct {
	EntryID  string
	Category ViolationCategory
	Detail   string
}

// VerifyChainIntegrity walks every record in the file at path in order,
// recomputing each entry's signature and hash against its declared
// predecessor, and reports every violation found. An empty or missing
// file has no violations. This never mutates the ledger; it is safe to
// call on a live file from a read-only verifier process.
func VerifyChainIntegrity(path string, hmacKey []byte) ([]Violation, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer f.Close()

	var violations []Violation
	expectedPrevious := GenesisHash
	var lastTimestamp time.Time
	haveLast := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			violations = append(violations, Violation{Category: ViolationDataCorruption, Detail: "entry is not valid JSON"})
			continue
		}

		if e.PreviousHash != expectedPrevious {
			violations = append(violations, Violation{
				EntryID: e.ID, Category: ViolationSequenceGap,
				Detail: fmt.Sprintf("expected previousHash %s, got %s", expectedPrevious, e.PreviousHash),
			})
		}

		wantHash := computeCurrentHash(e.ID, e.ChainID, e.Type, e.Signature, e.CreatedAt, e.PreviousHash)
		if wantHash != e.CurrentHash {
			violations = append(violations, Violation{
				EntryID: e.ID, Category: ViolationDataCorruption,
				Detail: "recomputed currentHash does not match the stored value",
			})
		}

		sigMaterial := header(e.ID, e.ChainID, e.Type, e.CreatedAt, e.PreviousHash)
		sigBytes, decodeErr := hex.DecodeString(e.Signature)
		if decodeErr != nil {
			violations = append(violations, Violation{
				EntryID: e.ID, Category: ViolationSignatureMismatch,
				Detail: "signature is not valid hex",
			})
		} else if ok, err := primitives.HMACVerify(sigMaterial, hmacKey, sigBytes); err != nil || !ok {
			detail := "signature does not match recomputed HMAC"
			if err != nil {
				detail = err.Error()
			}
			violations = append(violations, Violation{
				EntryID: e.ID, Category: ViolationSignatureMismatch,
				Detail: detail,
			})
		}

		if haveLast && e.CreatedAt.Before(lastTimestamp) {
			violations = append(violations, Violation{
				EntryID: e.ID, Category: ViolationTimestampAnomaly,
				Detail: "entry's createdAt precedes its predecessor's",
			})
		}

		expectedPrevious = e.CurrentHash
		lastTimestamp = e.CreatedAt
		haveLast = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scanning %s: %w", path, err)
	}
	return violations, nil
}

// QueryByChainID returns every entry in path whose ChainID matches, in
// file order.
func QueryByChainID(path, chainID string) ([]Entry, error) {
	return queryFiltered(path, func(e Entry) bool { return e.ChainID == chainID })
}

// QueryByDateRange returns every entry whose CreatedAt falls within
// [from, to], inclusive.
func QueryByDateRange(path string, from, to time.Time) ([]Entry, error) {
	return queryFiltered(path, func(e Entry) bool {
		return !e.CreatedAt.Before(from) && !e.CreatedAt.After(to)
	})
}

// ExportForAudit returns every entry in path, optionally bounded by a
// date range. Either bound may be the zero Time to leave it open.
func ExportForAudit(path string, from, to time.Time) ([]Entry, error) {
	return queryFiltered(path, func(e Entry) bool {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			return false
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			return false
		}
		return true
	})
}

// ComplianceReport summarizes ledger activity over a bounded time range for
// audit purposes: entry counts grouped by chain and by risk tier, plus the
// chain-wide integrity violation tally, modeled on the teacher's
// SessionComplianceResult (grouped counts and a single gap indicator)
// rather than a raw entry dump.
type ComplianceReport struct {
	From             time.Time                 `json:"from"`
	To               time.Time                 `json:"to"`
	EntriesInRange   int                       `json:"entriesInRange"`
	EntriesByChain   map[string]int            `json:"entriesByChain"`
	EntriesByTier    map[string]int            `json:"entriesByTier"`
	ViolationsByType map[ViolationCategory]int `json:"violationsByType"`
	ViolationCount   int                       `json:"violationCount"`
}

// HasComplianceGaps reports whether the chain-wide integrity check found
// any violation, mirroring the teacher's SessionComplianceResult.HasComplianceGaps.
func (r ComplianceReport) HasComplianceGaps() bool {
	return r.ViolationCount > 0
}

// BuildComplianceReport exports every entry in [from, to] from path,
// grouping counts by chain and by risk tier, and tallies the full chain's
// integrity violations by category. The violation tally is never bounded
// by the date range: a corrupted entry outside the report's window still
// invalidates the chain the report is certifying.
func BuildComplianceReport(path string, hmacKey []byte, from, to time.Time) (ComplianceReport, error) {
	entries, err := ExportForAudit(path, from, to)
	if err != nil {
		return ComplianceReport{}, err
	}
	violations, err := VerifyChainIntegrity(path, hmacKey)
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{
		From:             from,
		To:               to,
		EntriesInRange:   len(entries),
		EntriesByChain:   map[string]int{},
		EntriesByTier:    map[string]int{},
		ViolationsByType: map[ViolationCategory]int{},
		ViolationCount:   len(violations),
	}
	for _, e := range entries {
		report.EntriesByChain[e.ChainID]++
		if e.Type == EntryExecutionChain {
			if tier := extractTier(e.Payload); tier != "" {
				report.EntriesByTier[tier]++
			}
		}
	}
	for _, v := range violations {
		report.ViolationsByType[v.Category]++
	}
	return report, nil
}

// extractTier pulls the "tier" field out of an execution-chain entry's
// payload without requiring callers to import the intent package's Tier
// type — the ledger package stays domain-shape-agnostic about its payloads.
func extractTier(payload json.RawMessage) string {
	var shape struct {
		Tier string `json:"tier"`
	}
	if err := json.Unmarshal(payload, &shape); err != nil {
		return ""
	}
	return shape.Tier
}

func queryFiltered(path string, keep func(Entry) bool) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer f.Close()

	var matched []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger: decoding entry: %w", err)
		}
		if keep(e) {
			matched = append(matched, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scanning %s: %w", path, err)
	}
	return matched, nil
}
