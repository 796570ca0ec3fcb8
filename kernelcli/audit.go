package kernelcli

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/quaylabs/capkernel/ledger"
)

// ConfigureAuditCommand registers `kernelctl audit`: builds a compliance
// report over the evidence ledger independently of the running kernel —
// entry counts by chain and by risk tier, plus the chain-wide integrity
// violation tally — the CLI-layer counterpart to C13's own ledger check
// (spec §4.9 check 5).
func ConfigureAuditCommand(app *kingpin.Application, rt *Runtime) {
	cmd := app.Command("audit", "Report ledger compliance and verify its hash chain")

	var from, to string
	cmd.Flag("from", "RFC3339 start of the reporting window (default: unbounded)").StringVar(&from)
	cmd.Flag("to", "RFC3339 end of the reporting window (default: unbounded)").StringVar(&to)

	cmd.Action(func(c *kingpin.ParseContext) error {
		fromTime, err := parseOptionalTime(from)
		if err != nil {
			app.FatalIfError(err, "audit")
			return nil
		}
		toTime, err := parseOptionalTime(to)
		if err != nil {
			app.FatalIfError(err, "audit")
			return nil
		}

		key, err := rt.Vault.GetHMACKey(rt.EpochManager.ActiveKeyVersion())
		if err != nil {
			app.FatalIfError(err, "audit")
			return nil
		}
		report, err := ledger.BuildComplianceReport(rt.LedgerPath, key, fromTime, toTime)
		app.FatalIfError(err, "audit")

		fmt.Fprintf(os.Stdout, "entries in range: %d\n", report.EntriesInRange)
		for chainID, count := range report.EntriesByChain {
			reportDetail(os.Stdout, "chain %s: %d entries", chainID, count)
		}
		for tier, count := range report.EntriesByTier {
			reportDetail(os.Stdout, "tier %s: %d entries", tier, count)
		}

		if !report.HasComplianceGaps() {
			reportSuccess(os.Stdout, "no violations found")
			return nil
		}
		for category, count := range report.ViolationsByType {
			reportDetail(os.Stdout, "%s: %d", category, count)
		}
		reportDenial(os.Stdout, fmt.Sprintf("%d violation(s) found", report.ViolationCount))
		return nil
	})
}

// parseOptionalTime parses an RFC3339 timestamp, treating an empty string
// as an unbounded (zero-value) edge of the reporting window.
func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
