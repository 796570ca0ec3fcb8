package kernelcli

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/quaylabs/capkernel/kernel"
)

// ConfigureMintCommand registers `kernelctl mint`: the separate,
// explicit step that turns an already-authorized plan into a presentable
// AuthorizationToken (spec §4.1 step 9 — execute never mints a token on
// its own).
func ConfigureMintCommand(app *kingpin.Application, rt *Runtime) {
	var planID, sessionID string
	var sessionValid bool

	cmd := app.Command("mint", "Mint an authorization token for an already-authorized plan")
	cmd.Arg("plan-id", "The plan ID to mint a token for").Required().StringVar(&planID)
	cmd.Flag("session-id", "Approval session identifier to bind the token to").StringVar(&sessionID)
	cmd.Flag("session-valid", "Whether the approval session is currently valid").Default("true").BoolVar(&sessionValid)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := MintCommand(rt, planID, sessionID, sessionValid)
		app.FatalIfError(err, "mint")
		return nil
	})
}

// MintCommand presents rt.Vault.Sign directly as the token's human
// signer callback — it shares vault.Vault.Sign's exact shape, so minting
// from the CLI never needs to touch private key material itself.
func MintCommand(rt *Runtime, planID, sessionID string, sessionValid bool) error {
	result, err := rt.Kernel.MintToken(planID, kernel.MintParams{
		DeviceFingerprint:    rt.DeviceFingerprint,
		ApprovalSessionID:    sessionID,
		ApprovalSessionValid: sessionValid,
		Sign:                 rt.Vault.Sign,
	}, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "status: %s\n", result.Status)
	if result.Status != "completed" || result.Token == nil {
		reportDenial(os.Stdout, result.Reason)
		return nil
	}

	tok := *result.Token
	reportSuccess(os.Stdout, "token minted")
	reportDetail(os.Stdout, "tokenId:   %s", tok.ID)
	reportDetail(os.Stdout, "expiresAt: %s", tok.ExpiresAt.Format(time.RFC3339))
	return nil
}
