package kernelcli

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/charmbracelet/huh"
	isatty "github.com/mattn/go-isatty"

	"github.com/quaylabs/capkernel/kernel"
	"github.com/quaylabs/capkernel/quorum"
)

// ApproveCommandInput is the parsed form of `kernelctl approve`.
type ApproveCommandInput struct {
	PlanID        string
	SignerID      string
	SignerType    string
	SignatureHex  string
}

// ConfigureApproveCommand registers `kernelctl approve`. On a real TTY
// with no --signature supplied it falls back to an interactive huh form
// standing in for the hardware biometric prompt; off a TTY it fails
// closed and demands an explicit signature, matching the teacher's
// isATerminal-gated interactive fallback in cli/global.go.
func ConfigureApproveCommand(app *kingpin.Application, rt *Runtime) {
	input := ApproveCommandInput{}

	cmd := app.Command("approve", "Contribute a signature toward a parked plan's quorum")

	cmd.Arg("plan-id", "The plan ID to approve").Required().StringVar(&input.PlanID)
	cmd.Flag("signer-id", "Identifier of the approving signer").Required().StringVar(&input.SignerID)
	cmd.Flag("signer-type", "One of device_operator, org_authority, emergency_override").
		Default(string(quorum.SignerDeviceOperator)).StringVar(&input.SignerType)
	cmd.Flag("signature", "Hex-encoded signature data; omit on a TTY to be prompted interactively").
		StringVar(&input.SignatureHex)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := ApproveCommand(rt, input)
		app.FatalIfError(err, "approve")
		return nil
	})
}

// ApproveCommand resolves input into a kernel.Approval and presents it to
// rt.Kernel.Authorize.
func ApproveCommand(rt *Runtime, input ApproveCommandInput) error {
	signerType := quorum.SignerType(input.SignerType)
	if !signerType.IsValid() {
		return fmt.Errorf("kernelcli: unknown signer type %q", input.SignerType)
	}

	sigData := []byte(input.SignatureHex)
	if len(sigData) == 0 {
		confirmed, err := promptApprovalConfirmation(input.PlanID)
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("kernelcli: approval declined interactively")
		}
		sigData = []byte("interactive-confirmation")
	}

	approval := kernel.Approval{
		SignerID:      input.SignerID,
		SignerType:    signerType,
		SignatureData: sigData,
	}

	result, err := rt.Kernel.Authorize(input.PlanID, approval, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "status: %s\n", result.Status)
	if result.Status != "completed" {
		reportDenial(os.Stdout, result.Reason)
		return nil
	}
	reportSuccess(os.Stdout, "quorum satisfied; run `kernelctl mint "+input.PlanID+"` to obtain a token")
	return nil
}

// promptApprovalConfirmation shows an interactive confirmation for
// planID, standing in for the biometric gate a real hardware-backed vault
// would enforce. It refuses to run off a real terminal: a non-interactive
// caller must supply --signature explicitly rather than silently falling
// back to some default answer.
func promptApprovalConfirmation(planID string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, fmt.Errorf("kernelcli: no TTY available; pass --signature explicitly")
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Approve plan %s?", planID)).
				Affirmative("Approve").
				Negative("Deny").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("kernelcli: approval prompt: %w", err)
	}
	return confirmed, nil
}
