package kernelcli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/quaylabs/capkernel/intent"
)

// ExecuteCommandInput is the parsed form of `kernelctl execute`.
type ExecuteCommandInput struct {
	Action              string
	Target              string
	HasRollbackPlan     bool
	HasBackup           bool
	InvolvesPayment      bool
	InvolvesPII         bool
	ExternalRecipients  int
	AffectsSystemConfig bool
	ScopeBreadth        int
}

// ConfigureExecuteCommand registers `kernelctl execute`: runs a single
// ExecutionIntent through intake-through-policy_mapping and prints the
// outcome, mirroring ConfigureApproveCommand's kingpin registration shape.
func ConfigureExecuteCommand(app *kingpin.Application, rt *Runtime) {
	input := ExecuteCommandInput{}

	cmd := app.Command("execute", "Submit an execution intent to the decision pipeline")

	cmd.Arg("action", "The action string to classify (e.g. \"send email\")").
		Required().
		StringVar(&input.Action)

	cmd.Arg("target", "The target the action applies to").
		StringVar(&input.Target)

	cmd.Flag("rollback-plan", "A rollback plan exists for this action").
		BoolVar(&input.HasRollbackPlan)
	cmd.Flag("backup", "A backup exists for this action's target").
		BoolVar(&input.HasBackup)
	cmd.Flag("involves-payment", "This action involves a payment").
		BoolVar(&input.InvolvesPayment)
	cmd.Flag("involves-pii", "This action touches personally identifiable information").
		BoolVar(&input.InvolvesPII)
	cmd.Flag("external-recipients", "Number of external recipients this action reaches").
		IntVar(&input.ExternalRecipients)
	cmd.Flag("affects-system-config", "This action mutates system configuration").
		BoolVar(&input.AffectsSystemConfig)
	cmd.Flag("scope-breadth", "How many resources this action's scope spans").
		IntVar(&input.ScopeBreadth)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := ExecuteCommand(rt, input)
		app.FatalIfError(err, "execute")
		return nil
	})
}

// ExecuteCommand runs input through rt.Kernel.Execute and reports the
// result to stdout/stderr.
func ExecuteCommand(rt *Runtime, input ExecuteCommandInput) error {
	now := time.Now()
	params := map[string]string{}
	if input.InvolvesPayment {
		params["involvesPayment"] = "true"
	}
	if input.InvolvesPII {
		params["involvesPII"] = "true"
	}
	if input.ExternalRecipients > 0 {
		params["externalRecipients"] = fmt.Sprint(input.ExternalRecipients)
	}
	if input.AffectsSystemConfig {
		params["affectsSystemConfig"] = "true"
	}
	if input.ScopeBreadth > 0 {
		params["scopeBreadth"] = fmt.Sprint(input.ScopeBreadth)
	}

	it := intent.New(input.Action, input.Target, params, now)
	revCtx := intent.ReversibilityContext{HasRollbackPlan: input.HasRollbackPlan, HasBackup: input.HasBackup}

	result, err := rt.Kernel.Execute(context.Background(), it, revCtx, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "planId: %s\n", result.PlanID)
	fmt.Fprintf(os.Stdout, "status: %s\n", result.Status)
	fmt.Fprintf(os.Stdout, "phase:  %s\n", result.Phase)
	if result.Assessment.Total != 0 || result.Assessment.Tier != "" {
		fmt.Fprintf(os.Stdout, "tier:   %s (score %d)\n", result.Assessment.Tier, result.Assessment.Total)
	}

	switch result.Status {
	case "denied", "failed", "escalated", "cooldown_active":
		reportDenial(os.Stdout, result.Reason)
		if result.RemainingSeconds > 0 {
			reportDetail(os.Stdout, "remaining: %ds", result.RemainingSeconds)
		}
	case "completed":
		reportSuccess(os.Stdout, "recorded; run `kernelctl mint "+result.PlanID+"` to obtain a token")
	case "pending_approval":
		reportDetail(os.Stdout, "awaiting approval: run `kernelctl approve %s`", result.PlanID)
	}
	return nil
}
