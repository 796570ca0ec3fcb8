package kernelcli

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

// ConfigureListPendingCommand registers `kernelctl list-pending`.
func ConfigureListPendingCommand(app *kingpin.Application, rt *Runtime) {
	cmd := app.Command("list-pending", "List plans parked awaiting approval")
	cmd.Action(func(c *kingpin.ParseContext) error {
		pending := rt.Kernel.ListPending()
		if len(pending) == 0 {
			fmt.Fprintln(os.Stdout, "no plans pending approval")
			return nil
		}
		for _, ppc := range pending {
			fmt.Fprintf(os.Stdout, "%s  tier=%s  %s -> %s  (parked %s)\n",
				ppc.Plan.ID, ppc.RiskAssessment.Tier, ppc.Plan.Intent.Type, ppc.Plan.Intent.TargetDescription, ppc.CreatedAt.Format("15:04:05"))
		}
		return nil
	})
}
