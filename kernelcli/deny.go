package kernelcli

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

// ConfigureDenyCommand registers `kernelctl deny`.
func ConfigureDenyCommand(app *kingpin.Application, rt *Runtime) {
	var planID, reason string

	cmd := app.Command("deny", "Deny a parked plan")
	cmd.Arg("plan-id", "The plan ID to deny").Required().StringVar(&planID)
	cmd.Flag("reason", "Reason recorded alongside the denial").StringVar(&reason)

	cmd.Action(func(c *kingpin.ParseContext) error {
		result, err := rt.Kernel.Deny(planID, reason, time.Now())
		app.FatalIfError(err, "deny")
		fmt.Fprintf(os.Stdout, "status: %s\n", result.Status)
		return nil
	})
}
