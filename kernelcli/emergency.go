package kernelcli

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

// ConfigureEmergencyStopCommand registers `kernelctl emergency-stop`.
func ConfigureEmergencyStopCommand(app *kingpin.Application, rt *Runtime) {
	var reason string
	cmd := app.Command("emergency-stop", "Cancel every parked plan and halt the pipeline")
	cmd.Flag("reason", "Reason recorded with the halt").Required().StringVar(&reason)

	cmd.Action(func(c *kingpin.ParseContext) error {
		rt.Kernel.EmergencyStop(reason, time.Now())
		reportDenial(os.Stdout, "pipeline halted: "+reason)
		return nil
	})
}

// ConfigureResumeCommand registers `kernelctl resume`.
func ConfigureResumeCommand(app *kingpin.Application, rt *Runtime) {
	cmd := app.Command("resume", "Resume the pipeline from a halted state")
	cmd.Action(func(c *kingpin.ParseContext) error {
		err := rt.Kernel.ResumeFromHalt()
		app.FatalIfError(err, "resume")
		fmt.Fprintln(os.Stdout, "resumed")
		return nil
	})
}

// ConfigureStatusCommand registers `kernelctl status`.
func ConfigureStatusCommand(app *kingpin.Application, rt *Runtime) {
	cmd := app.Command("status", "Show the pipeline's current phase and integrity posture")
	cmd.Action(func(c *kingpin.ParseContext) error {
		fmt.Fprintf(os.Stdout, "phase:   %s\n", rt.Kernel.Phase())
		fmt.Fprintf(os.Stdout, "posture: %s\n", rt.IntegrityGuard.Posture())
		fmt.Fprintf(os.Stdout, "epoch:   %d\n", rt.EpochManager.TrustEpoch())
		fmt.Fprintf(os.Stdout, "device:  %s\n", rt.DeviceFingerprint)
		return nil
	})
}
