package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"golang.org/x/term"

	"github.com/quaylabs/capkernel/kernelcli"
)

// filePassphrasePrompt reads the file-backend keyring passphrase from the
// terminal, falling back to an environment variable for non-interactive
// invocations, matching cli/global.go's fileKeyringPassphrasePrompt.
func filePassphrasePrompt(prompt string) (string, error) {
	if password, ok := os.LookupEnv("CAPKERNEL_FILE_PASSPHRASE"); ok {
		return password, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return string(b), nil
}

// Version is provided at compile time.
var Version = "dev"

func main() {
	app := kingpin.New("kernelctl", "Capability kernel: intent-aware execution gating")
	app.Version(Version)

	var debug bool
	var baseDir string
	var useBiometrics bool
	var policyStrict bool
	var witnessURL string

	app.Flag("debug", "Show debugging output").BoolVar(&debug)
	app.Flag("base-dir", "Directory holding EvidenceChain/ and KernelSecurity/").
		Default("~/.capkernel").
		Envar("CAPKERNEL_BASE_DIR").
		StringVar(&baseDir)
	app.Flag("biometrics", "Use biometric authentication if supported").
		Envar("CAPKERNEL_BIOMETRICS").
		BoolVar(&useBiometrics)
	app.Flag("policy-strict", "Load the strict policy preset instead of the default").
		Envar("CAPKERNEL_POLICY_STRICT").
		BoolVar(&policyStrict)
	app.Flag("witness-url", "Optional witness endpoint the evidence ledger mirrors to").
		Envar("CAPKERNEL_WITNESS_URL").
		StringVar(&witnessURL)

	// rt is registered with every subcommand before it is populated; its
	// fields are only read once a command's Action runs, by which point
	// PreAction below has filled it in.
	rt := &kernelcli.Runtime{}

	app.PreAction(func(c *kingpin.ParseContext) error {
		if !debug {
			log.SetOutput(io.Discard)
		}
		built, err := kernelcli.Bootstrap(kernelcli.BootstrapOptions{
			BaseDir:          baseDir,
			FilePasswordFunc: filePassphrasePrompt,
			UseBiometrics:    useBiometrics,
			PolicyStrict:     policyStrict,
			WitnessURL:       witnessURL,
		})
		if err != nil {
			return err
		}
		*rt = *built
		return nil
	})

	kernelcli.ConfigureExecuteCommand(app, rt)
	kernelcli.ConfigureApproveCommand(app, rt)
	kernelcli.ConfigureDenyCommand(app, rt)
	kernelcli.ConfigureListPendingCommand(app, rt)
	kernelcli.ConfigureMintCommand(app, rt)
	kernelcli.ConfigureEmergencyStopCommand(app, rt)
	kernelcli.ConfigureResumeCommand(app, rt)
	kernelcli.ConfigureStatusCommand(app, rt)
	kernelcli.ConfigureAuditCommand(app, rt)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
