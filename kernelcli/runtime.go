// Package kernelcli wires the capability kernel's collaborators into a
// single demo-able runtime for cmd/kernelctl, in the shape of the
// teacher's cli package: a long-lived struct constructed once per process
// invocation, plus one Configure*Command function per kingpin subcommand.
package kernelcli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/byteness/keyring"

	"github.com/quaylabs/capkernel/consumed"
	"github.com/quaylabs/capkernel/device"
	"github.com/quaylabs/capkernel/epoch"
	"github.com/quaylabs/capkernel/integrity"
	"github.com/quaylabs/capkernel/kernel"
	"github.com/quaylabs/capkernel/ledger"
	"github.com/quaylabs/capkernel/mirror"
	"github.com/quaylabs/capkernel/policy"
	"github.com/quaylabs/capkernel/quorum"
	"github.com/quaylabs/capkernel/vault"
)

// Layout is the fixed on-disk state directory structure (spec §6).
type Layout struct {
	EvidenceChainDir  string
	KernelSecurityDir string
}

// expandHome resolves a leading "~" the way a shell would, since baseDir
// reaches here as a raw flag value with no shell to expand it.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

func layoutFor(baseDir string) Layout {
	return Layout{
		EvidenceChainDir:  filepath.Join(baseDir, "EvidenceChain"),
		KernelSecurityDir: filepath.Join(baseDir, "KernelSecurity"),
	}
}

// Runtime holds the fully wired kernel plus whatever the CLI layer needs
// beyond it: the device fingerprint this invocation runs as, and the
// witness mirror endpoint if one was configured.
type Runtime struct {
	Kernel            *kernel.Kernel
	Vault             *vault.Vault
	Devices           *device.Registry
	EpochManager      *epoch.Manager
	Ledger            *ledger.Ledger
	LedgerPath        string
	IntegrityGuard    *integrity.Guard
	DeviceFingerprint string
}

// BootstrapOptions configures a Runtime's storage backend and optional
// witness mirror.
type BootstrapOptions struct {
	BaseDir          string
	FilePasswordFunc keyring.PromptFunc
	UseBiometrics    bool
	WitnessURL       string
	PolicyStrict     bool
}

// Bootstrap opens (or initializes, on first launch) every durable
// collaborator under opts.BaseDir and returns a ready-to-use Runtime. This
// is the CLI-layer equivalent of a launch-time self-check: a failure here
// means the install is unusable, not merely degraded.
func Bootstrap(opts BootstrapOptions) (*Runtime, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("kernelcli: base directory is required")
	}
	baseDir, err := expandHome(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("kernelcli: resolving base directory: %w", err)
	}
	layout := layoutFor(baseDir)
	if err := os.MkdirAll(layout.EvidenceChainDir, 0o700); err != nil {
		return nil, fmt.Errorf("kernelcli: creating %s: %w", layout.EvidenceChainDir, err)
	}
	if err := os.MkdirAll(layout.KernelSecurityDir, 0o700); err != nil {
		return nil, fmt.Errorf("kernelcli: creating %s: %w", layout.KernelSecurityDir, err)
	}

	v, err := vault.Open(vault.Config{
		ServiceName:      "capkernel",
		FileDir:          layout.KernelSecurityDir,
		FilePasswordFunc: opts.FilePasswordFunc,
		UseBiometrics:    opts.UseBiometrics,
	})
	if err != nil {
		return nil, fmt.Errorf("kernelcli: opening vault: %w", err)
	}

	em, err := epoch.Open(filepath.Join(layout.KernelSecurityDir, "trust_epoch_state.json"), v)
	if err != nil {
		return nil, fmt.Errorf("kernelcli: opening trust epoch: %w", err)
	}

	devices, err := device.Open(filepath.Join(layout.KernelSecurityDir, "trusted_device_registry.json"))
	if err != nil {
		return nil, fmt.Errorf("kernelcli: opening device registry: %w", err)
	}

	fingerprint, err := v.PublicKeyFingerprint()
	if err != nil {
		fingerprint, err = v.GenerateECDSAIdentity()
		if err != nil {
			return nil, fmt.Errorf("kernelcli: provisioning device identity: %w", err)
		}
	}
	if len(devices.Devices()) == 0 {
		if _, err := devices.RegisterDevice("local", fingerprint, "", "primary device", time.Now()); err != nil {
			return nil, fmt.Errorf("kernelcli: registering first device: %w", err)
		}
	}

	consumedStore, err := consumed.Open(filepath.Join(layout.KernelSecurityDir, "consumed_auth_tokens.json"), time.Now())
	if err != nil {
		return nil, fmt.Errorf("kernelcli: opening consumed-token store: %w", err)
	}

	hmacKey, err := v.GetHMACKey(em.ActiveKeyVersion())
	if err != nil {
		return nil, fmt.Errorf("kernelcli: loading signing key: %w", err)
	}
	ledgerPath := filepath.Join(layout.EvidenceChainDir, "chain.jsonl")
	l, err := ledger.Open(ledgerPath, hmacKey)
	if err != nil {
		return nil, fmt.Errorf("kernelcli: opening evidence ledger: %w", err)
	}

	preset := policy.DefaultPreset()
	if opts.PolicyStrict {
		preset = policy.StrictPreset()
	}
	policyEngine := policy.NewEngine(preset)

	guard := integrity.New(ledgerPath, hmacKey)

	var mirrorClient *mirror.Mirror
	if opts.WitnessURL != "" {
		mirrorClient, err = mirror.Open(mirror.Config{WitnessURL: opts.WitnessURL})
		if err != nil {
			return nil, fmt.Errorf("kernelcli: configuring evidence mirror: %w", err)
		}
	}

	k := kernel.New(kernel.Config{
		Vault:             v,
		EpochManager:      em,
		Devices:           devices,
		ConsumedTokens:    consumedStore,
		Ledger:            l,
		Mirror:            mirrorClient,
		PolicyEngine:      policyEngine,
		IntegrityGuard:    guard,
		DeviceFingerprint: fingerprint,
		EmergencyOverrides: quorum.NewEmergencyOverrideTracker(),
		EmergencyOverridePolicy: quorum.EmergencyOverridePolicy{
			Cooldown:     1 * time.Hour,
			MaxPerWindow: 3,
			Window:       24 * time.Hour,
		},
	})

	return &Runtime{
		Kernel:            k,
		Vault:             v,
		Devices:           devices,
		EpochManager:      em,
		Ledger:            l,
		LedgerPath:        ledgerPath,
		IntegrityGuard:    guard,
		DeviceFingerprint: fingerprint,
	}, nil
}
