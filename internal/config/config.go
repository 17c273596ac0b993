// Package config loads the runtime settings the dispatcher and CLI need:
// which backend to target, where the profile override file and tuning
// broadcast address live, and the workspace ceiling to enforce. Values
// come from environment variables with ISAAC_ prefixes, matching the
// teacher's own preference for zero-config defaults with env overrides
// over a dedicated config file format.
package config

import (
	"os"
	"strconv"

	"github.com/dustin/go-humanize"

	"isaac/internal/dispatch"
	"isaac/internal/driver"
	"isaac/internal/ierrors"
)

// Config is the resolved runtime configuration for one isaac process.
type Config struct {
	// Backend selects which device dispatch API generated kernels target
	// (spec §4.3's common C dialect, keyword-substituted per backend).
	Backend driver.Backend
	// ProfileOverridePath is the user profile override file merged on top
	// of the built-in table (spec §6), defaulting to
	// $HOME/.isaac/devices/device0.json.
	ProfileOverridePath string
	// TuneBroadcastAddr, when non-empty, is the address tunesvc.Server
	// listens on for fleet-wide tuning-winner broadcasts.
	TuneBroadcastAddr string
	// WorkspaceCeilingBytes is the ISAAC_WORKSPACE_CEILING value, 0 when
	// unset; String reports it. The dispatcher does not read it and
	// always applies dispatch.WorkspaceCeiling's element count.
	WorkspaceCeilingBytes int64
}

// Load resolves a Config from the process environment, falling back to
// isaac's defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Backend:               driver.OpenCLLike,
		ProfileOverridePath:   defaultOverridePath(),
		WorkspaceCeilingBytes: 0,
	}

	if v := os.Getenv("ISAAC_BACKEND"); v != "" {
		switch v {
		case "opencl", "opencl-like":
			cfg.Backend = driver.OpenCLLike
		case "cuda", "cuda-like":
			cfg.Backend = driver.CUDALike
		default:
			return Config{}, ierrors.New(ierrors.OperationNotSupported, "config: unknown ISAAC_BACKEND %q", v)
		}
	}

	if v := os.Getenv("ISAAC_PROFILE_OVERRIDE"); v != "" {
		cfg.ProfileOverridePath = v
	}

	cfg.TuneBroadcastAddr = os.Getenv("ISAAC_TUNE_BROADCAST_ADDR")

	if v := os.Getenv("ISAAC_WORKSPACE_CEILING"); v != "" {
		bytes, err := humanize.ParseBytes(v)
		if err != nil {
			return Config{}, ierrors.Wrap(ierrors.RuntimeError, err, "config: parsing ISAAC_WORKSPACE_CEILING %q", v)
		}
		cfg.WorkspaceCeilingBytes = int64(bytes)
	}

	return cfg, nil
}

func defaultOverridePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.isaac/devices/device0.json"
}

// String renders cfg for the `isaac inspect` CLI subcommand and debug
// logging, formatting the workspace ceiling with humanize.Bytes the way
// every other byte-count in this codebase is displayed.
func (cfg Config) String() string {
	ceiling := "default (" + strconv.FormatInt(dispatch.WorkspaceCeiling, 10) + " elements)"
	if cfg.WorkspaceCeilingBytes > 0 {
		ceiling = humanize.Bytes(uint64(cfg.WorkspaceCeilingBytes))
	}
	return "backend=" + cfg.Backend.String() +
		" profile_override=" + cfg.ProfileOverridePath +
		" tune_broadcast_addr=" + cfg.TuneBroadcastAddr +
		" workspace_ceiling=" + ceiling
}
