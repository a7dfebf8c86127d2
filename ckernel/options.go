package ckernel

import (
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/thiremani/ckernel/compiler"
	"github.com/thiremani/ckernel/irdump"
)

// Environment variables read by DefaultOptions.
const (
	EnvOptLevel       = "CKERNEL_OPT_LEVEL"
	EnvTargetFeatures = "CKERNEL_TARGET_FEATURES"
	// EnvDumpDir enables IR dumps. "default" selects the per-user cache directory.
	EnvDumpDir = "CKERNEL_DUMP_DIR"
)

const DefaultOptLevel = 3

// Options configures SpecializeWith.
type Options struct {
	// OptLevel is the optimization level, 0 to 3.
	OptLevel int
	// TargetFeatures is set as "target-features" on every generated function.
	TargetFeatures string
	// DumpDir, if not empty, receives the IR before and after optimization. See package irdump.
	DumpDir string
}

// DefaultOptions returns O3 with AVX disabled and no dumps, overridden by the
// CKERNEL_* environment variables.
func DefaultOptions() Options {
	opts := Options{
		OptLevel:       DefaultOptLevel,
		TargetFeatures: compiler.DefaultTargetFeatures,
	}
	if v := strings.TrimSpace(os.Getenv(EnvOptLevel)); v != "" {
		level, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(v), "O"))
		if err != nil || level < 0 || level > 3 {
			klog.Warningf("ckernel: ignoring %s=%q, want 0..3", EnvOptLevel, v)
		} else {
			opts.OptLevel = level
		}
	}
	if v, ok := os.LookupEnv(EnvTargetFeatures); ok {
		opts.TargetFeatures = strings.TrimSpace(v)
	}
	switch dir := strings.TrimSpace(os.Getenv(EnvDumpDir)); dir {
	case "":
	case "default":
		opts.DumpDir = irdump.DefaultRoot()
	default:
		opts.DumpDir = dir
	}
	return opts
}
