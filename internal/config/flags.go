package config

import (
	"flag"
	"strings"
)

// listFlag collects repeated string flags.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagSeed     = flag.Uint64("seed", 0, "Random seed for alternate selection")
	flagCapacity = flag.Int("capacity", 0, "Animation cache capacity")
	flagAudio    = flag.Bool("audio", false, "Play keyframe sounds")
	flagData     listFlag
	flagGRF      listFlag
)

func init() {
	flag.Var(&flagData, "data", "Data directory (repeatable)")
	flag.Var(&flagGRF, "grf", "GRF archive (repeatable)")
}

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagSeed != 0 {
		cfg.Animation.Seed = *flagSeed
	}
	if *flagCapacity > 0 {
		cfg.Animation.CacheCapacity = *flagCapacity
	}
	if *flagAudio {
		cfg.Audio.Enabled = true
	}
	// Explicit sources replace the configured ones
	if len(flagData) > 0 {
		cfg.Data.Dirs = append([]string(nil), flagData...)
	}
	if len(flagGRF) > 0 {
		cfg.Data.GRFPaths = append([]string(nil), flagGRF...)
	}
}
