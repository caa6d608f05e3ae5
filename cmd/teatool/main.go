// teatool is a CLI utility for inspecting and playing TEA keyframe animations.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

func main() {
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		err = cmdInfo(cfg, args)
	case "dump":
		err = cmdDump(cfg, args)
	case "scan":
		err = cmdScan(cfg, args)
	case "play":
		err = cmdPlay(cfg, args)
	case "cache":
		err = cmdCache(cfg, args)
	case "upgrade":
		err = cmdUpgrade(args)
	case "list", "ls":
		err = cmdList(cfg, args)
	case "extract", "x":
		err = cmdExtract(cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`teatool - TEA keyframe animation utility

Usage:
  teatool [flags] <command> [options]

Flags:
  -config <file>    Config file (default ./config.yaml or the user config dir)
  -data <dir>       Data directory, repeatable
  -grf <file>       GRF archive, repeatable
  -seed <n>         Seed for alternate selection
  -capacity <n>     Animation cache capacity
  -audio            Play keyframe sounds
  -debug            Debug logging

Commands:
  info <anim.tea>                  Show header, duration and checksum
  dump <anim.tea>                  Print every keyframe after gap filling
  scan [ext]                       Decode every animation in the data sources
  play <anim.tea> [ms]             Play an animation and print frame events
  cache [-snapshot out.yaml] <anim.tea>...
                                   Load animations and list the cache
  upgrade <in.tea> <out.tea>       Rewrite a file with the extended layout
  list [pattern]                   List files in the data sources
  extract <path|pattern> [output]  Extract file(s) to a directory

Examples:
  teatool -data ./data info anim/human/walk.tea
  teatool -grf data.grf scan
  teatool -data ./data -audio play anim/human/walk.tea 3000`)
}
