// Package main is the worldengine entrypoint: it wires configuration,
// logging, the World Store, an Execution Store (backend selected by
// environment), the Execution Adapter, and the World Memory Context
// resolver into a line-protocol engine reading stdin and writing stdout
// (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/anthropics/worldengine/internal/config"
	"github.com/anthropics/worldengine/internal/engine"
	"github.com/anthropics/worldengine/internal/execution"
	"github.com/anthropics/worldengine/internal/logging"
	"github.com/anthropics/worldengine/internal/memorycontext"
	"github.com/anthropics/worldengine/internal/worldstate"
)

// buildVersion is overridable at link time via -ldflags.
var buildVersion = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	versionFlag := flag.Bool("version", false, "print the build version and exit")
	flag.BoolVar(versionFlag, "v", false, "print the build version and exit (shorthand)")
	flag.Parse()

	if *versionFlag {
		fmt.Println("worldengine " + buildVersion)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid configuration: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.LogMinLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid LOG_MIN_LEVEL: %v\n", err)
		return 1
	}
	defer log.Sync()

	worldStore := worldstate.NewStore(cfg.MemoryStoreFilePath, log)

	execStore, err := newExecutionStore(cfg, worldStore, log)
	if err != nil {
		log.Error("fatal: could not initialize execution store", zap.Error(err))
		return 1
	}

	adapter := execution.NewAdapter(worldStore, execStore, log)
	if _, err := adapter.RecoverInterruptedExecutions(); err != nil {
		log.Error("fatal: could not recover interrupted executions", zap.Error(err))
		return 1
	}

	resolver := memorycontext.NewResolver(execStore)
	eng := engine.New(worldStore, adapter, resolver, execStore, log)

	if err := eng.Run(os.Stdin, os.Stdout); err != nil {
		log.Error("engine terminated with error", zap.Error(err))
		return 2
	}
	return 0
}

func newExecutionStore(cfg *config.Config, worldStore *worldstate.Store, log *zap.Logger) (execution.Store, error) {
	switch cfg.ExecutionBackend {
	case config.BackendSQLite:
		return execution.NewSQLiteStore(cfg.ExecutionSQLitePath, log)
	case config.BackendMemory:
		return execution.NewDocStore(worldStore), nil
	default:
		return nil, fmt.Errorf("unrecognized execution backend %q", cfg.ExecutionBackend)
	}
}
