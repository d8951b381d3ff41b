// Command coredagd is the consensus core's thin process entry point: parse
// flags, open the database, wire the default (no-op) collaborator set, and
// block forever accepting nothing but SIGINT/SIGTERM, mirroring the
// teacher's own kaspad.go main() shape (load config, open store, start
// services, wait on an OS signal) minus every networking/RPC/mempool
// service that sits outside this core's scope (spec.md §1 Non-goals).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus"
	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/utils/testvalidator"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
)

var log = logger.NewSubsystem("coredagd")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cliConfig, err := config.LoadCLIConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logLevel := parseLogLevel(cliConfig.LogLevel)
	if err := logger.InitBackend(cliConfig.LogFile, logLevel); err != nil {
		return err
	}

	params, err := cliConfig.ResolveParams()
	if err != nil {
		return err
	}

	db, err := database.Open(cliConfig.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	// The real TxValidator, UtxoView, and PoW collaborators live in the
	// repo's outer layers (spec.md §1 Non-goals); until one is wired in
	// here, the core runs against the permissive test doubles so it can
	// still accept and order headers/blocks end to end.
	collaborators := &consensus.Collaborators{
		TxValidator: testvalidator.NewTxValidator(),
		UtxoView:    testvalidator.NewUtxoView(),
		PoWResolver: testvalidator.NewPoWResolver(),
		Notifier:    testvalidator.NewNotifier(),
	}

	c, err := consensus.New(params, db, collaborators)
	if err != nil {
		return err
	}
	log.Infof("consensus core started, genesis=%s", params.GenesisHash.String())

	waitForShutdownSignal()
	c.Wait()
	log.Infof("consensus core shut down cleanly")
	return nil
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func parseLogLevel(level string) logger.Level {
	switch level {
	case "trace":
		return logger.LevelTrace
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
