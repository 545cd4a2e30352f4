package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vctt94/bisonbotkit/logging"
	"golang.org/x/sync/errgroup"

	"github.com/mnm89/solana-games/clickgame"
	"github.com/mnm89/solana-games/server"
	"github.com/mnm89/solana-games/solwatcher"
)

func realMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logBknd, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        filepath.Join(cfg.DataDir, "logs", "clickbattle.log"),
		DebugLevel:     cfg.DebugLevel,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logBknd.Logger("SRV")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In free-to-play mode every stake proof is accepted without
	// touching the chain.
	var oracle clickgame.EscrowOracle = clickgame.NoopOracle{}
	var watcher *solwatcher.Watcher
	if cfg.StakingEnabled {
		watcher = solwatcher.NewWatcher(logBknd.Logger("WTCH"), cfg.SolanaRPCURL)
		oracle = watcher
	}

	hub := server.NewHub(logBknd.Logger("HUB"))
	gm := clickgame.NewGameManager(clickgame.Config{
		StakingEnabled: cfg.StakingEnabled,
	}, hub, oracle, logBknd.Logger("GM"))
	srv := server.New(server.Config{Addr: cfg.Addr}, log, hub, gm)

	g, gctx := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error { return srv.Run(gctx) })

	log.Infof("click battle server starting (staking=%t)", cfg.StakingEnabled)
	return g.Wait()
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
