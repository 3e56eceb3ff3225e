package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hirewire/scout/config"
	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
	"github.com/hirewire/scout/logger"
	"github.com/hirewire/scout/server"
)

// ServeCmd starts the HTTP control API and websocket event stream.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the scout control server",
	Long: `Start the scout HTTP server.

The server exposes extraction controls (start, pause, resume, cancel),
status and run history over HTTP, and streams lifecycle events to
websocket clients on /ws.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store := extract.NewStore(conn)
	orch := buildOrchestrator(cfg, store, cfg.Extract.DownloadCVs)
	srv := server.New(cfg, orch, store, logger.Logger)

	// Pick up extraction tuning edits without a restart. Changes apply to
	// the next run; listener settings still require a restart.
	if ConfigPath != "" {
		watcher, err := config.NewConfigWatcher(ConfigPath)
		if err != nil {
			logger.Warnw("Config watch unavailable", "error", err)
		} else {
			watcher.OnReload(func(next *config.Config) error {
				// Publish a fresh copy; handlers hold the previous one
				// until their next request.
				updated := *srv.Config()
				updated.Extract = next.Extract
				updated.Source = next.Source
				srv.UpdateConfig(&updated)
				logger.Infow("Configuration reloaded",
					"batch_size", next.Extract.BatchSize,
					"cooldown_ms", next.Extract.CooldownMs,
				)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infow("Shutting down", "signal", sig.String())
	}

	// Stop accepting work, then give the listener a bounded shutdown.
	if err := orch.Cancel(); err == nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		orch.Wait(waitCtx)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
