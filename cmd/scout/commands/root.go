// Package commands implements the scout CLI subcommands.
package commands

import (
	"database/sql"
	"time"

	"github.com/hirewire/scout/config"
	"github.com/hirewire/scout/db"
	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
	"github.com/hirewire/scout/logger"
	"github.com/hirewire/scout/source"
	"github.com/hirewire/scout/throttle"
)

// ConfigPath holds the --config flag shared by every subcommand.
var ConfigPath string

func loadConfig() (*config.Config, error) {
	if ConfigPath != "" {
		return config.LoadFromFile(ConfigPath)
	}
	return config.Load()
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return conn, nil
}

// buildOrchestrator wires the configured collaborators into an
// orchestrator. downloadCVs additionally attaches the CV downloader.
func buildOrchestrator(cfg *config.Config, store *extract.Store, downloadCVs bool) *extract.Orchestrator {
	src := source.NewFileSource(cfg.Source.ApplicantsFile)
	client := source.NewHTTPClient(cfg.Source.BaseURL, cfg.Source.RequestsPerSecond, cfg.Extract.CVDir)

	var downloader extract.CVDownloader
	if downloadCVs {
		downloader = client
	}

	policy := extract.NewRetryPolicy(
		cfg.Extract.MaxRetries,
		time.Duration(cfg.Extract.RetryBaseDelayMs)*time.Millisecond,
		nil,
	)

	return extract.New(src, client, downloader, extract.Options{
		Policy:      &policy,
		Limiter:     throttle.NewLimiter(cfg.Extract.MaxCallsPerMinute),
		Store:       store,
		ItemTimeout: time.Duration(cfg.Extract.ItemTimeoutSeconds) * time.Second,
	}, logger.Logger)
}

func runConfigFromFlags(cfg *config.Config, jobID, viewID string, maxItems, batchSize, cooldownMs int) extract.RunConfig {
	rc := extract.RunConfig{
		JobID:           jobID,
		ApplicantViewID: viewID,
		MaxItems:        cfg.Extract.MaxItems,
		BatchSize:       cfg.Extract.BatchSize,
		Cooldown:        time.Duration(cfg.Extract.CooldownMs) * time.Millisecond,
		ItemTimeout:     time.Duration(cfg.Extract.ItemTimeoutSeconds) * time.Second,
	}
	if maxItems >= 0 {
		rc.MaxItems = maxItems
	}
	if batchSize > 0 {
		rc.BatchSize = batchSize
	}
	if cooldownMs >= 0 {
		rc.Cooldown = time.Duration(cooldownMs) * time.Millisecond
	}
	return rc
}
