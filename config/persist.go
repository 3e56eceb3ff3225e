package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/hirewire/scout/errors"
)

// WriteDefault writes a scout.toml populated with default values to path.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists: %s", path)
	}

	cfg := map[string]interface{}{
		"database": map[string]interface{}{
			"path": "scout.db",
		},
		"server": map[string]interface{}{
			"port":            DefaultServerPort,
			"allowed_origins": []string{"http://localhost:5173"},
		},
		"extract": map[string]interface{}{
			"batch_size":           5,
			"cooldown_ms":          3000,
			"max_items":            100,
			"max_retries":          3,
			"retry_base_delay_ms":  1000,
			"item_timeout_seconds": 30,
			"max_calls_per_minute": 10,
			"download_cvs":         false,
			"cv_dir":               "cvs",
		},
		"source": map[string]interface{}{
			"applicants_file":     "applicants.json",
			"requests_per_second": 0.5,
		},
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create config directory %s", dir)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}

	return nil
}
