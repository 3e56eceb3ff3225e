package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "scout.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	// Extraction defaults
	v.SetDefault("extract.batch_size", 5)
	v.SetDefault("extract.cooldown_ms", 3000) // 3 second polite pause between batches
	v.SetDefault("extract.max_items", 100)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.retry_base_delay_ms", 1000)
	v.SetDefault("extract.item_timeout_seconds", 30)
	v.SetDefault("extract.max_calls_per_minute", 10) // Prevents bot detection (LinkedIn HTTP 999)
	v.SetDefault("extract.download_cvs", false)
	v.SetDefault("extract.cv_dir", "cvs")

	// Source defaults
	v.SetDefault("source.requests_per_second", 0.5) // 2 second spacing between outbound requests
}
