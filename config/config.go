// Package config loads and validates the scout configuration.
package config

// Config represents the core scout configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Source   SourceConfig   `mapstructure:"source"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the scout web server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the development port (above privileged range, easy to type)
const DefaultServerPort = 8744

// ExtractConfig configures the batch extraction orchestrator
type ExtractConfig struct {
	// Batch shaping
	BatchSize  int `mapstructure:"batch_size"`  // Applicants per batch (default: 5)
	CooldownMs int `mapstructure:"cooldown_ms"` // Idle period between batches (default: 3000)
	MaxItems   int `mapstructure:"max_items"`   // Cap on applicants per run (default: 100)

	// Retry policy
	MaxRetries       int `mapstructure:"max_retries"`         // Attempts per item beyond the first (default: 3)
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"` // Backoff base delay (default: 1000)

	// Per-item operation timeout
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds"` // default: 30

	// Upstream politeness. Exceeding this pauses before the next item rather
	// than hammering the upstream into bot detection (LinkedIn HTTP 999).
	MaxCallsPerMinute int `mapstructure:"max_calls_per_minute"`

	// CV download
	DownloadCVs bool   `mapstructure:"download_cvs"` // Fetch CV documents alongside profiles
	CVDir       string `mapstructure:"cv_dir"`       // Directory for downloaded CVs
}

// SourceConfig configures the reference applicant source collaborators
type SourceConfig struct {
	ApplicantsFile    string  `mapstructure:"applicants_file"`     // Exported applicant list (JSON)
	BaseURL           string  `mapstructure:"base_url"`            // Profile/CV endpoint base
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // Outbound HTTP pacing (default: 0.5)
}
