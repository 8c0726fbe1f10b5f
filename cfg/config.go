package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// MemoryDBName keeps the FIM database in memory (nothing persisted between runs)
const MemoryDBName = ":memory:"

// FIMConfiguration controls the file integrity database
type FIMConfiguration struct {
	DBName              string `toml:"db_name"`               // File name under data_dir, or ":memory:"
	FileLimit           int    `toml:"file_limit"`            // Max monitored entries (0 = unlimited)
	CacheSize           int    `toml:"cache_size"`            // Entry read cache size
	SyncIntervalSeconds int    `toml:"sync_interval_seconds"` // Interval between integrity checks (0 = disabled)
}

// SpoolConfiguration controls the durable queue between the sync callback and the sinks
type SpoolConfiguration struct {
	CompressionLevel     int      `toml:"compression_level"`     // 1-4, zstd speed to ratio
	CompressionThreshold int      `toml:"compression_threshold"` // Payload bytes before compression kicks in
	FilterEvents         []string `toml:"filter_events"`         // Glob patterns; empty = spool everything
}

// SinkConfiguration describes one outbound transport for sync events
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"`   // "kafka" or "nats"
	Format          string   `toml:"format"` // "json" or "raw"
	Brokers         []string `toml:"brokers"`
	NatsURL         string   `toml:"nats_url"`
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterEvents    []string `toml:"filter_events"`
	BatchSize       int      `toml:"batch_size"`
	PollIntervalMS  int      `toml:"poll_interval_ms"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	MaxRetries      int      `toml:"max_retries"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
	File    string `toml:"file"`   // Optional extra log file, appended to
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// AdminConfiguration for the HTTP admin API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // PSK; empty disables auth
}

// Configuration is the main configuration structure
type Configuration struct {
	AgentID uint64 `toml:"agent_id"`
	DataDir string `toml:"data_dir"`

	FIM        FIMConfiguration        `toml:"fim"`
	Spool      SpoolConfiguration      `toml:"spool"`
	Sinks      []SinkConfiguration     `toml:"sinks"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	AgentIDFlag    = flag.Uint64("agent-id", 0, "Agent ID (overrides config, 0=auto)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin API port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	AgentID: 0, // Auto-generate
	DataDir: "./fimsync-data",

	FIM: FIMConfiguration{
		DBName:              "fim.db",
		FileLimit:           100000,
		CacheSize:           4096,
		SyncIntervalSeconds: 300,
	},

	Spool: SpoolConfiguration{
		CompressionLevel:     1,
		CompressionThreshold: 1024,
	},

	Sinks: []SinkConfiguration{},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        8480,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *AgentIDFlag != 0 {
		Config.AgentID = *AgentIDFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	if Config.AgentID == 0 {
		Config.AgentID = generateAgentID()
		log.Info().Uint64("agent_id", Config.AgentID).Msg("Auto-generated agent ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateAgentID derives a stable agent ID from the machine ID, falling back to
// the hostname when the machine ID is unavailable (containers, CI).
func generateAgentID() uint64 {
	seed, err := machineid.ProtectedID("fimsync")
	if err != nil {
		log.Warn().Err(err).Msg("Machine ID unavailable, deriving agent ID from hostname")
		seed, err = os.Hostname()
		if err != nil {
			seed = "localhost"
		}
	}

	h := fnv.New64a()
	h.Write([]byte(seed))
	id := h.Sum64()
	if id == 0 {
		id = 1
	}
	return id
}

// Validate checks configuration for errors
func Validate() error {
	if Config.FIM.DBName == "" {
		return fmt.Errorf("fim db_name is required")
	}

	if Config.FIM.FileLimit < 0 {
		return fmt.Errorf("fim file limit must be >= 0")
	}

	if Config.FIM.CacheSize < 0 {
		return fmt.Errorf("fim cache size must be >= 0")
	}

	if Config.FIM.SyncIntervalSeconds < 0 {
		return fmt.Errorf("fim sync interval must be >= 0")
	}

	if Config.Spool.CompressionLevel < 1 || Config.Spool.CompressionLevel > 4 {
		return fmt.Errorf("spool compression level must be between 1 and 4: %d", Config.Spool.CompressionLevel)
	}

	if Config.Spool.CompressionThreshold < 0 {
		return fmt.Errorf("spool compression threshold must be >= 0")
	}

	validFormats := map[string]bool{"json": true, "raw": true}
	seen := make(map[string]bool, len(Config.Sinks))
	for i, sink := range Config.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink #%d: name is required", i)
		}
		if seen[sink.Name] {
			return fmt.Errorf("duplicate sink name: %s", sink.Name)
		}
		seen[sink.Name] = true

		switch sink.Type {
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("sink %s: kafka requires at least one broker", sink.Name)
			}
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("sink %s: nats requires nats_url", sink.Name)
			}
		default:
			return fmt.Errorf("sink %s: unknown type %q", sink.Name, sink.Type)
		}

		if !validFormats[sink.Format] {
			return fmt.Errorf("sink %s: unknown format %q", sink.Name, sink.Format)
		}
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Prometheus.Enabled && !Config.Admin.Enabled &&
		(Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}

// IsAdminAuthEnabled returns true when an admin secret is configured
func IsAdminAuthEnabled() bool {
	return Config != nil && Config.Admin.Secret != ""
}

// GetAdminSecret returns the configured admin PSK
func GetAdminSecret() string {
	if Config == nil {
		return ""
	}
	return Config.Admin.Secret
}

// GetFIMDBPath returns the FIM database location
func GetFIMDBPath() string {
	if Config.FIM.DBName == MemoryDBName {
		return MemoryDBName
	}
	return filepath.Join(Config.DataDir, Config.FIM.DBName)
}
