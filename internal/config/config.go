package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the store router
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Drive    DriveConfig    `mapstructure:"drive"`
	Export   ExportConfig   `mapstructure:"export"`
	Wizard   WizardConfig   `mapstructure:"wizard"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds access control configuration
type AdminConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	UserID       int64   `mapstructure:"user_id"`
	AllowedUsers []int64 `mapstructure:"allowed_users"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds local file storage configuration
type StorageConfig struct {
	Documents string `mapstructure:"documents"`
	Exports   string `mapstructure:"exports"`
}

// GeminiConfig holds the hosted model and document-search backend configuration
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	ModelFlash string        `mapstructure:"model_flash"`
	ModelPro   string        `mapstructure:"model_pro"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds query pipeline tuning
type PipelineConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	FanoutConcurrency   int           `mapstructure:"fanout_concurrency"`
	QueryTimeout        time.Duration `mapstructure:"query_timeout"`
	RouterMaxResults    int           `mapstructure:"router_max_results"`
	MessageLimit        int           `mapstructure:"message_limit"`
}

// MemoryConfig holds conversation memory configuration
type MemoryConfig struct {
	Backend       string        `mapstructure:"backend"`
	MaxMessages   int           `mapstructure:"max_messages"`
	RetentionDays int           `mapstructure:"retention_days"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the optional Redis conversation backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SyncConfig controls periodic re-synchronization of stores with sync URLs
type SyncConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// DriveConfig holds cloud drive access configuration
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	MaxURLs         int    `mapstructure:"max_urls"`
	MaxFolderFiles  int    `mapstructure:"max_folder_files"`
}

// ExportConfig holds document export configuration
type ExportConfig struct {
	FontPath       string `mapstructure:"font_path"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

// WizardConfig holds multi-turn dialog configuration
type WizardConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Production bool   `mapstructure:"production"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. STOREROUTER_GEMINI_API_KEY
	v.SetEnvPrefix("STOREROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")
	v.SetDefault("admin.user_id", 0)
	v.SetDefault("admin.allowed_users", []int64{})

	v.SetDefault("database.path", "./data/storerouter.db")
	v.SetDefault("storage.documents", "./data/documents")
	v.SetDefault("storage.exports", "./data/exports")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.model_flash", "gemini-3-flash-preview")
	v.SetDefault("gemini.model_pro", "gemini-3-pro-preview")
	v.SetDefault("gemini.timeout", 60*time.Second)

	v.SetDefault("pipeline.confidence_threshold", 0.6)
	v.SetDefault("pipeline.fanout_concurrency", 5)
	v.SetDefault("pipeline.query_timeout", 60*time.Second)
	v.SetDefault("pipeline.router_max_results", 3)
	v.SetDefault("pipeline.message_limit", 4000)

	v.SetDefault("memory.backend", "sqlite")
	v.SetDefault("memory.max_messages", 5)
	v.SetDefault("memory.retention_days", 7)
	v.SetDefault("memory.sweep_interval", time.Hour)
	v.SetDefault("memory.redis.addr", "")
	v.SetDefault("memory.redis.prefix", "storerouter")

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.interval", 24*time.Hour)

	v.SetDefault("drive.credentials_file", "")
	v.SetDefault("drive.max_urls", 10)
	v.SetDefault("drive.max_folder_files", 50)

	v.SetDefault("export.font_path", "")
	v.SetDefault("export.retention_hours", 24)

	v.SetDefault("wizard.ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.production", true)
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be within [0,1], got %v", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.FanoutConcurrency < 1 {
		return fmt.Errorf("pipeline.fanout_concurrency must be positive")
	}
	if c.Memory.MaxMessages < 1 {
		return fmt.Errorf("memory.max_messages must be positive")
	}
	switch c.Memory.Backend {
	case "sqlite":
	case "redis":
		if c.Memory.Redis.Addr == "" {
			return fmt.Errorf("memory.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown memory.backend %q", c.Memory.Backend)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsAdmin reports whether the chat user is the configured administrator
func (c *Config) IsAdmin(userID int64) bool {
	return c.Admin.UserID != 0 && c.Admin.UserID == userID
}

// IsAllowed reports whether the chat user may talk to the bot
func (c *Config) IsAllowed(userID int64) bool {
	if len(c.Admin.AllowedUsers) == 0 || c.IsAdmin(userID) {
		return true
	}
	for _, id := range c.Admin.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// MemoryRetention returns the age after which idle conversations are swept
func (c *Config) MemoryRetention() time.Duration {
	return time.Duration(c.Memory.RetentionDays) * 24 * time.Hour
}
