// Package config provides configuration management for hls2vod using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultCheckInterval         = 5 * time.Second
	defaultWorkers               = 3
	defaultStallTimeout          = 60 * time.Second
	defaultRefreshInterval       = 5 * time.Second
	defaultQueueCapacity         = 512
	defaultHTTPTimeout           = 30 * time.Second
	defaultRetryAttempts         = 3
	defaultRetryDelay            = time.Second
	defaultCircuitBreakerThresh  = 5
	defaultCircuitBreakerTimeout = 30 * time.Second
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "HLS2VOD"

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Recording  RecordingConfig  `mapstructure:"recording" yaml:"recording"`
	Downloader DownloaderConfig `mapstructure:"downloader" yaml:"downloader"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client" yaml:"http_client"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg" yaml:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// OutputDir is the root under which every stream gets its own directory.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// RecordingConfig holds schedule evaluation and output settings.
type RecordingConfig struct {
	OffsetSeconds int           `mapstructure:"offset_seconds" yaml:"offset_seconds"` // symmetric pre/post roll
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	Container     string        `mapstructure:"container" yaml:"container"` // final file extension, e.g. mp4, mkv
	Bandwidth     string        `mapstructure:"bandwidth" yaml:"bandwidth"` // best, worst or a bits/s ceiling
	Timezone      string        `mapstructure:"timezone" yaml:"timezone"`   // IANA name, "Local" or empty for local time
}

// DownloaderConfig holds segment downloader settings.
type DownloaderConfig struct {
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	StallTimeout    time.Duration `mapstructure:"stall_timeout" yaml:"stall_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"` // used when the playlist has no target duration
	QueueCapacity   int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
}

// HTTPClientConfig holds upstream fetch settings.
type HTTPClientConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	CircuitThreshold int           `mapstructure:"circuit_threshold" yaml:"circuit_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout" yaml:"circuit_timeout"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path" yaml:"binary_path"` // empty = auto-detect
}

// Settings is the subset of configuration a Stream consumes at construction.
type Settings struct {
	OutputDirectory string
	OffsetSeconds   int
}

// NewViper builds a Viper instance with defaults, config file search paths
// and environment overrides applied. The config file is read if present.
// Environment variables are prefixed with HLS2VOD_ and use underscores for nesting.
// Example: HLS2VOD_RECORDING_OFFSET_SECONDS=30.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hls2vod")
		v.AddConfigPath("$HOME/.hls2vod")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return v, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
func Load(configPath string) (*Config, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Watch re-decodes the configuration whenever the backing file changes and
// passes the result to onChange. Invalid edits are reported through onError
// and leave the running configuration untouched. It is a no-op when no
// config file was found.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "hls2vod.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.output_dir", "./recordings")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Recording defaults
	v.SetDefault("recording.offset_seconds", 0)
	v.SetDefault("recording.check_interval", defaultCheckInterval)
	v.SetDefault("recording.container", "mp4")
	v.SetDefault("recording.bandwidth", "best")
	v.SetDefault("recording.timezone", "Local")

	// Downloader defaults
	v.SetDefault("downloader.workers", defaultWorkers)
	v.SetDefault("downloader.stall_timeout", defaultStallTimeout)
	v.SetDefault("downloader.refresh_interval", defaultRefreshInterval)
	v.SetDefault("downloader.queue_capacity", defaultQueueCapacity)

	// HTTP client defaults
	v.SetDefault("http_client.timeout", defaultHTTPTimeout)
	v.SetDefault("http_client.retry_attempts", defaultRetryAttempts)
	v.SetDefault("http_client.retry_delay", defaultRetryDelay)
	v.SetDefault("http_client.circuit_threshold", defaultCircuitBreakerThresh)
	v.SetDefault("http_client.circuit_timeout", defaultCircuitBreakerTimeout)
	v.SetDefault("http_client.user_agent", "")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Recording validation
	if c.Recording.OffsetSeconds < 0 {
		return fmt.Errorf("recording.offset_seconds must not be negative")
	}
	if c.Recording.CheckInterval <= 0 {
		return fmt.Errorf("recording.check_interval must be positive")
	}
	if c.Recording.Container == "" || strings.ContainsAny(c.Recording.Container, `/\.`) {
		return fmt.Errorf("recording.container must be a bare extension such as mp4")
	}
	if _, err := c.Recording.Location(); err != nil {
		return fmt.Errorf("recording.timezone: %w", err)
	}

	// Downloader validation
	if c.Downloader.Workers < 1 {
		return fmt.Errorf("downloader.workers must be at least 1")
	}
	if c.Downloader.StallTimeout <= 0 {
		return fmt.Errorf("downloader.stall_timeout must be positive")
	}
	if c.Downloader.RefreshInterval <= 0 {
		return fmt.Errorf("downloader.refresh_interval must be positive")
	}
	if c.Downloader.QueueCapacity < 0 {
		return fmt.Errorf("downloader.queue_capacity must not be negative")
	}

	// HTTP client validation
	if c.HTTPClient.RetryAttempts < 0 {
		return fmt.Errorf("http_client.retry_attempts must not be negative")
	}

	return nil
}

// Settings returns the values a Stream needs at construction.
func (c *Config) Settings() Settings {
	return Settings{
		OutputDirectory: c.Storage.OutputDir,
		OffsetSeconds:   c.Recording.OffsetSeconds,
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Location resolves the configured timezone.
func (c *RecordingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Offset returns the configured offset as a duration.
func (c *RecordingConfig) Offset() time.Duration {
	return time.Duration(c.OffsetSeconds) * time.Second
}
