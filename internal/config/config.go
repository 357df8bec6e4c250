package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"image-compressor-go/internal/compressor"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Encoder     EncoderConfig     `mapstructure:"encoder"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Output      OutputConfig      `mapstructure:"output"`
	Server      ServerConfig      `mapstructure:"server"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig holds the default request and the engine tunables
type CompressionConfig struct {
	Mode             string                    `mapstructure:"mode"`
	Quality          int                       `mapstructure:"quality"`
	TargetSizeKB     int                       `mapstructure:"target_size_kb"`
	PreserveMetadata bool                      `mapstructure:"preserve_metadata"`
	Direct           compressor.DirectSettings `mapstructure:"direct"`
	Search           compressor.SearchSettings `mapstructure:"search"`
}

// EncoderConfig contains resampling and native quality window settings
type EncoderConfig struct {
	Filter    string  `mapstructure:"filter"`
	NativeMin float64 `mapstructure:"native_min"`
	NativeMax float64 `mapstructure:"native_max"`
}

// UploadConfig bounds what the service and CLI accept as input
type UploadConfig struct {
	MaxFileSize int64    `mapstructure:"max_file_size"`
	AllowedMIME []string `mapstructure:"allowed_mime"`
}

// OutputConfig controls where and how results are written
type OutputConfig struct {
	Directory string `mapstructure:"directory"`
	Prefix    string `mapstructure:"prefix"`
	Extension string `mapstructure:"extension"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PerformanceConfig contains progress reporting settings
type PerformanceConfig struct {
	ShowProgress bool `mapstructure:"show_progress"`
	MaxBatchSize int  `mapstructure:"max_batch_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	settings := compressor.DefaultSettings()
	return &Config{
		Compression: CompressionConfig{
			Mode:             "quality",
			Quality:          80,
			TargetSizeKB:     0,
			PreserveMetadata: false,
			Direct:           settings.Direct,
			Search:           settings.Search,
		},
		Encoder: EncoderConfig{
			Filter:    "lanczos",
			NativeMin: compressor.DefaultNativeMin,
			NativeMax: compressor.DefaultNativeMax,
		},
		Upload: UploadConfig{
			MaxFileSize: 10 << 20,
			AllowedMIME: []string{"image/jpeg"},
		},
		Output: OutputConfig{
			Directory: ".",
			Prefix:    "compressed_",
			Extension: "jpeg",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Performance: PerformanceConfig{
			ShowProgress: true,
			MaxBatchSize: 50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	// Defaults must be registered for AutomaticEnv to reach unmarshalled keys
	setDefaults(v, config)

	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compression.mode", c.Compression.Mode)
	v.SetDefault("compression.quality", c.Compression.Quality)
	v.SetDefault("compression.target_size_kb", c.Compression.TargetSizeKB)
	v.SetDefault("compression.preserve_metadata", c.Compression.PreserveMetadata)
	v.SetDefault("compression.direct.min_quality", c.Compression.Direct.MinQuality)
	v.SetDefault("compression.direct.max_quality", c.Compression.Direct.MaxQuality)
	v.SetDefault("compression.direct.retry_floor", c.Compression.Direct.RetryFloor)
	v.SetDefault("compression.search.min_quality", c.Compression.Search.MinQuality)
	v.SetDefault("compression.search.max_quality", c.Compression.Search.MaxQuality)
	v.SetDefault("compression.search.max_attempts", c.Compression.Search.MaxAttempts)
	v.SetDefault("compression.search.source_guard", c.Compression.Search.SourceGuard)
	v.SetDefault("compression.search.tolerance", c.Compression.Search.Tolerance)
	v.SetDefault("compression.search.fallback_quality", c.Compression.Search.FallbackQuality)
	v.SetDefault("encoder.filter", c.Encoder.Filter)
	v.SetDefault("encoder.native_min", c.Encoder.NativeMin)
	v.SetDefault("encoder.native_max", c.Encoder.NativeMax)
	v.SetDefault("upload.max_file_size", c.Upload.MaxFileSize)
	v.SetDefault("output.directory", c.Output.Directory)
	v.SetDefault("output.prefix", c.Output.Prefix)
	v.SetDefault("output.extension", c.Output.Extension)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("performance.show_progress", c.Performance.ShowProgress)
	v.SetDefault("performance.max_batch_size", c.Performance.MaxBatchSize)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	mode, err := compressor.ParseMode(strings.ToLower(c.Compression.Mode))
	if err != nil {
		return fmt.Errorf("invalid compression mode: %s (valid: quality, target)", c.Compression.Mode)
	}
	if mode == compressor.ModeQuality && (c.Compression.Quality < 1 || c.Compression.Quality > 100) {
		return fmt.Errorf("compression.quality must be between 1 and 100, got %d", c.Compression.Quality)
	}
	if mode == compressor.ModeTargetSize && c.Compression.TargetSizeKB <= 0 {
		return fmt.Errorf("compression.target_size_kb must be positive in target mode")
	}

	// Validate direct mode settings
	d := &c.Compression.Direct
	if d.MinQuality < 1 || d.MaxQuality > 100 || d.MinQuality > d.MaxQuality {
		return fmt.Errorf("invalid direct quality range: %d..%d", d.MinQuality, d.MaxQuality)
	}
	if d.RetryFloor < 1 {
		d.RetryFloor = 5
	}
	if err := validateTiers("compression.direct.scale", d.Scale); err != nil {
		return err
	}

	// Validate search settings
	s := &c.Compression.Search
	if s.MinQuality < 1 || s.MaxQuality > 100 || s.MinQuality > s.MaxQuality {
		return fmt.Errorf("invalid search quality range: %d..%d", s.MinQuality, s.MaxQuality)
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 15
	}
	if s.SourceGuard <= 0 || s.SourceGuard > 1 {
		return fmt.Errorf("compression.search.source_guard must be in (0,1], got %g", s.SourceGuard)
	}
	if s.Tolerance < 0 {
		return fmt.Errorf("compression.search.tolerance must not be negative, got %g", s.Tolerance)
	}
	if s.FallbackQuality < 1 || s.FallbackQuality > 100 {
		return fmt.Errorf("compression.search.fallback_quality must be between 1 and 100, got %d", s.FallbackQuality)
	}
	if err := validateTiers("compression.search.scale", s.Scale); err != nil {
		return err
	}

	// Validate encoder settings
	if _, err := compressor.FilterByName(c.Encoder.Filter); err != nil {
		return err
	}
	if c.Encoder.NativeMin <= 0 || c.Encoder.NativeMax > 1 || c.Encoder.NativeMin >= c.Encoder.NativeMax {
		return fmt.Errorf("invalid encoder native range: %g..%g", c.Encoder.NativeMin, c.Encoder.NativeMax)
	}

	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = 10 << 20
	}
	if len(c.Upload.AllowedMIME) == 0 {
		c.Upload.AllowedMIME = []string{"image/jpeg"}
	}

	if c.Output.Directory == "" {
		c.Output.Directory = "."
	}
	c.Output.Extension = strings.TrimPrefix(strings.ToLower(c.Output.Extension), ".")
	if c.Output.Extension == "" {
		c.Output.Extension = "jpeg"
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Performance.MaxBatchSize <= 0 {
		c.Performance.MaxBatchSize = 50
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func validateTiers(key string, tiers compressor.ScalePolicy) error {
	prev := 0
	for i, t := range tiers {
		if t.Below <= prev {
			return fmt.Errorf("%s[%d]: breakpoints must increase, got %d after %d", key, i, t.Below, prev)
		}
		if t.Base <= 0 || t.Base > 1 {
			return fmt.Errorf("%s[%d]: base must be in (0,1], got %g", key, i, t.Base)
		}
		prev = t.Below
	}
	return nil
}

// Request returns the default compression request described by the config
func (c *Config) Request() (compressor.Request, error) {
	mode, err := compressor.ParseMode(strings.ToLower(c.Compression.Mode))
	if err != nil {
		return compressor.Request{}, err
	}
	req := compressor.Request{
		Mode:         mode,
		Quality:      c.Compression.Quality,
		TargetSizeKB: c.Compression.TargetSizeKB,
	}
	return req, req.Validate()
}

// EngineSettings returns the tunables for compressor.NewEngine
func (c *Config) EngineSettings() compressor.Settings {
	return compressor.Settings{
		Direct: c.Compression.Direct,
		Search: c.Compression.Search,
	}
}

// NewEncoder builds the JPEG encoder described by the encoder section
func (c *Config) NewEncoder() (*compressor.JPEGEncoder, error) {
	filter, err := compressor.FilterByName(c.Encoder.Filter)
	if err != nil {
		return nil, err
	}
	return &compressor.JPEGEncoder{
		Filter:    filter,
		NativeMin: c.Encoder.NativeMin,
		NativeMax: c.Encoder.NativeMax,
	}, nil
}
