package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/relx/relx"
	"github.com/ZanzyTHEbar/relx/relx/shard"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config stores all configuration of the exporter.
// The values are read by viper from a config file or RELX_* environment variables.
type Config struct {
	OutputDir          string           `mapstructure:"output_dir"`
	TableVersion       string           `mapstructure:"table_version"`
	RunID              string           `mapstructure:"run_id"`
	ParallelTables     int              `mapstructure:"parallel_tables"`
	ExcludeCollections []string         `mapstructure:"exclude_collections"`
	Shard              ShardConfig      `mapstructure:"shard"`
	Dependencies       DependencyConfig `mapstructure:"dependencies"`
	Guard              GuardConfig      `mapstructure:"guard"`
	Log                LogConfig        `mapstructure:"log"`
}

// ShardConfig controls shard rotation and compression. Zero thresholds
// disable rotation on that axis.
type ShardConfig struct {
	MaxRecords int64  `mapstructure:"max_records"`
	MaxBytes   int64  `mapstructure:"max_bytes"`
	Codec      string `mapstructure:"codec"`
	Level      string `mapstructure:"level"`
	FrameSize  int64  `mapstructure:"frame_size"`
	Index      bool   `mapstructure:"index"`
}

// DependencyConfig selects which resolved edges reach the relations table.
type DependencyConfig struct {
	SkipSelfReferences bool `mapstructure:"skip_self_references"`
	SkipNull           bool `mapstructure:"skip_null"`
	Minimal            bool `mapstructure:"minimal"`
	SkipBuiltin        bool `mapstructure:"skip_builtin"`
}

// GuardConfig bounds dependency enumeration per object.
type GuardConfig struct {
	NullRunLimit       int           `mapstructure:"null_run_limit"`
	RepeatLimit        int           `mapstructure:"repeat_limit"`
	StallWindow        time.Duration `mapstructure:"stall_window"`
	StallMinIterations int64         `mapstructure:"stall_min_iterations"`
	StallWarnings      int           `mapstructure:"stall_warnings"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
	Trace   bool   `mapstructure:"trace"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", internal.DefaultOutputDir)
	v.SetDefault("table_version", internal.DefaultTableVersion)
	v.SetDefault("run_id", "")
	v.SetDefault("parallel_tables", 1)
	v.SetDefault("exclude_collections", []string{})

	v.SetDefault("shard.max_records", internal.DefaultMaxShardRecords)
	v.SetDefault("shard.max_bytes", internal.DefaultMaxShardBytes)
	v.SetDefault("shard.codec", "zstd")
	v.SetDefault("shard.level", "default")
	v.SetDefault("shard.frame_size", internal.DefaultFrameSize)
	v.SetDefault("shard.index", true)

	v.SetDefault("dependencies.skip_self_references", false)
	v.SetDefault("dependencies.skip_null", false)
	v.SetDefault("dependencies.minimal", false)
	v.SetDefault("dependencies.skip_builtin", false)

	v.SetDefault("guard.null_run_limit", 100_000)
	v.SetDefault("guard.repeat_limit", 256)
	v.SetDefault("guard.stall_window", 15*time.Second)
	v.SetDefault("guard.stall_min_iterations", 1000)
	v.SetDefault("guard.stall_warnings", 5)

	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.format", internal.DefaultLogFormat)
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.trace", false)
}

// LoadConfig reads configuration from file or environment variables. An
// explicit path must exist; without one, a missing config file means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// RELX_SHARD_MAX_RECORDS overrides shard.max_records
	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

// Validate rejects settings the exporter cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is empty"))
	}
	if strings.TrimSpace(c.TableVersion) == "" || strings.ContainsAny(c.TableVersion, `/\`) {
		errs = append(errs, fmt.Errorf("table_version %q is not a single path segment", c.TableVersion))
	}
	if c.ParallelTables < 0 {
		errs = append(errs, fmt.Errorf("parallel_tables must not be negative, got %d", c.ParallelTables))
	}
	if c.Shard.MaxRecords < 0 || c.Shard.MaxBytes < 0 {
		errs = append(errs, errors.New("shard thresholds must not be negative"))
	}

	codec, err := shard.ParseCodec(c.Shard.Codec)
	if err != nil {
		errs = append(errs, err)
	} else if codec == shard.CodecZstdSeekable && c.Shard.FrameSize <= 0 {
		errs = append(errs, errors.New("shard.frame_size must be positive for the seekable codec"))
	}

	g := c.Guard
	if g.NullRunLimit <= 0 || g.RepeatLimit <= 0 {
		errs = append(errs, errors.New("guard limits must be positive"))
	}
	if g.StallWindow < 0 || g.StallMinIterations < 0 || g.StallWarnings < 0 {
		errs = append(errs, errors.New("guard stall settings must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
