package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/relx/relx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) writeConfig(name, content string) string {
	path := filepath.Join(suite.tempDir, name)
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultOutputDir, cfg.OutputDir)
	assert.Equal(suite.T(), "v1", cfg.TableVersion)
	assert.Equal(suite.T(), 1, cfg.ParallelTables)
	assert.Empty(suite.T(), cfg.ExcludeCollections)

	assert.Equal(suite.T(), internal.DefaultMaxShardRecords, cfg.Shard.MaxRecords)
	assert.Equal(suite.T(), internal.DefaultMaxShardBytes, cfg.Shard.MaxBytes)
	assert.Equal(suite.T(), "zstd", cfg.Shard.Codec)
	assert.True(suite.T(), cfg.Shard.Index)

	assert.False(suite.T(), cfg.Dependencies.SkipSelfReferences)
	assert.False(suite.T(), cfg.Dependencies.Minimal)

	assert.Equal(suite.T(), 100_000, cfg.Guard.NullRunLimit)
	assert.Equal(suite.T(), 256, cfg.Guard.RepeatLimit)
	assert.Equal(suite.T(), 15*time.Second, cfg.Guard.StallWindow)
	assert.Equal(suite.T(), int64(1000), cfg.Guard.StallMinIterations)
	assert.Equal(suite.T(), 5, cfg.Guard.StallWarnings)

	assert.Equal(suite.T(), "info", cfg.Log.Level)
	assert.Equal(suite.T(), "console", cfg.Log.Format)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	path := suite.writeConfig("relx.yaml", `
output_dir: ./dataset
table_version: v2
parallel_tables: 4
exclude_collections:
  - "*.resS"
  - "level*"
shard:
  max_records: 1000
  max_bytes: 0
  codec: zstd-seekable
  frame_size: 65536
  index: false
dependencies:
  skip_self_references: true
  minimal: true
guard:
  repeat_limit: 16
  stall_window: 2s
log:
  format: json
  verbose: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "./dataset", cfg.OutputDir)
	assert.Equal(suite.T(), "v2", cfg.TableVersion)
	assert.Equal(suite.T(), 4, cfg.ParallelTables)
	assert.Equal(suite.T(), []string{"*.resS", "level*"}, cfg.ExcludeCollections)
	assert.Equal(suite.T(), int64(1000), cfg.Shard.MaxRecords)
	assert.Zero(suite.T(), cfg.Shard.MaxBytes)
	assert.Equal(suite.T(), "zstd-seekable", cfg.Shard.Codec)
	assert.Equal(suite.T(), int64(65536), cfg.Shard.FrameSize)
	assert.False(suite.T(), cfg.Shard.Index)
	assert.True(suite.T(), cfg.Dependencies.SkipSelfReferences)
	assert.True(suite.T(), cfg.Dependencies.Minimal)
	assert.Equal(suite.T(), 16, cfg.Guard.RepeatLimit)
	assert.Equal(suite.T(), 2*time.Second, cfg.Guard.StallWindow)
	// untouched keys keep their defaults
	assert.Equal(suite.T(), 100_000, cfg.Guard.NullRunLimit)
	assert.Equal(suite.T(), "json", cfg.Log.Format)
	assert.True(suite.T(), cfg.Log.Verbose)

	assert.Equal(suite.T(), cfg.OutputDir, AppConfig.OutputDir)
}

func (suite *ConfigTestSuite) TestConfigFromWorkingDirectory() {
	suite.writeConfig("config.yaml", "table_version: v9\n")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "v9", cfg.TableVersion)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("RELX_SHARD_MAX_RECORDS", "42")
	suite.T().Setenv("RELX_DEPENDENCIES_SKIP_BUILTIN", "true")
	suite.T().Setenv("RELX_OUTPUT_DIR", "/tmp/relx-env")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), int64(42), cfg.Shard.MaxRecords)
	assert.True(suite.T(), cfg.Dependencies.SkipBuiltin)
	assert.Equal(suite.T(), "/tmp/relx-env", cfg.OutputDir)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	path := suite.writeConfig("malformed.yaml", "shard:\n  codec: [unclosed\n")

	cfg, err := LoadConfig(path)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvalidValues() {
	path := suite.writeConfig("bad.yaml", "shard:\n  codec: lz4\n")

	cfg, err := LoadConfig(path)
	assert.ErrorIs(suite.T(), err, ErrInvalidConfig)
	assert.Nil(suite.T(), cfg)
}

func validConfig() Config {
	return Config{
		OutputDir:    "out",
		TableVersion: "v1",
		Shard:        ShardConfig{Codec: "none"},
		Guard:        GuardConfig{NullRunLimit: 10, RepeatLimit: 10},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"Valid", func(c *Config) {}, true},
		{"EmptyOutputDir", func(c *Config) { c.OutputDir = " " }, false},
		{"NestedVersion", func(c *Config) { c.TableVersion = "v1/x" }, false},
		{"NegativeParallelism", func(c *Config) { c.ParallelTables = -1 }, false},
		{"NegativeRecords", func(c *Config) { c.Shard.MaxRecords = -5 }, false},
		{"UnknownCodec", func(c *Config) { c.Shard.Codec = "gzip" }, false},
		{"SeekableWithoutFrames", func(c *Config) { c.Shard.Codec = "zstd-seekable" }, false},
		{"Seekable", func(c *Config) { c.Shard.Codec = "zstd-seekable"; c.Shard.FrameSize = 1 }, true},
		{"ZeroRepeatLimit", func(c *Config) { c.Guard.RepeatLimit = 0 }, false},
		{"NegativeStallWindow", func(c *Config) { c.Guard.StallWindow = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
