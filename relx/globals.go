package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	DefaultAppName         = "relx"
	DefaultConfigPath      = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultOutputDir       = "relx-out"
	DefaultTableVersion    = "v1"
	DefaultManifestName    = "manifest.json"
	DefaultIndexFileName   = "index.ndjson"
	DefaultShardBaseName   = "part"
	DefaultEnvPrefix       = "RELX"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultMaxShardRecords = int64(500_000)
	DefaultMaxShardBytes   = int64(256 << 20)
	DefaultFrameSize       = int64(4 << 20)
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// NewLogger builds a logger for the given format and level. Verbose lowers the
// level to debug and trace lowers it further; neither changes export behaviour.
func NewLogger(out io.Writer, format, level string, verbose, trace bool) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	if trace {
		lvl = zerolog.TraceLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", DefaultAppName).Logger()
}
