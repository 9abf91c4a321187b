// Package export runs a complete export: it builds the alias index once, fills
// every fact and relation table through its own shard writer and records the
// result in a manifest.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sourcegraph/conc/pool"

	internal "github.com/ZanzyTHEbar/relx/relx"
	"github.com/ZanzyTHEbar/relx/relx/config"
	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/lookup"
	"github.com/ZanzyTHEbar/relx/relx/resolver"
	"github.com/ZanzyTHEbar/relx/relx/shard"
)

var ErrUnknownTable = errors.New("unknown table")

// IgnoreChecker decides whether a collection is excluded from export.
type IgnoreChecker interface {
	MatchesPath(path string) bool
}

type nullIgnoreChecker struct{}

func (nullIgnoreChecker) MatchesPath(string) bool { return false }

// Exporter holds the settings of export runs. Run may be called repeatedly.
type Exporter struct {
	cfg     config.Config
	codec   shard.Codec
	logger  zerolog.Logger
	exclude IgnoreChecker
	tables  []tableDef
	now     func() time.Time
}

// Option customises an Exporter.
type Option func(*Exporter) error

// WithTables restricts a run to the named tables.
func WithTables(names ...string) Option {
	return func(e *Exporter) error {
		var defs []tableDef
		for _, d := range allTables() {
			if slices.Contains(names, d.name) {
				defs = append(defs, d)
			}
		}
		for _, n := range names {
			if !slices.Contains(TableNames(), n) {
				return fmt.Errorf("%w: %q", ErrUnknownTable, n)
			}
		}
		e.tables = defs
		return nil
	}
}

// WithClock replaces time.Now for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) error {
		e.now = now
		return nil
	}
}

// WithIgnoreChecker replaces the exclude_collections matcher.
func WithIgnoreChecker(c IgnoreChecker) Option {
	return func(e *Exporter) error {
		e.exclude = c
		return nil
	}
}

// New validates cfg and prepares an Exporter.
func New(cfg config.Config, logger zerolog.Logger, opts ...Option) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := shard.ParseCodec(cfg.Shard.Codec)
	if err != nil {
		return nil, err
	}

	e := &Exporter{
		cfg:     cfg,
		codec:   codec,
		logger:  logger.With().Str("component", "export").Logger(),
		exclude: nullIgnoreChecker{},
		tables:  allTables(),
		now:     time.Now,
	}
	if len(cfg.ExcludeCollections) > 0 {
		e.exclude = ignore.CompileIgnoreLines(cfg.ExcludeCollections...)
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// excluded reports whether a collection matches an exclude pattern by name or
// by file path.
func (e *Exporter) excluded(c graph.Collection) bool {
	if n := c.Name(); n != "" && e.exclude.MatchesPath(n) {
		return true
	}
	p := filepath.ToSlash(c.FilePath())
	return p != "" && e.exclude.MatchesPath(p)
}

// Run exports src. On a table failure the error names the table, shard and
// record count; shards other tables closed stay on disk and no manifest is
// written.
func (e *Exporter) Run(ctx context.Context, src graph.Source) (*Manifest, error) {
	start := e.now()
	runID := e.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.With().Str("run", runID).Logger()

	// a failed run must not leave a manifest describing older tables
	manifestPath := filepath.Join(e.cfg.OutputDir, internal.DefaultManifestName)
	if err := os.Remove(manifestPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous manifest: %w", err)
	}

	all := src.Collections()
	index := lookup.Build(all, logger)

	var owners []graph.Collection
	var excluded []string
	for _, c := range all {
		if c == nil {
			continue
		}
		if e.excluded(c) {
			excluded = append(excluded, index.CollectionID(c))
			continue
		}
		owners = append(owners, c)
	}

	rc := &runContext{
		owners:   owners,
		root:     src.Root(),
		index:    index,
		resolver: resolver.New(index, logger),
	}

	logger.Info().
		Int("collections", len(all)).
		Int("excluded", len(excluded)).
		Int("tables", len(e.tables)).
		Str("out", e.cfg.OutputDir).
		Msg("Starting export")

	results := make([]TableResult, len(e.tables))
	if err := e.runTables(ctx, rc, results, logger); err != nil {
		return nil, err
	}

	m := &Manifest{
		RunID:        runID,
		TableVersion: e.cfg.TableVersion,
		CreatedAt:    start.UTC(),
		Collections:  len(owners),
		Excluded:     excluded,
		Tables:       results,
	}
	m.DurationMs = e.now().Sub(start).Milliseconds()

	if err := WriteManifest(manifestPath, m); err != nil {
		return nil, err
	}

	logger.Info().Str("manifest", manifestPath).Int64("durationMs", m.DurationMs).Msg("Export finished")
	return m, nil
}

func (e *Exporter) runTables(ctx context.Context, rc *runContext, results []TableResult, logger zerolog.Logger) error {
	workers := e.cfg.ParallelTables
	if workers <= 1 {
		for i, def := range e.tables {
			r, err := e.runTable(ctx, rc, def, logger)
			if err != nil {
				return err
			}
			results[i] = r
		}
		return nil
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, def := range e.tables {
		i, def := i, def
		p.Go(func(ctx context.Context) error {
			r, err := e.runTable(ctx, rc, def, logger)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	return p.Wait()
}

func (e *Exporter) runTable(ctx context.Context, rc *runContext, def tableDef, logger zerolog.Logger) (TableResult, error) {
	logger = logger.With().Str("table", def.name).Logger()
	dir := TableDir(e.cfg.OutputDir, def.kind, def.name, e.cfg.TableVersion)

	// a table version directory always holds exactly one run
	if err := os.RemoveAll(dir); err != nil {
		return TableResult{}, fmt.Errorf("table %s: failed to clear %s: %w", def.name, dir, err)
	}

	w, err := shard.NewWriter(shard.Options{
		Dir:          dir,
		BaseName:     internal.DefaultShardBaseName,
		MaxRecords:   e.cfg.Shard.MaxRecords,
		MaxBytes:     e.cfg.Shard.MaxBytes,
		Codec:        e.codec,
		Level:        e.cfg.Shard.Level,
		FrameSize:    e.cfg.Shard.FrameSize,
		CollectIndex: e.cfg.Shard.Index,
	}, logger)
	if err != nil {
		return TableResult{}, fmt.Errorf("table %s: %w", def.name, err)
	}
	defer w.Close()

	stats := newTableStats()
	t := &tableRun{
		runContext: rc,
		name:       def.name,
		cfg:        &e.cfg,
		writer:     w,
		stats:      stats,
		logger:     logger,
	}

	start := time.Now()
	if err := def.run(ctx, t); err != nil {
		return TableResult{}, fmt.Errorf("table %s: %w", def.name, err)
	}
	if err := w.Close(); err != nil {
		return TableResult{}, fmt.Errorf("table %s: %w", def.name, err)
	}
	stats.finish(time.Since(start))

	result := TableResult{
		Name:   def.name,
		Kind:   def.kind,
		Dir:    e.relative(dir),
		Codec:  w.Codec(),
		Shards: w.Descriptors(),
		Stats:  *stats,
	}
	for i := range result.Shards {
		result.Shards[i].Path = e.relative(result.Shards[i].Path)
	}

	if e.cfg.Shard.Index {
		indexPath := filepath.Join(dir, internal.DefaultIndexFileName)
		if err := w.WriteIndex(indexPath); err != nil {
			return TableResult{}, fmt.Errorf("table %s: %w", def.name, err)
		}
		result.Index = e.relative(indexPath)
	}

	logger.Info().
		Int64("records", stats.Records).
		Int("shards", len(result.Shards)).
		Int64("failedObjects", stats.FailedObjects).
		Int64("abortedObjects", stats.AbortedObjects).
		Dur("duration", stats.Duration).
		Msg("Table exported")
	return result, nil
}

// relative renders p relative to the output directory with forward slashes.
func (e *Exporter) relative(p string) string {
	rel, err := filepath.Rel(e.cfg.OutputDir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
