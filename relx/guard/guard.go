// Package guard keeps per-object dependency enumeration from running away on
// degenerate or cyclic input.
package guard

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/graph"
)

// Decision tells the caller whether to keep enumerating.
type Decision int

const (
	Continue Decision = iota
	Abort
)

// AbortReason records why enumeration stopped early.
type AbortReason string

const (
	NotAborted      AbortReason = ""
	AbortNullRun    AbortReason = "null_run"
	AbortRepetition AbortReason = "repeated_pointer"
)

// Limits bounds a single object's enumeration. A zero limit disables its rule.
type Limits struct {
	NullRunLimit       int
	RepeatLimit        int
	StallWindow        time.Duration
	StallMinIterations int64
	StallWarnings      int
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		NullRunLimit:       100_000,
		RepeatLimit:        256,
		StallWindow:        15 * time.Second,
		StallMinIterations: 1_000,
		StallWarnings:      5,
	}
}

// Stats describes one finished (or aborted) enumeration.
type Stats struct {
	Enumerated    int64
	Emitted       int64
	Diagnostics   int
	StallWarnings int
	Aborted       AbortReason
}

type signature struct {
	fileID int32
	pathID int64
	field  string
}

// Guard is created fresh for every object and discarded afterwards; it is not
// safe for concurrent use.
type Guard struct {
	owner  string
	limits Limits
	logger zerolog.Logger
	now    func() time.Time

	repeats  map[signature]int
	reported map[signature]struct{}
	nullRun  int
	lastEmit time.Time

	stallWarnings   int
	stallSuppressed bool
	stats           Stats
}

// Option customises a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, mainly for tests of the stall rule.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New starts guarding the enumeration of the object identified by owner.
func New(owner string, limits Limits, logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{
		owner:    owner,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
		repeats:  make(map[signature]int),
		reported: make(map[signature]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastEmit = g.now()
	return g
}

// Observe is called for every raw pointer before it is resolved.
func (g *Guard) Observe(field string, ptr graph.RawPointer) Decision {
	if g.stats.Aborted != NotAborted {
		return Abort
	}
	g.stats.Enumerated++

	if ptr.IsNull() {
		g.nullRun++
		if g.limits.NullRunLimit > 0 && g.nullRun >= g.limits.NullRunLimit {
			g.stats.Aborted = AbortNullRun
			g.stats.Diagnostics++
			g.logger.Warn().
				Str("owner", g.owner).
				Int("null_run", g.nullRun).
				Int64("enumerated", g.stats.Enumerated).
				Msg("Aborting dependency enumeration after a run of null pointers")
			return Abort
		}
	}

	sig := signature{fileID: ptr.FileID, pathID: ptr.PathID, field: field}
	g.repeats[sig]++
	if g.limits.RepeatLimit > 0 && g.repeats[sig] > g.limits.RepeatLimit {
		g.stats.Aborted = AbortRepetition
		if _, seen := g.reported[sig]; !seen {
			g.reported[sig] = struct{}{}
			g.stats.Diagnostics++
			g.logger.Warn().
				Str("owner", g.owner).
				Str("field", field).
				Int32("file_id", ptr.FileID).
				Int64("path_id", ptr.PathID).
				Int("repeats", g.repeats[sig]).
				Msg("Aborting dependency enumeration on a repeating pointer")
		}
		return Abort
	}

	g.checkStall()
	return Continue
}

// checkStall warns when enumeration keeps going without producing edges.
// It never aborts: a slow but legitimate object must not lose edges.
func (g *Guard) checkStall() {
	if g.limits.StallWindow <= 0 || g.stats.Enumerated < g.limits.StallMinIterations {
		return
	}
	now := g.now()
	idle := now.Sub(g.lastEmit)
	if idle <= g.limits.StallWindow {
		return
	}

	switch {
	case g.stallWarnings < g.limits.StallWarnings:
		g.stallWarnings++
		g.stats.Diagnostics++
		g.logger.Warn().
			Str("owner", g.owner).
			Dur("idle", idle).
			Int64("enumerated", g.stats.Enumerated).
			Int64("emitted", g.stats.Emitted).
			Msg("Dependency enumeration is not producing edges, continuing")
	case !g.stallSuppressed:
		g.stallSuppressed = true
		g.stats.Diagnostics++
		g.logger.Warn().
			Str("owner", g.owner).
			Int("warnings", g.stallWarnings).
			Msg("Further stall warnings for this object suppressed")
	}
	g.lastEmit = now
}

// Emitted records that the pointer produced a distinct edge.
func (g *Guard) Emitted(field string, ptr graph.RawPointer) {
	g.stats.Emitted++
	g.lastEmit = g.now()
	if !ptr.IsNull() {
		g.nullRun = 0
	}
	delete(g.repeats, signature{fileID: ptr.FileID, pathID: ptr.PathID, field: field})
}

// Stats returns the counters collected so far.
func (g *Guard) Stats() Stats {
	s := g.stats
	s.StallWarnings = g.stallWarnings
	return s
}

// Aborted reports the abort reason, if any.
func (g *Guard) Aborted() AbortReason {
	return g.stats.Aborted
}
