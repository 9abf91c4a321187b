package guard

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/relx/relx/graph"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGuardCycleSafety(t *testing.T) {
	var buf bytes.Buffer
	g := New("A1B2C3D4:1", DefaultLimits(), zerolog.New(&buf))
	ptr := graph.RawPointer{FileID: 5, PathID: 10}

	iterations := 0
	emitted := false
	for i := 0; i < 1000; i++ {
		iterations++
		if g.Observe("x", ptr) == Abort {
			break
		}
		if !emitted {
			g.Emitted("x", ptr)
			emitted = true
		}
	}

	assert.Less(t, iterations, 1000, "enumeration must stop before the input is exhausted")
	assert.Equal(t, 258, iterations, "first sighting is emitted, then 257 repeats trip the limit")
	assert.Equal(t, AbortRepetition, g.Aborted())
	assert.Equal(t, 1, g.Stats().Diagnostics)
	assert.Equal(t, 1, strings.Count(buf.String(), "repeating pointer"))

	assert.Equal(t, Abort, g.Observe("x", ptr), "an aborted guard stays aborted")
	assert.Equal(t, 1, g.Stats().Diagnostics, "no second diagnostic for the same signature")
}

func TestGuardRepeatCounterIsPerSignature(t *testing.T) {
	g := New("owner", Limits{RepeatLimit: 3}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		require.Equal(t, Continue, g.Observe("a", graph.RawPointer{FileID: 1, PathID: 2}))
		require.Equal(t, Continue, g.Observe("b", graph.RawPointer{FileID: 1, PathID: 2}))
	}
	assert.Equal(t, Abort, g.Observe("a", graph.RawPointer{FileID: 1, PathID: 2}))
}

func TestGuardNullRun(t *testing.T) {
	g := New("owner", Limits{NullRunLimit: 10}, zerolog.Nop())

	decisions := 0
	for i := 0; i < 50; i++ {
		decisions++
		if g.Observe(fmt.Sprintf("m_Items[%d]", i), graph.RawPointer{}) == Abort {
			break
		}
	}
	assert.Equal(t, 10, decisions)
	assert.Equal(t, AbortNullRun, g.Aborted())
	assert.Equal(t, 1, g.Stats().Diagnostics)
}

func TestGuardEmissionResetsNullRun(t *testing.T) {
	g := New("owner", Limits{NullRunLimit: 3}, zerolog.Nop())

	null := graph.RawPointer{}
	live := graph.RawPointer{FileID: 0, PathID: 9}

	require.Equal(t, Continue, g.Observe("n0", null))
	require.Equal(t, Continue, g.Observe("n1", null))
	g.Emitted("n1", null)
	assert.Equal(t, Abort, g.Observe("n2", null), "null emissions do not reset the run")

	g = New("owner", Limits{NullRunLimit: 3}, zerolog.Nop())
	require.Equal(t, Continue, g.Observe("n0", null))
	require.Equal(t, Continue, g.Observe("n1", null))
	require.Equal(t, Continue, g.Observe("r", live))
	g.Emitted("r", live)
	require.Equal(t, Continue, g.Observe("n2", null))
	require.Equal(t, Continue, g.Observe("n3", null))
	assert.Equal(t, NotAborted, g.Aborted())
}

func TestGuardStallWarnsButContinues(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var buf bytes.Buffer
	limits := Limits{StallWindow: 15 * time.Second, StallMinIterations: 3, StallWarnings: 2}
	g := New("owner", limits, zerolog.New(&buf), WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Second)
		require.Equal(t, Continue, g.Observe(fmt.Sprintf("f%d", i), graph.RawPointer{FileID: 1, PathID: int64(i + 1)}))
	}

	stats := g.Stats()
	assert.Equal(t, NotAborted, stats.Aborted)
	assert.Equal(t, 2, stats.StallWarnings)
	assert.Equal(t, 3, stats.Diagnostics, "two warnings plus one suppression notice")
	assert.Equal(t, 1, strings.Count(buf.String(), "suppressed"))
	assert.Equal(t, int64(10), stats.Enumerated)
}

func TestGuardEmissionResetsStallTimer(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	limits := Limits{StallWindow: 15 * time.Second, StallMinIterations: 1, StallWarnings: 5}
	g := New("owner", limits, zerolog.Nop(), WithClock(clock.Now))

	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Second)
		ptr := graph.RawPointer{FileID: 1, PathID: int64(i + 1)}
		require.Equal(t, Continue, g.Observe("f", ptr))
		g.Emitted("f", ptr)
	}

	assert.Equal(t, 0, g.Stats().StallWarnings)
	assert.Equal(t, int64(20), g.Stats().Emitted)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 100_000, l.NullRunLimit)
	assert.Equal(t, 256, l.RepeatLimit)
	assert.Equal(t, 15*time.Second, l.StallWindow)
	assert.Equal(t, 5, l.StallWarnings)
}
