// Package trace prints the per-level and per-memory query log spec.md §6
// describes, at one of three verbosity levels.
package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/cachetrace/cache"
)

// Level selects how much detail a Sink's Log methods write.
type Level int

const (
	// None prints nothing.
	None Level = iota
	// Basic prints one line per level: operation, address, size, hit/miss.
	Basic
	// Full additionally prints returned payloads and eviction tags.
	Full
)

// ParseLevel maps the `-t/--trace` integer onto a Level, per spec.md §6.
func ParseLevel(n int) Level {
	switch {
	case n <= 0:
		return None
	case n == 1:
		return Basic
	default:
		return Full
	}
}

// Sink is a tracer writing to an io.Writer, grounded on the original
// source's log_query: plain fmt.Fprintf, no logging library, matching the
// teacher's own idiom of writing straight to an io.Writer field.
type Sink struct {
	w     io.Writer
	level Level
}

// New constructs a Sink. A nil Writer is valid when level is None.
func New(w io.Writer, level Level) *Sink {
	return &Sink{w: w, level: level}
}

// Level reports the sink's configured verbosity.
func (s *Sink) Level() Level {
	return s.level
}

// LogLevelQuery logs one cache level's query outcome. label is e.g. "L0".
func (s *Sink) LogLevelQuery(label string, in cache.InQuery, out cache.OutQuery) {
	if s.level == None {
		return
	}

	status := "MISS"
	if out.Hit {
		status = "HIT"
	}

	fmt.Fprintf(s.w, "%s: %s addr=0x%x size=%d - %s", label, in.Operation, in.Address, in.Size, status)

	if s.level == Full {
		if out.ReturnedPayload != nil {
			fmt.Fprintf(s.w, " data=%v", out.ReturnedPayload.Slice(out.ReturnedPayload.ValidCount))
		}

		if out.Evicted && out.EvictedTag != nil {
			fmt.Fprintf(s.w, " evicted=0x%x", *out.EvictedTag)
		}
	}

	fmt.Fprintln(s.w)
}

// LogMemoryQuery logs a query against the backing store, matching the
// original's separate "MEM: ..." trace line (only emitted at Full, since
// the original only prints it inside its own FULL-guarded branch).
func (s *Sink) LogMemoryQuery(in cache.InQuery) {
	if s.level != Full {
		return
	}

	fmt.Fprintf(s.w, "MEM: %s addr=0x%x size=%d\n", in.Operation, in.Address, in.Size)
}
