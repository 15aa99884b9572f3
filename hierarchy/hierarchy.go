// Package hierarchy coordinates an ordered sequence of cache levels
// backed by main memory: it threads one request across levels, handling
// write-through propagation, miss-fill, and refill installation.
package hierarchy

import (
	"fmt"

	"github.com/sarchlab/cachetrace/cache"
	"github.com/sarchlab/cachetrace/internal/trace"
	"github.com/sarchlab/cachetrace/memory"
)

// Hierarchy is the constructed, ready-to-query cache hierarchy: levels
// 0..L-1 plus backing memory. Constructed once via New; queries are
// strictly serialized (spec.md §5 — no concurrent access).
type Hierarchy struct {
	levels []*cache.Level
	mem    *memory.Backing
	sink   *trace.Sink
}

// SetTracer attaches (or replaces) the tracer used to log each level's
// query outcome. A nil sink disables tracing.
func (h *Hierarchy) SetTracer(sink *trace.Sink) {
	h.sink = sink
}

// Levels returns the constructed cache levels, for the driver's `show`
// command.
func (h *Hierarchy) Levels() []*cache.Level {
	return h.levels
}

// Memory returns the backing store, for the driver's `show` command.
func (h *Hierarchy) Memory() *memory.Backing {
	return h.mem
}

func (h *Hierarchy) log(level int, in cache.InQuery, out cache.OutQuery) {
	if h.sink == nil {
		return
	}

	h.sink.LogLevelQuery(fmt.Sprintf("L%d", level), in, out)
}

func (h *Hierarchy) logMemory(in cache.InQuery) {
	if h.sink == nil {
		return
	}

	h.sink.LogMemoryQuery(in)
}

// Query implements spec.md §4.3's algorithm, starting at level 0.
func (h *Hierarchy) Query(in cache.InQuery) cache.OutQuery {
	return h.queryFrom(0, in)
}

// queryFrom resolves in starting at cache level `level`, descending
// through further levels (and finally memory) as a miss requires. Unlike
// the reviewed source's flat one-hop probe per outer-loop iteration, a
// miss that itself misses at the next level keeps descending here until
// it resolves — unbounded-depth hierarchies refill correctly instead of
// only ever seeing one hop down (see DESIGN.md).
func (h *Hierarchy) queryFrom(level int, in cache.InQuery) cache.OutQuery {
	if level >= len(h.levels) {
		h.logMemory(in)
		return h.mem.Query(in)
	}

	lvl := h.levels[level]
	out := lvl.Query(in)
	h.log(level, in, out)

	writeThroughHit := in.Operation == cache.Write &&
		lvl.Config().WritePolicy == cache.WriteThrough &&
		out.Hit

	if writeThroughHit {
		for _, follow := range out.Out {
			h.queryFrom(level+1, follow)
		}

		return out
	}

	if out.Hit {
		return out
	}

	if lvl.Config().AllocPolicy.ShouldAllocate(in.Operation) {
		return h.fill(level, in, out)
	}

	// Non-allocating miss: forward the original request downward and
	// return whatever resolves it, directly.
	var last cache.OutQuery

	for _, follow := range out.Out {
		last = h.queryFrom(level+1, follow)
	}

	return last
}

// fill descends through every follow-on request an allocating miss
// emitted. On a read refill (the downstream result carries a payload),
// it installs that payload into the current level via a synthetic Write
// tagged Refill, then reports a hit with that payload. A follow-on that
// carries no refill (an eviction flush, or a write-allocate-miss's own
// write-through propagation) is resolved downward but otherwise leaves
// the level's own miss result as the final answer — spec.md §4.3 step 4
// only defines a terminating action for the refill case.
func (h *Hierarchy) fill(level int, in cache.InQuery, miss cache.OutQuery) cache.OutQuery {
	lvl := h.levels[level]

	for _, follow := range miss.Out {
		next := h.queryFrom(level+1, follow)

		if in.Operation != cache.Read || next.ReturnedPayload == nil {
			continue
		}

		blockSize := lvl.Config().BlockSize
		aligned := alignTo(in.Address, blockSize)

		refill := cache.InQuery{
			Operation: cache.Write,
			Address:   aligned,
			Payload:   next.ReturnedPayload.Clone(),
			Size:      blockSize,
			Refill:    true,
		}

		refillOut := lvl.Query(refill)
		h.log(level, refill, refillOut)

		payload := next.ReturnedPayload.Clone()

		return cache.OutQuery{Hit: true, ReturnedPayload: &payload}
	}

	return miss
}

func alignTo(addr uint64, blockSize int) uint64 {
	bs := uint64(blockSize)
	return addr - addr%bs
}
