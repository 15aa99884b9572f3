// Package memory implements the flat backing store at the bottom of a
// cache hierarchy: a sparse, block-aligned address space that always
// hits.
package memory

import (
	"sort"

	"github.com/sarchlab/cachetrace/block"
	"github.com/sarchlab/cachetrace/cache"
)

// InitMode selects how Initialize pre-populates the memory window.
type InitMode int

const (
	// InitZeros fills the window with zero-valued blocks.
	InitZeros InitMode = iota
	// InitAddresses fills each element with its own byte address.
	InitAddresses
)

// blockBytes is memory's own block granularity: one full block.Payload,
// block.Capacity 4-byte elements wide. This is independent of any cache
// level's configured BlockSize — a cache level's blocks may be smaller
// (only the first BlockSize/4 elements of a Payload are meaningful there)
// but memory always stores and aligns on a whole Payload, exactly the
// hardcoded `Data::SIZE` granularity original_source's MemoryModel uses.
const blockBytes = uint64(block.Capacity * 4)

// initWindowEnd restores the pre-population behavior dropped by the
// spec.md distillation (see original_source's MemoryModel::initialize):
// addresses [0, initWindowEnd) are pre-populated, strided by blockBytes.
const initWindowEnd = 0x1000

// Backing is the sparse, block-aligned address→payload map at the bottom
// of a hierarchy. Backing.Query always reports a hit, per spec.md §4.2.
type Backing struct {
	store    map[uint64]block.Payload
	modified map[uint64]struct{}
}

// New constructs an empty Backing.
func New() *Backing {
	return &Backing{
		store:    make(map[uint64]block.Payload),
		modified: make(map[uint64]struct{}),
	}
}

// Initialize pre-populates the [0, 0x1000) window per mode, overwriting
// any existing contents. Run once at hierarchy construction, before any
// command is replayed.
func (m *Backing) Initialize(mode InitMode) {
	for addr := uint64(0); addr < initWindowEnd; addr += blockBytes {
		var p block.Payload

		if mode == InitAddresses {
			for i := 0; i < block.Capacity; i++ {
				p.Set(i, int64(addr)+int64(i*4))
			}
		}

		p.ValidCount = block.Capacity
		m.store[m.align(addr)] = p
	}
}

func (m *Backing) align(addr uint64) uint64 {
	return addr - addr%blockBytes
}

// Query answers a read or write against the backing store. Always hits.
func (m *Backing) Query(in cache.InQuery) cache.OutQuery {
	aligned := m.align(in.Address)
	elements := in.Size / 4
	if elements > block.Capacity {
		elements = block.Capacity
	}

	if in.Operation == cache.Write {
		if elements > in.Payload.ValidCount {
			elements = in.Payload.ValidCount
		}

		written := block.ReadAt(in.Payload, 0, elements)
		m.store[aligned] = written
		m.modified[aligned] = struct{}{}

		return cache.OutQuery{Hit: true}
	}

	// An address never written and never covered by Initialize carries
	// no payload at all — per spec.md §4.2/§9, absence propagates as
	// "no payload", not as an auto-vivified zero block. Memory still
	// reports a hit: it is the backstop and never itself misses.
	stored, ok := m.store[aligned]
	if !ok {
		return cache.OutQuery{Hit: true}
	}

	if elements > stored.ValidCount {
		elements = stored.ValidCount
	}

	payload := block.ReadAt(stored, 0, elements)

	return cache.OutQuery{Hit: true, ReturnedPayload: &payload}
}

// ModifiedAddresses returns every block-aligned address ever written,
// sorted ascending, for the `show` command.
func (m *Backing) ModifiedAddresses() []uint64 {
	addrs := make([]uint64, 0, len(m.modified))
	for a := range m.modified {
		addrs = append(addrs, a)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	return addrs
}

// At returns the payload stored at the given block-aligned address and
// whether it has ever been populated (by a write or Initialize). Used by
// printers and tests; not part of the query protocol.
func (m *Backing) At(addr uint64) (block.Payload, bool) {
	p, ok := m.store[m.align(addr)]
	return p, ok
}
