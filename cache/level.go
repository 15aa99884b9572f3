// Package cache implements a single set-associative cache level: address
// decoding, tag-store lookup, replacement, and write/allocation policy.
// The only public entry point is Level.Query — a total state machine that
// turns one InQuery into one OutQuery, possibly carrying follow-on
// requests for the next level down.
package cache

import (
	"errors"
	"fmt"
	"math/rand"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachetrace/block"
)

// Errors returned by New when a configuration is not constructible.
var (
	ErrNotPowerOfTwo       = errors.New("cache: value must be a power of two")
	ErrNotPositive         = errors.New("cache: value must be positive")
	ErrCapacityNotDivisble = errors.New("cache: capacity must be divisible by block size * associativity")
)

// Config describes one cache level's geometry and policies.
type Config struct {
	// Capacity is the level's total size in bytes.
	Capacity int
	// BlockSize is the cache line size in bytes. Must be a power of two.
	BlockSize int
	// Associativity is the number of ways per set.
	Associativity int
	// AddressBits is the address width used for tag-bit bookkeeping. It is
	// not needed for the decode/encode math and no Level method reads it;
	// it is kept for completeness.
	AddressBits int

	WritePolicy WritePolicy
	AllocPolicy AllocPolicy
	ReplPolicy  ReplPolicy

	// Rand seeds the Random replacement policy; ignored otherwise. When it
	// is nil and ReplPolicy is Random, New uses a source seeded with 1, so
	// runs stay reproducible either way. Inject a seeded source — never
	// the global one (spec.md §5).
	Rand *rand.Rand

	// FidelityDirtyRefill reproduces the reviewed source's behavior of
	// leaving a read-refilled block Dirty under WriteBack instead of
	// Clean. Off by default; see spec.md §9 Open Questions.
	FidelityDirtyRefill bool
}

// Level is one set-associative cache in a Hierarchy.
type Level struct {
	cfg Config

	numSets    int
	offsetBits int
	indexBits  int

	directory *akitacache.DirectoryImpl
	dataStore []block.Payload
	recency   *recencyClock
}

// New validates cfg and constructs a Level. Construction failure is the
// only error this package returns; Query itself is total.
func New(cfg Config) (*Level, error) {
	if !isPowerOfTwo(cfg.BlockSize) {
		return nil, fmt.Errorf("%w: block size %d", ErrNotPowerOfTwo, cfg.BlockSize)
	}

	if cfg.Associativity <= 0 {
		return nil, fmt.Errorf("%w: associativity %d", ErrNotPositive, cfg.Associativity)
	}

	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrNotPositive, cfg.Capacity)
	}

	unit := cfg.BlockSize * cfg.Associativity
	if unit <= 0 || cfg.Capacity%unit != 0 {
		return nil, fmt.Errorf("%w: capacity=%d block_size=%d associativity=%d",
			ErrCapacityNotDivisble, cfg.Capacity, cfg.BlockSize, cfg.Associativity)
	}

	numSets := cfg.Capacity / unit
	if !isPowerOfTwo(numSets) {
		return nil, fmt.Errorf("%w: derived number of sets %d", ErrNotPowerOfTwo, numSets)
	}

	if cfg.ReplPolicy == Random && cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}

	dataStore := make([]block.Payload, numSets*cfg.Associativity)
	recency := newRecencyClock(numSets * cfg.Associativity)

	return &Level{
		cfg:        cfg,
		numSets:    numSets,
		offsetBits: log2(cfg.BlockSize),
		indexBits:  log2(numSets),
		directory: akitacache.NewDirectory(
			numSets,
			cfg.Associativity,
			cfg.BlockSize,
			victimFinderFor(cfg.ReplPolicy, cfg.Rand, recency, cfg.Associativity),
		),
		dataStore: dataStore,
		recency:   recency,
	}, nil
}

// Config returns the level's configuration.
func (l *Level) Config() Config {
	return l.cfg
}

// decode splits an address into (tag, index) for this level's geometry.
func (l *Level) decode(addr uint64) (tag, index uint64) {
	blockSize := uint64(l.cfg.BlockSize)
	numSets := uint64(l.numSets)

	index = (addr / blockSize) % numSets
	tag = addr / (blockSize * numSets)

	return tag, index
}

// logicalTag recovers the spec's high-order tag (spec.md §8 glossary:
// "high-order address bits distinguishing blocks that map to the same
// set") from a block's stored block-aligned address.
func (l *Level) logicalTag(alignedAddr uint64) uint64 {
	tag, _ := l.decode(alignedAddr)
	return tag
}

func (l *Level) blockIndex(b *akitacache.Block) int {
	return b.SetID*l.cfg.Associativity + b.WayID
}

// Query is the cache level's single public operation: total, and pure
// except for the level's own tag-store/recency/data-store state.
func (l *Level) Query(in InQuery) OutQuery {
	aligned := l.alignedAddress(in.Address)

	if b := l.directory.Lookup(0, aligned); b != nil && b.IsValid {
		return l.queryHit(in, b)
	}

	return l.queryMiss(in, aligned)
}

// alignedAddress masks addr down to this level's block granularity —
// exactly the teacher's `blockAddr := (addr / blockSize) * blockSize`,
// and the value the directory keys its lookups and victim search by.
func (l *Level) alignedAddress(addr uint64) uint64 {
	bs := uint64(l.cfg.BlockSize)
	return addr - addr%bs
}

func (l *Level) queryHit(in InQuery, b *akitacache.Block) OutQuery {
	if l.cfg.ReplPolicy != Random {
		l.directory.Visit(b)
	}

	l.recency.touch(l.blockIndex(b))

	out := OutQuery{Hit: true}

	if in.Operation == Read {
		payload := l.dataStore[l.blockIndex(b)]
		out.ReturnedPayload = &payload

		return out
	}

	// Write hit.
	l.dataStore[l.blockIndex(b)] = in.Payload.Clone()

	if l.cfg.WritePolicy == WriteBack {
		if in.Refill && !l.cfg.FidelityDirtyRefill {
			b.IsDirty = false
		} else {
			b.IsDirty = true
		}

		return out
	}

	// Write-through: propagate immediately, never leave the block dirty.
	b.IsDirty = false
	out.Out = append(out.Out, InQuery{
		Operation: Write,
		Address:   in.Address,
		Payload:   in.Payload.Clone(),
		Size:      in.Size,
	})

	return out
}

func (l *Level) queryMiss(in InQuery, aligned uint64) OutQuery {
	out := OutQuery{Hit: false}

	if !l.cfg.AllocPolicy.ShouldAllocate(in.Operation) {
		out.Out = append(out.Out, InQuery{
			Operation: in.Operation,
			Address:   in.Address,
			Payload:   in.Payload.Clone(),
			Size:      in.Size,
		})

		return out
	}

	victim := l.directory.FindVictim(aligned)
	if victim == nil {
		// Directory/geometry mismatch — a construction invariant was
		// violated, not a condition Query can recover from.
		panic("cache: no victim slot available for a set that should have room")
	}

	if victim.IsValid {
		oldAlignedAddr := victim.Tag

		out.Evicted = true
		evictedTag := l.logicalTag(oldAlignedAddr)
		out.EvictedTag = &evictedTag

		if victim.IsDirty && l.cfg.WritePolicy == WriteBack {
			out.Out = append(out.Out, InQuery{
				Operation: Write,
				Address:   oldAlignedAddr,
				Payload:   l.dataStore[l.blockIndex(victim)].Clone(),
				Size:      l.cfg.BlockSize,
			})
		}
	}

	// Tag stores the block-aligned address, not just the high-order tag
	// bits — this is what Lookup compares incoming aligned addresses
	// against (timing/cache.Cache.handleMiss: "Tag stores block-aligned
	// address"), and alignedAddress(addr) is exactly that value.
	victim.Tag = aligned
	victim.IsValid = true

	switch in.Operation {
	case Write:
		l.dataStore[l.blockIndex(victim)] = in.Payload.Clone()

		if l.cfg.WritePolicy == WriteBack {
			victim.IsDirty = true
		} else {
			victim.IsDirty = false
			out.Out = append(out.Out, InQuery{
				Operation: Write,
				Address:   in.Address,
				Payload:   in.Payload.Clone(),
				Size:      in.Size,
			})
		}
	case Read:
		victim.IsDirty = false
		out.Out = append(out.Out, InQuery{
			Operation: Read,
			Address:   in.Address,
			Size:      l.cfg.BlockSize,
		})
	}

	l.directory.Visit(victim)
	l.recency.touch(l.blockIndex(victim))

	return out
}

// Sets reports the number of sets and the associativity, for printers and
// tests that need to reason about geometry without recomputing it.
func (l *Level) Sets() (numSets, associativity int) {
	return l.numSets, l.cfg.Associativity
}

// Describe returns the per-set, per-block contents of this level, for the
// `show` command. Blocks are reported in stable way order, not recency
// order.
func (l *Level) Describe() []SetDescription {
	sets := l.directory.GetSets()

	descs := make([]SetDescription, 0, len(sets))

	for setID, set := range sets {
		if len(set.Blocks) == 0 {
			continue
		}

		var blocks []BlockDescription

		for _, b := range set.Blocks {
			if !b.IsValid {
				continue
			}

			blocks = append(blocks, BlockDescription{
				Tag:     l.logicalTag(b.Tag),
				Dirty:   b.IsDirty,
				Payload: l.dataStore[l.blockIndex(b)],
			})
		}

		if len(blocks) == 0 {
			continue
		}

		descs = append(descs, SetDescription{
			Index:         setID,
			Occupancy:     len(blocks),
			Associativity: l.cfg.Associativity,
			Blocks:        blocks,
		})
	}

	return descs
}

// SetDescription is a snapshot of one set, for `show`.
type SetDescription struct {
	Index         int
	Occupancy     int
	Associativity int
	Blocks        []BlockDescription
}

// BlockDescription is a snapshot of one valid block, for `show`.
type BlockDescription struct {
	Tag     uint64
	Dirty   bool
	Payload block.Payload
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func log2(n int) int {
	bits := 0
	for n > 1 {
		n >>= 1
		bits++
	}

	return bits
}
