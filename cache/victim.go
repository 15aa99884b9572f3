package cache

import (
	"math/rand"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// recencyClock stamps each block (identified by its flat blockIndex) with
// the tick at which it was last installed or hit. set.Blocks itself is
// stable way order, not recency order — akita's own NewLRUVictimFinder
// tracks true recency internally for the LRU policy, but that state isn't
// reachable from outside the package, so MRU keeps its own.
type recencyClock struct {
	stamps []uint64
	tick   uint64
}

func newRecencyClock(totalBlocks int) *recencyClock {
	return &recencyClock{stamps: make([]uint64, totalBlocks)}
}

func (c *recencyClock) touch(blockIndex int) {
	c.tick++
	c.stamps[blockIndex] = c.tick
}

func (c *recencyClock) at(blockIndex int) uint64 {
	return c.stamps[blockIndex]
}

// firstInvalid returns a free way in set, if one exists. A miss on a
// non-full set must fill that free way rather than evict a live block
// (spec.md §4.1: "If set is full (occupancy = A), select a victim" —
// implying a victim is only selected once the set actually is full).
// akita's own NewLRUVictimFinder does the same before ever consulting
// recency.
func firstInvalid(set *akitacache.Set) *akitacache.Block {
	for _, b := range set.Blocks {
		if !b.IsValid {
			return b
		}
	}

	return nil
}

// The teacher (timing/cache.Cache) only ever constructs
// akitacache.NewLRUVictimFinder(). akitacache.VictimFinder is the
// extension point it was built against: a directory is handed one at
// construction and consults it on every FindVictim call, whether or not
// the set is full. mruVictimFinder and randomVictimFinder plug the same
// extension point to cover the replacement policies spec.md adds beyond
// the teacher's hardwired LRU.

// mruVictimFinder evicts the most-recently-touched live block in the set,
// tracked via the Level's own recencyClock since set.Blocks carries no
// recency of its own.
type mruVictimFinder struct {
	recency       *recencyClock
	associativity int
}

func newMRUVictimFinder(recency *recencyClock, associativity int) akitacache.VictimFinder {
	return mruVictimFinder{recency: recency, associativity: associativity}
}

func (f mruVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	if len(set.Blocks) == 0 {
		return nil
	}

	if free := firstInvalid(set); free != nil {
		return free
	}

	var victim *akitacache.Block
	var newest uint64

	for i, b := range set.Blocks {
		idx := b.SetID*f.associativity + b.WayID
		stamp := f.recency.at(idx)

		if i == 0 || stamp > newest {
			newest = stamp
			victim = b
		}
	}

	return victim
}

// randomVictimFinder evicts a uniformly sampled live block, ignoring
// recency order entirely. Takes a seeded *rand.Rand rather than the
// global source so replacement is deterministic and reproducible across
// runs with the same seed (spec.md §5, §9).
type randomVictimFinder struct {
	rng *rand.Rand
}

func newRandomVictimFinder(rng *rand.Rand) akitacache.VictimFinder {
	return &randomVictimFinder{rng: rng}
}

func (f *randomVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	if len(set.Blocks) == 0 {
		return nil
	}

	if free := firstInvalid(set); free != nil {
		return free
	}

	return set.Blocks[f.rng.Intn(len(set.Blocks))]
}

// victimFinderFor returns the akitacache.VictimFinder matching policy.
func victimFinderFor(policy ReplPolicy, rng *rand.Rand, recency *recencyClock, associativity int) akitacache.VictimFinder {
	switch policy {
	case MRU:
		return newMRUVictimFinder(recency, associativity)
	case Random:
		return newRandomVictimFinder(rng)
	default:
		return akitacache.NewLRUVictimFinder()
	}
}
