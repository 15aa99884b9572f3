package cache_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachetrace/block"
	"github.com/sarchlab/cachetrace/cache"
)

var _ = Describe("Level", func() {
	Describe("construction", func() {
		It("rejects a non-power-of-two block size", func() {
			_, err := cache.New(cache.Config{Capacity: 32, BlockSize: 17, Associativity: 2})
			Expect(err).To(MatchError(cache.ErrNotPowerOfTwo))
		})

		It("rejects zero associativity", func() {
			_, err := cache.New(cache.Config{Capacity: 32, BlockSize: 16, Associativity: 0})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a capacity not divisible by block_size*associativity", func() {
			_, err := cache.New(cache.Config{Capacity: 30, BlockSize: 16, Associativity: 2})
			Expect(err).To(MatchError(cache.ErrCapacityNotDivisble))
		})
	})

	Describe("scenario 1: simple hit/miss under WriteBack/ReadAllocate/LRU", func() {
		var l *cache.Level

		BeforeEach(func() {
			var err error
			l, err = cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.ReadAllocate,
				ReplPolicy:    cache.LRU,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("misses on the first write (write-allocate not enabled) and again on the read", func() {
			st := l.Query(cache.InQuery{
				Operation: cache.Write,
				Address:   0x10,
				Payload:   block.FromValues(1, 2, 3, 4),
				Size:      16,
			})
			Expect(st.Hit).To(BeFalse())
			// ReadAllocate only: a write miss is forwarded, never installed.
			Expect(st.Out).To(HaveLen(1))
			Expect(st.Out[0].Operation).To(Equal(cache.Write))

			ld := l.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})
			Expect(ld.Hit).To(BeFalse())
		})
	})

	Describe("scenario 2: write-no-allocate bypass", func() {
		It("never installs a block for a write under ReadAllocate", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.ReadAllocate,
			})
			Expect(err).NotTo(HaveOccurred())

			first := l.Query(cache.InQuery{
				Operation: cache.Write,
				Address:   0x10,
				Payload:   block.FromValues(7),
				Size:      16,
			})
			Expect(first.Hit).To(BeFalse())
			Expect(first.Out).To(HaveLen(1))

			second := l.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})
			Expect(second.Hit).To(BeFalse())
		})
	})

	Describe("scenario 3: LRU eviction of a dirty block", func() {
		It("flushes the evicted block's payload to the reconstructed address", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.WriteAllocate,
				ReplPolicy:    cache.LRU,
			})
			Expect(err).NotTo(HaveOccurred())

			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(1), Size: 16})
			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x20, Payload: block.FromValues(2), Size: 16})

			third := l.Query(cache.InQuery{Operation: cache.Write, Address: 0x30, Payload: block.FromValues(3), Size: 16})
			Expect(third.Evicted).To(BeTrue())
			Expect(third.Out).To(HaveLen(1))
			Expect(third.Out[0].Operation).To(Equal(cache.Write))
			Expect(third.Out[0].Address).To(Equal(uint64(0x10)))
			Expect(third.Out[0].Payload.At(0)).To(Equal(int64(1)))
		})
	})

	Describe("scenario 4: write-through propagation", func() {
		It("propagates every write and never leaves a block dirty", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteThrough,
				AllocPolicy:   cache.WriteAllocate,
			})
			Expect(err).NotTo(HaveOccurred())

			miss := l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(9), Size: 16})
			Expect(miss.Out).To(HaveLen(1))

			hit := l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(11), Size: 16})
			Expect(hit.Hit).To(BeTrue())
			Expect(hit.Out).To(HaveLen(1))

			descs := l.Describe()
			Expect(descs).To(HaveLen(1))
			Expect(descs[0].Blocks[0].Dirty).To(BeFalse())
		})
	})

	Describe("scenario 6: MRU replacement", func() {
		It("evicts the most-recently-touched block", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.WriteAllocate,
				ReplPolicy:    cache.MRU,
			})
			Expect(err).NotTo(HaveOccurred())

			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(1), Size: 16})
			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x20, Payload: block.FromValues(2), Size: 16})

			third := l.Query(cache.InQuery{Operation: cache.Write, Address: 0x30, Payload: block.FromValues(3), Size: 16})
			Expect(third.Evicted).To(BeTrue())
			Expect(*third.EvictedTag).To(Equal(uint64(0x20) / 16))
		})
	})

	Describe("random replacement", func() {
		It("is deterministic for a fixed seed", func() {
			cfg := cache.Config{
				Capacity:      16,
				BlockSize:     16,
				Associativity: 1,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.WriteAllocate,
				ReplPolicy:    cache.Random,
				Rand:          rand.New(rand.NewSource(42)),
			}

			l, err := cache.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			// Single-way set: every miss-allocate to the same set evicts
			// the sole occupant regardless of "random" choice.
			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x0, Payload: block.FromValues(1), Size: 16})
			out := l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(2), Size: 16})
			Expect(out.Evicted).To(BeTrue())
		})
	})

	Describe("universal invariants", func() {
		It("never exceeds associativity occupancy per set", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.WriteAllocate,
				ReplPolicy:    cache.LRU,
			})
			Expect(err).NotTo(HaveOccurred())

			addrs := []uint64{0x00, 0x10, 0x20, 0x30, 0x40}
			for _, a := range addrs {
				l.Query(cache.InQuery{Operation: cache.Write, Address: a, Payload: block.FromValues(int64(a)), Size: 16})
			}

			for _, set := range l.Describe() {
				Expect(set.Occupancy).To(BeNumerically("<=", set.Associativity))

				seen := map[uint64]bool{}
				for _, b := range set.Blocks {
					Expect(seen[b.Tag]).To(BeFalse())
					seen[b.Tag] = true
				}
			}
		})

		It("never leaves a block dirty under WriteThrough", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteThrough,
				AllocPolicy:   cache.WriteAllocate,
			})
			Expect(err).NotTo(HaveOccurred())

			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(5), Size: 16})
			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(6), Size: 16})

			for _, set := range l.Describe() {
				for _, b := range set.Blocks {
					Expect(b.Dirty).To(BeFalse())
				}
			}
		})
	})

	Describe("round-trip", func() {
		It("returns what was written to the same aligned address", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.Both,
				ReplPolicy:    cache.LRU,
			})
			Expect(err).NotTo(HaveOccurred())

			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(42, 7), Size: 16})
			out := l.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})

			Expect(out.Hit).To(BeTrue())
			Expect(out.ReturnedPayload.At(0)).To(Equal(int64(42)))
			Expect(out.ReturnedPayload.At(1)).To(Equal(int64(7)))
		})
	})

	Describe("idempotence", func() {
		It("returns identical data on two identical back-to-back reads", func() {
			l, err := cache.New(cache.Config{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.Both,
			})
			Expect(err).NotTo(HaveOccurred())

			l.Query(cache.InQuery{Operation: cache.Write, Address: 0x10, Payload: block.FromValues(3), Size: 16})

			first := l.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})
			second := l.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})

			Expect(second.Hit).To(BeTrue())
			Expect(second.ReturnedPayload.At(0)).To(Equal(first.ReturnedPayload.At(0)))
		})
	})

	Describe("refill fidelity option", func() {
		It("keeps a refill clean by default and dirty when FidelityDirtyRefill is set", func() {
			clean, err := cache.New(cache.Config{
				Capacity:      16,
				BlockSize:     16,
				Associativity: 1,
				WritePolicy:   cache.WriteBack,
				AllocPolicy:   cache.ReadAllocate,
			})
			Expect(err).NotTo(HaveOccurred())

			miss := clean.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})
			Expect(miss.Hit).To(BeFalse())

			clean.Query(cache.InQuery{
				Operation: cache.Write,
				Address:   0x10,
				Payload:   block.FromValues(9),
				Size:      16,
				Refill:    true,
			})
			Expect(clean.Describe()[0].Blocks[0].Dirty).To(BeFalse())

			dirty, err := cache.New(cache.Config{
				Capacity:            16,
				BlockSize:           16,
				Associativity:       1,
				WritePolicy:         cache.WriteBack,
				AllocPolicy:         cache.ReadAllocate,
				FidelityDirtyRefill: true,
			})
			Expect(err).NotTo(HaveOccurred())

			dirty.Query(cache.InQuery{Operation: cache.Read, Address: 0x10, Size: 16})
			dirty.Query(cache.InQuery{
				Operation: cache.Write,
				Address:   0x10,
				Payload:   block.FromValues(9),
				Size:      16,
				Refill:    true,
			})
			Expect(dirty.Describe()[0].Blocks[0].Dirty).To(BeTrue())
		})
	})
})
