package driver

import (
	"fmt"
	"io"

	"github.com/sarchlab/cachetrace/cache"
	"github.com/sarchlab/cachetrace/hierarchy"
)

// Printer renders `ld`/`show` output to an io.Writer, grounded on
// CacheL1::print_cache_state and MemoryModel::print_memory/
// MemoryHierarchy::print_caches_state.
type Printer struct {
	w io.Writer
}

// NewPrinter constructs a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintLoad prints the result of an `ld` command: the returned payload,
// or a miss indication.
func (p *Printer) PrintLoad(out cache.OutQuery) {
	if !out.Hit || out.ReturnedPayload == nil {
		fmt.Fprintln(p.w, "Miss: no data")

		return
	}

	fmt.Fprint(p.w, "Data: ")

	payload := out.ReturnedPayload
	values := payload.Slice(payload.ValidCount)

	for i, v := range values {
		if i > 0 {
			fmt.Fprint(p.w, " ")
		}

		fmt.Fprint(p.w, v)
	}

	fmt.Fprintln(p.w)
}

// PrintState prints every cache level's contents followed by the sorted
// set of modified memory addresses, per spec.md §4.4's `show` command.
func (p *Printer) PrintState(h *hierarchy.Hierarchy) {
	for i, lvl := range h.Levels() {
		cfg := lvl.Config()

		fmt.Fprintf(p.w, "\n=== L%d Configuration ===\n", i)
		fmt.Fprintf(p.w, "Size:        %d b\n", cfg.Capacity)
		fmt.Fprintf(p.w, "Block size:  %d b\n", cfg.BlockSize)
		fmt.Fprintf(p.w, "Associativity: %d\n", cfg.Associativity)
		fmt.Fprintf(p.w, "Policy:      %s, %s, %s\n", cfg.WritePolicy, cfg.AllocPolicy, cfg.ReplPolicy)

		fmt.Fprintf(p.w, "\n=== L%d Contents ===\n", i)

		descs := lvl.Describe()
		if len(descs) == 0 {
			fmt.Fprintln(p.w, "Cache is empty")

			continue
		}

		for _, set := range descs {
			fmt.Fprintf(p.w, "Set #%-4d [%d/%d blocks]:\n", set.Index, set.Occupancy, set.Associativity)

			for bi, b := range set.Blocks {
				state := "Clean"
				if b.Dirty {
					state = "Dirty"
				}

				fmt.Fprintf(p.w, "  Block %d: Tag=0x%08x State: %s Data: [", bi, b.Tag, state)

				values := b.Payload.Slice(b.Payload.ValidCount)
				for vi, v := range values {
					if vi > 0 {
						fmt.Fprint(p.w, ", ")
					}

					fmt.Fprint(p.w, v)
				}

				fmt.Fprintln(p.w, "]")
			}
		}
	}

	p.printModifiedMemory(h)
}

func (p *Printer) printModifiedMemory(h *hierarchy.Hierarchy) {
	addrs := h.Memory().ModifiedAddresses()

	fmt.Fprintln(p.w, "\n=== Modified Memory ===")

	if len(addrs) == 0 {
		fmt.Fprintln(p.w, "Memory has no modifications")

		return
	}

	for _, addr := range addrs {
		payload, _ := h.Memory().At(addr)

		fmt.Fprintf(p.w, "0x%08x | ", addr)

		values := payload.Slice(payload.ValidCount)
		for i, v := range values {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}

			fmt.Fprint(p.w, v)
		}

		fmt.Fprintln(p.w)
	}
}
