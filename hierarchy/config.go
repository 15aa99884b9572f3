package hierarchy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/sarchlab/cachetrace/cache"
	"github.com/sarchlab/cachetrace/memory"
)

// LevelConfig is the JSON-facing shape of one cache level, mirroring
// cache.Config but with policies spelled as strings so a topology file
// reads naturally (grounded on timing/latency's TimingConfig tag style).
type LevelConfig struct {
	Capacity      int    `json:"capacity"`
	BlockSize     int    `json:"block_size"`
	Associativity int    `json:"associativity"`
	AddressBits   int    `json:"address_bits,omitempty"`
	WritePolicy   string `json:"write_policy"`
	AllocPolicy   string `json:"alloc_policy"`
	ReplPolicy    string `json:"repl_policy"`
}

// Config describes an entire hierarchy's topology: an ordered list of
// cache levels (0 nearest the CPU) backed by memory.
type Config struct {
	Levels              []LevelConfig `json:"levels"`
	FidelityDirtyRefill bool          `json:"fidelity_dirty_refill,omitempty"`
}

// DefaultConfig is the single-level setup spec.md's worked scenarios use:
// L1 {32B, 16B blocks, 2-way, WriteBack/ReadAllocate/LRU}.
func DefaultConfig() Config {
	return Config{
		Levels: []LevelConfig{
			{
				Capacity:      32,
				BlockSize:     16,
				Associativity: 2,
				WritePolicy:   "write-back",
				AllocPolicy:   "read-allocate",
				ReplPolicy:    "lru",
			},
		},
	}
}

// LoadConfig reads a JSON or JSONC topology file, standardizing JSONC to
// JSON first (github.com/tailscale/hujson, the same two-step
// Standardize-then-Unmarshal pattern calvinalkan-agent-task's
// internal/ticket/config.go uses for its own config file).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("hierarchy: read topology file: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("hierarchy: invalid JSONC in topology file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("hierarchy: parse topology file: %w", err)
	}

	return cfg, nil
}

func parseWritePolicy(s string) (cache.WritePolicy, error) {
	switch s {
	case "", "write-back":
		return cache.WriteBack, nil
	case "write-through":
		return cache.WriteThrough, nil
	default:
		return 0, fmt.Errorf("%w: write_policy %q", ErrUnknownPolicy, s)
	}
}

func parseAllocPolicy(s string) (cache.AllocPolicy, error) {
	switch s {
	case "", "read-allocate":
		return cache.ReadAllocate, nil
	case "write-allocate":
		return cache.WriteAllocate, nil
	case "both", "read-and-write-allocate":
		return cache.Both, nil
	default:
		return 0, fmt.Errorf("%w: alloc_policy %q", ErrUnknownPolicy, s)
	}
}

func parseReplPolicy(s string) (cache.ReplPolicy, error) {
	switch s {
	case "", "lru":
		return cache.LRU, nil
	case "mru":
		return cache.MRU, nil
	case "random":
		return cache.Random, nil
	default:
		return 0, fmt.Errorf("%w: repl_policy %q", ErrUnknownPolicy, s)
	}
}

// buildLevels translates Config into constructed cache.Level values, the
// final step before a Hierarchy can be assembled.
func buildLevels(cfg Config) ([]*cache.Level, error) {
	levels := make([]*cache.Level, 0, len(cfg.Levels))

	for i, lc := range cfg.Levels {
		writePolicy, err := parseWritePolicy(lc.WritePolicy)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: level %d: %w", i, err)
		}

		allocPolicy, err := parseAllocPolicy(lc.AllocPolicy)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: level %d: %w", i, err)
		}

		replPolicy, err := parseReplPolicy(lc.ReplPolicy)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: level %d: %w", i, err)
		}

		level, err := cache.New(cache.Config{
			Capacity:            lc.Capacity,
			BlockSize:           lc.BlockSize,
			Associativity:       lc.Associativity,
			AddressBits:         lc.AddressBits,
			WritePolicy:         writePolicy,
			AllocPolicy:         allocPolicy,
			ReplPolicy:          replPolicy,
			FidelityDirtyRefill: cfg.FidelityDirtyRefill,
		})
		if err != nil {
			return nil, fmt.Errorf("hierarchy: level %d: %w", i, err)
		}

		levels = append(levels, level)
	}

	return levels, nil
}

// New assembles a Hierarchy from cfg: one cache.Level per entry plus a
// fresh memory.Backing, pre-populated per initMode.
func New(cfg Config, initMode memory.InitMode) (*Hierarchy, error) {
	if len(cfg.Levels) == 0 {
		return nil, ErrNoLevels
	}

	levels, err := buildLevels(cfg)
	if err != nil {
		return nil, err
	}

	mem := memory.New()
	mem.Initialize(initMode)

	return &Hierarchy{levels: levels, mem: mem}, nil
}
