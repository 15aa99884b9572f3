// Package driver implements the line-oriented command surface spec.md
// §4.4 describes: `ld`, `st`, `show`, dispatched against a hierarchy and
// read either interactively (REPL) or from a batch file.
package driver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/cachetrace/block"
	"github.com/sarchlab/cachetrace/cache"
)

// Sentinel errors for malformed input, matched with errors.Is — the
// agent-task example's errors.go style.
var (
	ErrBlankLine          = errors.New("driver: blank line")
	ErrUnknownVerb        = errors.New("driver: unknown verb")
	ErrMalformedCommand   = errors.New("driver: malformed command")
	ErrMalformedValue     = errors.New("driver: malformed value")
	ErrValueCountMismatch = errors.New("driver: value count mismatch")
)

// Command is one parsed driver line.
type Command struct {
	Verb    string // "ld", "st", or "show"
	Size    int    // bytes
	Address uint64
	Payload block.Payload
}

// Parse parses a single driver line into a Command. Blank lines and
// lines equal to "/n" are reported as ErrBlankLine — a convention
// original_source/src/memory.cpp's process_commands/run_tests both treat
// as skippable, never as a malformed-command error.
func Parse(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed == "/n" {
		return Command{}, ErrBlankLine
	}

	fields := strings.Fields(trimmed)
	verb := strings.ToLower(fields[0])

	if verb == "show" {
		return Command{Verb: "show"}, nil
	}

	if verb != "ld" && verb != "st" {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownVerb, fields[0])
	}

	if len(fields) < 3 {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedCommand, line)
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil || size <= 0 {
		return Command{}, fmt.Errorf("%w: size %q", ErrMalformedCommand, fields[1])
	}

	address, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 64)
	if err != nil {
		return Command{}, fmt.Errorf("%w: address %q", ErrMalformedCommand, fields[2])
	}

	cmd := Command{Verb: verb, Size: size, Address: address}

	if verb != "st" {
		return cmd, nil
	}

	expected := size / 4
	if expected > block.Capacity {
		return Command{}, fmt.Errorf("%w: size %d exceeds the %d-value block capacity", ErrMalformedCommand, size, block.Capacity)
	}

	values := make([]int64, 0, len(fields)-3)

	for _, tok := range fields[3:] {
		v, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformedValue, tok)
		}

		values = append(values, int64(int32(v)))
	}

	if len(values) != expected {
		return Command{}, fmt.Errorf("%w: expected %d values, got %d", ErrValueCountMismatch, expected, len(values))
	}

	cmd.Payload = block.FromValues(values...)

	return cmd, nil
}

// ToQuery builds the cache.InQuery a parsed `ld`/`st` command issues
// against the hierarchy.
func (c Command) ToQuery() cache.InQuery {
	op := cache.Read
	if c.Verb == "st" {
		op = cache.Write
	}

	return cache.InQuery{
		Operation: op,
		Address:   c.Address,
		Payload:   c.Payload,
		Size:      c.Size,
	}
}
