package driver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/sarchlab/cachetrace/hierarchy"
)

// Runner dispatches parsed commands against a hierarchy and prints
// results, shared by both the interactive REPL and the batch-file path.
type Runner struct {
	h       *hierarchy.Hierarchy
	printer *Printer
	stderr  io.Writer
}

// NewRunner constructs a Runner bound to h, printing results to out and
// parse errors to errOut.
func NewRunner(h *hierarchy.Hierarchy, out, errOut io.Writer) *Runner {
	return &Runner{h: h, printer: NewPrinter(out), stderr: errOut}
}

// Dispatch parses and executes one line. A blank line is silently
// skipped; any other parse error is reported to stderr and the line is
// otherwise ignored — spec.md §4.4/§7: the driver never aborts on
// malformed input.
func (r *Runner) Dispatch(line string) {
	cmd, err := Parse(line)
	if err != nil {
		if errors.Is(err, ErrBlankLine) {
			return
		}

		fmt.Fprintln(r.stderr, err)

		return
	}

	switch cmd.Verb {
	case "show":
		r.printer.PrintState(r.h)
	case "ld":
		out := r.h.Query(cmd.ToQuery())
		r.printer.PrintLoad(out)
	case "st":
		r.h.Query(cmd.ToQuery())
	}
}

// RunBatch replays every line of path through Dispatch, in order —
// grounded on original_source's run_tests, which reads a test file with
// plain std::getline rather than any line-editing front-end.
func RunBatch(r *Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("driver: open test file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		r.Dispatch(scanner.Text())
	}

	return scanner.Err()
}

// historyFile returns the path to the REPL's persisted command history.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cachetrace_history")
}

// RunREPL drives an interactive session over stdin using peterh/liner
// for readline-style editing and history — the same shape
// calvinalkan-agent-task/cmd/sloty's REPL type uses for its own
// cache-backed command loop.
func RunREPL(r *Runner) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(os.Stdout, "Enter commands (ld <size> <addr> | st <size> <addr> <val1> <val2> ...) | show:")

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}

			return fmt.Errorf("driver: reading input: %w", err)
		}

		trimmed := strings.TrimSpace(input)
		if trimmed != "" {
			line.AppendHistory(trimmed)
		}

		r.Dispatch(input)
	}

	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}

	return nil
}
