// Command cachetrace replays load/store commands against a configurable
// cache hierarchy, either interactively or from a test file.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/sarchlab/cachetrace/hierarchy"
	"github.com/sarchlab/cachetrace/internal/driver"
	"github.com/sarchlab/cachetrace/internal/trace"
	"github.com/sarchlab/cachetrace/memory"
)

var (
	flagHelp   = flag.BoolP("help", "h", false, "Show usage")
	flagTrace  = flag.IntP("trace", "t", 0, "Trace level: 0 none, 1 basic, 2 full")
	flagInit   = flag.IntP("init", "i", 0, "Memory init mode: 0 zeros, 1 addresses")
	flagTest   = flag.String("test", "", "Replay commands from `file` instead of reading stdin")
	flagLevels = flag.String("levels", "", "Load a hierarchy topology from `file` instead of the built-in default")
)

func main() {
	flag.Parse()

	if *flagHelp {
		printUsage()
		os.Exit(0)
	}

	os.Exit(run())
}

func printUsage() {
	fmt.Fprintln(os.Stdout, "Usage: cachetrace [options]")
	fmt.Fprintln(os.Stdout, "\nOptions:")
	flag.PrintDefaults()
}

// run builds the hierarchy, wires tracing, and dispatches to the batch or
// interactive driver, returning the process exit code.
func run() int {
	cfg := hierarchy.DefaultConfig()

	if *flagLevels != "" {
		loaded, err := hierarchy.LoadConfig(*flagLevels)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		cfg = loaded
	}

	initMode := memory.InitZeros
	if *flagInit != 0 {
		initMode = memory.InitAddresses
	}

	h, err := hierarchy.New(cfg, initMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	h.SetTracer(trace.New(os.Stdout, trace.ParseLevel(*flagTrace)))

	runner := driver.NewRunner(h, os.Stdout, os.Stderr)

	if *flagTest != "" {
		if err := driver.RunBatch(runner, *flagTest); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		return 0
	}

	if err := driver.RunREPL(runner); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}
