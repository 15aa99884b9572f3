package hierarchy

import "errors"

// Sentinel errors, matched with errors.Is — the agent-task example's
// errors.go style (var errX = errors.New(...)) rather than ad hoc
// fmt.Errorf strings for the fixed set of configuration failures a
// topology file can produce.
var (
	// ErrUnknownPolicy is returned when a topology file names a policy
	// string this package does not recognize.
	ErrUnknownPolicy = errors.New("hierarchy: unknown policy name")
	// ErrNoLevels is returned when a topology describes zero cache levels.
	ErrNoLevels = errors.New("hierarchy: topology must describe at least one cache level")
)
