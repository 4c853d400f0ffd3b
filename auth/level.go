// Package auth implements the access control gate: a process-wide
// permission cache backed by an external authority, with the level
// semantics the gateway enforces on every operation.
package auth

import "fmt"

// Level is an access level on a resource.
type Level string

const (
	// LevelNone grants nothing.
	LevelNone Level = "none"
	// LevelRead grants get, keys, and result polling.
	LevelRead Level = "read"
	// LevelWrite grants mutation: put, delete, rename, invoke, cancel,
	// and environment-mutating operations.
	LevelWrite Level = "write"
)

// rank orders levels for comparison. Unknown levels rank below none.
func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	default:
		return 0
	}
}

// Covers reports whether l satisfies the required level.
func (l Level) Covers(required Level) bool {
	return l.rank() >= required.rank()
}

// ParseLevel validates a level string from an external source.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNone, LevelRead, LevelWrite:
		return Level(s), nil
	default:
		return LevelNone, fmt.Errorf("invalid access level %q", s)
	}
}
