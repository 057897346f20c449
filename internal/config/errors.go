package config

import (
	"fmt"
	"strings"
)

// PinConflict is one GPIO line claimed by two users.
type PinConflict struct {
	Pin    int
	First  string
	Second string
}

// PinConflictError lists every conflicting pin in the configuration.
type PinConflictError struct {
	Conflicts []PinConflict
}

func (e *PinConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("pin %d used by %s and %s", c.Pin, c.First, c.Second)
	}
	return "pin conflict: " + strings.Join(parts, "; ")
}

// Pins returns the conflicting pin numbers.
func (e *PinConflictError) Pins() []int {
	pins := make([]int, len(e.Conflicts))
	for i, c := range e.Conflicts {
		pins[i] = c.Pin
	}
	return pins
}
