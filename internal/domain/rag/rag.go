// Package rag defines the red/amber/green risk scale and the fitness labels
// derived from it. Levels are totally ordered; comparisons never go through
// strings.
package rag

import (
	"fmt"
	"strings"
)

// Level is a traffic-light risk level. Higher is more severe.
type Level int

const (
	Green Level = iota
	Amber
	Red
)

func (l Level) String() string {
	switch l {
	case Green:
		return "green"
	case Amber:
		return "amber"
	case Red:
		return "red"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Valid reports whether l is one of the three defined levels.
func (l Level) Valid() bool {
	return l >= Green && l <= Red
}

// Parse accepts "green", "amber" or "red" in any case.
func Parse(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green":
		return Green, nil
	case "amber":
		return Amber, nil
	case "red":
		return Red, nil
	}
	return Green, fmt.Errorf("invalid rag level: %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid rag level: %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Level) Level {
	if b > a {
		return b
	}
	return a
}

// Fitness is the work-capacity label attached to a verdict.
type Fitness string

const (
	Fit                 Fitness = "fit"
	FitWithRestrictions Fitness = "fit_with_restrictions"
	NotFit              Fitness = "not_fit"
	ProbationRequired   Fitness = "probation_required"
)

// FitnessFor maps a level to its fitness label.
func FitnessFor(l Level) Fitness {
	switch l {
	case Red:
		return NotFit
	case Amber:
		return FitWithRestrictions
	}
	return Fit
}

// ReviewDays is how long a verdict at level l stays fresh.
func ReviewDays(l Level) int {
	switch l {
	case Red:
		return 3
	case Amber:
		return 7
	}
	return 30
}
