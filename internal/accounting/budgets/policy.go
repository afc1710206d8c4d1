package budgets

import (
	"fmt"
	"strings"
)

// Policy decides what happens when no limit applies to a debit.
type Policy interface {
	Name() string
	// AllowWithoutBudget is consulted when no POSTED budget covers the date.
	AllowWithoutBudget() bool
	// AllowWithoutLine is consulted when the budget has no line for the account.
	AllowWithoutLine() bool
}

// LenientPolicy blocks only when an explicit limit is exceeded.
type LenientPolicy struct{}

func (LenientPolicy) Name() string { return "lenient" }
func (LenientPolicy) AllowWithoutBudget() bool { return true }
func (LenientPolicy) AllowWithoutLine() bool { return true }

// StrictPolicy requires every debit to fall under a budget line.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return "strict" }
func (StrictPolicy) AllowWithoutBudget() bool { return false }
func (StrictPolicy) AllowWithoutLine() bool { return false }

// ParsePolicy maps a configuration value to a Policy; empty means lenient.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lenient":
		return LenientPolicy{}, nil
	case "strict":
		return StrictPolicy{}, nil
	}
	return nil, fmt.Errorf("budgets: unknown policy %q", name)
}
