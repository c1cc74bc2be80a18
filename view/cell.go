// Package view holds the editable state of the tracked frames:
// one bounded cell per signal, grouped by frame.
package view

import (
	"github.com/squadracorsepolito/acmeview/catalog"
)

const (
	// DefaultMinimum is the effective minimum of a signal without a declared one.
	DefaultMinimum = 0.0
	// DefaultMaximum is the effective maximum of a signal without a declared one.
	DefaultMaximum = 1000.0
	// DefaultStep is the amount added or removed by a single increment or decrement.
	DefaultStep = 1.0
)

// Policy controls whether user edits can move a cell outside its range.
type Policy uint8

const (
	// PolicyAllowExceed lets edits go past the range, the cell flags the violation.
	PolicyAllowExceed Policy = iota
	// PolicyClamped pins edits at the range boundaries.
	PolicyClamped
)

func (p Policy) String() string {
	switch p {
	case PolicyAllowExceed:
		return "allow_exceed"
	case PolicyClamped:
		return "clamped"
	default:
		return "unknown"
	}
}

// RangeState tells where the value of a cell is with respect to its range.
type RangeState uint8

const (
	// WithinRange means the value lies inside the declared range, or no range is declared.
	WithinRange RangeState = iota
	// AboveRange means the value is greater than the declared maximum.
	AboveRange
	// BelowRange means the value is less than the declared minimum.
	BelowRange
)

func (rs RangeState) String() string {
	switch rs {
	case WithinRange:
		return "within"
	case AboveRange:
		return "above"
	case BelowRange:
		return "below"
	default:
		return "unknown"
	}
}

// Cell is the bounded value of a single signal.
// It is not safe for concurrent use, the owning [FrameView] serializes the access.
type Cell struct {
	name string
	unit string

	value float64
	min   float64
	max   float64
	step  float64

	policy Policy
	state  RangeState
}

// NewCell returns a cell with value zero for the given signal.
// Missing bounds are replaced by [DefaultMinimum] and [DefaultMaximum].
// A cell whose range is [0, 1] is always clamped.
func NewCell(sig *catalog.SignalDefinition, policy Policy, step float64) *Cell {
	lower := DefaultMinimum
	if sig.Minimum != nil {
		lower = *sig.Minimum
	}

	upper := DefaultMaximum
	if sig.Maximum != nil {
		upper = *sig.Maximum
	}

	if lower == 0 && upper == 1 {
		policy = PolicyClamped
	}

	if step <= 0 {
		step = DefaultStep
	}

	c := &Cell{
		name: sig.Name,
		unit: sig.Unit,

		min:  lower,
		max:  upper,
		step: step,

		policy: policy,
	}
	c.updateState()

	return c
}

func (c *Cell) updateState() {
	switch {
	case c.value > c.max:
		c.state = AboveRange
	case c.value < c.min:
		c.state = BelowRange
	default:
		c.state = WithinRange
	}
}

// Increment adds one step to the value and reports whether the value changed.
// A clamped cell never goes above its maximum.
func (c *Cell) Increment() bool {
	if c.policy == PolicyClamped && c.value >= c.max {
		c.updateState()
		return false
	}

	next := c.value + c.step
	if c.policy == PolicyClamped && next > c.max {
		next = c.max
	}

	return c.set(next)
}

// Decrement removes one step from the value and reports whether the value changed.
// A clamped cell never goes below its minimum.
func (c *Cell) Decrement() bool {
	if c.policy == PolicyClamped && c.value <= c.min {
		c.updateState()
		return false
	}

	next := c.value - c.step
	if c.policy == PolicyClamped && next < c.min {
		next = c.min
	}

	return c.set(next)
}

// SetValue overwrites the value regardless of the policy.
func (c *Cell) SetValue(v float64) bool {
	return c.set(v)
}

func (c *Cell) set(v float64) bool {
	changed := c.value != v
	c.value = v
	c.updateState()
	return changed
}

func (c *Cell) Name() string {
	return c.name
}

func (c *Cell) Value() float64 {
	return c.value
}

func (c *Cell) Min() float64 {
	return c.min
}

func (c *Cell) Max() float64 {
	return c.max
}

func (c *Cell) Policy() Policy {
	return c.policy
}

func (c *Cell) State() RangeState {
	return c.state
}
