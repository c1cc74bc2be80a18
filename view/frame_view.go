package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/codec"
)

// Source tells who caused an update.
type Source uint8

const (
	// SourceBus marks updates decoded from a received frame.
	SourceBus Source = iota
	// SourceUser marks updates made through a user edit.
	SourceUser
)

func (s Source) String() string {
	switch s {
	case SourceBus:
		return "bus"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Update describes the state of a cell right after a mutation.
// Updates of the same frame are totally ordered by Revision.
type Update struct {
	FrameID   uint32
	FrameName string

	Signal string
	Value  float64
	State  RangeState
	// Label is the value description of enum signals, if known.
	Label string

	Source   Source
	Changed  bool
	Revision uint64
	Time     time.Time
}

// CellState is a read-only copy of a cell.
type CellState struct {
	Name   string
	Unit   string
	Value  float64
	Min    float64
	Max    float64
	Policy Policy
	State  RangeState
}

type Config struct {
	// Policy is the edit policy of the cells.
	Policy Policy
	// Step is the amount added or removed by an increment or a decrement.
	Step float64
}

func NewDefaultConfig() *Config {
	return &Config{
		Policy: PolicyAllowExceed,
		Step:   DefaultStep,
	}
}

// FrameView groups the cells of a frame.
// Every operation holds the view lock for its whole duration,
// so the mutations of a frame never interleave.
type FrameView struct {
	frame *catalog.FrameDefinition

	mux      sync.Mutex
	cells    []*Cell
	revision uint64
}

func NewFrameView(frame *catalog.FrameDefinition, cfg *Config) *FrameView {
	cells := make([]*Cell, 0, len(frame.Signals))
	for _, sig := range frame.Signals {
		cells = append(cells, NewCell(sig, cfg.Policy, cfg.Step))
	}

	return &FrameView{
		frame: frame,
		cells: cells,
	}
}

func (fv *FrameView) Frame() *catalog.FrameDefinition {
	return fv.frame
}

func (fv *FrameView) getCell(name string) (*Cell, error) {
	idx, ok := fv.frame.SignalIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in frame %q", catalog.ErrUnknownSignalName, name, fv.frame.Name)
	}
	return fv.cells[idx], nil
}

// newUpdate must be called with the lock held.
func (fv *FrameView) newUpdate(cell *Cell, source Source, changed bool, now time.Time) Update {
	fv.revision++

	return Update{
		FrameID:   fv.frame.ID,
		FrameName: fv.frame.Name,

		Signal: cell.name,
		Value:  cell.value,
		State:  cell.state,

		Source:   source,
		Changed:  changed,
		Revision: fv.revision,
		Time:     now,
	}
}

// ApplyDecoded sets the cells named by values.
// Names that do not belong to the frame are ignored.
func (fv *FrameView) ApplyDecoded(values []codec.SignalValue) []Update {
	now := time.Now()

	fv.mux.Lock()
	defer fv.mux.Unlock()

	updates := make([]Update, 0, len(values))
	for _, val := range values {
		cell, err := fv.getCell(val.Name)
		if err != nil {
			continue
		}

		changed := cell.SetValue(val.Value)
		updates = append(updates, fv.newUpdate(cell, SourceBus, changed, now))
	}

	return updates
}

// CollectForSend returns the values of all cells in declaration order.
func (fv *FrameView) CollectForSend() []codec.SignalValue {
	fv.mux.Lock()
	defer fv.mux.Unlock()

	values := make([]codec.SignalValue, 0, len(fv.cells))
	for _, cell := range fv.cells {
		values = append(values, codec.SignalValue{Name: cell.name, Value: cell.value})
	}

	return values
}

func (fv *FrameView) mutate(name string, fn func(*Cell) bool) (Update, error) {
	now := time.Now()

	fv.mux.Lock()
	defer fv.mux.Unlock()

	cell, err := fv.getCell(name)
	if err != nil {
		return Update{}, err
	}

	changed := fn(cell)
	return fv.newUpdate(cell, SourceUser, changed, now), nil
}

func (fv *FrameView) Increment(name string) (Update, error) {
	return fv.mutate(name, (*Cell).Increment)
}

func (fv *FrameView) Decrement(name string) (Update, error) {
	return fv.mutate(name, (*Cell).Decrement)
}

func (fv *FrameView) SetValue(name string, value float64) (Update, error) {
	return fv.mutate(name, func(c *Cell) bool {
		return c.SetValue(value)
	})
}

// Snapshot returns a copy of every cell in declaration order.
func (fv *FrameView) Snapshot() []CellState {
	fv.mux.Lock()
	defer fv.mux.Unlock()

	states := make([]CellState, 0, len(fv.cells))
	for _, cell := range fv.cells {
		states = append(states, CellState{
			Name:   cell.name,
			Unit:   cell.unit,
			Value:  cell.value,
			Min:    cell.min,
			Max:    cell.max,
			Policy: cell.policy,
			State:  cell.state,
		})
	}

	return states
}

// Revision returns the number of mutations applied so far.
func (fv *FrameView) Revision() uint64 {
	fv.mux.Lock()
	defer fv.mux.Unlock()

	return fv.revision
}
