// Package catalog contains the frame and signal definitions of a CAN network
// and the read-only index used to look them up.
package catalog

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownFrameName is returned when a frame name is not in the catalog.
	ErrUnknownFrameName = errors.New("unknown frame name")
	// ErrUnknownSignalName is returned when a signal name does not belong to a frame.
	ErrUnknownSignalName = errors.New("unknown signal name")
	// ErrInvalidDefinition is returned by [New] when the definitions are ambiguous
	// or describe a bit field that does not fit its frame.
	ErrInvalidDefinition = errors.New("invalid definition")
)

// MaxFrameLength is the maximum payload length of a CAN FD frame in bytes.
const MaxFrameLength = 64

// Catalog is an immutable index of frame definitions.
// It is safe for concurrent use.
type Catalog struct {
	frames []*FrameDefinition
	byID   map[uint32]*FrameDefinition
	byName map[string]*FrameDefinition
}

// New validates the given frames and returns the catalog indexing them.
// The catalog takes ownership of the definitions, they must not be modified afterwards.
func New(frames ...*FrameDefinition) (*Catalog, error) {
	c := &Catalog{
		frames: make([]*FrameDefinition, 0, len(frames)),
		byID:   make(map[uint32]*FrameDefinition, len(frames)),
		byName: make(map[string]*FrameDefinition, len(frames)),
	}

	for _, frame := range frames {
		if frame == nil {
			return nil, fmt.Errorf("%w: nil frame", ErrInvalidDefinition)
		}

		if err := frame.validate(); err != nil {
			return nil, err
		}

		if dup, ok := c.byID[frame.ID]; ok {
			return nil, fmt.Errorf("%w: frames %q and %q share id 0x%X", ErrInvalidDefinition, dup.Name, frame.Name, frame.ID)
		}

		if _, ok := c.byName[frame.Name]; ok {
			return nil, fmt.Errorf("%w: duplicated frame name %q", ErrInvalidDefinition, frame.Name)
		}

		frame.buildIndex()

		c.frames = append(c.frames, frame)
		c.byID[frame.ID] = frame
		c.byName[frame.Name] = frame
	}

	return c, nil
}

// Empty returns a catalog without frames.
func Empty() *Catalog {
	c, _ := New()
	return c
}

// Lookup returns the frame with the given identifier.
// A miss is not an error: buses carry frames that are not described by the catalog.
func (c *Catalog) Lookup(id uint32) (*FrameDefinition, bool) {
	frame, ok := c.byID[id]
	return frame, ok
}

// ByName returns the frame with the given name or [ErrUnknownFrameName].
func (c *Catalog) ByName(name string) (*FrameDefinition, error) {
	frame, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameName, name)
	}
	return frame, nil
}

// Frames returns a copy of the frame list in declaration order.
func (c *Catalog) Frames() []*FrameDefinition {
	return slices.Clone(c.frames)
}

func (c *Catalog) Len() int {
	return len(c.frames)
}

// FrameDefinition describes a CAN frame and the signals packed into its payload.
type FrameDefinition struct {
	ID       uint32
	Name     string
	Extended bool
	FD       bool
	// Length is the payload length in bytes.
	Length  int
	Signals []*SignalDefinition

	signalIndex map[string]int
}

func (f *FrameDefinition) buildIndex() {
	f.signalIndex = make(map[string]int, len(f.Signals))
	for idx, sig := range f.Signals {
		f.signalIndex[sig.Name] = idx
	}
}

func (f *FrameDefinition) validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: frame 0x%X has no name", ErrInvalidDefinition, f.ID)
	}

	if f.Length < 0 || f.Length > MaxFrameLength {
		return fmt.Errorf("%w: frame %q has length %d", ErrInvalidDefinition, f.Name, f.Length)
	}

	if !f.FD && f.Length > 8 {
		return fmt.Errorf("%w: frame %q is longer than 8 bytes but is not FD", ErrInvalidDefinition, f.Name)
	}

	names := make(map[string]struct{}, len(f.Signals))
	for _, sig := range f.Signals {
		if sig == nil {
			return fmt.Errorf("%w: frame %q has a nil signal", ErrInvalidDefinition, f.Name)
		}

		if _, ok := names[sig.Name]; ok {
			return fmt.Errorf("%w: frame %q has duplicated signal %q", ErrInvalidDefinition, f.Name, sig.Name)
		}
		names[sig.Name] = struct{}{}

		if err := sig.validate(f.Length); err != nil {
			return fmt.Errorf("frame %q: %w", f.Name, err)
		}
	}

	return nil
}

// SignalIndex returns the declaration index of the named signal.
func (f *FrameDefinition) SignalIndex(name string) (int, bool) {
	if f.signalIndex != nil {
		idx, ok := f.signalIndex[name]
		return idx, ok
	}

	for idx, sig := range f.Signals {
		if sig.Name == name {
			return idx, true
		}
	}
	return -1, false
}

// Signal returns the named signal.
func (f *FrameDefinition) Signal(name string) (*SignalDefinition, bool) {
	idx, ok := f.SignalIndex(name)
	if !ok {
		return nil, false
	}
	return f.Signals[idx], true
}

func (f *FrameDefinition) String() string {
	return fmt.Sprintf("%s (0x%X)", f.Name, f.ID)
}
