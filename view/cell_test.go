package view

import (
	"testing"

	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/stretchr/testify/assert"
)

func newTestCell(minimum, maximum *float64, policy Policy) *Cell {
	return NewCell(&catalog.SignalDefinition{Name: "sig", Length: 8, Scale: 1, Minimum: minimum, Maximum: maximum}, policy, DefaultStep)
}

func Test_Cell_DefaultRange(t *testing.T) {
	assert := assert.New(t)

	cell := newTestCell(nil, nil, PolicyAllowExceed)
	assert.Equal(0.0, cell.Min())
	assert.Equal(1000.0, cell.Max())
	assert.Equal(0.0, cell.Value())
	assert.Equal(WithinRange, cell.State())
	assert.Equal(PolicyAllowExceed, cell.Policy())
}

func Test_Cell_BooleanIsClamped(t *testing.T) {
	assert := assert.New(t)

	cell := newTestCell(catalog.Bound(0), catalog.Bound(1), PolicyAllowExceed)
	assert.Equal(PolicyClamped, cell.Policy())

	assert.True(cell.Increment())
	assert.Equal(1.0, cell.Value())

	assert.False(cell.Increment())
	assert.Equal(1.0, cell.Value())

	assert.True(cell.Decrement())
	assert.False(cell.Decrement())
	assert.Equal(0.0, cell.Value())
	assert.Equal(WithinRange, cell.State())
}

func Test_Cell_AllowExceed(t *testing.T) {
	assert := assert.New(t)

	cell := newTestCell(catalog.Bound(0), catalog.Bound(100), PolicyAllowExceed)
	cell.SetValue(100)
	assert.Equal(WithinRange, cell.State())

	assert.True(cell.Increment())
	assert.Equal(101.0, cell.Value())
	assert.Equal(AboveRange, cell.State())

	cell.SetValue(0)
	assert.True(cell.Decrement())
	assert.Equal(-1.0, cell.Value())
	assert.Equal(BelowRange, cell.State())
}

func Test_Cell_Clamped(t *testing.T) {
	assert := assert.New(t)

	cell := newTestCell(catalog.Bound(0), catalog.Bound(255), PolicyClamped)
	cell.SetValue(250)
	for range 10 {
		cell.Increment()
	}
	assert.Equal(255.0, cell.Value())
	assert.Equal(WithinRange, cell.State())

	// a fractional value is pinned to the boundary
	cell.SetValue(254.5)
	assert.True(cell.Increment())
	assert.Equal(255.0, cell.Value())

	cell.SetValue(0.5)
	assert.True(cell.Decrement())
	assert.Equal(0.0, cell.Value())
}

func Test_Cell_SetValueBypassesPolicy(t *testing.T) {
	assert := assert.New(t)

	cell := newTestCell(catalog.Bound(0), catalog.Bound(255), PolicyClamped)

	assert.True(cell.SetValue(300))
	assert.Equal(300.0, cell.Value())
	assert.Equal(AboveRange, cell.State())

	assert.False(cell.SetValue(300))

	// out of range clamped cells do not move further away
	assert.False(cell.Increment())
	assert.Equal(300.0, cell.Value())

	assert.True(cell.SetValue(-5))
	assert.Equal(BelowRange, cell.State())
}

func Test_Cell_Step(t *testing.T) {
	assert := assert.New(t)

	cell := NewCell(&catalog.SignalDefinition{Name: "sig", Length: 8, Scale: 0.5}, PolicyAllowExceed, 0.5)
	cell.Increment()
	cell.Increment()
	assert.Equal(1.0, cell.Value())

	cell = NewCell(&catalog.SignalDefinition{Name: "sig", Length: 8, Scale: 1}, PolicyAllowExceed, 0)
	cell.Increment()
	assert.Equal(1.0, cell.Value())
}

func Test_Enums_String(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("within", WithinRange.String())
	assert.Equal("above", AboveRange.String())
	assert.Equal("below", BelowRange.String())
	assert.Equal("unknown", RangeState(9).String())

	assert.Equal("bus", SourceBus.String())
	assert.Equal("user", SourceUser.String())
	assert.Equal("unknown", Source(9).String())
}
