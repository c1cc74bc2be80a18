package catalog

import (
	"fmt"
	"os"
	"strings"

	"go.einride.tech/can/pkg/dbc"
)

// independentSignalsMessage is the pseudo message that DBC editors use
// to hold signals not assigned to any frame.
const independentSignalsMessage = "VECTOR__INDEPENDENT_SIG_MSG"

// frameFormatAttribute is the message attribute that declares whether a
// frame is classic CAN or CAN FD.
const frameFormatAttribute = "VFrameFormat"

// LoadError is returned when a catalog cannot be loaded from a DBC file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load catalog %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadDBCFile reads and parses the DBC file at path.
func LoadDBCFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return ParseDBC(path, data)
}

// ParseDBC builds a catalog from the message definitions of a DBC source.
// A declared range of [0|0] is treated as not declared.
func ParseDBC(filename string, data []byte) (*Catalog, error) {
	parser := dbc.NewParser(filename, data)
	if err := parser.Parse(); err != nil {
		return nil, &LoadError{Path: filename, Err: err}
	}

	formats := frameFormats(parser.Defs())

	frames := []*FrameDefinition{}
	for _, def := range parser.Defs() {
		msgDef, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}

		if string(msgDef.Name) == independentSignalsMessage {
			continue
		}

		frame := newFrameFromDBC(msgDef)
		if format, ok := formats[msgDef.MessageID]; ok {
			frame.FD = frame.FD || strings.HasSuffix(format, "_FD")
		}

		frames = append(frames, frame)
	}

	cat, err := New(frames...)
	if err != nil {
		return nil, &LoadError{Path: filename, Err: err}
	}

	return cat, nil
}

// frameFormats collects the frame format declared for each message.
// Enum values given by index are resolved to their name by the parser.
func frameFormats(defs []dbc.Def) map[dbc.MessageID]string {
	formats := make(map[dbc.MessageID]string)
	for _, def := range defs {
		valDef, ok := def.(*dbc.AttributeValueForObjectDef)
		if !ok {
			continue
		}

		if valDef.ObjectType != dbc.ObjectTypeMessage || string(valDef.AttributeName) != frameFormatAttribute {
			continue
		}

		if valDef.StringValue != "" {
			formats[valDef.MessageID] = valDef.StringValue
		}
	}
	return formats
}

func newFrameFromDBC(msgDef *dbc.MessageDef) *FrameDefinition {
	length := int(msgDef.Size)

	frame := &FrameDefinition{
		ID:       msgDef.MessageID.ToCAN(),
		Name:     string(msgDef.Name),
		Extended: msgDef.MessageID.IsExtended(),
		FD:       length > 8,
		Length:   length,
		Signals:  make([]*SignalDefinition, 0, len(msgDef.Signals)),
	}

	for _, sigDef := range msgDef.Signals {
		sig := &SignalDefinition{
			Name:     string(sigDef.Name),
			StartBit: int(sigDef.StartBit),
			Length:   int(sigDef.Size),
			Signed:   sigDef.IsSigned,
			Scale:    sigDef.Factor,
			Offset:   sigDef.Offset,
			Unit:     sigDef.Unit,
		}

		if sigDef.IsBigEndian {
			sig.ByteOrder = BigEndian
		}

		if sigDef.Minimum != 0 || sigDef.Maximum != 0 {
			sig.Minimum = Bound(sigDef.Minimum)
			sig.Maximum = Bound(sigDef.Maximum)
		}

		frame.Signals = append(frame.Signals, sig)
	}

	return frame
}
