package catalog

import (
	"os"

	"github.com/squadracorsepolito/acmelib"
)

// Labels resolves the value descriptions (VAL_ entries) of enum signals.
type Labels struct {
	decoders map[uint32]func([]byte) []*acmelib.SignalDecoding
}

// NewLabels indexes the signal layouts of the given messages by CAN id.
func NewLabels(messages []*acmelib.Message) *Labels {
	decoders := make(map[uint32]func([]byte) []*acmelib.SignalDecoding, len(messages))

	for _, msg := range messages {
		decoders[uint32(msg.GetCANID())] = msg.SignalLayout().Decode
	}

	return &Labels{
		decoders: decoders,
	}
}

// LoadLabels imports the DBC file at path and collects the messages sent by every node.
func LoadLabels(path string) (*Labels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	bus, err := acmelib.ImportDBCFile(path, file)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	messages := []*acmelib.Message{}
	for _, nodeInt := range bus.NodeInterfaces() {
		messages = append(messages, nodeInt.SentMessages()...)
	}

	return NewLabels(messages), nil
}

// Lookup returns the label of every enum signal of the frame with the given id,
// keyed by signal name. It returns nil when the id is unknown.
func (l *Labels) Lookup(id uint32, data []byte) map[string]string {
	decode, ok := l.decoders[id]
	if !ok {
		return nil
	}

	labels := make(map[string]string)
	for _, dec := range decode(data) {
		if dec.ValueType != acmelib.SignalValueTypeEnum {
			continue
		}
		labels[dec.Signal.Name()] = dec.ValueAsEnum()
	}

	return labels
}

func (l *Labels) Len() int {
	return len(l.decoders)
}
