package cannelloni

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	protocolVersion = 2
	opCodeData      = 0

	headerSize = 5

	// fdLengthFlag marks the length byte of an FD message, which is followed by a flags byte.
	fdLengthFlag = 0x80

	idExtendedFlag = 0x80000000
	idRemoteFlag   = 0x40000000
	idErrorFlag    = 0x20000000
	idMask         = 0x1FFFFFFF
)

var ErrShortBuffer = errors.New("cannelloni: not enough data")

// Message is a CAN frame inside a cannelloni packet.
// The ID keeps the SocketCAN flags in its top bits.
type Message struct {
	ID      uint32
	FD      bool
	FDFlags uint8
	Data    []byte
}

func (m *Message) IsExtended() bool {
	return m.ID&idExtendedFlag != 0
}

// IsData reports whether the message is neither a remote nor an error frame.
func (m *Message) IsData() bool {
	return m.ID&(idRemoteFlag|idErrorFlag) == 0
}

func (m *Message) encodedSize() int {
	if m.FD {
		return 6 + len(m.Data)
	}
	return 5 + len(m.Data)
}

func (m *Message) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, m.ID)

	if m.FD {
		buf = append(buf, uint8(len(m.Data))|fdLengthFlag, m.FDFlags)
	} else {
		buf = append(buf, uint8(len(m.Data)))
	}

	return append(buf, m.Data...)
}

// Packet is a cannelloni datagram.
type Packet struct {
	Version        uint8
	OpCode         uint8
	SequenceNumber uint8
	Messages       []*Message
}

func NewPacket(sequenceNumber uint8, messages ...*Message) *Packet {
	return &Packet{
		Version:        protocolVersion,
		OpCode:         opCodeData,
		SequenceNumber: sequenceNumber,
		Messages:       messages,
	}
}

// Encode returns the wire representation of the packet.
func (p *Packet) Encode() []byte {
	size := headerSize
	for _, msg := range p.Messages {
		size += msg.encodedSize()
	}

	buf := make([]byte, 0, size)
	buf = append(buf, p.Version, p.OpCode, p.SequenceNumber)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Messages)))

	for _, msg := range p.Messages {
		buf = msg.appendTo(buf)
	}

	return buf
}

// DecodePacket parses a datagram. The message data is copied out of buf.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < headerSize {
		return nil, ErrShortBuffer
	}

	p := &Packet{
		Version:        buf[0],
		OpCode:         buf[1],
		SequenceNumber: buf[2],
	}

	if p.OpCode != opCodeData {
		return nil, fmt.Errorf("cannelloni: unsupported op code %d", p.OpCode)
	}

	count := int(binary.BigEndian.Uint16(buf[3:5]))
	p.Messages = make([]*Message, 0, count)

	pos := headerSize
	for range count {
		msg, n, err := decodeMessage(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", len(p.Messages), err)
		}

		p.Messages = append(p.Messages, msg)
		pos += n
	}

	return p, nil
}

func decodeMessage(buf []byte) (*Message, int, error) {
	if len(buf) < 5 {
		return nil, 0, ErrShortBuffer
	}

	msg := &Message{
		ID: binary.BigEndian.Uint32(buf[0:4]),
	}

	n := 5
	dataLen := int(buf[4])

	if dataLen&fdLengthFlag != 0 {
		if len(buf) < 6 {
			return nil, 0, ErrShortBuffer
		}

		msg.FD = true
		msg.FDFlags = buf[5]
		dataLen &^= fdLengthFlag
		n++
	}

	// remote frames carry the requested length but no data
	if msg.ID&idRemoteFlag != 0 {
		dataLen = 0
	}

	if len(buf) < n+dataLen {
		return nil, 0, ErrShortBuffer
	}

	msg.Data = make([]byte, dataLen)
	copy(msg.Data, buf[n:n+dataLen])

	return msg, n + dataLen, nil
}
