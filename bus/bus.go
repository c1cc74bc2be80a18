// Package bus defines the contract between the engine and the CAN transports,
// and keeps the registry of the available transport kinds.
package bus

import (
	"context"
	"errors"
	"fmt"
)

const (
	maxStandardID = 0x7FF
	maxExtendedID = 0x1FFFFFFF
)

var (
	ErrInvalidID     = errors.New("invalid identifier")
	ErrInvalidLength = errors.New("invalid data length")
	// ErrAlreadySubscribed is returned when a bus gets a second subscriber.
	ErrAlreadySubscribed = errors.New("bus already has a subscriber")
	// ErrShutdown is returned when using a bus after Shutdown.
	ErrShutdown = errors.New("bus is shut down")
	// ErrUnsupportedFrame is returned when a transport cannot carry a frame.
	ErrUnsupportedFrame = errors.New("frame not supported by transport")
)

// Frame is a CAN frame as seen by the engine.
type Frame struct {
	ID       uint32
	Data     []byte
	Extended bool
	FD       bool
}

var fdLengths = [...]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// Validate checks the identifier range and the payload length of the frame.
func (f Frame) Validate() error {
	if f.Extended {
		if f.ID > maxExtendedID {
			return fmt.Errorf("%w: 0x%X is not a 29 bit identifier", ErrInvalidID, f.ID)
		}
	} else if f.ID > maxStandardID {
		return fmt.Errorf("%w: 0x%X is not an 11 bit identifier", ErrInvalidID, f.ID)
	}

	if !f.FD {
		if len(f.Data) > 8 {
			return fmt.Errorf("%w: %d bytes in a classic frame", ErrInvalidLength, len(f.Data))
		}
		return nil
	}

	for _, l := range fdLengths {
		if len(f.Data) == l {
			return nil
		}
	}
	return fmt.Errorf("%w: %d bytes in an FD frame", ErrInvalidLength, len(f.Data))
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%X [% X]", f.ID, f.Data)
}

// Handler receives the frames read from a bus.
// It is called from the receive goroutine of the transport and must not block.
type Handler func(frame Frame)

// Bus is a CAN transport.
type Bus interface {
	// Subscribe registers the only consumer of the received frames and starts the delivery.
	Subscribe(handler Handler) error
	// Transmit sends a frame, failures are returned as [*TransportError].
	Transmit(ctx context.Context, frame Frame) error
	// Shutdown stops the delivery and releases the channel.
	// No handler call is running when it returns.
	Shutdown() error
}

// TransportError is returned by the transports when the I/O fails.
type TransportError struct {
	Kind string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
