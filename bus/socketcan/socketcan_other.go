//go:build !linux

package socketcan

import (
	"errors"

	"github.com/squadracorsepolito/acmeview/bus"
)

const Kind = "socketcan"

func init() {
	bus.Register(Kind, func(_ *bus.Config) (bus.Bus, error) {
		return nil, &bus.TransportError{Kind: Kind, Op: "dial", Err: errors.New("socketcan is only available on linux")}
	})
}
