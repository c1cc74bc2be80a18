package bus

import (
	"fmt"
	"slices"
	"sync"
)

// Config contains the options of every transport kind,
// each transport reads the fields it needs.
type Config struct {
	Kind string

	// Channel is the network interface of a socketcan bus.
	Channel string
	// Bitrate is the nominal bitrate of the channel.
	Bitrate int
	// ReceiveOwn delivers the transmitted frames to the subscriber too.
	ReceiveOwn bool
	// FD enables CAN FD frames.
	FD bool

	// LocalAddr and RemoteAddr are the UDP endpoints of a cannelloni bus.
	LocalAddr  string
	RemoteAddr string

	// QueueSize is the capacity of the internal queues.
	QueueSize int
}

func NewDefaultConfig() *Config {
	return &Config{
		Kind: "socketcan",

		Channel:    "can0",
		Bitrate:    500_000,
		ReceiveOwn: true,
		FD:         true,

		LocalAddr:  ":20000",
		RemoteAddr: "127.0.0.1:20000",

		QueueSize: 1024,
	}
}

// Factory creates a bus of a registered kind.
type Factory func(cfg *Config) (Bus, error)

var (
	registryMux sync.RWMutex
	registry    = make(map[string]Factory)
)

// Register adds a transport kind.
// Transports call it from an init function.
func Register(kind string, factory Factory) {
	registryMux.Lock()
	defer registryMux.Unlock()

	registry[kind] = factory
}

// Open creates a bus of the kind named by the config.
func Open(cfg *Config) (Bus, error) {
	registryMux.RLock()
	factory, ok := registry[cfg.Kind]
	registryMux.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported bus kind %q, available: %v", cfg.Kind, Kinds())
	}

	return factory(cfg)
}

// Kinds returns the registered transport kinds, sorted.
func Kinds() []string {
	registryMux.RLock()
	defer registryMux.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	return kinds
}
