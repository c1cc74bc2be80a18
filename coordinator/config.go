package coordinator

import "github.com/squadracorsepolito/acmeview/view"

type Config struct {
	// Frames are the names of the tracked frames. Empty means every frame of the catalog.
	Frames []string

	// Shards is the number of goroutines applying the received frames.
	// A frame id is always served by the same shard.
	Shards int
	// QueueSize is the capacity of the queue of each shard.
	// Frames received while the queue is full are dropped.
	QueueSize int

	View *view.Config
}

func NewDefaultConfig() *Config {
	return &Config{
		Frames: []string{},

		Shards:    4,
		QueueSize: 1024,

		View: view.NewDefaultConfig(),
	}
}
