// Package recorder persists the updates of the frame views to an external sink.
package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/acmeview/connector"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/view"
)

// Sink is the destination of the recorded updates.
// Write and Flush are only called by the recorder goroutine.
type Sink interface {
	Init(ctx context.Context) error
	Write(ctx context.Context, update view.Update) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type Config struct {
	// QueueSize is the number of updates buffered between the observers and the sink.
	// Updates are dropped when the queue is full.
	QueueSize int
	// OnlyChanged skips the updates that did not change the value of their cell.
	OnlyChanged bool
}

func NewDefaultConfig() *Config {
	return &Config{
		QueueSize:   4096,
		OnlyChanged: false,
	}
}

// Recorder receives updates through Observe and writes them to its sink
// from a single goroutine.
type Recorder struct {
	tel *internal.Telemetry

	cfg  *Config
	sink Sink

	queue connector.Connector[view.Update]

	mux         sync.Mutex
	initialized bool
	started     bool
	stopped     bool
	runDone chan struct{}

	// Telemetry metrics
	recordedUpdates atomic.Int64
	droppedUpdates  atomic.Int64
	sinkErrors      atomic.Int64
}

func New(name string, sink Sink, cfg *Config) *Recorder {
	r := &Recorder{
		tel: internal.NewTelemetry("recorder", name),

		cfg:  cfg,
		sink: sink,

		queue: connector.NewRingBuffer[view.Update](uint32(max(cfg.QueueSize, 1))),

		runDone: make(chan struct{}),
	}

	r.tel.NewObservableCounter("recorded_updates", r.recordedUpdates.Load)
	r.tel.NewObservableCounter("dropped_updates", r.droppedUpdates.Load)
	r.tel.NewObservableCounter("sink_errors", r.sinkErrors.Load)

	return r
}

// Observe queues an update without blocking.
func (r *Recorder) Observe(update view.Update) {
	if r.cfg.OnlyChanged && !update.Changed {
		return
	}

	if err := r.queue.TryWrite(update); err != nil {
		r.droppedUpdates.Add(1)
	}
}

func (r *Recorder) Init(ctx context.Context) error {
	if err := r.sink.Init(ctx); err != nil {
		return err
	}

	r.mux.Lock()
	r.initialized = true
	r.mux.Unlock()

	return nil
}

// Run writes the queued updates to the sink until Stop is called.
func (r *Recorder) Run(ctx context.Context) {
	r.mux.Lock()
	if r.started || r.stopped {
		r.mux.Unlock()
		return
	}
	r.started = true
	r.mux.Unlock()

	defer close(r.runDone)

	r.tel.LogInfo("starting run")
	defer r.tel.LogInfo("quitting run")

	for {
		update, err := r.queue.Read()
		if err != nil {
			if !errors.Is(err, connector.ErrClosed) {
				r.tel.LogError("failed to read queue", err)
			}
			return
		}

		r.write(ctx, update)
	}
}

func (r *Recorder) write(ctx context.Context, update view.Update) {
	ctx, span := r.tel.NewTrace(ctx, "record update")
	defer span.End()

	if err := r.sink.Write(ctx, update); err != nil {
		r.sinkErrors.Add(1)
		span.RecordError(err)
		r.tel.LogError("failed to record update", err, "frame", update.FrameName, "signal", update.Signal)
		return
	}

	r.recordedUpdates.Add(1)
}

// Stop drains the queue, flushes the sink and closes it.
// A sink that was never initialized is left untouched.
func (r *Recorder) Stop() {
	r.mux.Lock()
	if r.stopped {
		r.mux.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	initialized := r.initialized
	r.mux.Unlock()

	r.queue.Close()

	if started {
		<-r.runDone
	}

	if !initialized {
		r.tel.LogInfo("stopped before init", "dropped", r.droppedUpdates.Load())
		return
	}

	ctx := context.Background()

	if err := r.sink.Flush(ctx); err != nil {
		r.tel.LogError("failed to flush sink", err)
	}

	if err := r.sink.Close(ctx); err != nil {
		r.tel.LogError("failed to close sink", err)
	}

	r.tel.LogInfo("stopped", "recorded", r.recordedUpdates.Load(), "dropped", r.droppedUpdates.Load())
}
