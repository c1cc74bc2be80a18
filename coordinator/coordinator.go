// Package coordinator keeps the frame views in sync with a bus:
// received frames are decoded and applied to their view,
// user edits are applied synchronously after the frames accepted before them,
// and frames are encoded and transmitted on request.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/codec"
	"github.com/squadracorsepolito/acmeview/connector"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/view"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Observer receives the updates of every view.
// It is called without any view lock held, possibly from several goroutines at once.
// Updates of the same frame are ordered by their revision.
type Observer func(update view.Update)

// ErrorHandler receives the per frame failures of the receive and send paths.
type ErrorHandler func(err error)

type Option func(*Coordinator)

func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, observer)
	}
}

func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *Coordinator) {
		c.errHandler = handler
	}
}

// WithLabels attaches the value labels of enum signals to the received updates.
func WithLabels(labels *catalog.Labels) Option {
	return func(c *Coordinator) {
		c.labels = labels
	}
}

// Counters is a snapshot of the coordinator counters.
type Counters struct {
	Received     int64
	Foreign      int64
	Dropped      int64
	DecodeErrors int64
	Sent         int64
	SendErrors   int64
}

type Coordinator struct {
	tel *internal.Telemetry

	cat *catalog.Catalog
	bus bus.Bus

	views         []*view.FrameView
	inboxesByID   map[uint32]*inbox
	inboxesByName map[string]*inbox

	shards []connector.Connector[*inbox]

	observers  []Observer
	errHandler ErrorHandler
	labels     *catalog.Labels

	accepting atomic.Bool

	mux     sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup

	// Telemetry metrics
	receivedFrames atomic.Int64
	foreignFrames  atomic.Int64
	droppedFrames  atomic.Int64
	decodeErrors   atomic.Int64
	sentFrames     atomic.Int64
	sendErrors     atomic.Int64
	sendFailures   metric.Int64Counter
	applyDuration  metric.Float64Histogram
}

// New builds a view for every tracked frame of the catalog.
// It returns [catalog.ErrUnknownFrameName] if a tracked frame is not in the catalog.
func New(cat *catalog.Catalog, b bus.Bus, cfg *Config, opts ...Option) (*Coordinator, error) {
	frames := cat.Frames()
	if len(cfg.Frames) > 0 {
		frames = make([]*catalog.FrameDefinition, 0, len(cfg.Frames))
		for _, name := range cfg.Frames {
			frame, err := cat.ByName(name)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
	}

	shardCount := max(cfg.Shards, 1)
	queueSize := max(cfg.QueueSize, 1)

	viewCfg := cfg.View
	if viewCfg == nil {
		viewCfg = view.NewDefaultConfig()
	}

	c := &Coordinator{
		tel: internal.NewTelemetry("coordinator", "sync"),

		cat: cat,
		bus: b,

		views:         make([]*view.FrameView, 0, len(frames)),
		inboxesByID:   make(map[uint32]*inbox, len(frames)),
		inboxesByName: make(map[string]*inbox, len(frames)),

		shards: make([]connector.Connector[*inbox], 0, shardCount),
	}

	for _, frame := range frames {
		if _, ok := c.inboxesByID[frame.ID]; ok {
			continue
		}

		fv := view.NewFrameView(frame, viewCfg)
		ib := newInbox(fv, queueSize)

		c.views = append(c.views, fv)
		c.inboxesByID[frame.ID] = ib
		c.inboxesByName[frame.Name] = ib
	}

	// an inbox is queued at most once, so a shard never holds more than every view
	shardSize := max(queueSize, len(c.views))
	for range shardCount {
		c.shards = append(c.shards, connector.NewRingBuffer[*inbox](uint32(shardSize)))
	}

	for _, opt := range opts {
		opt(c)
	}

	c.initMetrics()

	return c, nil
}

func (c *Coordinator) initMetrics() {
	c.tel.NewObservableCounter("received_frames", c.receivedFrames.Load)
	c.tel.NewObservableCounter("foreign_frames", c.foreignFrames.Load)
	c.tel.NewObservableCounter("dropped_frames", c.droppedFrames.Load)
	c.tel.NewObservableCounter("decode_errors", c.decodeErrors.Load)
	c.tel.NewObservableCounter("sent_frames", c.sentFrames.Load)
	c.tel.NewObservableCounter("send_errors", c.sendErrors.Load)

	c.sendFailures = c.tel.NewCounter("send_failures",
		metric.WithDescription("frames that could not be sent, by reason"))

	c.applyDuration = c.tel.NewHistogram("apply_duration",
		metric.WithUnit("ms"), metric.WithDescription("time between the reception and the application of a frame"))
}

// Init subscribes the coordinator to the bus.
func (c *Coordinator) Init(_ context.Context) error {
	if err := c.bus.Subscribe(c.OnFrameReceived); err != nil {
		return fmt.Errorf("subscribe to bus: %w", err)
	}

	c.accepting.Store(true)

	c.tel.LogInfo("initialized", "tracked_frames", len(c.views), "shards", len(c.shards))

	return nil
}

// Run starts the shard workers and blocks until they are stopped by Stop.
func (c *Coordinator) Run(ctx context.Context) {
	c.mux.Lock()
	if c.running || c.stopped {
		c.mux.Unlock()
		return
	}
	c.running = true

	c.wg.Add(len(c.shards))
	for idx, shard := range c.shards {
		go c.runShard(ctx, idx, shard)
	}
	c.mux.Unlock()

	c.tel.LogInfo("starting run")
	defer c.tel.LogInfo("quitting run")

	c.wg.Wait()
}

func (c *Coordinator) runShard(ctx context.Context, idx int, shard connector.Connector[*inbox]) {
	defer c.wg.Done()

	c.tel.LogDebug("shard started", "shard", idx)

	for {
		ib, err := shard.Read()
		if err != nil {
			if !errors.Is(err, connector.ErrClosed) {
				c.tel.LogError("failed to read shard queue", err, "shard", idx)
			}
			return
		}

		ib.applyMux.Lock()
		updates, errs := c.applyPending(ctx, ib, ib.take(true))
		ib.applyMux.Unlock()

		c.publish(updates, errs)
	}
}

// OnFrameReceived is the bus handler. It never blocks:
// frames that are not tracked are counted and discarded,
// the others are accepted into the inbox of their view,
// which is queued to the shard of the frame id.
func (c *Coordinator) OnFrameReceived(frame bus.Frame) {
	if !c.accepting.Load() {
		return
	}

	c.receivedFrames.Add(1)

	if _, ok := c.cat.Lookup(frame.ID); !ok {
		c.foreignFrames.Add(1)
		c.tel.LogDebug("ignoring frame not in catalog", "id", frame.ID, "data", fmt.Sprintf("% X", frame.Data))
		return
	}

	ib, ok := c.inboxesByID[frame.ID]
	if !ok {
		c.foreignFrames.Add(1)
		return
	}

	schedule, ok := ib.push(&inbound{data: frame.Data, received: time.Now()})
	if !ok {
		c.droppedFrames.Add(1)
		c.tel.LogDebug("dropping frame", "id", frame.ID, "reason", "inbox full")
		return
	}

	if !schedule {
		return
	}

	shard := c.shards[frame.ID%uint32(len(c.shards))]
	if err := shard.TryWrite(ib); err != nil {
		c.tel.LogDebug("inbox not scheduled", "id", frame.ID, "reason", err)
	}
}

// applyPending must be called with the apply lock of ib held.
// The errors are returned so they can be reported after the lock is released.
func (c *Coordinator) applyPending(ctx context.Context, ib *inbox, pending []*inbound) ([]view.Update, []error) {
	var updates []view.Update
	var errs []error

	for _, in := range pending {
		upd, err := c.apply(ctx, ib.view, in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		updates = append(updates, upd...)
	}

	return updates, errs
}

func (c *Coordinator) apply(ctx context.Context, fv *view.FrameView, in *inbound) ([]view.Update, error) {
	frame := fv.Frame()

	_, span := c.tel.NewTrace(ctx, "apply frame")
	defer span.End()

	span.SetAttributes(attribute.String("frame", frame.Name))

	values, err := codec.Decode(frame, in.data)
	if err != nil {
		c.decodeErrors.Add(1)

		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")

		return nil, fmt.Errorf("decode frame %q: %w", frame.Name, err)
	}

	updates := fv.ApplyDecoded(values)

	if c.labels != nil {
		labels := c.labels.Lookup(frame.ID, in.data)
		for idx := range updates {
			updates[idx].Label = labels[updates[idx].Signal]
		}
	}

	c.applyDuration.Record(ctx, float64(time.Since(in.received).Microseconds())/1000)

	return updates, nil
}

func (c *Coordinator) publish(updates []view.Update, errs []error) {
	for _, err := range errs {
		c.report(err)
	}
	c.notify(updates...)
}

func (c *Coordinator) notify(updates ...view.Update) {
	for _, upd := range updates {
		for _, observer := range c.observers {
			observer(upd)
		}
	}
}

func (c *Coordinator) report(err error) {
	c.tel.LogError("frame failure", err)

	if c.errHandler != nil {
		c.errHandler(err)
	}
}

// Send encodes the current values of the named frame and transmits it.
// Encoding failures are returned and nothing is transmitted,
// transport failures are returned as [*bus.TransportError].
// The cells are never modified.
func (c *Coordinator) Send(ctx context.Context, frameName string) error {
	ctx, span := c.tel.NewTrace(ctx, "send frame")
	defer span.End()

	span.SetAttributes(attribute.String("frame", frameName))

	ib, err := c.inbox(frameName)
	if err != nil {
		return err
	}

	frame := ib.view.Frame()

	// the frames accepted before the request are part of the sent values
	ib.applyMux.Lock()
	updates, errs := c.applyPending(ctx, ib, ib.take(false))
	values := ib.view.CollectForSend()
	ib.applyMux.Unlock()

	c.publish(updates, errs)

	data, err := codec.Encode(frame, values)
	if err != nil {
		c.sendErrors.Add(1)
		c.sendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "encode")))

		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")

		err = fmt.Errorf("encode frame %q: %w", frame.Name, err)
		c.report(err)
		return err
	}

	if c.isStopped() {
		c.sendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "shutdown")))
		return &bus.TransportError{Kind: "bus", Op: "transmit", Err: bus.ErrShutdown}
	}

	err = c.bus.Transmit(ctx, bus.Frame{
		ID:       frame.ID,
		Data:     data,
		Extended: frame.Extended,
		FD:       frame.FD,
	})
	if err != nil {
		c.sendErrors.Add(1)
		c.sendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "transmit")))

		span.RecordError(err)
		span.SetStatus(codes.Error, "transmit failed")

		var transportErr *bus.TransportError
		if !errors.As(err, &transportErr) {
			err = &bus.TransportError{Kind: "bus", Op: "transmit", Err: err}
		}

		c.report(err)
		return err
	}

	c.sentFrames.Add(1)

	return nil
}

func (c *Coordinator) isStopped() bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.stopped
}

func (c *Coordinator) edit(frameName string, fn func(*view.FrameView) (view.Update, error)) (view.Update, error) {
	ib, err := c.inbox(frameName)
	if err != nil {
		return view.Update{}, err
	}

	ib.applyMux.Lock()
	updates, errs := c.applyPending(context.Background(), ib, ib.take(false))
	upd, err := fn(ib.view)
	ib.applyMux.Unlock()

	c.publish(updates, errs)

	if err != nil {
		return view.Update{}, err
	}

	c.notify(upd)

	return upd, nil
}

func (c *Coordinator) Increment(frameName, signalName string) (view.Update, error) {
	return c.edit(frameName, func(fv *view.FrameView) (view.Update, error) {
		return fv.Increment(signalName)
	})
}

func (c *Coordinator) Decrement(frameName, signalName string) (view.Update, error) {
	return c.edit(frameName, func(fv *view.FrameView) (view.Update, error) {
		return fv.Decrement(signalName)
	})
}

func (c *Coordinator) SetValue(frameName, signalName string, value float64) (view.Update, error) {
	return c.edit(frameName, func(fv *view.FrameView) (view.Update, error) {
		return fv.SetValue(signalName, value)
	})
}

// View returns the view of the named frame.
func (c *Coordinator) View(frameName string) (*view.FrameView, error) {
	ib, err := c.inbox(frameName)
	if err != nil {
		return nil, err
	}
	return ib.view, nil
}

func (c *Coordinator) inbox(frameName string) (*inbox, error) {
	ib, ok := c.inboxesByName[frameName]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not tracked", catalog.ErrUnknownFrameName, frameName)
	}
	return ib, nil
}

// Views returns the views in catalog order.
func (c *Coordinator) Views() []*view.FrameView {
	return c.views
}

func (c *Coordinator) Counters() Counters {
	return Counters{
		Received:     c.receivedFrames.Load(),
		Foreign:      c.foreignFrames.Load(),
		Dropped:      c.droppedFrames.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Sent:         c.sentFrames.Load(),
		SendErrors:   c.sendErrors.Load(),
	}
}

// Stop stops accepting frames, waits for the shards to apply
// the frames already queued and then shuts the bus down.
func (c *Coordinator) Stop() {
	c.mux.Lock()
	if c.stopped {
		c.mux.Unlock()
		return
	}
	c.stopped = true
	c.accepting.Store(false)
	c.mux.Unlock()

	for _, shard := range c.shards {
		shard.Close()
	}

	c.wg.Wait()

	if err := c.bus.Shutdown(); err != nil {
		c.tel.LogError("failed to shut down bus", err)
	}

	counters := c.Counters()
	c.tel.LogInfo("stopped", "received", counters.Received, "foreign", counters.Foreign,
		"dropped", counters.Dropped, "sent", counters.Sent)
}
