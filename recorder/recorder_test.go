package recorder

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/internal/telemetry"
	"github.com/squadracorsepolito/acmeview/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type memorySink struct {
	mux sync.Mutex

	updates []view.Update
	failOn  string

	inits   int
	flushes int
	closes  int
}

func (s *memorySink) Init(_ context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.inits++
	return nil
}

func (s *memorySink) Write(_ context.Context, update view.Update) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if update.Signal == s.failOn {
		return errors.New("sink failure")
	}

	s.updates = append(s.updates, update)
	return nil
}

func (s *memorySink) Flush(_ context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.flushes++
	return nil
}

func (s *memorySink) Close(_ context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.closes++
	return nil
}

func (s *memorySink) getUpdates() []view.Update {
	s.mux.Lock()
	defer s.mux.Unlock()

	return slices.Clone(s.updates)
}

func newUpdate(signal string, revision uint64, changed bool) view.Update {
	return view.Update{
		FrameID:   0x100,
		FrameName: "Speed",
		Signal:    signal,
		Value:     float64(revision),
		State:     view.WithinRange,
		Source:    view.SourceBus,
		Changed:   changed,
		Revision:  revision,
		Time:      time.Unix(1_700_000_000, 0).UTC(),
	}
}

func Test_Recorder(t *testing.T) {
	assert := assert.New(t)

	sink := &memorySink{failOn: "broken"}
	rec := New("test", sink, NewDefaultConfig())

	require.NoError(t, rec.Init(context.Background()))

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background())
		close(done)
	}()

	for rev := range uint64(100) {
		rec.Observe(newUpdate("kph", rev+1, true))
	}
	rec.Observe(newUpdate("broken", 101, true))

	rec.Stop()
	<-done

	updates := sink.getUpdates()
	assert.Len(updates, 100)
	for idx, upd := range updates {
		assert.Equal(uint64(idx+1), upd.Revision)
	}

	assert.Equal(1, sink.inits)
	assert.Equal(1, sink.flushes)
	assert.Equal(1, sink.closes)
	assert.Equal(int64(100), rec.recordedUpdates.Load())
	assert.Equal(int64(1), rec.sinkErrors.Load())

	// a second stop is a no-op
	rec.Stop()
	assert.Equal(1, sink.closes)
}

func Test_Recorder_OnlyChanged(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.OnlyChanged = true

	sink := &memorySink{}
	rec := New("test", sink, cfg)

	require.NoError(t, rec.Init(context.Background()))
	go rec.Run(context.Background())

	rec.Observe(newUpdate("kph", 1, true))
	rec.Observe(newUpdate("kph", 2, false))
	rec.Observe(newUpdate("kph", 3, true))

	rec.Stop()

	updates := sink.getUpdates()
	require.Len(t, updates, 2)
	assert.Equal(t, uint64(1), updates[0].Revision)
	assert.Equal(t, uint64(3), updates[1].Revision)
}

func Test_Recorder_Drops(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.QueueSize = 4

	sink := &memorySink{}
	rec := New("test", sink, cfg)
	require.NoError(t, rec.Init(context.Background()))

	// Run is not started, so the queue fills up
	for rev := range uint64(10) {
		rec.Observe(newUpdate("kph", rev+1, true))
	}

	assert.Equal(t, int64(6), rec.droppedUpdates.Load())

	rec.Stop()
	assert.Empty(t, sink.getUpdates())
	assert.Equal(t, 1, sink.closes)
}

func Test_Kafka_NewMessage(t *testing.T) {
	assert := assert.New(t)

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})

	k := NewKafka(NewDefaultKafkaConfig())

	ctx, span := otel.Tracer("test").Start(context.Background(), "test")
	defer span.End()

	upd := newUpdate("gear", 7, true)
	upd.Label = "DRIVE"
	upd.Source = view.SourceUser

	msg, err := k.newMessage(ctx, upd)
	require.NoError(t, err)

	assert.Equal("acmeview.updates", msg.Topic)
	assert.Equal([]byte("Speed"), msg.Key)

	rec := record{}
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	assert.Equal("Speed", rec.Frame)
	assert.Equal(uint32(0x100), rec.FrameID)
	assert.Equal("gear", rec.Signal)
	assert.Equal(7.0, rec.Value)
	assert.Equal("within", rec.State)
	assert.Equal("DRIVE", rec.Label)
	assert.Equal("user", rec.Source)
	assert.Equal(uint64(7), rec.Revision)
	assert.True(upd.Time.Equal(rec.Time))

	carrier := telemetry.NewKafkaHeaderCarrier(msg.Headers...)
	assert.Equal("user", carrier.Get("source"))

	extracted := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
	assert.Equal(span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func Test_Kafka_OmitsEmptyLabel(t *testing.T) {
	k := NewKafka(NewDefaultKafkaConfig())

	msg, err := k.newMessage(context.Background(), newUpdate("kph", 1, true))
	require.NoError(t, err)

	assert.NotContains(t, string(msg.Value), "label")
	assert.IsType(t, []kafka.Header{}, msg.Headers)
}

func Test_Log(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewLog(internal.NewWriterLogger(buf, "recorder", "log"))

	require.NoError(t, sink.Init(context.Background()))

	upd := newUpdate("gear", 3, true)
	upd.Label = "NEUTRAL"
	require.NoError(t, sink.Write(context.Background(), upd))

	out := buf.String()
	assert.Contains(t, out, "gear")
	assert.Contains(t, out, "NEUTRAL")
}

func Test_Recorder_StopBeforeInit(t *testing.T) {
	sink := &memorySink{}
	rec := New("test", sink, NewDefaultConfig())

	rec.Observe(newUpdate("kph", 1, true))
	rec.Stop()

	assert.Zero(t, sink.flushes)
	assert.Zero(t, sink.closes)
	assert.Empty(t, sink.getUpdates())
}

func Test_Sinks_CloseBeforeInit(t *testing.T) {
	ctx := context.Background()

	q := NewQuestDB(NewDefaultQuestDBConfig())
	assert.NoError(t, q.Flush(ctx))
	assert.NoError(t, q.Close(ctx))

	k := NewKafka(NewDefaultKafkaConfig())
	assert.NoError(t, k.Flush(ctx))
	assert.NoError(t, k.Close(ctx))
}
