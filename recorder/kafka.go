package recorder

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/internal/telemetry"
	"github.com/squadracorsepolito/acmeview/view"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type KafkaConfig struct {
	Brokers []string
	Topic   string

	// The balancer used to distribute messages across partitions.
	//
	// The default is to hash the frame name, so the updates of a frame stay ordered.
	Balancer kafka.Balancer

	// Limit on how many attempts will be made to deliver a message.
	MaxAttempts int

	// Limit on how many messages will be buffered before being sent to a partition.
	BatchSize int

	// Time limit on how often incomplete message batches will be flushed to kafka.
	BatchTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request.
	RequiredAcks kafka.RequiredAcks

	// Setting this flag to true causes WriteMessages to never block,
	// delivery errors are then only logged by the writer.
	Async bool

	Compression kafka.Compression

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	AllowAutoTopicCreation bool
}

func NewDefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "acmeview.updates",

		Balancer:               &kafka.Hash{},
		MaxAttempts:            10,
		BatchSize:              100,
		BatchTimeout:           time.Second,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// record is the JSON value of a kafka message.
type record struct {
	Frame    string    `json:"frame"`
	FrameID  uint32    `json:"frame_id"`
	Signal   string    `json:"signal"`
	Value    float64   `json:"value"`
	State    string    `json:"state"`
	Label    string    `json:"label,omitempty"`
	Source   string    `json:"source"`
	Revision uint64    `json:"revision"`
	Time     time.Time `json:"time"`
}

func newRecord(update view.Update) *record {
	return &record{
		Frame:    update.FrameName,
		FrameID:  update.FrameID,
		Signal:   update.Signal,
		Value:    update.Value,
		State:    update.State.String(),
		Label:    update.Label,
		Source:   update.Source.String(),
		Revision: update.Revision,
		Time:     update.Time,
	}
}

// Kafka publishes every update as a JSON message keyed by frame name.
// The trace context of the write is carried in the message headers.
type Kafka struct {
	tel *internal.Telemetry

	cfg *KafkaConfig

	writer *kafka.Writer
}

func NewKafka(cfg *KafkaConfig) *Kafka {
	return &Kafka{
		tel: internal.NewTelemetry("recorder", "kafka"),

		cfg: cfg,
	}
}

func (k *Kafka) Init(_ context.Context) error {
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Balancer:               k.cfg.Balancer,
		MaxAttempts:            k.cfg.MaxAttempts,
		BatchSize:              k.cfg.BatchSize,
		BatchTimeout:           k.cfg.BatchTimeout,
		RequiredAcks:           k.cfg.RequiredAcks,
		Async:                  k.cfg.Async,
		Compression:            k.cfg.Compression,
		AllowAutoTopicCreation: k.cfg.AllowAutoTopicCreation,
	}

	return nil
}

func (k *Kafka) newMessage(ctx context.Context, update view.Update) (kafka.Message, error) {
	value, err := json.Marshal(newRecord(update))
	if err != nil {
		return kafka.Message{}, err
	}

	headerCarrier := telemetry.NewKafkaHeaderCarrier(kafka.Header{Key: "source", Value: []byte(update.Source.String())})
	k.tel.InjectTrace(ctx, headerCarrier)

	return kafka.Message{
		Topic: k.cfg.Topic,
		Key:   []byte(update.FrameName),
		Value: value,

		Headers: headerCarrier.Headers(),
	}, nil
}

func (k *Kafka) Write(ctx context.Context, update view.Update) error {
	msg, err := k.newMessage(ctx, update)
	if err != nil {
		return err
	}

	return k.writer.WriteMessages(ctx, msg)
}

// Flush is a no-op, the writer flushes its batches on Close.
func (k *Kafka) Flush(_ context.Context) error {
	return nil
}

func (k *Kafka) Close(_ context.Context) error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
