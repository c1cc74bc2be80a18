package telemetry

import (
	"slices"

	"github.com/segmentio/kafka-go"
)

// KafkaHeaderCarrier adapts kafka message headers to a propagation.TextMapCarrier,
// so the trace context of a recorded update travels with the record.
type KafkaHeaderCarrier struct {
	headers []kafka.Header
}

func NewKafkaHeaderCarrier(headers ...kafka.Header) *KafkaHeaderCarrier {
	h := make([]kafka.Header, 0, len(headers)+1)
	h = append(h, headers...)

	return &KafkaHeaderCarrier{
		headers: h,
	}
}

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, header := range c.headers {
		if key == header.Key {
			return string(header.Value)
		}
	}
	return ""
}

// Set replaces any header with the same key.
func (c *KafkaHeaderCarrier) Set(key, value string) {
	c.headers = slices.DeleteFunc(c.headers, func(header kafka.Header) bool {
		return header.Key == key
	})

	c.headers = append(c.headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, header := range c.headers {
		keys = append(keys, header.Key)
	}
	return keys
}

func (c *KafkaHeaderCarrier) Headers() []kafka.Header {
	return c.headers
}
