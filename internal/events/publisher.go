package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/2re1million/ekko/internal/observability/metrics"
)

// Publisher publishes recorder and pipeline events to separate Kafka topics.
type Publisher struct {
	writerRecording *kafka.Writer
	writerPipeline  *kafka.Writer
	principal       string
	topicRecording  string
	topicPipeline   string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicRecording string
	TopicPipeline  string
	Principal      string
	Enabled        bool
}

// NewPublisher creates a Kafka event publisher. With a nil config, Enabled
// false or no brokers it runs in log-only mode.
func NewPublisher(cfg *Config, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicRecording: cfg.TopicRecording,
			topicPipeline:  cfg.TopicPipeline,
			enabled:        false,
			metrics:        m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecording", cfg.TopicRecording).
		Str("topicPipeline", cfg.TopicPipeline).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRecording: newWriter(cfg.TopicRecording),
		writerPipeline:  newWriter(cfg.TopicPipeline),
		principal:       cfg.Principal,
		topicRecording:  cfg.TopicRecording,
		topicPipeline:   cfg.TopicPipeline,
		enabled:         true,
		metrics:         m,
	}
}

// Publish writes ev to the topic matching its domain. Events from the same
// recording or run share a key and therefore a partition.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.Kind.Domain() == "pipeline" {
		return p.publish(ctx, p.writerPipeline, p.topicPipeline, ev)
	}
	return p.publish(ctx, p.writerRecording, p.topicRecording, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic string, ev Event) error {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", ev.Key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, string(ev.Kind), nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.Key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Kind)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", ev.Key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, string(ev.Kind), err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, string(ev.Kind), nil, time.Since(start).Seconds())
	return nil
}

// Forward mirrors bus events to Kafka until ctx is done or the bus closes.
// Periodic status ticks are not forwarded.
func (p *Publisher) Forward(ctx context.Context, bus *Bus) {
	ch, unsubscribe := bus.Subscribe(256)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Kind == KindStatusChanged {
					continue
				}
				// Errors are logged and counted in publish.
				_ = p.Publish(ctx, ev)
			}
		}
	}()
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerRecording != nil {
		if e := p.writerRecording.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing recording writer")
			err = e
		}
	}
	if p.writerPipeline != nil {
		if e := p.writerPipeline.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing pipeline writer")
			err = e
		}
	}
	return err
}
