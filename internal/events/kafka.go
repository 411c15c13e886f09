package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/eldtechnologies/inbox/internal/metrics"
)

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
	batchTimeout = 10 * time.Millisecond
)

// Publisher errors.
var (
	ErrQueueFull = errors.New("events: publish queue full")
	ErrClosed    = errors.New("events: publisher closed")
)

// KafkaPublisher writes events to a Kafka topic keyed by conversation id,
// so events of one conversation stay ordered within a partition.
//
// Publish never waits on the broker: events are queued and written by a
// background loop. Delivery failures are logged and counted.
type KafkaPublisher struct {
	writer  *kafka.Writer
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
	}, logger, writeTimeout, queueSize)
}

func newKafkaPublisher(w *kafka.Writer, logger zerolog.Logger, timeout time.Duration, size int) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  w,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan kafka.Message, size),
		done:    make(chan struct{}),
	}
	w.Completion = p.completed
	go p.run()
	return p
}

// Publish queues a single event. It fails only when the event cannot be
// encoded or the queue is full.
func (p *KafkaPublisher) Publish(_ context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.completed([]kafka.Message{msg}, err)
		}
	}
}

// completed receives the outcome of asynchronous writes.
func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range messages {
		typ := eventType(msg)
		metrics.EventPublishFailures.WithLabelValues(typ).Inc()
		p.logger.Warn().
			Err(err).
			Str("type", typ).
			Str("conversation", string(msg.Key)).
			Msg("event delivery failed")
	}
}

func encode(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.ConversationID.String()),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "type" {
			return string(h.Value)
		}
	}
	return "unknown"
}

// Close drains the queue, then flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}
