package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"route-tracker/internal/tracking"
)

// EventRouteDeviated is the event type of off-route alerts.
const EventRouteDeviated = "tracker.route.deviated"

// AlertEvent is the envelope written to Kafka.
type AlertEvent struct {
	ID     string         `json:"id"`
	Source string         `json:"source"`
	Type   string         `json:"type"`
	Time   time.Time      `json:"time"`
	Data   tracking.Alert `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaAlertSink reports off-route alerts to the control centre topic.
type KafkaAlertSink struct {
	w       messageWriter
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup // in-flight Alert sends
}

func NewKafkaAlertSink(brokers []string, topic string, logger *zap.Logger) *KafkaAlertSink {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaAlertSink(w, logger)
}

func newKafkaAlertSink(w messageWriter, logger *zap.Logger) *KafkaAlertSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaAlertSink{w: w, timeout: 5 * time.Second, logger: logger.Named("kafka")}
}

// Send writes a, keyed by session so one session's alerts stay ordered.
func (k *KafkaAlertSink) Send(ctx context.Context, a tracking.Alert) error {
	evt := AlertEvent{
		ID:     uuid.NewString(),
		Source: "route-tracker",
		Type:   EventRouteDeviated,
		Time:   a.At,
		Data:   a,
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	if err := k.w.WriteMessages(ctx, kafkago.Message{Key: []byte(a.Session), Value: b, Time: a.At}); err != nil {
		return fmt.Errorf("write alert event: %w", err)
	}
	return nil
}

// Alert sends a in the background. It matches the session callback, which
// must not block on the broker. Alerts raised after Close are dropped.
func (k *KafkaAlertSink) Alert(a tracking.Alert) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		k.logger.Warn("alert sink closed, dropping off-route alert", zap.String("session", a.Session))
		return
	}
	k.wg.Add(1)
	k.mu.Unlock()

	go func() {
		defer k.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		defer cancel()
		if err := k.Send(ctx, a); err != nil {
			k.logger.Error("failed to report off-route alert", zap.String("session", a.Session), zap.Error(err))
		}
	}()
}

// Close waits for in-flight alerts, then closes the writer.
func (k *KafkaAlertSink) Close() error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	k.wg.Wait()
	return k.w.Close()
}
