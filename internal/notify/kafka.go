package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications to a topic for push and e-mail
// delivery workers. Messages are keyed by user id so one user's events stay
// ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaNotifier creates a notifier writing to topic on brokers. The writer
// is async: Notify returns once the message is buffered and delivery errors
// are logged when the batch completes.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		WriteTimeout: publishTimeout,
		Completion:   completionLogger(logger, topic),
	}
	return &KafkaNotifier{writer: w, now: time.Now}
}

func completionLogger(logger *slog.Logger, topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			logger.Warn("kafka notification lost", "user_id", string(m.Key), "topic", topic, "error", err)
		}
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	b, err := json.Marshal(Event{UserID: userID, Kind: kind, Payload: payload, At: k.now()})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: b})
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
