// Package notifier dispatches out-of-band mail through the message bus.
// Dispatch is fire and forget: a failure must never block the caller's
// otherwise-successful response, so Send reports nothing and logs instead.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventhub/internal/logger"
)

// Notifier accepts (recipient, subject, body) for out-of-band delivery.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string)
}

// Publisher is the slice of the Kafka producer the notifier needs.
type Publisher interface {
	Publish(topic, key string, value []byte) error
}

// MailRequest is the wire shape consumed by the mail worker.
type MailRequest struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// KafkaNotifier publishes mail requests to a topic drained by an
// out-of-process delivery worker.
type KafkaNotifier struct {
	Producer Publisher
	Topic    string
	Logger   *logger.Logger
}

func NewKafkaNotifier(producer Publisher, topic string, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{Producer: producer, Topic: topic, Logger: log}
}

func (n *KafkaNotifier) Send(ctx context.Context, recipient, subject, body string) {
	req := MailRequest{To: recipient, Subject: subject, Body: body, QueuedAt: time.Now().UTC()}
	value, err := json.Marshal(req)
	if err != nil {
		n.Logger.Error("MAIL", fmt.Sprintf("marshal mail request for %s: %v", recipient, err))
		return
	}
	if err := n.Producer.Publish(n.Topic, recipient, value); err != nil {
		n.Logger.Error("MAIL", fmt.Sprintf("publish mail request for %s: %v", recipient, err))
		return
	}
	n.Logger.LogMail(recipient, subject)
}

// LogNotifier is the fallback when Kafka is disabled; it records the dispatch
// and drops the mail.
type LogNotifier struct {
	Logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{Logger: log}
}

func (n *LogNotifier) Send(_ context.Context, recipient, subject, _ string) {
	n.Logger.Warn("MAIL", fmt.Sprintf("mail disabled, dropping dispatch to %s - %s", recipient, subject))
}
