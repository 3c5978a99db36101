package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/logger"
	"eventhub/internal/notifier"
)

type capturingPublisher struct {
	topic string
	key   string
	value []byte
	err   error
}

func (p *capturingPublisher) Publish(topic, key string, value []byte) error {
	p.topic = topic
	p.key = key
	p.value = value
	return p.err
}

func TestKafkaNotifierPublishesMailRequest(t *testing.T) {
	pub := &capturingPublisher{}
	log := logger.NewLogger()
	defer log.Close()

	n := notifier.NewKafkaNotifier(pub, "eventhub.mail.requests", log)
	n.Send(context.Background(), "sam@example.com", "Welcome", "Hello Sam")

	assert.Equal(t, "eventhub.mail.requests", pub.topic)
	assert.Equal(t, "sam@example.com", pub.key, "recipient keys the partition")

	var req notifier.MailRequest
	require.NoError(t, json.Unmarshal(pub.value, &req))
	assert.Equal(t, "sam@example.com", req.To)
	assert.Equal(t, "Welcome", req.Subject)
	assert.Equal(t, "Hello Sam", req.Body)
	assert.False(t, req.QueuedAt.IsZero())
}

func TestKafkaNotifierSwallowsPublishErrors(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("broker down")}
	log := logger.NewLogger()
	defer log.Close()

	n := notifier.NewKafkaNotifier(pub, "eventhub.mail.requests", log)

	// Must not panic or surface the error; dispatch is fire and forget.
	n.Send(context.Background(), "sam@example.com", "Welcome", "Hello")
}

func TestLogNotifierDropsMail(t *testing.T) {
	log := logger.NewLogger()
	defer log.Close()

	n := notifier.NewLogNotifier(log)
	n.Send(context.Background(), "sam@example.com", "Welcome", "Hello")
}
