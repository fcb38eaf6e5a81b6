package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics carried by the queue. Payloads are row ids; everything else lives in
// the database.
const (
	TopicDispatch      = "campaign.dispatch"
	TopicWebhookEvents = "webhook.events"
)

// Queue decouples the HTTP surface from dispatch and reconciliation work.
type Queue interface {
	Publish(topic string, id int) error
	Subscribe(topic string, handler func(id int) error) error
}

// InMemoryQueue runs handlers on goroutines with bounded retry. Used by tests
// and single-process deployments; production uses AMQPQueue.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(id int) error
	log      *zap.Logger
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(id int) error),
		log:      log,
	}
}

type job struct {
	id         int
	retryCount int
	maxRetries int
}

// Publish sends the id to all subscribers of the topic.
func (q *InMemoryQueue) Publish(topic string, id int) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{id: id, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(topic, handler, j)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(id int) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.id)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		q.log.Warn("queue job failed",
			zap.String("topic", topic),
			zap.Int("id", j.id),
			zap.Int("attempt", j.retryCount),
			zap.Int("max", j.maxRetries),
			zap.Error(err),
		)
		if j.retryCount > j.maxRetries {
			q.log.Error("queue job permanently failed",
				zap.String("topic", topic), zap.Int("id", j.id))
			return // no requeue
		}

		// backoff before retry
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(id int) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
