package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type message struct {
	ID int `json:"id"`
}

// AMQPQueue is the durable RabbitMQ-backed Queue. Messages are acked manually
// and requeued up to maxRetries via the x-retry-count header.
type AMQPQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	log        *zap.Logger
	maxRetries int32
}

func NewAMQPQueue(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log, maxRetries: 3}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, id int) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}
	body, err := json.Marshal(message{ID: id})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe consumes the topic on a background goroutine. A handler error
// requeues the delivery with an incremented retry header; past the bound the
// message is dropped with a log line (the row it points at stays in the
// database for diagnostics).
func (q *AMQPQueue) Subscribe(topic string, handler func(id int) error) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}
	deliveries, err := q.ch.Consume(
		topic,
		"",    // consumer tag
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range deliveries {
			var msg message
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.log.Warn("invalid queue message", zap.String("topic", topic), zap.Error(err))
				d.Ack(false)
				continue
			}

			if err := handler(msg.ID); err != nil {
				retries := retryCount(d.Headers)
				if retries < q.maxRetries {
					q.log.Warn("queue job failed, republishing",
						zap.String("topic", topic), zap.Int("id", msg.ID),
						zap.Int32("retry", retries+1), zap.Error(err))
					q.republish(topic, d.Body, retries+1)
				} else {
					q.log.Error("queue job permanently failed",
						zap.String("topic", topic), zap.Int("id", msg.ID), zap.Error(err))
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

// republish instead of Nack so the retry count survives; a plain requeue
// would loop a poison message forever.
func (q *AMQPQueue) republish(topic string, body []byte, retries int32) {
	err := q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-retry-count": retries},
		Body:         body,
	})
	if err != nil {
		q.log.Error("republish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func retryCount(headers amqp.Table) int32 {
	if headers == nil {
		return 0
	}
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

var _ Queue = (*AMQPQueue)(nil)
