package queue

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// amqpChannel is the subset of *amqp.Channel used by AMQPQueue
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Close() error
}

// AMQPQueue implements Queue on a durable RabbitMQ queue using basic.get polling.
// Receipts are delivery tags, which are scoped to the single channel.
type AMQPQueue struct {
	mu   sync.Mutex
	ch   amqpChannel
	conn io.Closer
	name string
	log  *logrus.Entry
}

var _ Queue = (*AMQPQueue)(nil)

// DialAMQP connects to the broker and declares the durable queue name
func DialAMQP(url, name string, logger *logrus.Entry) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: rabbitmq dial: %w", utils.ErrQueue, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: rabbitmq channel: %w", utils.ErrQueue, err)
	}
	q, err := NewAMQPQueue(ch, conn, name, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

// NewAMQPQueue wraps an open channel. conn, if non-nil, is closed by Close.
func NewAMQPQueue(ch amqpChannel, conn io.Closer, name string, logger *logrus.Entry) (*AMQPQueue, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("%w: rabbitmq queue declare %q: %w", utils.ErrQueue, name, err)
	}
	logger.Infof("Using RabbitMQ queue %s", name)
	return &AMQPQueue{ch: ch, conn: conn, name: name, log: logger}, nil
}

// Send implements Queue
func (q *AMQPQueue) Send(ctx context.Context, task models.CrawlTask) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish %s: %w", utils.ErrQueue, task.Path, err)
	}
	return nil
}

// Receive implements Queue. Undecodable deliveries are rejected without requeue.
func (q *AMQPQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var msgs []Message
	for len(msgs) < max {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		d, ok, err := q.ch.Get(q.name, false)
		if err != nil {
			return msgs, fmt.Errorf("%w: rabbitmq get: %w", utils.ErrQueue, err)
		}
		if !ok {
			break
		}
		task, err := DecodeTask(d.Body)
		if err != nil {
			q.log.WithField("message_id", d.MessageId).Errorf("Rejecting undecodable delivery: %v", err)
			_ = q.ch.Nack(d.DeliveryTag, false, false)
			continue
		}
		msgs = append(msgs, Message{Task: task, Receipt: strconv.FormatUint(d.DeliveryTag, 10)})
	}
	return msgs, nil
}

// Delete implements Queue
func (q *AMQPQueue) Delete(_ context.Context, receipt string) error {
	tag, err := strconv.ParseUint(receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad receipt %q: %w", utils.ErrQueue, receipt, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Ack(tag, false); err != nil {
		return fmt.Errorf("%w: ack: %w", utils.ErrQueue, err)
	}
	return nil
}

// Release implements Queue
func (q *AMQPQueue) Release(_ context.Context, receipt string) error {
	tag, err := strconv.ParseUint(receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad receipt %q: %w", utils.ErrQueue, receipt, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Nack(tag, false, true); err != nil {
		return fmt.Errorf("%w: nack: %w", utils.ErrQueue, err)
	}
	return nil
}

// Close implements Queue
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.Close()
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
