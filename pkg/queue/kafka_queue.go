package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// receivesHeader carries how often a task was delivered across re-publishes
const receivesHeader = "sitemirror-receives"

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// partitionLog tracks fetched offsets of one partition in fetch order.
// Offsets are committed only once every earlier fetched offset is done.
type partitionLog struct {
	topic  string
	order  []int64
	finish map[int64]bool
}

// KafkaQueue implements Queue on a Kafka topic read through a consumer group.
// Kafka has no per-message visibility, so Release re-publishes the task and
// Delete commits the contiguous prefix of finished offsets per partition.
type KafkaQueue struct {
	reader      kafkaReader
	writer      kafkaWriter
	waitTime    time.Duration
	maxReceives int
	log         *logrus.Entry

	mu         sync.Mutex
	inflight   map[string]kafka.Message
	partitions map[int]*partitionLog
}

var _ Queue = (*KafkaQueue)(nil)

// NewKafkaQueue connects a consumer group reader and a writer to the topic cfg.Name
func NewKafkaQueue(cfg config.QueueConfig, logger *logrus.Entry) *KafkaQueue {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Name,
		MaxWait: cfg.WaitTime,
	})
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Name,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	logger.Infof("Using Kafka topic %s (group %s) on %s", cfg.Name, cfg.GroupID, strings.Join(cfg.Brokers, ","))
	return newKafkaQueue(reader, writer, cfg.WaitTime, cfg.MaxReceives, logger)
}

func newKafkaQueue(reader kafkaReader, writer kafkaWriter, waitTime time.Duration, maxReceives int, logger *logrus.Entry) *KafkaQueue {
	if maxReceives <= 0 {
		maxReceives = DefaultMaxReceives
	}
	return &KafkaQueue{
		reader:      reader,
		writer:      writer,
		waitTime:    waitTime,
		maxReceives: maxReceives,
		log:         logger,
		inflight:    make(map[string]kafka.Message),
		partitions:  make(map[int]*partitionLog),
	}
}

// Send implements Queue. Tasks are keyed by path.
func (q *KafkaQueue) Send(ctx context.Context, task models.CrawlTask) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	if err := q.publish(ctx, []byte(task.Path), body, nil); err != nil {
		return fmt.Errorf("%w: send %s: %w", utils.ErrQueue, task.Path, err)
	}
	return nil
}

func (q *KafkaQueue) publish(ctx context.Context, key, value []byte, headers []kafka.Header) error {
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

// receives reports how many times m has been delivered, this delivery included
func receives(m kafka.Message) int {
	for _, h := range m.Headers {
		if h.Key == receivesHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n + 1
			}
		}
	}
	return 1
}

// Receive implements Queue. It fetches until max messages arrive or the wait
// window passes without one; an empty result means the topic looked drained.
func (q *KafkaQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, q.waitTime)
	defer cancel()

	var msgs []Message
	for len(msgs) < max {
		m, err := q.reader.FetchMessage(pollCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				return msgs, ctx.Err()
			}
			return msgs, fmt.Errorf("%w: receive: %w", utils.ErrQueue, err)
		}

		receipt := q.track(m)
		task, err := DecodeTask(m.Value)
		if err != nil {
			q.log.WithField("receipt", receipt).Errorf("Dropping undecodable message: %v", err)
			if delErr := q.Delete(ctx, receipt); delErr != nil {
				q.log.Warnf("Failed to drop message: %v", delErr)
			}
			continue
		}
		msgs = append(msgs, Message{Task: task, Receipt: receipt})
	}
	return msgs, nil
}

func (q *KafkaQueue) track(m kafka.Message) string {
	receipt := strconv.Itoa(m.Partition) + ":" + strconv.FormatInt(m.Offset, 10)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight[receipt] = m
	p, ok := q.partitions[m.Partition]
	if !ok {
		p = &partitionLog{topic: m.Topic, finish: make(map[int64]bool)}
		q.partitions[m.Partition] = p
	}
	p.order = append(p.order, m.Offset)
	return receipt
}

// Delete implements Queue
func (q *KafkaQueue) Delete(ctx context.Context, receipt string) error {
	commit, err := q.finish(receipt)
	if err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	if err := q.reader.CommitMessages(ctx, *commit); err != nil {
		return fmt.Errorf("%w: commit partition %d offset %d: %w", utils.ErrQueue, commit.Partition, commit.Offset, err)
	}
	return nil
}

// finish marks receipt done and returns the message to commit, if the
// committable prefix of its partition advanced.
func (q *KafkaQueue) finish(receipt string) (*kafka.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.inflight[receipt]
	if !ok {
		return nil, fmt.Errorf("%w: unknown receipt %q", utils.ErrQueue, receipt)
	}
	delete(q.inflight, receipt)

	p := q.partitions[m.Partition]
	p.finish[m.Offset] = true

	last := int64(-1)
	for len(p.order) > 0 && p.finish[p.order[0]] {
		last = p.order[0]
		delete(p.finish, last)
		p.order = p.order[1:]
	}
	if last < 0 {
		return nil, nil
	}
	return &kafka.Message{Topic: p.topic, Partition: m.Partition, Offset: last}, nil
}

// Release implements Queue by publishing the task again and committing the original.
// Once a task has been delivered maxReceives times it is committed without a
// re-publish.
func (q *KafkaQueue) Release(ctx context.Context, receipt string) error {
	q.mu.Lock()
	m, ok := q.inflight[receipt]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown receipt %q", utils.ErrQueue, receipt)
	}

	n := receives(m)
	if n >= q.maxReceives {
		q.log.WithFields(logrus.Fields{"key": string(m.Key), "receives": n}).Error("Message reached max receives, dropping")
		return q.Delete(ctx, receipt)
	}
	headers := []kafka.Header{{Key: receivesHeader, Value: []byte(strconv.Itoa(n))}}
	if err := q.publish(ctx, m.Key, m.Value, headers); err != nil {
		return fmt.Errorf("%w: release: %w", utils.ErrQueue, err)
	}
	return q.Delete(ctx, receipt)
}

// Close implements Queue
func (q *KafkaQueue) Close() error {
	return errors.Join(q.reader.Close(), q.writer.Close())
}
