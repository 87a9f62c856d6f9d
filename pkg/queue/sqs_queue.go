package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// sqsBatchLimit is the most messages a single ReceiveMessage returns
const sqsBatchLimit = 10

// sqsAPI is the subset of the SQS client used by SQSQueue
type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSQueue implements Queue on an Amazon SQS standard queue
type SQSQueue struct {
	client     sqsAPI
	url        string
	waitTime   time.Duration
	visibility time.Duration
	log        *logrus.Entry
}

var _ Queue = (*SQSQueue)(nil)

// NewSQSQueue creates an SQS-backed queue. When cfg.URL is empty the URL is
// looked up from cfg.Name.
func NewSQSQueue(ctx context.Context, client sqsAPI, cfg config.QueueConfig, logger *logrus.Entry) (*SQSQueue, error) {
	q := &SQSQueue{
		client:     client,
		url:        cfg.URL,
		waitTime:   cfg.WaitTime,
		visibility: cfg.VisibilityTimeout,
		log:        logger,
	}
	if q.url == "" {
		out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.Name)})
		if err != nil {
			return nil, fmt.Errorf("%w: resolving url of queue %q: %w", utils.ErrQueue, cfg.Name, err)
		}
		q.url = aws.ToString(out.QueueUrl)
	}
	logger.Infof("Using SQS queue %s", q.url)
	return q, nil
}

// Send implements Queue
func (q *SQSQueue) Send(ctx context.Context, task models.CrawlTask) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("%w: send %s: %w", utils.ErrQueue, task.Path, err)
	}
	return nil
}

// Receive implements Queue. Bodies that do not decode are deleted and not returned.
func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max > sqsBatchLimit {
		max = sqsBatchLimit
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(q.waitTime / time.Second),
		VisibilityTimeout:   int32(q.visibility / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: receive: %w", utils.ErrQueue, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		receipt := aws.ToString(m.ReceiptHandle)
		task, err := DecodeTask([]byte(aws.ToString(m.Body)))
		if err != nil {
			q.log.WithField("message_id", aws.ToString(m.MessageId)).Errorf("Dropping undecodable message: %v", err)
			if delErr := q.Delete(ctx, receipt); delErr != nil {
				q.log.Warnf("Failed to drop message: %v", delErr)
			}
			continue
		}
		msgs = append(msgs, Message{Task: task, Receipt: receipt})
	}
	return msgs, nil
}

// Delete implements Queue
func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %w", utils.ErrQueue, err)
	}
	return nil
}

// Release implements Queue by zeroing the message's visibility timeout
func (q *SQSQueue) Release(ctx context.Context, receipt string) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("%w: release: %w", utils.ErrQueue, err)
	}
	return nil
}

// Close implements Queue
func (q *SQSQueue) Close() error { return nil }
