package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// Message is a received crawl task. Receipt identifies the delivery for Delete and Release.
type Message struct {
	Task    models.CrawlTask
	Receipt string
}

// Queue is the durable task queue workers poll. A received message stays invisible
// to other receivers until it is deleted, released, or its visibility timeout lapses.
type Queue interface {
	Send(ctx context.Context, task models.CrawlTask) error
	// Receive returns up to max messages; an empty slice means the queue looked empty
	Receive(ctx context.Context, max int) ([]Message, error)
	Delete(ctx context.Context, receipt string) error
	// Release makes a received message visible again for redelivery
	Release(ctx context.Context, receipt string) error
	Close() error
}

// EncodeTask renders the queue message body for task
func EncodeTask(task models.CrawlTask) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding task %s: %w", utils.ErrParsing, task.Path, err)
	}
	return body, nil
}

// DecodeTask parses a queue message body
func DecodeTask(body []byte) (models.CrawlTask, error) {
	var task models.CrawlTask
	if err := json.Unmarshal(body, &task); err != nil {
		return models.CrawlTask{}, fmt.Errorf("%w: task body: %w", utils.ErrParsing, err)
	}
	return task, nil
}
