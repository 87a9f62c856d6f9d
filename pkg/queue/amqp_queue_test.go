package queue

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemirror/pkg/log"
)

type fakeChannel struct {
	declared  string
	published []amqp.Publishing
	pending   []amqp.Delivery
	nextTag   uint64
	acked     []uint64
	nacked    map[uint64]bool // tag -> requeue
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{nacked: make(map[uint64]bool)}
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = name
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	f.pending = append(f.pending, amqp.Delivery{Body: msg.Body})
	return nil
}

func (f *fakeChannel) Get(_ string, _ bool) (amqp.Delivery, bool, error) {
	if len(f.pending) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := f.pending[0]
	f.pending = f.pending[1:]
	f.nextTag++
	d.DeliveryTag = f.nextTag
	return d, true, nil
}

func (f *fakeChannel) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeChannel) Nack(tag uint64, _, requeue bool) error {
	f.nacked[tag] = requeue
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPQueue_RoundTrip(t *testing.T) {
	ch := newFakeChannel()
	q, err := NewAMQPQueue(ch, nil, "crawl", log.Discard())
	require.NoError(t, err)
	assert.Equal(t, "crawl", ch.declared)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, task("/a", 2)))
	require.NoError(t, q.Send(ctx, task("/b", 1)))
	require.NoError(t, q.Send(ctx, task("/c", 1)))
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	msgs, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "/a", msgs[0].Task.Path)
	assert.Equal(t, "1", msgs[0].Receipt)

	require.NoError(t, q.Delete(ctx, msgs[0].Receipt))
	require.NoError(t, q.Release(ctx, msgs[1].Receipt))
	assert.Equal(t, []uint64{1}, ch.acked)
	assert.True(t, ch.nacked[2])

	rest, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	require.NoError(t, q.Close())
	assert.True(t, ch.closed)
}

func TestAMQPQueue_RejectsUndecodable(t *testing.T) {
	ch := newFakeChannel()
	ch.pending = []amqp.Delivery{{Body: []byte("garbage")}}
	q, err := NewAMQPQueue(ch, nil, "crawl", log.Discard())
	require.NoError(t, err)

	msgs, err := q.Receive(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	requeue, nacked := ch.nacked[1]
	assert.True(t, nacked)
	assert.False(t, requeue)
}

func TestAMQPQueue_BadReceipt(t *testing.T) {
	q, err := NewAMQPQueue(newFakeChannel(), nil, "crawl", log.Discard())
	require.NoError(t, err)
	assert.Error(t, q.Delete(context.Background(), "not-a-tag"))
	assert.Error(t, q.Release(context.Background(), "-1"))
}
