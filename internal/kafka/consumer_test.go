package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErr  error
	committed []string
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	err := r.fetchErr
	r.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, string(m.Key))
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func messages(partition int, keys ...string) []kafka.Message {
	out := make([]kafka.Message, 0, len(keys))
	for i, k := range keys {
		out = append(out, kafka.Message{Partition: partition, Offset: int64(i), Key: []byte(k)})
	}
	return out
}

func startConsumer(c *Consumer, h Handler) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return cancel, done
}

func TestConsumerRetriesFailingMessageBeforeMovingOn(t *testing.T) {
	r := &fakeReader{queue: messages(0, "a", "bad", "c")}
	c := NewConsumerWithReader(r, 2, nil, WithRetry(5, time.Millisecond, 5*time.Millisecond))

	var attempts atomic.Int32
	cancel, done := startConsumer(c, func(_ context.Context, m kafka.Message) error {
		if string(m.Key) == "bad" && attempts.Add(1) < 3 {
			return errors.New("handler failed")
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"a", "bad", "c"}, r.commits())
	assert.EqualValues(t, 3, attempts.Load())
	assert.True(t, r.closed)
}

func TestConsumerStopsWithoutCommittingPastExhaustedMessage(t *testing.T) {
	r := &fakeReader{queue: messages(0, "a", "bad", "c")}
	c := NewConsumerWithReader(r, 1, nil, WithRetry(3, time.Millisecond, time.Millisecond))

	var mu sync.Mutex
	var handled []string
	err := c.Start(context.Background(), func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		handled = append(handled, string(m.Key))
		mu.Unlock()
		if string(m.Key) == "bad" {
			return errors.New("handler failed")
		}
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, []string{"a"}, r.commits())
	mu.Lock()
	assert.Equal(t, []string{"a", "bad", "bad", "bad"}, handled)
	mu.Unlock()
	assert.True(t, r.closed)
}

func TestConsumerKeepsPartitionOrder(t *testing.T) {
	p0 := messages(0, "p0-0", "p0-1", "p0-2")
	p1 := messages(1, "p1-0", "p1-1", "p1-2")
	var queue []kafka.Message
	for i := range p0 {
		queue = append(queue, p0[i], p1[i])
	}
	r := &fakeReader{queue: queue}
	c := NewConsumerWithReader(r, 2, nil)

	// partition 0 stalls on its first message until partition 1 is fully committed
	release := make(chan struct{})
	cancel, done := startConsumer(c, func(ctx context.Context, m kafka.Message) error {
		if string(m.Key) == "p0-0" {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"p1-0", "p1-1", "p1-2"}, r.commits())

	close(release)
	require.Eventually(t, func() bool { return len(r.commits()) == 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"p0-0", "p0-1", "p0-2"}, r.commits()[3:])
}

func TestConsumerShutdownLeavesInFlightMessageUncommitted(t *testing.T) {
	r := &fakeReader{queue: messages(0, "slow")}
	c := NewConsumerWithReader(r, 1, nil)

	started := make(chan struct{})
	cancel, done := startConsumer(c, func(ctx context.Context, _ kafka.Message) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.commits())
}

func TestConsumerReturnsFetchError(t *testing.T) {
	r := &fakeReader{fetchErr: errors.New("group coordinator not available")}
	c := NewConsumerWithReader(r, 1, nil)

	err := c.Start(context.Background(), func(context.Context, kafka.Message) error { return nil })
	require.Error(t, err)
	assert.True(t, r.closed)
}
