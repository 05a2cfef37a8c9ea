package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
	laneBuffer         = 64
)

// Consumer delivers messages at least once. Each partition is pinned to one
// worker lane, so a partition's messages are handled and committed in offset
// order; a commit never covers an offset that has not been handled.
type Consumer struct {
	r           Reader
	workers     int
	log         *zap.Logger
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

type ConsumerOption func(*Consumer)

// WithRetry bounds how often a failing message is retried before the
// consumer gives up and stops.
func WithRetry(maxAttempts int, backoff, maxBackoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
		if maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return NewConsumerWithReader(r, workers, log, opts...)
}

func NewConsumerWithReader(r Reader, workers int, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Consumer{
		r:           r,
		workers:     workers,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is cancelled, returning nil, or until a fetch or
// commit fails or a message exhausts its retries, returning that error.
// Nothing past the failed message is committed, so it is redelivered on the
// next start.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)
	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lane := make(chan kafka.Message, laneBuffer)
		lanes[i] = lane
		g.Go(func() error { return c.work(gctx, lane, h) })
	}

	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("fetch: %w", err)
			}
			select {
			case lanes[m.Partition%len(lanes)] <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

func (c *Consumer) work(ctx context.Context, lane <-chan kafka.Message, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-lane:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, m, h); err != nil {
				return err
			}
		}
	}
}

// handle retries h with exponential backoff and commits once it succeeds.
// A cancelled ctx leaves the message uncommitted and is not an error.
func (c *Consumer) handle(ctx context.Context, m kafka.Message, h Handler) error {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			if err := c.r.CommitMessages(ctx, m); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("commit partition %d offset %d: %w", m.Partition, m.Offset, err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if attempt >= c.maxAttempts {
			c.log.Error("kafka handler gave up",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
				zap.Int("attempts", attempt), zap.Error(err))
			return fmt.Errorf("partition %d offset %d: giving up after %d attempts: %w", m.Partition, m.Offset, attempt, err)
		}
		c.log.Warn("kafka handler failed, retrying",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
		delay = min(delay*2, c.maxBackoff)
	}
}
