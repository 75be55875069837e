package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dojo-schedule/internal/service"
)

// Evaluator is the part of the eligibility service the consumer drives.
type Evaluator interface {
	Evaluate(ctx context.Context, studentID string, notifier service.Notifier) (service.Eligibility, error)
}

// Consumer evaluates students named in attendance.eligibility.
type Consumer struct {
	url      string
	eval     Evaluator
	notifier service.Notifier
	logger   *slog.Logger
}

// NewConsumer returns a Consumer that evaluates requests with eval and
// announces eligible students through notifier.
func NewConsumer(url string, eval Evaluator, notifier service.Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{url: url, eval: eval, notifier: notifier, logger: logger}
}

// Start connects, declares the queue and consumes until ctx is cancelled,
// reconnecting with backoff whenever the broker goes away.
func (c *Consumer) Start(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("eligibility consumer: dial failed", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("eligibility consumer: loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("eligibility consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(EligibilityQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(EligibilityQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.logger.Warn("eligibility consumer: handle failed", "err", err)
				_ = d.Nack(false, false) // no requeue; the outbox already retried delivery
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle evaluates the student named in body.  A student that no longer
// exists is acknowledged and dropped.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	ev, err := decodeRequest(body)
	if err != nil {
		return err
	}
	res, err := c.eval.Evaluate(ctx, ev.StudentID, c.notifier)
	if errors.Is(err, service.ErrNotFound) {
		c.logger.Info("eligibility consumer: student gone", "student_id", ev.StudentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", ev.StudentID, err)
	}
	c.logger.Debug("eligibility evaluated", "student_id", ev.StudentID, "eligible", res.IsEligible,
		"classes", res.CountSoFar, "required", res.Required)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
