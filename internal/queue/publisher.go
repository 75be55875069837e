package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dojo-schedule/internal/model"
)

// Publisher sends events to RabbitMQ, dialing per publish.  Publishing is
// rare (once per check-in) so a pooled connection is not worth its
// reconnect handling.
type Publisher struct {
	url    string
	logger *slog.Logger
	now    func() time.Time
	send   func(ctx context.Context, queue string, body []byte) error
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	p := &Publisher{url: url, logger: logger, now: time.Now}
	p.send = p.dialAndPublish
	return p
}

// Dispatch publishes an outbox task.  It is the relay worker's dispatcher
// when a broker is configured.
func (p *Publisher) Dispatch(ctx context.Context, task model.OutboxTask) error {
	if task.Kind != model.TaskEvaluateEligibility {
		return fmt.Errorf("queue: unsupported task kind %q", task.Kind)
	}
	return p.publish(ctx, EligibilityQueue, EligibilityRequested{
		TaskID:      task.ID,
		StudentID:   task.StudentID,
		TenantID:    task.TenantID,
		RequestedAt: timestamp(p.now()),
	})
}

// NotifyEligibility publishes StudentEligible.
func (p *Publisher) NotifyEligibility(ctx context.Context, studentID string, next model.Rank) error {
	return p.publish(ctx, EligibleQueue, StudentEligible{
		StudentID:  studentID,
		NextBelt:   next.Belt,
		NextDegree: next.Degree,
		NotifiedAt: timestamp(p.now()),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: marshal %s: %w", queue, err)
	}
	if err := p.send(ctx, queue, body); err != nil {
		p.logger.Warn("rabbitmq publish failed", "queue", queue, "err", err)
		return err
	}
	return nil
}

func (p *Publisher) dialAndPublish(ctx context.Context, queue string, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
}

// LogNotifier is the notification sink used when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyEligibility logs the eligible student.
func (n LogNotifier) NotifyEligibility(_ context.Context, studentID string, next model.Rank) error {
	n.Logger.Info("student eligible for promotion", "student_id", studentID, "next_rank", next.String())
	return nil
}
