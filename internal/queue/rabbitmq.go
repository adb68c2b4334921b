package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitMQ wraps one broker connection and a channel used for publishing.
type RabbitMQ struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	channel *amqp.Channel
}

func Dial(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch}, nil
}

// Declare creates a durable queue if it does not exist.
func (r *RabbitMQ) Declare(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends v as a persistent JSON message to the named queue.
func (r *RabbitMQ) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.channel.Close()
	return r.conn.Close()
}

// AMQPEnqueuer publishes evaluation jobs to a durable queue.
type AMQPEnqueuer struct {
	rmq   *RabbitMQ
	queue string
}

var _ Enqueuer = (*AMQPEnqueuer)(nil)

func NewAMQPEnqueuer(rmq *RabbitMQ, queue string) (*AMQPEnqueuer, error) {
	if err := rmq.Declare(queue); err != nil {
		return nil, err
	}
	return &AMQPEnqueuer{rmq: rmq, queue: queue}, nil
}

func (e *AMQPEnqueuer) Enqueue(ctx context.Context, assignmentID uuid.UUID) error {
	return e.rmq.Publish(ctx, e.queue, EvaluationJob{AssignmentID: assignmentID})
}

// EmailPublisher hands emails to the delivery collaborator through a queue.
type EmailPublisher struct {
	rmq   *RabbitMQ
	queue string
}

func NewEmailPublisher(rmq *RabbitMQ, queue string) (*EmailPublisher, error) {
	if err := rmq.Declare(queue); err != nil {
		return nil, err
	}
	return &EmailPublisher{rmq: rmq, queue: queue}, nil
}

func (p *EmailPublisher) Send(ctx context.Context, email models.Email) error {
	return p.rmq.Publish(ctx, p.queue, email)
}

// Consumer reads evaluation jobs with manual acknowledgement.
type Consumer struct {
	rmq      *RabbitMQ
	queue    string
	prefetch int
	handler  Handler
	logger   *slog.Logger
}

func NewConsumer(rmq *RabbitMQ, queue string, prefetch int, handler Handler) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		rmq:      rmq,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		logger:   slog.With("component", "evaluation-consumer"),
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.rmq.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		c.queue,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var job EvaluationJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.AssignmentID == uuid.Nil {
		c.logger.Warn("discarding invalid evaluation job", "body", string(d.Body))
		metrics.EvaluationJobs.WithLabelValues("invalid").Inc()
		_ = d.Nack(false, false)
		return
	}

	err := c.handler(ctx, job.AssignmentID)
	switch {
	case err == nil:
		metrics.EvaluationJobs.WithLabelValues("succeeded").Inc()
		_ = d.Ack(false)
	case errors.Is(err, models.ErrEvaluationInProgress):
		c.logger.Debug("evaluation already running elsewhere", "assignment_id", job.AssignmentID)
		metrics.EvaluationJobs.WithLabelValues("skipped").Inc()
		_ = d.Ack(false)
	case errors.Is(err, models.ErrScoringUnavailable) && !d.Redelivered:
		// One redelivery for upstream scorer failures.
		c.logger.Warn("evaluation job failed, requeueing", "assignment_id", job.AssignmentID, "error", err)
		metrics.EvaluationJobs.WithLabelValues("requeued").Inc()
		_ = d.Nack(false, true)
	default:
		c.logger.Error("evaluation job failed", "assignment_id", job.AssignmentID, "error", err)
		metrics.EvaluationJobs.WithLabelValues("failed").Inc()
		_ = d.Ack(false)
	}
}
