// Package notify delivers notifications and emails as fire-and-forget side
// effects. Failures are logged and counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/cache"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Sender is what the domain packages depend on. *Dispatcher implements it.
type Sender interface {
	Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, message string, metadata map[string]any)
	SendEmail(ctx context.Context, to, template string, data map[string]any)
}

var _ Sender = (*Dispatcher)(nil)

// Publisher is the pub/sub capability the Redis cache provides.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Mailer hands an email to the delivery collaborator.
type Mailer interface {
	Send(ctx context.Context, email models.Email) error
}

// LogMailer is the Mailer used when no broker is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, email models.Email) error {
	slog.Info("email", "to", email.To, "template", email.Template)
	return nil
}

// Dispatcher runs every notification and email on its own goroutine bounded by
// timeout.
type Dispatcher struct {
	publisher Publisher
	mailer    Mailer
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(publisher Publisher, mailer Mailer, timeout time.Duration) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		publisher: publisher,
		mailer:    mailer,
		timeout:   timeout,
		logger:    slog.With("component", "notify"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify publishes a notification to the user's channel.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, message string, metadata map[string]any) {
	n := models.Notification{
		UserID:   userID,
		Type:     typ,
		Message:  message,
		Metadata: metadata,
		SentAt:   d.now(),
	}
	d.goDetached(ctx, "notification", func(ctx context.Context) error {
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		return d.publisher.Publish(ctx, cache.NotificationChannel(userID), payload)
	}, "user_id", userID, "type", typ)
}

// SendEmail hands an email to the configured Mailer. Empty addresses are
// skipped.
func (d *Dispatcher) SendEmail(ctx context.Context, to, template string, data map[string]any) {
	if to == "" {
		return
	}
	email := models.Email{To: to, Template: template, Data: data}
	d.goDetached(ctx, "email", func(ctx context.Context) error {
		return d.mailer.Send(ctx, email)
	}, "template", template)
}

// Wait blocks until every dispatched side effect has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// goDetached runs fn after the triggering request has returned, so the
// request's cancellation must not reach it.
func (d *Dispatcher) goDetached(parent context.Context, kind string, fn func(context.Context) error, attrs ...any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.SideEffectFailures.WithLabelValues(kind).Inc()
			d.logger.Warn(kind+" delivery failed", append(attrs, "error", err)...)
		}
	}()
}
