// Package asynqnotify delivers password-reset tokens through an asynq queue,
// so ForgotPassword returns without waiting on the mail provider.
//
// The raw token travels in the task payload. The task deadline is the token's
// expiry, and completed tasks are not retained.
package asynqnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypePasswordReset is the asynq task type for reset deliveries.
const TaskTypePasswordReset = "shopauth:password_reset"

// Payload is the task body.
type Payload struct {
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Options tunes enqueueing. Zero values select queue "auth" and 3 retries.
type Options struct {
	Queue    string
	MaxRetry int
}

// Notifier implements shopauth.ResetNotifier by enqueueing a task.
type Notifier struct {
	client Enqueuer
	queue  string
	retry  int
}

func NewNotifier(client Enqueuer, opts Options) *Notifier {
	if opts.Queue == "" {
		opts.Queue = "auth"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 3
	}
	return &Notifier{client: client, queue: opts.Queue, retry: opts.MaxRetry}
}

func (n *Notifier) NotifyPasswordReset(ctx context.Context, userID, identifier, token string, expiresAt time.Time) error {
	if n == nil || n.client == nil {
		return errors.New("asynqnotify: notifier not configured")
	}

	body, err := json.Marshal(Payload{
		UserID:     userID,
		Identifier: identifier,
		Token:      token,
		ExpiresAt:  expiresAt.UTC(),
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePasswordReset, body)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.MaxRetry(n.retry),
		asynq.Deadline(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("asynqnotify: enqueue: %w", err)
	}
	return nil
}

// Mailer sends the reset message. Implementations must not log the token.
type Mailer interface {
	SendPasswordReset(ctx context.Context, identifier, token string, expiresAt time.Time) error
}

// MailerFunc adapts a function to [Mailer].
type MailerFunc func(ctx context.Context, identifier, token string, expiresAt time.Time) error

func (f MailerFunc) SendPasswordReset(ctx context.Context, identifier, token string, expiresAt time.Time) error {
	return f(ctx, identifier, token, expiresAt)
}

// Handler processes reset tasks. Expired and malformed tasks are dropped
// without retry.
type Handler struct {
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(mailer Mailer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mailer: mailer, logger: logger, now: time.Now}
}

// Register mounts h on mux under TaskTypePasswordReset.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskTypePasswordReset, h)
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("asynqnotify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Identifier == "" || p.Token == "" {
		return fmt.Errorf("asynqnotify: incomplete payload: %w", asynq.SkipRetry)
	}
	if !h.now().Before(p.ExpiresAt) {
		h.logger.WarnContext(ctx, "shopauth: reset token expired before delivery", "user_id", p.UserID)
		return nil
	}

	if err := h.mailer.SendPasswordReset(ctx, p.Identifier, p.Token, p.ExpiresAt); err != nil {
		h.logger.WarnContext(ctx, "shopauth: reset mail failed", "user_id", p.UserID, "error", err)
		return err
	}
	h.logger.InfoContext(ctx, "shopauth: reset mail sent", "user_id", p.UserID)
	return nil
}
