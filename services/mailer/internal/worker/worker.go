// Package worker turns queued mail jobs into delivered messages.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"healthconnect/pkg/auth"
	"healthconnect/pkg/mail"
	"healthconnect/pkg/queue"
)

// Config wires the delivery dependencies.
type Config struct {
	Sender      mail.Sender
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Worker delivers mail jobs through a mail.Sender.
type Worker struct {
	sender  mail.Sender
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg Config) (*Worker, error) {
	if cfg.Sender == nil {
		return nil, errors.New("mail sender required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{sender: cfg.Sender, timeout: cfg.SendTimeout, logger: cfg.Logger}, nil
}

// Handle satisfies queue.Handler. A returned error makes the queue retry the job.
func (w *Worker) Handle(ctx context.Context, id string, job queue.MailJob, attempt int) error {
	msg := mail.Message{
		To:      strings.TrimSpace(job.To),
		Subject: strings.TrimSpace(job.Subject),
		Body:    job.Body,
	}
	if msg.To == "" || msg.Subject == "" {
		// Malformed jobs can never succeed; drop them without retrying.
		w.logger.Warn("mail_job_dropped", "job_id", id, "kind", job.Kind)
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.sender.Send(sendCtx, msg); err != nil {
		return err
	}
	w.logger.Info("mail_sent", "job_id", id, "kind", job.Kind, "to", auth.MaskEmail(msg.To), "attempt", attempt)
	return nil
}
