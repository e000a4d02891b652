// Package reminder sends medication refill reminders on a cron schedule.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/mail"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/store"
	"healthconnect/services/portal/internal/notify"
)

// Store is the slice of the portal store the job needs.
type Store interface {
	ListDueRefills(now time.Time) ([]domain.MedicationRefill, error)
	MarkRefillReminded(id string, at time.Time) error
	GetProfile(id string) (domain.Profile, bool, error)
}

// Config wires the reminder job.
type Config struct {
	Store    Store
	Notifier *notify.Service
	// Mail is optional; without it reminders are in-app only.
	Mail     queue.Enqueuer
	Schedule string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Job finds refills whose reminder window has opened and reminds each
// patient once per refill cycle.
type Job struct {
	store    Store
	notifier *notify.Service
	mail     queue.Enqueuer
	schedule string
	logger   *slog.Logger
	now      func() time.Time
	cron     *cron.Cron
}

func New(cfg Config) (*Job, error) {
	if cfg.Store == nil {
		return nil, errors.New("reminder store required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("reminder notifier required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse reminder schedule: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Job{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		mail:     cfg.Mail,
		schedule: cfg.Schedule,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Start schedules RunOnce. Runs that overlap a still-running one are skipped.
func (j *Job) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(j.schedule, func() {
		n, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.Error("refill_reminders_failed", "err", err, "sent", n)
			return
		}
		j.logger.Info("refill_reminders_sent", "sent", n)
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	j.cron = c
	c.Start()
	j.logger.Info("refill_reminders_scheduled", "schedule", j.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RunOnce reminds every due refill and reports how many were reminded. A
// refill whose notification fails stays due for the next run.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	now := j.now()
	due, err := j.store.ListDueRefills(now)
	if err != nil {
		return 0, fmt.Errorf("list due refills: %w", err)
	}
	sent := 0
	var errs []error
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := j.remind(ctx, r, now); err != nil {
			j.logger.Warn("refill_reminder_failed", "refill_id", r.ID, "patient_id", r.PatientID, "err", err)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (j *Job) remind(ctx context.Context, r domain.MedicationRefill, now time.Time) error {
	due := r.NextRefillDate.Format(time.DateOnly)
	_, err := j.notifier.Notify(ctx, r.PatientID, domain.NotifyRefill,
		"Refill due soon: "+r.MedicationName,
		fmt.Sprintf("Your refill of %s is due on %s.", r.MedicationName, due),
		map[string]string{"refillId": r.ID, "nextRefillDate": due})
	if err != nil {
		return err
	}
	if j.mail != nil {
		j.enqueueMail(ctx, r)
	}
	if err := j.store.MarkRefillReminded(r.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

// enqueueMail queues the reminder email. Failures only cost the email; the
// in-app notification already exists.
func (j *Job) enqueueMail(ctx context.Context, r domain.MedicationRefill) {
	profile, ok, err := j.store.GetProfile(r.PatientID)
	if err != nil || !ok || profile.Email == "" {
		j.logger.Warn("refill_reminder_no_email", "patient_id", r.PatientID, "err", err)
		return
	}
	msg := mail.RefillReminderMessage(profile.Email, profile.FullName, r.MedicationName, r.Dosage, r.NextRefillDate)
	status, err := j.mail.Enqueue(ctx, queue.MailJob{
		Kind:    queue.KindRefillReminder,
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		j.logger.Warn("refill_reminder_mail_failed", "patient_id", r.PatientID, "err", err)
		return
	}
	j.logger.Debug("refill_reminder_mail_queued", "job_id", status.ID, "refill_id", r.ID)
}
