// Package worker drains the notification queue: each job becomes one email
// delivery attempt with a persisted log row, retried through the queue's
// backoff and dead-letter path when sending fails.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-fest/backend/config"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/internal/notify"
	"github.com/campus-fest/backend/pkg/queue"
)

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// NotificationProcessor processes notification jobs: log row, send, retry.
type NotificationProcessor struct {
	repo   *notify.Repository
	queue  *queue.Queue
	sender Sender
	logger *zap.Logger
}

// NewNotificationProcessor creates a notification job processor.
func NewNotificationProcessor(repo *notify.Repository, q *queue.Queue, sender Sender, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{repo: repo, queue: q, sender: sender, logger: logger}
}

// Process executes one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	log := &models.EmailLog{
		EventID:   payload.EventID,
		Recipient: payload.Recipient,
		Kind:      string(payload.Kind),
		Subject:   payload.Subject,
		Status:    "pending",
		Attempts:  job.Attempt + 1,
	}
	if err := p.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	body := renderBody(payload)
	if err := p.sender.Send(ctx, payload.Recipient, payload.Subject, body); err != nil {
		if logErr := p.repo.MarkFailed(ctx, log.ID, err.Error()); logErr != nil {
			p.logger.Error("mark email failed", zap.Error(logErr))
		}
		return fmt.Errorf("send: %w", err)
	}
	if err := p.repo.MarkSent(ctx, log.ID); err != nil {
		p.logger.Error("mark email sent", zap.Error(err))
	}
	p.logger.Info("notification sent",
		zap.String("kind", string(payload.Kind)),
		zap.String("recipient", payload.Recipient))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

func renderBody(payload queue.NotificationPayload) string {
	var b strings.Builder
	b.WriteString(payload.Subject)
	b.WriteString("\r\n\r\n")
	for k, v := range payload.Context {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	return b.String()
}

// SMTPSender sends via plain SMTP. When no host is configured it degrades to
// logging the delivery, which keeps local development mail-server-free.
type SMTPSender struct {
	cfg    config.EmailConfig
	logger *zap.Logger
}

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(cfg config.EmailConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send delivers one message.
func (s *SMTPSender) Send(_ context.Context, recipient, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		s.logger.Info("email delivery skipped, no SMTP host configured",
			zap.String("recipient", recipient), zap.String("subject", subject))
		return nil
	}
	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.cfg.FromName, s.cfg.FromAddress, recipient, subject, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}
	return smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{recipient}, []byte(msg))
}
