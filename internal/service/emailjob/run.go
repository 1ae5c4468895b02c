package emailjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jadidihosein68/osaconnect/internal/channel"
	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/distlock"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/queue"
	"github.com/jadidihosein68/osaconnect/internal/render"
	"github.com/jadidihosein68/osaconnect/internal/service/credentials"
)

const sendFailedText = "Send failed"

// Register binds the engine to a queue runner.
func (s *Service) Register(r *queue.Runner) {
	r.Handle(queue.KindRunEmailJob, s.Handle, s.Policy())
}

// Policy returns the retry policy for job runs.
func (s *Service) Policy() queue.Policy {
	return queue.Policy{
		MaxRetries:  s.cfg.MaxRetries,
		Delay:       s.cfg.RetryDelay,
		OnExhausted: s.exhausted,
	}
}

// Handle adapts Run to a queue handler.
func (s *Service) Handle(ctx context.Context, t queue.Task) error {
	return s.Run(ctx, t.RefID)
}

// Run sends the job's queued recipients. Only one Run per job proceeds at
// a time; a concurrent call returns nil without sending.
func (s *Service) Run(ctx context.Context, jobID string) error {
	lock := s.Locks.New("emailjob:" + jobID)
	err := distlock.WithLock(ctx, lock, func(ctx context.Context) error {
		return s.run(ctx, jobID, lock)
	})
	if errors.Is(err, distlock.ErrLocked) {
		log.Printf("[EmailJob] job %s is already running elsewhere, skipping", jobID)
		return nil
	}
	return err
}

func (s *Service) run(ctx context.Context, jobID string, lock distlock.DistLock) error {
	job, err := s.Jobs.GetJob(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("[EmailJob] job %s no longer exists, dropping", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		logger.Info("email job already finished", "job_id", job.ID, "status", string(job.Status))
		return nil
	}

	started := s.now()
	if err := s.Jobs.MarkSending(ctx, job.ID, started); err != nil {
		return fmt.Errorf("mark job sending: %w", err)
	}

	creds, err := s.Credentials.Resolve(ctx, job.OrganizationID, domain.ProviderSendGrid)
	if err != nil {
		var rerr *credentials.ResolveError
		if !errors.As(err, &rerr) {
			return fmt.Errorf("resolve credentials: %w", err)
		}
		if err := s.Jobs.MarkFailed(ctx, job.ID, rerr.Reason, s.now()); err != nil {
			return queue.NoRetry(fmt.Errorf("mark job failed: %w", err))
		}
		category, severity := domain.AlertIntegrationMissing, domain.SeverityWarning
		if errors.Is(err, credentials.ErrDecrypt) {
			category, severity = domain.AlertCredentialDecrypt, domain.SeverityError
		}
		s.alert(ctx, job, category, severity, rerr.Reason)
		return nil
	}
	creds.Extra = withSubject(creds.Extra, job.Subject)
	attachments := s.loadAttachments(ctx, job.Attachments)

	var totals domain.JobDelta
	afterID := ""
	for batchNo := 0; ; batchNo++ {
		if batchNo > 0 {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				return err
			}
			// Stop before sending more once another worker may own the job.
			if err := lock.Extend(ctx, s.cfg.LockTTL); err != nil {
				logger.Warn("email job lock lost, stopping run", "job_id", job.ID, "batch", batchNo, "error", err)
				return fmt.Errorf("extend job lock: %w", err)
			}
		}
		batch, err := s.Jobs.ListQueued(ctx, job.ID, afterID, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list queued recipients: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var delta domain.JobDelta
		for i := range batch {
			s.sendOne(ctx, job, &batch[i], creds, attachments, &delta)
		}
		if err := s.Jobs.SaveBatch(ctx, job.ID, batch, delta); err != nil {
			return fmt.Errorf("save batch: %w", err)
		}
		totals.Sent += delta.Sent
		totals.Failed += delta.Failed
		totals.Skipped += delta.Skipped
		afterID = batch[len(batch)-1].ID
		logger.Info("email job batch saved", "job_id", job.ID, "batch", batchNo,
			"sent", delta.Sent, "failed", delta.Failed, "skipped", delta.Skipped)

		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	f, err := s.Finalizer.FinalizeJob(ctx, job.ID, s.now())
	if err != nil {
		return queue.NoRetry(fmt.Errorf("finalize job: %w", err))
	}
	s.notify(ctx, f)
	logger.Info("email job run finished", "job_id", job.ID, "sent", totals.Sent,
		"failed", totals.Failed, "skipped", totals.Skipped, "status", string(f.JobStatus),
		"elapsed", s.now().Sub(started).String())
	return nil
}

// sendOne sends to r and records the outcome on r and delta.
func (s *Service) sendOne(ctx context.Context, job *domain.EmailJob, r *domain.EmailRecipient, creds domain.Credentials, attachments []channel.File, delta *domain.JobDelta) {
	now := s.now()

	suppressed, err := s.Suppression.IsSuppressed(ctx, job.OrganizationID, domain.ChannelEmail, r.Email)
	if err != nil {
		s.failRecipient(ctx, job, r, fmt.Sprintf("suppression check failed: %v", err), delta)
		return
	}
	if suppressed {
		r.Status = domain.RecipientSkipped
		r.Error = domain.ErrTextSuppressed
		delta.Skipped++
		s.engage(ctx, job, r, "skipped")
		return
	}

	if r.SignedToken == "" {
		token := s.Codec.Sign(job.OrganizationID, r.Email, job.ID, r.ID)
		if err := s.Jobs.SetToken(ctx, r.ID, token); err != nil {
			s.failRecipient(ctx, job, r, fmt.Sprintf("unsubscribe token not saved: %v", err), delta)
			return
		}
		r.SignedToken = token
	}
	link := s.Links.Link(r.SignedToken, r.Email)

	first, last := domain.SplitName(r.FullName)
	body := s.Renderer.RenderEmail(render.Email{
		CacheKey:   "emailjob:" + job.ID,
		Body:       job.Body(),
		FooterHTML: job.FooterHTML,
		FooterText: s.cfg.FooterText,
	}, render.Vars{
		FirstName:       first,
		LastName:        last,
		FullName:        r.FullName,
		CompanyName:     r.CompanyName,
		UnsubscribeLink: link,
	})

	msg := channel.Message{
		Destination: r.Email,
		Body:        body,
		Subject:     job.Subject,
		Attachments: attachments,
		Headers:     unsubscribeHeaders(link),
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	res, sendErr := s.Sender.Send(sendCtx, msg, creds)
	cancel()

	switch {
	case sendErr != nil:
		s.failRecipient(ctx, job, r, sendErr.Error(), delta)
	case !res.Success:
		r.ProviderMessageID = res.ProviderMessageID
		errText := res.Error
		if errText == "" {
			errText = sendFailedText
		}
		s.failRecipient(ctx, job, r, errText, delta)
	default:
		r.Status = domain.RecipientSent
		r.Error = ""
		r.SentAt = &now
		r.ProviderMessageID = res.ProviderMessageID
		delta.Sent++
		if r.ContactID != nil {
			if err := s.Contacts.TouchLastOutbound(ctx, *r.ContactID, now); err != nil {
				logger.Warn("email job could not update contact activity", "contact_id", *r.ContactID, "error", err)
			}
		}
		s.engage(ctx, job, r, "sent")
	}
}

func (s *Service) failRecipient(ctx context.Context, job *domain.EmailJob, r *domain.EmailRecipient, errText string, delta *domain.JobDelta) {
	r.Status = domain.RecipientFailed
	r.Error = errText
	r.RetryCount++
	delta.Failed++
	s.engage(ctx, job, r, "failed")
	logger.Warn("email job recipient failed", "job_id", job.ID, "email", logger.RedactEmail(r.Email), "error", errText)
}

func (s *Service) engage(ctx context.Context, job *domain.EmailJob, r *domain.EmailRecipient, status string) {
	if r.ContactID == nil {
		return
	}
	e := &domain.ContactEngagement{
		ContactID: *r.ContactID,
		Channel:   domain.ChannelEmail,
		Subject:   job.Subject,
		Status:    status,
		Error:     r.Error,
		CreatedAt: s.now(),
	}
	if err := s.Jobs.RecordEngagement(ctx, e); err != nil {
		logger.Warn("contact engagement not recorded", "contact_id", *r.ContactID, "error", err)
	}
}

// loadAttachments reads the job's files once per run. Missing files are
// skipped.
func (s *Service) loadAttachments(ctx context.Context, metas []domain.Attachment) []channel.File {
	if len(metas) == 0 || s.Files == nil {
		return nil
	}
	files := make([]channel.File, 0, len(metas))
	for _, m := range metas {
		data, err := s.Files.Get(ctx, m.StorageKey)
		if err != nil {
			logger.Warn("email attachment skipped", "key", m.StorageKey, "error", err)
			continue
		}
		name := m.Filename
		if name == "" {
			name = m.StorageKey[strings.LastIndex(m.StorageKey, "/")+1:]
		}
		ct := m.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		files = append(files, channel.File{Filename: name, ContentType: ct, Content: data})
	}
	return files
}

func (s *Service) exhausted(ctx context.Context, t queue.Task, cause error) {
	errText := "email job failed"
	if cause != nil {
		errText = cause.Error()
	}
	if err := s.Jobs.MarkFailed(ctx, t.RefID, errText, s.now()); err != nil {
		log.Printf("[EmailJob] exhausted job %s could not be marked failed: %v", t.RefID, err)
		return
	}
	if job, err := s.Jobs.GetJob(ctx, t.RefID); err == nil {
		s.alert(ctx, job, domain.AlertSendExhausted, domain.SeverityError,
			fmt.Sprintf("email job gave up after %d attempts: %s", t.Attempt+1, errText))
	}
}

func (s *Service) notify(ctx context.Context, f *domain.Finalization) {
	if s.Notifier == nil || f == nil || !f.CampaignFinalized {
		return
	}
	if err := s.Notifier.CampaignFinished(ctx, f); err != nil {
		logger.Error("campaign notification failed", "campaign_id", f.CampaignID, "error", err)
	}
}

func (s *Service) alert(ctx context.Context, job *domain.EmailJob, category string, severity domain.Severity, text string) {
	if s.Alerts == nil {
		return
	}
	meta := map[string]any{"email_job_id": job.ID, "channel": string(domain.ChannelEmail)}
	if err := s.Alerts.Record(ctx, job.OrganizationID, category, severity, text, meta); err != nil {
		logger.Warn("alert could not be recorded", "category", category, "error", err)
	}
}

// withSubject copies extra and pins the job subject.
func withSubject(extra map[string]any, subject string) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out["subject"] = subject
	return out
}

func unsubscribeHeaders(link string) map[string]string {
	if link == "" {
		return nil
	}
	h := map[string]string{"List-Unsubscribe": "<" + link + ">"}
	if strings.HasPrefix(link, "https://") || strings.HasPrefix(link, "http://") {
		h["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}
	return h
}
