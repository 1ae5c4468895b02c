package emailjob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/channel"
	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/queue"
	"github.com/jadidihosein68/osaconnect/internal/render"
	"github.com/jadidihosein68/osaconnect/internal/service/unsubscribe"
	"github.com/jadidihosein68/osaconnect/internal/storage"
)

// Config tunes the engine.
type Config struct {
	BatchSize   int
	BatchDelay  time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	SendTimeout time.Duration
	FooterText  string
	// LockTTL is the ownership window renewed before each batch.
	LockTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = channel.DefaultTimeout
	}
	if c.FooterText == "" {
		c.FooterText = render.DefaultFooterText
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Minute
	}
}

// Deps are the engine's collaborators. Alerts, Notifier and Files are
// optional.
type Deps struct {
	Jobs        Repository
	Finalizer   Finalizer
	Contacts    ContactDirectory
	Suppression SuppressionChecker
	Credentials CredentialProvider
	Sender      channel.Sender
	Codec       *unsubscribe.Codec
	Renderer    *render.Renderer
	Links       render.LinkBuilder
	Locks       LockFactory
	Queue       queue.Enqueuer
	Alerts      AlertRecorder
	Notifier    CampaignNotifier
	Files       storage.Store
}

// Service creates and runs email jobs.
type Service struct {
	Deps
	cfg   Config
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the email job engine.
func NewService(deps Deps, cfg Config) *Service {
	cfg.applyDefaults()
	if deps.Renderer == nil {
		deps.Renderer = render.NewRenderer()
	}
	return &Service{
		Deps:  deps,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreateRequest describes a new job.
type CreateRequest struct {
	Subject     string              `json:"subject"`
	BodyHTML    string              `json:"body_html"`
	BodyText    string              `json:"body_text"`
	FooterHTML  string              `json:"footer_html"`
	ContactIDs  []string            `json:"contact_ids"`
	Attachments []domain.Attachment `json:"attachments"`
	CampaignID  *string             `json:"-"`
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return domain.Invalid("subject", "is required")
	}
	if strings.TrimSpace(r.BodyHTML) == "" && strings.TrimSpace(r.BodyText) == "" {
		return domain.Invalid("body_html", "body_html or body_text is required")
	}
	if len(r.ContactIDs) == 0 {
		return domain.Invalid("contact_ids", "at least one contact is required")
	}
	for i, a := range r.Attachments {
		if err := ValidateAttachment(a); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				verr.Field = fmt.Sprintf("attachments[%d].%s", i, verr.Field)
			}
			return err
		}
	}
	return nil
}

// ValidateAttachment enforces the size and type limits.
func ValidateAttachment(a domain.Attachment) error {
	if strings.TrimSpace(a.StorageKey) == "" {
		return domain.Invalid("storage_key", "is required")
	}
	if a.Size > domain.MaxAttachmentSize {
		return domain.Invalid("size", "must be at most %d bytes", domain.MaxAttachmentSize)
	}
	if !domain.AllowedAttachmentTypes[a.ContentType] {
		return domain.Invalid("content_type", "%q is not an allowed attachment type", a.ContentType)
	}
	return nil
}

// Partition splits contacts into recipients and exclusions. Each contact
// lands in exactly one side; duplicates compare emails case-insensitively.
func Partition(jobID, orgID string, contacts []domain.Contact, now time.Time) ([]domain.EmailRecipient, []domain.Exclusion) {
	var recipients []domain.EmailRecipient
	var excluded []domain.Exclusion
	seen := make(map[string]bool, len(contacts))

	for _, c := range contacts {
		email := strings.TrimSpace(c.Email)
		exclude := func(reason string) {
			excluded = append(excluded, domain.Exclusion{ContactID: c.ID, Email: email, Reason: reason})
		}
		switch {
		case email == "":
			exclude(domain.ExclusionMissingEmail)
			continue
		case !channel.ValidEmail(email):
			exclude(domain.ExclusionInvalidEmail)
			continue
		case c.Status == domain.ContactBlocked:
			exclude(domain.ExclusionBlocked)
			continue
		case c.Status == domain.ContactUnsubscribed:
			exclude(domain.ExclusionUnsubscribed)
			continue
		case c.Status == domain.ContactBounced:
			exclude(domain.ExclusionBounced)
			continue
		}
		key := strings.ToLower(email)
		if seen[key] {
			exclude(domain.ExclusionDuplicate)
			continue
		}
		seen[key] = true

		contactID := c.ID
		recipients = append(recipients, domain.EmailRecipient{
			ID:             uuid.New().String(),
			JobID:          jobID,
			OrganizationID: orgID,
			ContactID:      &contactID,
			Email:          email,
			FullName:       c.FullName,
			CompanyName:    c.CompanyName(),
			Status:         domain.RecipientQueued,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return recipients, excluded
}

// Create validates the request, partitions the contact pool and enqueues
// the job.
func (s *Service) Create(ctx context.Context, orgID string, req CreateRequest) (*domain.EmailJob, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ids := dedupe(req.ContactIDs)
	contacts, err := s.Contacts.ListContacts(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if len(contacts) != len(ids) {
		return nil, domain.Invalid("contact_ids", "%d contacts not found in this organization", len(ids)-len(contacts))
	}
	byID := make(map[string]domain.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}
	ordered := make([]domain.Contact, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}

	now := s.now()
	job := &domain.EmailJob{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		CampaignID:     req.CampaignID,
		Subject:        strings.TrimSpace(req.Subject),
		BodyHTML:       req.BodyHTML,
		BodyText:       req.BodyText,
		FooterHTML:     req.FooterHTML,
		Attachments:    req.Attachments,
		Status:         domain.JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	recipients, excluded := Partition(job.ID, orgID, ordered, now)
	job.TotalRecipients = len(recipients)
	job.ExcludedCount = len(excluded)
	if len(excluded) > domain.MaxStoredExclusions {
		excluded = excluded[:domain.MaxStoredExclusions]
	}
	job.Exclusions = excluded
	if job.Exclusions == nil {
		job.Exclusions = []domain.Exclusion{}
	}

	if err := s.Jobs.CreateJob(ctx, job, recipients); err != nil {
		return nil, fmt.Errorf("create email job: %w", err)
	}
	logger.Info("email job created", "job_id", job.ID, "org", orgID,
		"recipients", job.TotalRecipients, "excluded", job.ExcludedCount)

	s.enqueue(ctx, job)
	return job, nil
}

// Get returns one job of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.EmailJob, error) {
	return s.Jobs.GetOrgJob(ctx, orgID, id)
}

// RetryFailed re-queues the job's FAILED recipients and schedules a run.
// SENT and READ recipients are never sent again.
func (s *Service) RetryFailed(ctx context.Context, orgID, id string) (int, error) {
	job, err := s.Jobs.GetOrgJob(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	if job.Status == domain.JobSending {
		return 0, ErrJobInProgress
	}
	n, err := s.Jobs.ResetFailed(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("reset failed recipients: %w", err)
	}
	if n == 0 {
		return 0, ErrNotRetryable
	}
	logger.Info("email job retry requested", "job_id", job.ID, "recipients", n)
	s.enqueue(ctx, job)
	return n, nil
}

// UploadAttachment validates and stores an attachment for a later job.
func (s *Service) UploadAttachment(ctx context.Context, orgID, filename, contentType string, data []byte) (*domain.Attachment, error) {
	if s.Files == nil {
		return nil, errors.New("attachment storage is not configured")
	}
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, domain.Invalid("filename", "is required")
	}
	a := domain.Attachment{
		Filename:    filename,
		ContentType: contentType,
		StorageKey:  path.Join("attachments", orgID, uuid.New().String(), filename),
		Size:        int64(len(data)),
	}
	if err := ValidateAttachment(a); err != nil {
		return nil, err
	}
	if err := s.Files.Put(ctx, a.StorageKey, data, contentType); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	return &a, nil
}

func (s *Service) enqueue(ctx context.Context, job *domain.EmailJob) {
	task := queue.NewTask(queue.KindRunEmailJob, job.OrganizationID, job.ID)
	if err := s.Queue.Enqueue(ctx, task, 0); err != nil {
		logger.Error("email job enqueue failed", "job_id", job.ID, "error", err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
