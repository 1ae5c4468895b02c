package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/queue"
)

// MaxBodyLength bounds an outbound message body.
const MaxBodyLength = 4096

// CreateRequest describes a message to send.
type CreateRequest struct {
	ContactID    string     `json:"contact_id"`
	Channel      string     `json:"channel"`
	Body         string     `json:"body"`
	MediaRef     string     `json:"media_url,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CampaignID   *string    `json:"-"`
}

// Service is the write path for outbound messages.
type Service struct {
	messages MessageRepository
	contacts ContactRepository
	queue    queue.Enqueuer
	now      func() time.Time
}

// NewService creates a message service.
func NewService(messages MessageRepository, contacts ContactRepository, q queue.Enqueuer) *Service {
	return &Service{
		messages: messages,
		contacts: contacts,
		queue:    q,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and persists a message, enqueueing it unless it is
// scheduled for later.
func (s *Service) Create(ctx context.Context, orgID string, req CreateRequest) (*domain.OutboundMessage, error) {
	msg, err := s.Prepare(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if msg.ScheduledFor == nil || !msg.ScheduledFor.After(msg.CreatedAt) {
		s.enqueue(ctx, msg)
	}
	return msg, nil
}

// Prepare validates req and builds the pending message without storing
// or enqueueing it. Callers persisting messages in their own transaction
// pass the result to Enqueue after commit.
func (s *Service) Prepare(ctx context.Context, orgID string, req CreateRequest) (*domain.OutboundMessage, error) {
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		return nil, domain.Invalid("channel", "must be one of whatsapp, email, telegram, instagram")
	}
	if strings.TrimSpace(req.ContactID) == "" {
		return nil, domain.Invalid("contact_id", "is required")
	}
	body := strings.TrimSpace(req.Body)
	if body == "" && req.MediaRef == "" {
		return nil, domain.Invalid("body", "is required when no media is attached")
	}
	if len(body) > MaxBodyLength {
		return nil, domain.Invalid("body", "must be at most %d characters", MaxBodyLength)
	}

	contact, err := s.contacts.GetContact(ctx, orgID, req.ContactID)
	if errors.Is(err, ErrContactNotFound) {
		return nil, domain.Invalid("contact_id", "contact not found in this organization")
	}
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}

	now := s.now()
	msg := &domain.OutboundMessage{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		ContactID:      contact.ID,
		CampaignID:     req.CampaignID,
		Channel:        ch,
		Body:           body,
		MediaRef:       strings.TrimSpace(req.MediaRef),
		ScheduledFor:   req.ScheduledFor,
		Status:         domain.MessagePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return msg, nil
}

// Enqueue hands a stored message to the queue. It reports false when the
// queue refused it; the due sweep retries those.
func (s *Service) Enqueue(ctx context.Context, msg *domain.OutboundMessage) bool {
	return s.enqueue(ctx, msg)
}

// Get returns one message of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error) {
	return s.messages.GetOrgMessage(ctx, orgID, id)
}

// Retry moves a FAILED message back to RETRYING and enqueues a fresh
// task with a full retry budget.
func (s *Service) Retry(ctx context.Context, orgID, id string) (*domain.OutboundMessage, error) {
	msg, err := s.messages.GetOrgMessage(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !msg.Status.CanManualRetry() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, msg.Status)
	}
	msg.Status = domain.MessageRetrying
	msg.Error = ""
	msg.FailedAt = nil
	msg.EnqueuedAt = nil
	if err := s.messages.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	s.enqueue(ctx, msg)
	return msg, nil
}

// EnqueueDue enqueues up to limit scheduled messages whose time has come.
// It returns how many were enqueued.
func (s *Service) EnqueueDue(ctx context.Context, limit int) (int, error) {
	due, err := s.messages.ListDue(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list due messages: %w", err)
	}
	n := 0
	for i := range due {
		if s.enqueue(ctx, &due[i]) {
			n++
		}
	}
	return n, nil
}

// enqueue hands msg to the queue and stamps enqueued_at. A message that
// could not be enqueued keeps a nil enqueued_at and is picked up by the
// due sweep.
func (s *Service) enqueue(ctx context.Context, msg *domain.OutboundMessage) bool {
	task := queue.NewTask(queue.KindDispatchMessage, msg.OrganizationID, msg.ID)
	if err := s.queue.Enqueue(ctx, task, 0); err != nil {
		logger.Error("dispatch enqueue failed", "message_id", msg.ID, "error", err)
		return false
	}
	at := s.now()
	msg.EnqueuedAt = &at
	if err := s.messages.MarkEnqueued(ctx, msg.ID, at); err != nil {
		logger.Warn("dispatch enqueue not recorded", "message_id", msg.ID, "error", err)
	}
	return true
}
