package campaign

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/render"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
)

// Service implements campaign launch. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	contacts ContactDirectory
	messages MessagePlanner
	jobs     JobCreator
	notifier CampaignNotifier
	now      func() time.Time
}

// NewService creates a campaign service.
func NewService(repo Repository, contacts ContactDirectory, messages MessagePlanner, jobs JobCreator) *Service {
	return &Service{
		repo:     repo,
		contacts: contacts,
		messages: messages,
		jobs:     jobs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier sets who hears about campaigns that finish at launch.
func (s *Service) SetNotifier(n CampaignNotifier) { s.notifier = n }

// LaunchInput selects the contacts a campaign targets.
type LaunchInput struct {
	ContactIDs []string `json:"contact_ids"`
}

// LaunchResult summarizes a launch.
type LaunchResult struct {
	CampaignID string `json:"campaign_id"`
	Channel    string `json:"channel"`
	EmailJobID string `json:"email_job_id,omitempty"`
	Targets    int    `json:"targets"`
	Queued     int    `json:"queued"`
	Failed     int    `json:"failed"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, orgID, id)
}

// Launch starts sending a draft campaign to the given contacts.
func (s *Service) Launch(ctx context.Context, orgID, id string, in LaunchInput) (*LaunchResult, error) {
	c, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignQueued {
		return nil, ErrAlreadyLaunched
	}
	ids := uniqueIDs(in.ContactIDs)
	if len(ids) == 0 {
		return nil, domain.Invalid("contact_ids", "at least one contact is required")
	}
	if !c.Channel.Valid() {
		return nil, domain.Invalid("channel", "unsupported channel %q", c.Channel)
	}

	if err := s.repo.MarkLaunched(ctx, orgID, c.ID, s.now()); err != nil {
		return nil, err
	}

	var res *LaunchResult
	if c.Channel == domain.ChannelEmail {
		res, err = s.launchEmail(ctx, c, ids)
	} else {
		res, err = s.launchMessages(ctx, c, ids)
	}
	if err != nil {
		if rbErr := s.repo.Revert(ctx, orgID, c.ID); rbErr != nil {
			log.Printf("[campaign.Service] rollback failed: %v", rbErr)
		}
		return nil, err
	}
	log.Printf("[campaign.Service] Campaign %s: launched on %s to %d targets", c.ID, c.Channel, res.Targets)
	return res, nil
}

func (s *Service) launchEmail(ctx context.Context, c *domain.Campaign, ids []string) (*LaunchResult, error) {
	req := emailjob.CreateRequest{
		Subject:    c.Subject,
		ContactIDs: ids,
		CampaignID: &c.ID,
	}
	if render.LooksLikeHTML(c.Body) {
		req.BodyHTML = c.Body
	} else {
		req.BodyText = c.Body
	}
	job, err := s.jobs.Create(ctx, c.OrganizationID, req)
	if err != nil {
		return nil, err
	}
	return &LaunchResult{
		CampaignID: c.ID,
		Channel:    string(c.Channel),
		EmailJobID: job.ID,
		Targets:    job.TotalRecipients,
		Queued:     job.TotalRecipients,
	}, nil
}

// launchMessages stores one message and campaign recipient per contact
// before any message is enqueued. A contact whose message fails
// validation gets a failed recipient and no message.
func (s *Service) launchMessages(ctx context.Context, c *domain.Campaign, ids []string) (*LaunchResult, error) {
	contacts, err := s.contacts.ListContacts(ctx, c.OrganizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if len(contacts) != len(ids) {
		return nil, domain.Invalid("contact_ids", "%d contacts not found in this organization", len(ids)-len(contacts))
	}

	res := &LaunchResult{CampaignID: c.ID, Channel: string(c.Channel), Targets: len(ids)}
	recipients := make([]domain.CampaignRecipient, 0, len(ids))
	msgs := make([]domain.OutboundMessage, 0, len(ids))
	for _, contactID := range ids {
		cr := domain.CampaignRecipient{
			ID:         uuid.New().String(),
			CampaignID: c.ID,
			ContactID:  contactID,
			Status:     domain.CampaignRecipientQueued,
			UpdatedAt:  s.now(),
		}
		m, err := s.messages.Prepare(ctx, c.OrganizationID, dispatch.CreateRequest{
			ContactID:  contactID,
			Channel:    string(c.Channel),
			Body:       c.Body,
			MediaRef:   c.MediaRef,
			CampaignID: &c.ID,
		})
		if err != nil {
			cr.Status = domain.CampaignRecipientFailed
			cr.Error = err.Error()
			res.Failed++
		} else {
			cr.OutboundMessageID = &m.ID
			msgs = append(msgs, *m)
			res.Queued++
		}
		recipients = append(recipients, cr)
	}

	f, err := s.repo.AddRecipients(ctx, c.ID, len(ids), msgs, recipients, s.now())
	if err != nil {
		return nil, fmt.Errorf("add campaign recipients: %w", err)
	}
	for i := range msgs {
		s.messages.Enqueue(ctx, &msgs[i])
	}
	if f != nil && f.CampaignFinalized && s.notifier != nil {
		if err := s.notifier.CampaignFinished(ctx, f); err != nil {
			log.Printf("[campaign.Service] Campaign %s: finish notification failed: %v", c.ID, err)
		}
	}
	return res, nil
}

func uniqueIDs(ids []string) []string {
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
