package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// memStore is an in-memory Store. InTx holds one mutex for the whole
// transaction, which stands in for the row locks.
type memStore struct {
	mu         sync.Mutex
	messages   map[string]*domain.OutboundMessage
	contacts   map[string]*domain.Contact
	recipients map[string]*domain.EmailRecipient
	jobs       map[string]*domain.EmailJob
	campaigns  map[string]*domain.Campaign
	cr         map[string]*domain.CampaignRecipient
	suppressed map[string]*domain.Suppression
	events     []domain.ProviderEvent
	failTx     error
}

func newMemStore() *memStore {
	return &memStore{
		messages:   map[string]*domain.OutboundMessage{},
		contacts:   map[string]*domain.Contact{},
		recipients: map[string]*domain.EmailRecipient{},
		jobs:       map[string]*domain.EmailJob{},
		campaigns:  map[string]*domain.Campaign{},
		cr:         map[string]*domain.CampaignRecipient{},
		suppressed: map[string]*domain.Suppression{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTx != nil {
		return s.failTx
	}
	return fn(&memTx{s: s})
}

func (s *memStore) RecordProviderEvent(_ context.Context, e *domain.ProviderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

type memTx struct{ s *memStore }

func (t *memTx) LockMessage(_ context.Context, orgID string, ch domain.Channel, providerID string) (*domain.OutboundMessage, error) {
	for _, m := range t.s.messages {
		if orgID != "" && m.OrganizationID != orgID {
			continue
		}
		if m.Channel == ch && m.ProviderMessageID == providerID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) SaveMessage(_ context.Context, m *domain.OutboundMessage) error {
	cp := *m
	t.s.messages[m.ID] = &cp
	return nil
}

func (t *memTx) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	c, ok := t.s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memTx) LockRecipient(_ context.Context, providerID string) (*domain.EmailRecipient, error) {
	for _, r := range t.s.recipients {
		if r.ProviderMessageID == providerID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) SaveRecipient(_ context.Context, r *domain.EmailRecipient) error {
	cp := *r
	t.s.recipients[r.ID] = &cp
	return nil
}

func (t *memTx) AddJobCounters(_ context.Context, jobID string, d domain.JobDelta) error {
	j := t.s.jobs[jobID]
	j.SentCount += d.Sent
	j.FailedCount += d.Failed
	j.SkippedCount += d.Skipped
	return nil
}

func (t *memTx) AdvanceCampaignRecipient(_ context.Context, link CampaignLink, next domain.CampaignRecipientStatus, errText string, at time.Time) error {
	for _, cr := range t.s.cr {
		match := (link.MessageID != "" && cr.OutboundMessageID != nil && *cr.OutboundMessageID == link.MessageID) ||
			(link.EmailRecipientID != "" && cr.EmailRecipientID != nil && *cr.EmailRecipientID == link.EmailRecipientID)
		if !match || !cr.Status.Advances(next) {
			continue
		}
		d := domain.CampaignDeltaFor(cr.Status, next)
		cr.Status, cr.Error, cr.UpdatedAt = next, errText, at
		c := t.s.campaigns[cr.CampaignID]
		c.SentCount += d.Sent
		c.DeliveredCount += d.Delivered
		c.ReadCount += d.Read
		c.FailedCount += d.Failed
		c.UnsubscribedCount += d.Unsubscribed
	}
	return nil
}

func (t *memTx) Suppress(_ context.Context, sup *domain.Suppression) (bool, error) {
	key := sup.OrganizationID + "|" + string(sup.Channel) + "|" + sup.Identifier
	if _, ok := t.s.suppressed[key]; ok {
		return false, nil
	}
	cp := *sup
	t.s.suppressed[key] = &cp
	return true, nil
}

func (t *memTx) FinalizeJob(ctx context.Context, jobID string, now time.Time) (*domain.Finalization, error) {
	j := t.s.jobs[jobID]
	f := &domain.Finalization{OrganizationID: j.OrganizationID, JobID: j.ID, JobStatus: j.Status}
	finalized := 0
	for _, r := range t.s.recipients {
		if r.JobID == jobID && r.Status.Finalized() {
			finalized++
		}
	}
	if finalized < j.TotalRecipients {
		return f, nil
	}
	target := domain.TerminalJobStatus(j.FailedCount)
	f.JobFinalized = !j.Status.IsTerminal()
	if j.Status != target {
		j.Status = target
		j.CompletedAt = &now
	}
	f.JobStatus = j.Status
	if j.CampaignID == nil {
		return f, nil
	}
	cf, err := t.FinalizeCampaign(ctx, *j.CampaignID, now)
	if err != nil {
		return nil, err
	}
	f.CampaignID, f.CampaignName = cf.CampaignID, cf.CampaignName
	f.CampaignStatus, f.CampaignFinalized = cf.CampaignStatus, cf.CampaignFinalized
	f.SentCount, f.FailedCount = cf.SentCount, cf.FailedCount
	return f, nil
}

func (t *memTx) FinalizeCampaign(_ context.Context, campaignID string, now time.Time) (*domain.Finalization, error) {
	c := t.s.campaigns[campaignID]
	f := &domain.Finalization{OrganizationID: c.OrganizationID, CampaignID: c.ID, CampaignName: c.Name,
		CampaignStatus: c.Status, SentCount: c.SentCount, FailedCount: c.FailedCount}
	if c.Status.IsTerminal() {
		return f, nil
	}
	for _, cr := range t.s.cr {
		if cr.CampaignID == campaignID && cr.Status == domain.CampaignRecipientQueued {
			return f, nil
		}
	}
	c.Status = domain.TerminalCampaignStatus(c.FailedCount)
	c.CompletedAt = &now
	f.CampaignStatus, f.CampaignFinalized = c.Status, true
	return f, nil
}

type alertSpy struct {
	mu     sync.Mutex
	alerts []string
}

func (a *alertSpy) Record(_ context.Context, _, category string, _ domain.Severity, _ string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, category)
	return nil
}

type notifierSpy struct {
	mu    sync.Mutex
	calls []domain.Finalization
}

func (n *notifierSpy) CampaignFinished(_ context.Context, f *domain.Finalization) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, *f)
	return nil
}

func strPtr(s string) *string { return &s }
