package campaign_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
)

// memRepo is an in-memory campaign repository for unit testing.
type memRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign // keyed by id
	recipients []domain.CampaignRecipient
	messages   []domain.OutboundMessage
	addErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (m *memRepo) Get(_ context.Context, orgID, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) MarkLaunched(_ context.Context, orgID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignQueued {
		return campaign.ErrAlreadyLaunched
	}
	c.Status = domain.CampaignSending
	c.StartedAt = &at
	return nil
}

func (m *memRepo) Revert(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].Status = domain.CampaignDraft
	m.campaigns[id].StartedAt = nil
	return nil
}

func (m *memRepo) AddRecipients(_ context.Context, id string, targets int, msgs []domain.OutboundMessage, rs []domain.CampaignRecipient, now time.Time) (*domain.Finalization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	c := m.campaigns[id]
	c.TargetCount = targets
	queued := false
	for _, r := range rs {
		switch r.Status {
		case domain.CampaignRecipientFailed:
			c.FailedCount++
		case domain.CampaignRecipientQueued:
			queued = true
		}
	}
	m.recipients = append(m.recipients, rs...)
	m.messages = append(m.messages, msgs...)

	f := &domain.Finalization{CampaignID: id, OrganizationID: c.OrganizationID, CampaignName: c.Name, CampaignStatus: c.Status}
	if !queued {
		c.Status = domain.TerminalCampaignStatus(c.FailedCount)
		c.CompletedAt = &now
		f.CampaignStatus, f.CampaignFinalized = c.Status, true
		f.FailedCount = c.FailedCount
	}
	return f, nil
}

func (m *memRepo) stored(msgID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == msgID {
			return true
		}
	}
	return false
}

type memContacts map[string]domain.Contact

func (m memContacts) ListContacts(_ context.Context, orgID string, ids []string) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, id := range ids {
		if c, ok := m[id]; ok && c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeMessages validates like dispatch.Service and remembers what was
// enqueued. Enqueueing a message the repository has not stored fails the
// test.
type fakeMessages struct {
	t        *testing.T
	repo     *memRepo
	reqs     []dispatch.CreateRequest
	fail     map[string]error
	enqueued []string
}

func (f *fakeMessages) Prepare(_ context.Context, orgID string, req dispatch.CreateRequest) (*domain.OutboundMessage, error) {
	if err := f.fail[req.ContactID]; err != nil {
		return nil, err
	}
	f.reqs = append(f.reqs, req)
	return &domain.OutboundMessage{ID: "msg-" + req.ContactID, OrganizationID: orgID, ContactID: req.ContactID,
		CampaignID: req.CampaignID, Status: domain.MessagePending}, nil
}

func (f *fakeMessages) Enqueue(_ context.Context, msg *domain.OutboundMessage) bool {
	if !f.repo.stored(msg.ID) {
		f.t.Errorf("message %s enqueued before it was stored", msg.ID)
	}
	f.enqueued = append(f.enqueued, msg.ID)
	return true
}

type fakeNotifier struct{ finished []*domain.Finalization }

func (n *fakeNotifier) CampaignFinished(_ context.Context, f *domain.Finalization) error {
	n.finished = append(n.finished, f)
	return nil
}

type fakeJobs struct {
	repo *memRepo
	reqs []emailjob.CreateRequest
	err  error
}

func (f *fakeJobs) Create(_ context.Context, orgID string, req emailjob.CreateRequest) (*domain.EmailJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	total := len(req.ContactIDs) - 1
	f.repo.mu.Lock()
	f.repo.campaigns[*req.CampaignID].TargetCount = total
	f.repo.mu.Unlock()
	return &domain.EmailJob{ID: "job-1", OrganizationID: orgID, CampaignID: req.CampaignID, TotalRecipients: total}, nil
}

const testOrg = "org-1"

type fixture struct {
	repo     *memRepo
	messages *fakeMessages
	jobs     *fakeJobs
	notifier *fakeNotifier
	svc      *campaign.Service
}

func newFixture(t *testing.T, ch domain.Channel, body string) *fixture {
	repo := newMemRepo()
	repo.campaigns["camp-1"] = &domain.Campaign{
		ID: "camp-1", OrganizationID: testOrg, Name: "Spring", Channel: ch,
		Subject: "Hello", Body: body, Status: domain.CampaignDraft,
	}
	contacts := memContacts{
		"c1": {ID: "c1", OrganizationID: testOrg},
		"c2": {ID: "c2", OrganizationID: testOrg},
		"c3": {ID: "c3", OrganizationID: "org-2"},
	}
	f := &fixture{
		repo:     repo,
		messages: &fakeMessages{t: t, repo: repo},
		jobs:     &fakeJobs{repo: repo},
		notifier: &fakeNotifier{},
	}
	f.svc = campaign.NewService(repo, contacts, f.messages, f.jobs)
	f.svc.SetNotifier(f.notifier)
	return f
}

func TestLaunchEmailSpawnsJob(t *testing.T) {
	f := newFixture(t, domain.ChannelEmail, "<p>Hi {{first_name}}</p>")

	res, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c2", "c1"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if res.EmailJobID != "job-1" || res.Targets != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.jobs.reqs) != 1 {
		t.Fatalf("expected one job, got %d", len(f.jobs.reqs))
	}
	req := f.jobs.reqs[0]
	if req.BodyHTML == "" || req.BodyText != "" {
		t.Fatalf("expected HTML body, got %+v", req)
	}
	if len(req.ContactIDs) != 2 || req.CampaignID == nil || *req.CampaignID != "camp-1" {
		t.Fatalf("unexpected job request %+v", req)
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.Status != domain.CampaignSending || got.TargetCount != 1 || got.StartedAt == nil {
		t.Fatalf("unexpected campaign %+v", got)
	}
}

func TestLaunchMessagesFansOut(t *testing.T) {
	f := newFixture(t, domain.ChannelWhatsApp, "Hi there")
	f.messages.fail = map[string]error{"c2": errors.New("boom")}

	res, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c2"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if res.Targets != 2 || res.Queued != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.repo.recipients) != 2 {
		t.Fatalf("expected 2 campaign recipients, got %d", len(f.repo.recipients))
	}
	first := f.repo.recipients[0]
	if first.OutboundMessageID == nil || *first.OutboundMessageID != "msg-c1" || first.Status != domain.CampaignRecipientQueued {
		t.Fatalf("unexpected recipient %+v", first)
	}
	if f.repo.recipients[1].Status != domain.CampaignRecipientFailed {
		t.Fatalf("expected failed recipient, got %s", f.repo.recipients[1].Status)
	}
	if f.messages.reqs[0].Channel != "whatsapp" || *f.messages.reqs[0].CampaignID != "camp-1" {
		t.Fatalf("unexpected message request %+v", f.messages.reqs[0])
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.FailedCount != 1 || got.TargetCount != 2 || got.Status != domain.CampaignSending {
		t.Fatalf("unexpected campaign counters %+v", got)
	}
	if len(f.messages.enqueued) != 1 || f.messages.enqueued[0] != "msg-c1" {
		t.Fatalf("expected msg-c1 enqueued, got %v", f.messages.enqueued)
	}
	if len(f.notifier.finished) != 0 {
		t.Fatal("campaign with queued recipients must not finish")
	}
}

func TestLaunchMessagesStoreFailureEnqueuesNothing(t *testing.T) {
	f := newFixture(t, domain.ChannelTelegram, "Hi")
	f.repo.addErr = errors.New("db down")

	_, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c2"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.messages.enqueued) != 0 {
		t.Fatalf("nothing should be enqueued, got %v", f.messages.enqueued)
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.Status != domain.CampaignDraft {
		t.Fatalf("expected draft after failed launch, got %s", got.Status)
	}

	f.repo.addErr = nil
	if _, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c2"}}); err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	if len(f.messages.enqueued) != 2 || len(f.repo.messages) != 2 {
		t.Fatalf("expected one message per contact, got enqueued=%v stored=%d", f.messages.enqueued, len(f.repo.messages))
	}
}

func TestLaunchMessagesAllInvalidFinalizes(t *testing.T) {
	f := newFixture(t, domain.ChannelInstagram, "Hi")
	f.messages.fail = map[string]error{
		"c1": domain.Invalid("contact_id", "no instagram id"),
		"c2": domain.Invalid("contact_id", "no instagram id"),
	}

	res, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c2"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if res.Failed != 2 || res.Queued != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.Status != domain.CampaignFailed || got.CompletedAt == nil {
		t.Fatalf("expected failed campaign, got %+v", got)
	}
	if len(f.notifier.finished) != 1 || !f.notifier.finished[0].CampaignFinalized {
		t.Fatalf("expected one finish notification, got %d", len(f.notifier.finished))
	}
}

func TestLaunchRejectsForeignContacts(t *testing.T) {
	f := newFixture(t, domain.ChannelTelegram, "Hi")

	_, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1", "c3"}})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "contact_ids" {
		t.Fatalf("expected contact_ids validation error, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.Status != domain.CampaignDraft {
		t.Fatalf("expected draft after failed launch, got %s", got.Status)
	}
	if len(f.messages.reqs) != 0 {
		t.Fatal("no messages should be created")
	}
}

func TestLaunchTwice(t *testing.T) {
	f := newFixture(t, domain.ChannelEmail, "plain body")

	if _, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1"}}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if f.jobs.reqs[0].BodyText != "plain body" {
		t.Fatalf("expected text body, got %+v", f.jobs.reqs[0])
	}
	_, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1"}})
	if err != campaign.ErrAlreadyLaunched {
		t.Fatalf("expected ErrAlreadyLaunched, got %v", err)
	}
}

func TestLaunchJobErrorReverts(t *testing.T) {
	f := newFixture(t, domain.ChannelEmail, "body")
	f.jobs.err = domain.Invalid("subject", "is required")

	_, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{ContactIDs: []string{"c1"}})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := f.svc.Get(context.Background(), testOrg, "camp-1")
	if got.Status != domain.CampaignDraft {
		t.Fatalf("expected draft, got %s", got.Status)
	}
}

func TestLaunchValidation(t *testing.T) {
	f := newFixture(t, domain.ChannelEmail, "body")
	_, err := f.svc.Launch(context.Background(), testOrg, "camp-1", campaign.LaunchInput{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	f := newFixture(t, domain.ChannelEmail, "body")
	_, err := f.svc.Get(context.Background(), "org-2", "camp-1")
	if err != campaign.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
