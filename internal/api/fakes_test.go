package api

import (
	"context"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
	"github.com/jadidihosein68/osaconnect/internal/service/inbound"
	"github.com/jadidihosein68/osaconnect/internal/service/reconcile"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
	"github.com/jadidihosein68/osaconnect/internal/service/unsubscribe"
)

const testOrg = "7d3f1c2e-4b9a-4f0e-9a55-2c1d8e6b0a11"

type fakeMessages struct {
	created  []dispatch.CreateRequest
	orgs     []string
	err      error
	retryErr error
}

func (f *fakeMessages) Create(_ context.Context, orgID string, req dispatch.CreateRequest) (*domain.OutboundMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	f.orgs = append(f.orgs, orgID)
	return &domain.OutboundMessage{ID: "m1", OrganizationID: orgID, Status: domain.MessagePending}, nil
}

func (f *fakeMessages) Get(_ context.Context, orgID, id string) (*domain.OutboundMessage, error) {
	if id != "m1" {
		return nil, dispatch.ErrNotFound
	}
	return &domain.OutboundMessage{ID: id, OrganizationID: orgID}, nil
}

func (f *fakeMessages) Retry(_ context.Context, orgID, id string) (*domain.OutboundMessage, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	return &domain.OutboundMessage{ID: id, OrganizationID: orgID, Status: domain.MessageRetrying}, nil
}

type fakeJobs struct {
	uploads []string
}

func (f *fakeJobs) Create(_ context.Context, orgID string, req emailjob.CreateRequest) (*domain.EmailJob, error) {
	if req.CampaignID != nil {
		return nil, domain.Invalid("campaign_id", "not accepted")
	}
	return &domain.EmailJob{ID: "job-1", OrganizationID: orgID, Subject: req.Subject}, nil
}

func (f *fakeJobs) Get(_ context.Context, _, _ string) (*domain.EmailJob, error) {
	return nil, emailjob.ErrNotFound
}

func (f *fakeJobs) RetryFailed(_ context.Context, _, _ string) (int, error) {
	return 2, nil
}

func (f *fakeJobs) UploadAttachment(_ context.Context, orgID, filename, contentType string, data []byte) (*domain.Attachment, error) {
	f.uploads = append(f.uploads, filename)
	return &domain.Attachment{Filename: filename, ContentType: contentType, Size: int64(len(data)), StorageKey: "attachments/" + orgID + "/" + filename}, nil
}

type fakeCampaigns struct{ launchErr error }

func (f *fakeCampaigns) Get(_ context.Context, orgID, id string) (*domain.Campaign, error) {
	return &domain.Campaign{ID: id, OrganizationID: orgID}, nil
}

func (f *fakeCampaigns) Launch(_ context.Context, _, id string, in campaign.LaunchInput) (*campaign.LaunchResult, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &campaign.LaunchResult{CampaignID: id, Targets: len(in.ContactIDs), Queued: len(in.ContactIDs)}, nil
}

type fakeReconciler struct {
	callbacks []reconcile.Callback
	events    []domain.EmailEvent
}

func (f *fakeReconciler) ApplyCallback(_ context.Context, _ domain.Channel, cb reconcile.Callback) (reconcile.Result, error) {
	f.callbacks = append(f.callbacks, cb)
	switch {
	case cb.MessageID == "" || cb.Status == "":
		return reconcile.Result{}, reconcile.ErrInvalidPayload
	case cb.MessageID == "unknown":
		return reconcile.Result{Outcome: reconcile.OutcomeIgnored, Reason: reconcile.ReasonMessageNotFound}, nil
	}
	return reconcile.Result{Outcome: reconcile.OutcomeUpdated}, nil
}

func (f *fakeReconciler) ApplyEmailEvents(_ context.Context, events []domain.EmailEvent) reconcile.Summary {
	f.events = append(f.events, events...)
	return reconcile.Summary{Received: len(events), Applied: len(events)}
}

type fakeUnsubscriber struct{ tokens []string }

func (f *fakeUnsubscriber) Unsubscribe(_ context.Context, token string) (*unsubscribe.Result, error) {
	f.tokens = append(f.tokens, token)
	switch token {
	case "expired":
		return nil, unsubscribe.ErrExpiredToken
	case "good":
		return &unsubscribe.Result{Claims: &unsubscribe.Claims{OrganizationID: testOrg, Email: "a@example.com"}, NewSuppression: true}, nil
	}
	return nil, unsubscribe.ErrInvalidToken
}

type fakeInbound struct {
	orgs []string
}

func (f *fakeInbound) Receive(_ context.Context, orgID string, _ domain.Channel, _ map[string]any) (*inbound.Result, error) {
	f.orgs = append(f.orgs, orgID)
	return &inbound.Result{ID: "in-1", Status: "logged"}, nil
}

type fakeSuppressions struct {
	entries map[string]bool
}

func (f *fakeSuppressions) Suppress(_ context.Context, _ string, ch domain.Channel, identifier string, _ domain.SuppressionReason, _ domain.SuppressionSource) (bool, error) {
	if identifier == "" {
		return false, suppression.ErrIdentifierMissing
	}
	key := string(ch) + ":" + domain.NormalizeIdentifier(ch, identifier)
	if f.entries[key] {
		return false, nil
	}
	f.entries[key] = true
	return true, nil
}

func (f *fakeSuppressions) Remove(_ context.Context, _ string, ch domain.Channel, identifier string) error {
	key := string(ch) + ":" + identifier
	if !f.entries[key] {
		return suppression.ErrNotFound
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeSuppressions) List(_ context.Context, _ string, filter suppression.ListFilter) ([]domain.Suppression, int, error) {
	return nil, 0, nil
}

func (f *fakeSuppressions) GetStats(_ context.Context, _ string) (*suppression.Stats, error) {
	return &suppression.Stats{Total: len(f.entries)}, nil
}
