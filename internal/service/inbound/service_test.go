package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

type mockRepo struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
	inbound  []domain.InboundMessage
	lookups  []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{contacts: map[string]*domain.Contact{
		"c1": {ID: "c1", OrganizationID: "org-1", PhoneWhatsApp: "+15550001", Status: domain.ContactActive},
		"c2": {ID: "c2", OrganizationID: "org-2", Email: "b@example.com", Status: domain.ContactActive},
	}}
}

func column(c *domain.Contact, col string) string {
	switch col {
	case "phone_whatsapp":
		return c.PhoneWhatsApp
	case "email":
		return c.Email
	case "telegram_chat_id":
		return c.TelegramChatID
	case "instagram_scoped_id":
		return c.InstagramScopedID
	}
	return ""
}

func (m *mockRepo) FindContact(_ context.Context, orgID, col, value string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, col)
	for _, c := range m.contacts {
		if (orgID == "" || c.OrganizationID == orgID) && column(c, col) == value {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) RecordInbound(_ context.Context, id string, at time.Time, fill map[string]string, status domain.ContactStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contacts[id]
	c.LastInboundAt = &at
	for col, v := range fill {
		switch col {
		case "phone_whatsapp":
			c.PhoneWhatsApp = v
		case "email":
			c.Email = v
		case "telegram_chat_id":
			c.TelegramChatID = v
		case "instagram_scoped_id":
			c.InstagramScopedID = v
		}
	}
	if status != "" {
		c.Status = status
	}
	return nil
}

func (m *mockRepo) CreateInbound(_ context.Context, in *domain.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, *in)
	return nil
}

type spySuppressor struct {
	calls []string
}

func (s *spySuppressor) Suppress(_ context.Context, orgID string, ch domain.Channel, identifier string, reason domain.SuppressionReason, source domain.SuppressionSource) (bool, error) {
	s.calls = append(s.calls, orgID+"|"+string(ch)+"|"+identifier+"|"+string(reason)+"|"+string(source))
	return true, nil
}

func TestReceive_MatchesByPhoneAndEnriches(t *testing.T) {
	repo, sup := newMockRepo(), &spySuppressor{}
	svc := NewService(repo, sup)

	res, err := svc.Receive(context.Background(), "", domain.ChannelWhatsApp, map[string]any{
		"wa_id": "+15550001", "telegram_chat_id": float64(987654), "text": "hello there", "media_url": "https://cdn/x.jpg",
	})
	require.NoError(t, err)

	require.NotNil(t, res.ContactID)
	assert.Equal(t, "c1", *res.ContactID)
	assert.Equal(t, "logged", res.Status)
	assert.False(t, res.OptedOut)

	require.Len(t, repo.inbound, 1)
	in := repo.inbound[0]
	assert.Equal(t, "org-1", in.OrganizationID)
	assert.Equal(t, "https://cdn/x.jpg", in.MediaURL)

	c := repo.contacts["c1"]
	assert.NotNil(t, c.LastInboundAt)
	assert.Equal(t, "987654", c.TelegramChatID)
	assert.Equal(t, domain.ContactActive, c.Status)
	assert.Empty(t, sup.calls)
}

func TestReceive_OptOutKeyword(t *testing.T) {
	repo, sup := newMockRepo(), &spySuppressor{}
	svc := NewService(repo, sup)

	res, err := svc.Receive(context.Background(), "", domain.ChannelWhatsApp, map[string]any{"phone": "+15550001", "text": "  STOP please "})
	require.NoError(t, err)

	assert.True(t, res.OptedOut)
	assert.Equal(t, domain.ContactUnsubscribed, repo.contacts["c1"].Status)
	assert.Equal(t, []string{"org-1|whatsapp|+15550001|opt_out_keyword|inbound_webhook"}, sup.calls)
}

func TestReceive_UnknownContactStillLogged(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &spySuppressor{})

	res, err := svc.Receive(context.Background(), "", domain.ChannelTelegram, map[string]any{"telegram_chat_id": "1", "text": "stop"})
	require.NoError(t, err)

	assert.Nil(t, res.ContactID)
	require.Len(t, repo.inbound, 1)
	assert.Empty(t, repo.inbound[0].ContactID)
}

func TestReceive_OrganizationScopesMatch(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &spySuppressor{})

	res, err := svc.Receive(context.Background(), "org-1", domain.ChannelEmail, map[string]any{"email": "B@Example.com"})
	require.NoError(t, err)
	assert.Nil(t, res.ContactID)

	res, err = svc.Receive(context.Background(), "org-2", domain.ChannelEmail, map[string]any{"email": "B@Example.com"})
	require.NoError(t, err)
	require.NotNil(t, res.ContactID)
	assert.Equal(t, "c2", *res.ContactID)
}

func TestIsOptOut(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"STOP", true},
		{"please unsubscribe me.", true},
		{"opt-out", true},
		{"OptOut!", true},
		{"cancel", true},
		{"nonstop fun", false},
		{"hello", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsOptOut(tt.text), tt.text)
	}
}
