package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

type mockRepo struct {
	mu      sync.Mutex
	items     map[string]*domain.Integration
	updates   int
	updateErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]*domain.Integration)}
}

func (m *mockRepo) put(i *domain.Integration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[i.OrganizationID+":"+i.Provider] = i
}

func (m *mockRepo) GetActive(_ context.Context, orgID, provider string) (*domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[orgID+":"+provider]
	if !ok || !i.IsActive {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockRepo) UpdateExtra(_ context.Context, id string, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, i := range m.items {
		if i.ID == id {
			i.Extra = extra
			m.updates++
			return nil
		}
	}
	return ErrNotFound
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	c, err := NewCipher(k.Encode())
	require.NoError(t, err)
	return c
}

func mustEncrypt(t *testing.T, c *Cipher, s string) string {
	t.Helper()
	enc, err := c.Encrypt(s)
	require.NoError(t, err)
	return enc
}

func TestCipherRoundTripAndRotation(t *testing.T) {
	var oldKey, newKey fernet.Key
	require.NoError(t, oldKey.Generate())
	require.NoError(t, newKey.Generate())

	old, err := NewCipher(oldKey.Encode())
	require.NoError(t, err)
	tok := mustEncrypt(t, old, "secret")

	rotated, err := NewCipher(newKey.Encode(), oldKey.Encode())
	require.NoError(t, err)
	plain, err := rotated.Decrypt(tok)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	other := newTestCipher(t)
	_, err = other.Decrypt(tok)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewCipherNoKeys(t *testing.T) {
	_, err := NewCipher()
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestResolveNotConfigured(t *testing.T) {
	c := newTestCipher(t)
	repo := newMockRepo()
	r := NewResolver(repo, c, Config{})

	_, err := r.Resolve(context.Background(), "org-1", domain.ProviderWhatsApp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, "Integration not configured for whatsapp", err.Error())

	repo.put(&domain.Integration{ID: "i1", OrganizationID: "org-1", Provider: domain.ProviderWhatsApp, IsActive: true})
	_, err = r.Resolve(context.Background(), "org-1", domain.ProviderWhatsApp)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "Token missing")
}

func TestResolveDecryptFailureIsDistinct(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)
	repo := newMockRepo()
	repo.put(&domain.Integration{
		ID: "i1", OrganizationID: "org-1", Provider: domain.ProviderTelegram, IsActive: true,
		TokenEncrypted: mustEncrypt(t, other, "bot-token"),
	})
	r := NewResolver(repo, c, Config{})

	_, err := r.Resolve(context.Background(), "org-1", domain.ProviderTelegram)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.False(t, errors.Is(err, ErrNotConfigured))
}

func TestResolveDecryptsExtra(t *testing.T) {
	c := newTestCipher(t)
	repo := newMockRepo()
	repo.put(&domain.Integration{
		ID: "i1", OrganizationID: "org-1", Provider: domain.ProviderWhatsApp, IsActive: true,
		TokenEncrypted: mustEncrypt(t, c, "auth-token"),
		Extra: map[string]any{
			"account_sid":          "AC123",
			"from_whatsapp":        "+15550001111",
			"api_secret_encrypted": mustEncrypt(t, c, "hidden"),
		},
	})
	r := NewResolver(repo, c, Config{})

	creds, err := r.Resolve(context.Background(), "org-1", domain.ProviderWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "auth-token", creds.Token)
	assert.Equal(t, "AC123", creds.ExtraString("account_sid"))
	assert.Equal(t, "hidden", creds.ExtraString("api_secret"))
	_, hasEncrypted := creds.Extra["api_secret_encrypted"]
	assert.False(t, hasEncrypted)
}

func tokenServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
}

func googleIntegration(t *testing.T, c *Cipher, expiresAt time.Time) *domain.Integration {
	return &domain.Integration{
		ID: "g1", OrganizationID: "org-1", Provider: domain.ProviderGoogleCalendar, IsActive: true,
		Extra: map[string]any{
			"access_token_encrypted":  mustEncrypt(t, c, "stale-access"),
			"refresh_token_encrypted": mustEncrypt(t, c, "refresh-1"),
			"client_id_encrypted":     mustEncrypt(t, c, "client"),
			"client_secret_encrypted": mustEncrypt(t, c, "shh"),
			"access_expires_at":       float64(expiresAt.Unix()),
			"calendar_id":             "primary",
		},
	}
}

func TestResolveGoogleRefreshesNearExpiry(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := newTestCipher(t)
	repo := newMockRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.put(googleIntegration(t, c, now.Add(30*time.Second)))

	r := NewResolver(repo, c, Config{
		GoogleEndpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	})
	r.now = func() time.Time { return now }

	creds, err := r.Resolve(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", creds.Token)
	assert.Equal(t, "primary", creds.ExtraString("calendar_id"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, repo.updates)

	stored, err := repo.GetActive(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	require.NoError(t, err)
	enc, _ := stored.Extra["access_token_encrypted"].(string)
	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", plain)
}

func TestResolveGoogleSkipsRefreshWhenValid(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := newTestCipher(t)
	repo := newMockRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.put(googleIntegration(t, c, now.Add(10*time.Minute)))

	r := NewResolver(repo, c, Config{GoogleEndpoint: oauth2.Endpoint{TokenURL: srv.URL}})
	r.now = func() time.Time { return now }

	creds, err := r.Resolve(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, "stale-access", creds.Token)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, repo.updates)
}

func TestResolveGoogleRefreshFailureKeepsOldToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestCipher(t)
	repo := newMockRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.put(googleIntegration(t, c, now.Add(-time.Minute)))

	r := NewResolver(repo, c, Config{GoogleEndpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}})
	r.now = func() time.Time { return now }

	creds, err := r.Resolve(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, "stale-access", creds.Token)
	assert.Equal(t, 0, repo.updates)
}

func TestResolveGoogleRefreshNotSavedFails(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls)
	defer srv.Close()

	c := newTestCipher(t)
	repo := newMockRepo()
	repo.updateErr = errors.New("connection reset")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.put(googleIntegration(t, c, now.Add(-time.Minute)))

	r := NewResolver(repo, c, Config{GoogleEndpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}})
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.updateErr)
	var rerr *ResolveError
	assert.False(t, errors.As(err, &rerr))
	assert.Equal(t, 1, calls)
}

func TestResolveGoogleUndecryptable(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)
	repo := newMockRepo()
	repo.put(googleIntegration(t, other, time.Now().Add(time.Hour)))

	r := NewResolver(repo, c, Config{})
	_, err := r.Resolve(context.Background(), "org-1", domain.ProviderGoogleCalendar)
	assert.ErrorIs(t, err, ErrDecrypt)
}
