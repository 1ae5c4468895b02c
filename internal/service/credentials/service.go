package credentials

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// refreshLeeway is how close to expiry an OAuth access token is refreshed.
const refreshLeeway = 60 * time.Second

// Config configures a Resolver.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleEndpoint     oauth2.Endpoint
	RefreshTimeout     time.Duration
}

// Resolver turns stored integrations into usable credentials.
type Resolver struct {
	repo   Repository
	cipher *Cipher
	cfg    Config
	now    func() time.Time
}

// NewResolver creates a credential resolver.
func NewResolver(repo Repository, cipher *Cipher, cfg Config) *Resolver {
	if cfg.GoogleEndpoint.TokenURL == "" {
		cfg.GoogleEndpoint = google.Endpoint
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	return &Resolver{repo: repo, cipher: cipher, cfg: cfg, now: time.Now}
}

func notConfigured(format string, args ...any) error {
	return &ResolveError{Err: ErrNotConfigured, Reason: fmt.Sprintf(format, args...)}
}

func decryptFailed(provider string) error {
	return &ResolveError{Err: ErrDecrypt, Reason: fmt.Sprintf("Credentials for %s integration could not be decrypted", provider)}
}

// Resolve returns the decrypted credentials for (org, provider).
func (r *Resolver) Resolve(ctx context.Context, orgID, provider string) (domain.Credentials, error) {
	integ, err := r.repo.GetActive(ctx, orgID, provider)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Credentials{}, notConfigured("Integration not configured for %s", provider)
		}
		return domain.Credentials{}, fmt.Errorf("load integration: %w", err)
	}

	if provider == domain.ProviderGoogleCalendar {
		return r.resolveGoogle(ctx, integ)
	}

	if integ.TokenEncrypted == "" {
		return domain.Credentials{}, notConfigured("Token missing for %s integration", provider)
	}
	token, err := r.cipher.Decrypt(integ.TokenEncrypted)
	if err != nil {
		return domain.Credentials{}, decryptFailed(provider)
	}
	extra, err := r.decryptExtra(integ.Extra)
	if err != nil {
		return domain.Credentials{}, decryptFailed(provider)
	}
	return domain.Credentials{Token: token, Extra: extra}, nil
}

// decryptExtra copies extra, replacing every "<name>_encrypted" entry with
// its plaintext under "<name>". A plain value already present wins.
func (r *Resolver) decryptExtra(extra map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if !strings.HasSuffix(k, "_encrypted") {
			out[k] = v
		}
	}
	for k, v := range extra {
		name, ok := strings.CutSuffix(k, "_encrypted")
		if !ok {
			continue
		}
		enc, _ := v.(string)
		if enc == "" {
			continue
		}
		if plain, _ := out[name].(string); plain != "" {
			continue
		}
		plain, err := r.cipher.Decrypt(enc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[name] = plain
	}
	return out, nil
}

var googleSecretKeys = []string{"access_token", "refresh_token", "client_id", "client_secret"}

func (r *Resolver) resolveGoogle(ctx context.Context, integ *domain.Integration) (domain.Credentials, error) {
	provider := integ.Provider
	stored := integ.Extra
	secrets := make(map[string]string, len(googleSecretKeys))
	hadEncrypted, anyDecrypted := false, false
	for _, key := range googleSecretKeys {
		if plain, _ := stored[key].(string); plain != "" {
			secrets[key] = plain
			anyDecrypted = true
			continue
		}
		enc, _ := stored[key+"_encrypted"].(string)
		if enc == "" {
			continue
		}
		hadEncrypted = true
		if plain, err := r.cipher.Decrypt(enc); err == nil {
			secrets[key] = plain
			anyDecrypted = true
		}
	}
	if hadEncrypted && !anyDecrypted {
		return domain.Credentials{}, decryptFailed(provider)
	}
	if secrets["access_token"] == "" && secrets["refresh_token"] == "" {
		return domain.Credentials{}, notConfigured("Token missing for %s integration", provider)
	}
	if secrets["client_id"] == "" {
		secrets["client_id"] = r.cfg.GoogleClientID
	}
	if secrets["client_secret"] == "" {
		secrets["client_secret"] = r.cfg.GoogleClientSecret
	}

	access := secrets["access_token"]
	expiresAt, hasExpiry := unixSeconds(stored["access_expires_at"])
	due := access == "" || (hasExpiry && !r.now().Before(expiresAt.Add(-refreshLeeway)))
	canRefresh := secrets["refresh_token"] != "" && secrets["client_id"] != "" && secrets["client_secret"] != ""
	if due && canRefresh {
		tok, err := r.refresh(ctx, secrets)
		if err != nil {
			log.Printf("[Credentials] Google refresh failed for org %s: %v", integ.OrganizationID, err)
		} else {
			// A refresh that cannot be saved fails the resolve.
			if err := r.persistGoogle(ctx, integ, tok); err != nil {
				return domain.Credentials{}, fmt.Errorf("persist refreshed %s token for org %s: %w", provider, integ.OrganizationID, err)
			}
			access = tok.AccessToken
		}
	}
	if access == "" {
		return domain.Credentials{}, notConfigured("Token missing for %s integration", provider)
	}

	extra := make(map[string]any, len(stored))
	for k, v := range stored {
		if strings.HasSuffix(k, "_encrypted") || k == "access_expires_at" || k == "access_token" {
			continue
		}
		extra[k] = v
	}
	return domain.Credentials{Token: access, Extra: extra}, nil
}

func (r *Resolver) refresh(ctx context.Context, secrets map[string]string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RefreshTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: r.cfg.RefreshTimeout})

	oc := &oauth2.Config{
		ClientID:     secrets["client_id"],
		ClientSecret: secrets["client_secret"],
		Endpoint:     r.cfg.GoogleEndpoint,
	}
	// An expired seed token forces the source to hit the token endpoint.
	seed := &oauth2.Token{RefreshToken: secrets["refresh_token"], Expiry: r.now().Add(-time.Hour)}
	return oc.TokenSource(ctx, seed).Token()
}

func (r *Resolver) persistGoogle(ctx context.Context, integ *domain.Integration, tok *oauth2.Token) error {
	enc, err := r.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	extra := make(map[string]any, len(integ.Extra)+2)
	for k, v := range integ.Extra {
		extra[k] = v
	}
	delete(extra, "access_token")
	extra["access_token_encrypted"] = enc
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = r.now().Add(time.Hour)
	}
	extra["access_expires_at"] = float64(expiry.Unix())
	if tok.RefreshToken != "" {
		encRefresh, err := r.cipher.Encrypt(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		delete(extra, "refresh_token")
		extra["refresh_token_encrypted"] = encRefresh
	}
	if err := r.repo.UpdateExtra(ctx, integ.ID, extra); err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	integ.Extra = extra
	return nil
}

func unixSeconds(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case int:
		return time.Unix(int64(n), 0), true
	}
	return time.Time{}, false
}
