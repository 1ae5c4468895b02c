package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how long a signed link stays valid.
const DefaultMaxAge = 7 * 24 * time.Hour

// clockSkew tolerates tokens stamped slightly ahead of the verifier.
const clockSkew = 5 * time.Minute

// Fields are joined with "|". Both "|" and "%" are valid in an email
// local part, so each field is escaped before joining.
var (
	fieldEscaper   = strings.NewReplacer("%", "%25", "|", "%7C")
	fieldUnescaper = strings.NewReplacer("%7C", "|", "%7c", "|", "%25", "%")
)

func joinFields(fields ...string) string {
	for i, f := range fields {
		fields[i] = fieldEscaper.Replace(f)
	}
	return strings.Join(fields, "|")
}

// Claims are the fields recovered from a verified token.
type Claims struct {
	OrganizationID string
	Email          string
	JobID          string
	RecipientID    string
	IssuedAt       time.Time
}

// Legacy reports whether the token carried only organization and email.
func (c *Claims) Legacy() bool { return c.JobID == "" && c.RecipientID == "" }

// Codec signs and verifies unsubscribe tokens.
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. A zero maxAge uses DefaultMaxAge.
func NewCodec(secret string, maxAge time.Duration) *Codec {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Codec{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// Sign returns a token for one email recipient of one job.
func (c *Codec) Sign(orgID, email, jobID, recipientID string) string {
	return c.sign(joinFields(orgID, email, jobID, recipientID))
}

// SignLegacy returns a two-field token naming only organization and email.
func (c *Codec) SignLegacy(orgID, email string) string {
	return c.sign(joinFields(orgID, email))
}

func (c *Codec) sign(payload string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	ts := strconv.FormatInt(c.now().Unix(), 10)
	return encoded + "." + ts + "." + c.mac(encoded+"."+ts)
}

func (c *Codec) mac(data string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the signature and age of token and returns its claims.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	encoded, ts, sig := parts[0], parts[1], parts[2]
	if !hmac.Equal([]byte(c.mac(encoded+"."+ts)), []byte(strings.ToLower(sig))) {
		return nil, ErrInvalidToken
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	issued := time.Unix(unix, 0)
	age := c.now().Sub(issued)
	if age < -clockSkew {
		return nil, ErrInvalidToken
	}
	if age > c.maxAge {
		return nil, ErrExpiredToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, ErrInvalidToken
	}
	fields := strings.Split(string(raw), "|")
	for i, f := range fields {
		fields[i] = fieldUnescaper.Replace(f)
	}
	claims := &Claims{IssuedAt: issued}
	switch len(fields) {
	case 4:
		claims.JobID, claims.RecipientID = fields[2], fields[3]
		fallthrough
	case 2:
		claims.OrganizationID, claims.Email = fields[0], fields[1]
	default:
		return nil, ErrInvalidToken
	}
	if claims.OrganizationID == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
