package credentials

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

// Cipher encrypts and decrypts integration secrets with Fernet. The first
// key encrypts; every key is tried on decrypt so keys can be rotated.
type Cipher struct {
	keys []*fernet.Key
}

// NewCipher decodes base64url Fernet keys.
func NewCipher(keys ...string) (*Cipher, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	decoded, err := fernet.DecodeKeys(keys...)
	if err != nil {
		return nil, fmt.Errorf("decode fernet keys: %w", err)
	}
	return &Cipher{keys: decoded}, nil
}

// Encrypt returns the Fernet token for plain.
func (c *Cipher) Encrypt(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt returns the plaintext of a Fernet token. Tokens never expire.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), -1*time.Second, c.keys)
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}
