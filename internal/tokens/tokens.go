// Package tokens is the reversible encoder for identifiers exposed to
// clients. Raw CRM IDs never appear in links or payloads; they travel as
// opaque URL-safe tokens and are decoded-then-compared against the
// authenticated principal before any privileged action.
package tokens

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

type Codec struct {
	aead cipher.AEAD
}

func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("empty token secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

func (c *Codec) EncryptID(id int64) string {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		// crypto/rand failing means the host is broken; a repeated nonce
		// would be worse than stopping.
		panic(err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(strconv.FormatInt(id, 10)), nil)
	return base64.RawURLEncoding.EncodeToString(out)
}

func (c *Codec) DecryptID(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if len(raw) < c.aead.NonceSize() {
		return 0, ErrInvalidToken
	}
	nonce, ct := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(string(plain), 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
