// Package crypt provides the encryption gate that seals values before they
// enter the fast store or the event log and opens them on the way back.
//
// Values are JSON-encoded, sealed with AES-256-GCM under a key derived from a
// process-wide secret, and carried as base64 text. The nonce differs per call,
// so sealing the same value twice never yields the same ciphertext. The secret
// is resolved lazily from the environment at call time: a missing key is a
// runtime configuration failure at the call site, not a startup check.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/merchstream/writeback/errors"
)

// DefaultKeyEnv is the environment variable holding the process-wide secret.
const DefaultKeyEnv = "WRITEBACK_SECRET_KEY"

// Gate seals and opens payloads with AES-256-GCM.
type Gate struct {
	keyEnv string

	mu   sync.RWMutex
	aead cipher.AEAD // cached after the first successful key load
}

// New creates a Gate reading its secret from keyEnv. An empty keyEnv falls
// back to DefaultKeyEnv.
func New(keyEnv string) *Gate {
	if keyEnv == "" {
		keyEnv = DefaultKeyEnv
	}
	return &Gate{keyEnv: keyEnv}
}

// cipherHandle returns the cached AEAD, loading the secret on first use.
// Concurrent callers share one initialization; the handle is cached only
// after a successful load so a later-provisioned secret is picked up.
func (g *Gate) cipherHandle() (cipher.AEAD, error) {
	g.mu.RLock()
	aead := g.aead
	g.mu.RUnlock()
	if aead != nil {
		return aead, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aead != nil {
		return g.aead, nil
	}

	secret := os.Getenv(g.keyEnv)
	if secret == "" {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: environment variable %s is empty", errors.ErrMissingSecretKey, g.keyEnv),
			"Gate", "cipherHandle", "load secret key")
	}

	// The secret is an opaque string; derive a fixed 32-byte key from it.
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Gate", "cipherHandle", "initialize cipher")
	}
	aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Gate", "cipherHandle", "initialize GCM")
	}

	g.aead = aead
	return aead, nil
}

// Seal encodes v as JSON and encrypts it. The result is base64 text carrying
// nonce plus ciphertext.
func (g *Gate) Seal(v any) (string, error) {
	aead, err := g.cipherHandle()
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapValidation(err, "Gate", "Seal", "encode payload")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.WrapInfrastructure(err, "Gate", "Seal", "generate nonce")
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts sealed text produced by Seal and decodes the JSON payload
// into dst.
func (g *Gate) Open(sealed string, dst any) error {
	aead, err := g.cipherHandle()
	if err != nil {
		return err
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return errors.WrapValidation(err, "Gate", "Open", "decode ciphertext")
	}
	if len(raw) < aead.NonceSize() {
		return errors.WrapValidation(
			fmt.Errorf("ciphertext shorter than nonce (%d bytes)", len(raw)),
			"Gate", "Open", "decode ciphertext")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.WrapValidation(err, "Gate", "Open", "authenticate ciphertext")
	}

	if err := json.Unmarshal(plaintext, dst); err != nil {
		return errors.WrapValidation(err, "Gate", "Open", "decode payload")
	}
	return nil
}
