package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// sealedPrefix marks a persisted value as encrypted. Values without it
// are returned as-is on read, so encryption can be enabled on a store
// that already holds plaintext records.
const sealedPrefix = "enc1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	ports.Store
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts message
// content, session summaries and suggestions at rest using AES-GCM.
// Metrics, tool call logs and timestamps stay readable for the
// aggregation queries.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.Store) ports.Store {
		return &encryptionMiddleware{
			Store:  next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) SaveMessage(ctx context.Context, msg domain.Message) (string, error) {
	sealed, err := m.seal(msg.Content)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt message content: %w", err)
	}
	msg.Content = sealed
	return m.Store.SaveMessage(ctx, msg)
}

func (m *encryptionMiddleware) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	msgs, err := m.Store.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		plain, err := m.open(msgs[i].Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message %s: %w", msgs[i].ID, err)
		}
		msgs[i].Content = plain
	}
	return msgs, nil
}

func (m *encryptionMiddleware) GetOrCreateSession(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	sess, err := m.Store.GetOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return domain.Session{}, err
	}
	return m.openSession(sess)
}

func (m *encryptionMiddleware) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, err := m.Store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return m.openSession(sess)
}

func (m *encryptionMiddleware) ListSessions(ctx context.Context) ([]domain.Session, error) {
	sessions, err := m.Store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i], err = m.openSession(sessions[i])
		if err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (m *encryptionMiddleware) Summary(ctx context.Context, sessionID string) (string, error) {
	summary, err := m.Store.Summary(ctx, sessionID)
	if err != nil {
		return "", err
	}
	plain, err := m.open(summary)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt summary for %s: %w", sessionID, err)
	}
	return plain, nil
}

func (m *encryptionMiddleware) SetSummary(ctx context.Context, sessionID, userID, summary string) error {
	sealed, err := m.seal(summary)
	if err != nil {
		return fmt.Errorf("failed to encrypt summary: %w", err)
	}
	return m.Store.SetSummary(ctx, sessionID, userID, sealed)
}

func (m *encryptionMiddleware) SaveSuggestions(ctx context.Context, rec domain.SuggestionRecord) error {
	sealed := make([]string, len(rec.Suggestions))
	for i, s := range rec.Suggestions {
		var err error
		if sealed[i], err = m.seal(s); err != nil {
			return fmt.Errorf("failed to encrypt suggestion: %w", err)
		}
	}
	rec.Suggestions = sealed
	return m.Store.SaveSuggestions(ctx, rec)
}

func (m *encryptionMiddleware) SuggestionsByMessage(ctx context.Context, messageID string) (domain.SuggestionRecord, error) {
	rec, err := m.Store.SuggestionsByMessage(ctx, messageID)
	if err != nil {
		return domain.SuggestionRecord{}, err
	}
	return m.openSuggestions(rec)
}

func (m *encryptionMiddleware) SuggestionsBySession(ctx context.Context, sessionID string, limit int) ([]domain.SuggestionRecord, error) {
	recs, err := m.Store.SuggestionsBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i], err = m.openSuggestions(recs[i])
		if err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (m *encryptionMiddleware) openSession(sess domain.Session) (domain.Session, error) {
	plain, err := m.open(sess.Summary)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to decrypt summary for %s: %w", sess.SessionID, err)
	}
	sess.Summary = plain
	return sess, nil
}

func (m *encryptionMiddleware) openSuggestions(rec domain.SuggestionRecord) (domain.SuggestionRecord, error) {
	plain := make([]string, len(rec.Suggestions))
	for i, s := range rec.Suggestions {
		var err error
		if plain[i], err = m.open(s); err != nil {
			return domain.SuggestionRecord{}, fmt.Errorf("failed to decrypt suggestion for %s: %w", rec.MessageID, err)
		}
	}
	rec.Suggestions = plain
	return rec, nil
}

// seal encrypts a value with the active key and wraps it in the
// envelope prefix. Empty values stay empty.
func (m *encryptionMiddleware) seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	ciphertext, err := encrypt([]byte(value), m.config.ActiveKey)
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// open decrypts an enveloped value, trying the active key then each
// fallback. Values without the envelope prefix are returned unchanged.
func (m *encryptionMiddleware) open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
