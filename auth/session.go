package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/kvstore"
)

const sessionKeyPrefix = "session:"

// Session is the server-side record behind a session cookie. It lives only
// in the key-value store and expires with the store key.
type Session struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Subject     string    `json:"sub"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	IDToken     string    `json:"id_token"`
	AccessToken string    `json:"access_token,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewSessionID returns an opaque session identifier: 32 random bytes,
// base64url-encoded. It carries no user data.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SessionManager stores sessions in the key-value store, JSON-encoded.
type SessionManager struct {
	store kvstore.Store
}

func NewSessionManager(store kvstore.Store) *SessionManager {
	return &SessionManager{store: store}
}

// Create assigns sess a fresh ID and stores it with the given TTL.
func (m *SessionManager) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	id, err := NewSessionID()
	if err != nil {
		return err
	}
	sess.ID = id

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.store.Put(ctx, sessionKeyPrefix+id, string(payload), ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("session", id[:8]+"...").
		Dur("ttl", ttl).
		Msg("session created")
	return nil
}

// Get resolves a session by ID. Absent or expired sessions return
// apperr.ErrSessionNotFound.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := m.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, sessionKeyPrefix+id)
}
