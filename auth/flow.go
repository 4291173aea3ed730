package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/config"
	"github.com/reelcritic/reelcritic/domain"
	"github.com/reelcritic/reelcritic/kvstore"
)

const (
	stateKeyPrefix = "oidc:state:"
	stateTTL       = 10 * time.Minute
)

// transientState is the consume-once record created at login initiation and
// redeemed by the callback. Its key is the OAuth2 state value.
type transientState struct {
	Verifier string `json:"verifier"`
	Nonce    string `json:"nonce"`
}

// Flow orchestrates the hosted login dance: initiate, callback, logout, and
// status checks. Illegal transitions surface as missing or expired store
// state, never as reachable code paths.
type Flow struct {
	cfg      *config.Config
	store    kvstore.Store
	sessions *SessionManager
	verifier *Verifier
	users    domain.UserRepository
	oauth    *oauth2.Config
	client   *http.Client
	now      func() time.Time
}

func NewFlow(cfg *config.Config, store kvstore.Store, sessions *SessionManager, verifier *Verifier, users domain.UserRepository) *Flow {
	return &Flow{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		verifier: verifier,
		users:    users,
		oauth: &oauth2.Config{
			ClientID:     cfg.ProviderClientID,
			ClientSecret: cfg.ProviderSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL(),
				TokenURL: cfg.TokenURL(),
			},
		},
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Initiate starts a login attempt: it stores the transient state record and
// returns the provider authorization URL to redirect to. With signup set,
// the hosted UI's sign-up-first screen is targeted instead.
func (f *Flow) Initiate(ctx context.Context, signup bool) (string, error) {
	if !f.cfg.ProviderConfigured() {
		return "", apperr.ErrProviderNotConfigured
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier, err := GenerateVerifier()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(transientState{Verifier: verifier, Nonce: nonce})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transient state: %w", err)
	}
	if err := f.store.Put(ctx, stateKeyPrefix+state, string(payload), stateTTL); err != nil {
		return "", fmt.Errorf("failed to store transient state: %w", err)
	}

	authURL := f.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", Challenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
	if signup {
		// The hosted UI serves the sign-up screen from /signup with the
		// same query parameters.
		if u, err := url.Parse(authURL); err == nil {
			u.Path = "/signup"
			authURL = u.String()
		}
	}

	log.Ctx(ctx).Info().Bool("signup", signup).Msg("login initiated")
	return authURL, nil
}

// Callback completes a login attempt. Each step is a precondition for the
// next: state lookup, token exchange, identity token verification, user
// upsert, session establishment. It returns the established session and its
// TTL (the cookie max-age).
func (f *Flow) Callback(ctx context.Context, code, state string) (*Session, time.Duration, error) {
	if code == "" || state == "" {
		return nil, 0, apperr.ErrMissingParameters
	}

	// Consume exactly once, atomically: of any number of callbacks racing on
	// the same state, only one sees the record.
	raw, ok, err := f.store.GetDel(ctx, stateKeyPrefix+state)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to consume transient state: %w", err)
	}
	if !ok {
		// Covers replay, timeout, and states we never issued, uniformly.
		return nil, 0, apperr.ErrInvalidOrExpiredState
	}
	var ts transientState
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return nil, 0, apperr.ErrInvalidOrExpiredState
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := f.oauth.Exchange(exchangeCtx, code,
		oauth2.SetAuthURLParam("code_verifier", ts.Verifier),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperr.ErrTokenExchangeFailed, err)
	}
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, 0, fmt.Errorf("%w: no identity token in response", apperr.ErrTokenExchangeFailed)
	}

	claims, err := f.verifier.Verify(ctx, rawIDToken, tok.AccessToken)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperr.ErrInvalidIdentityToken, err)
	}
	// Initiate always sends a nonce, so the token must echo it back. A token
	// without the claim is rejected, not waved through.
	if claims.Nonce != ts.Nonce {
		return nil, 0, fmt.Errorf("%w: nonce mismatch", apperr.ErrInvalidIdentityToken)
	}

	user, err := f.upsertUser(ctx, claims)
	if err != nil {
		return nil, 0, err
	}

	ttl := f.sessionTTL(claims, tok)
	if ttl <= 0 {
		return nil, 0, fmt.Errorf("%w: already expired", apperr.ErrInvalidIdentityToken)
	}

	sess := &Session{
		UserID:      user.ID,
		Subject:     claims.Subject,
		Username:    user.Username,
		Email:       claims.Email,
		DisplayName: claims.Name,
		IDToken:     rawIDToken,
		AccessToken: tok.AccessToken,
		IssuedAt:    f.now(),
		ExpiresAt:   f.now().Add(ttl),
	}
	if err := f.sessions.Create(ctx, sess, ttl); err != nil {
		return nil, 0, err
	}

	log.Ctx(ctx).Info().
		Str("username", user.Username).
		Int64("user_id", user.ID).
		Msg("login completed")
	return sess, ttl, nil
}

// sessionTTL bounds the session lifetime by the configured maximum, the
// identity token's expiry, and the provider-reported token lifetime.
func (f *Flow) sessionTTL(claims *IdentityClaims, tok *oauth2.Token) time.Duration {
	ttl := time.Duration(f.cfg.SessionMaxTTLSec) * time.Second
	if d := claims.ExpiresAt.Sub(f.now()); d < ttl {
		ttl = d
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(f.now()); d < ttl {
			ttl = d
		}
	}
	return ttl
}

// upsertUser resolves the local user row for the federated identity,
// creating it on first login.
func (f *Flow) upsertUser(ctx context.Context, claims *IdentityClaims) (*domain.User, error) {
	username := claims.DisplayUsername()
	if username == "" {
		return nil, fmt.Errorf("%w: no usable username claim", apperr.ErrInvalidIdentityToken)
	}

	user, err := f.users.FindByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user = &domain.User{Username: username}
	if err := f.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Ctx(ctx).Info().Str("username", username).Msg("user created on first login")
	return user, nil
}

// Logout tears down the server-side session. An absent session is not an
// error.
func (f *Flow) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return f.sessions.Delete(ctx, sessionID)
}

// ProviderLogoutURL returns the hosted logout endpoint for navigational
// logouts, or "" when full provider logout is not configured.
func (f *Flow) ProviderLogoutURL() string {
	if !f.cfg.ProviderConfigured() || f.cfg.PostLogoutURI == "" {
		return ""
	}
	return f.cfg.LogoutURL()
}

// Status reports the authenticated identity behind a session cookie.
type Status struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Username        string `json:"username,omitempty"`
	Subject         string `json:"sub,omitempty"`
	Email           string `json:"email,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
}

// Status resolves the session and re-verifies its stored identity token, so
// a revoked or expired token is not trusted just because the session record
// still exists. No cookie, no session, and verification failure all report
// the same unauthenticated result.
func (f *Flow) Status(ctx context.Context, sessionID string) *Status {
	if sessionID == "" {
		return &Status{}
	}
	sess, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return &Status{}
	}
	if _, err := f.verifier.Verify(ctx, sess.IDToken, sess.AccessToken); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("session token failed re-verification")
		return &Status{}
	}
	return &Status{
		IsAuthenticated: true,
		Username:        sess.Username,
		Subject:         sess.Subject,
		Email:           sess.Email,
		DisplayName:     sess.DisplayName,
	}
}
