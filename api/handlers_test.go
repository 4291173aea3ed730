package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcritic/reelcritic/auth"
	"github.com/reelcritic/reelcritic/config"
	"github.com/reelcritic/reelcritic/domain"
	"github.com/reelcritic/reelcritic/kvstore"
	"github.com/reelcritic/reelcritic/movies"
)

type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int64
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = r.nextID
	r.users[u.Username] = u
	return nil
}

type memReviewRepo struct {
	mu      sync.Mutex
	reviews map[int64]*domain.Review
	nextID  int64
}

func newMemReviewRepo() *memReviewRepo {
	return &memReviewRepo{reviews: make(map[int64]*domain.Review)}
}

func (r *memReviewRepo) FindByID(_ context.Context, id int64) (*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rev, ok := r.reviews[id]; ok {
		cp := *rev
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memReviewRepo) ListByMovie(_ context.Context, movieID int64) ([]domain.MovieReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MovieReview
	for _, rev := range r.reviews {
		if rev.MovieID == movieID {
			out = append(out, domain.MovieReview{Review: *rev})
		}
	}
	return out, nil
}

func (r *memReviewRepo) ListByUser(_ context.Context, userID int64) ([]domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Review
	for _, rev := range r.reviews {
		if rev.UserID == userID {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (r *memReviewRepo) Create(_ context.Context, rev *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rev.ID = r.nextID
	cp := *rev
	r.reviews[rev.ID] = &cp
	return nil
}

func (r *memReviewRepo) Update(_ context.Context, rev *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[rev.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *rev
	r.reviews[rev.ID] = &cp
	return nil
}

func (r *memReviewRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.reviews, id)
	return nil
}

type apiFixture struct {
	e        *echo.Echo
	cfg      *config.Config
	store    *kvstore.MemoryStore
	sessions *auth.SessionManager
	reviews  *memReviewRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		FrontendOrigin:    "https://app.example.com",
		ProviderRegion:    "eu-west-1",
		ProviderUserPool:  "eu-west-1_test",
		ProviderClientID:  "test-client-id",
		ProviderDomain:    "auth.example.com",
		ProviderScope:     "openid email",
		RedirectURI:       "https://app.example.com/api/auth/callback",
		PostLoginURI:      "/",
		PostLogoutURI:     "https://app.example.com/",
		SessionCookieName: "app_session",
		SessionMaxTTLSec:  3600,
		MovieCacheTTLSec:  300,
	}

	store := kvstore.NewMemoryStore()
	t.Cleanup(store.Close)

	sessions := auth.NewSessionManager(store)
	verifier := auth.NewVerifier(cfg.IssuerURL(), cfg.ProviderClientID, cfg.JWKSURL(), time.Hour)
	users := &memUserRepo{users: make(map[string]*domain.User)}
	flow := auth.NewFlow(cfg, store, sessions, verifier, users)

	reviews := newMemReviewRepo()
	cache := movies.NewResponseCache(store, 300*time.Second)
	movieSvc := movies.NewService("test-key", "http://127.0.0.1:1", reviews, cache)

	e := echo.New()
	New(cfg, flow, sessions, movieSvc, cache, reviews).RegisterRoutes(e)

	return &apiFixture{e: e, cfg: cfg, store: store, sessions: sessions, reviews: reviews}
}

func (f *apiFixture) login(t *testing.T) (*auth.Session, *http.Cookie) {
	t.Helper()
	sess := &auth.Session{
		UserID:   1,
		Subject:  "subject-1",
		Username: "alice",
		IDToken:  "raw-id-token",
	}
	require.NoError(t, f.sessions.Create(context.Background(), sess, time.Minute))
	return sess, &http.Cookie{Name: f.cfg.SessionCookieName, Value: sess.ID}
}

func (f *apiFixture) request(method, target string, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestLoginRedirectsToProvider(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "auth.example.com", loc.Host)
	assert.Equal(t, "/oauth2/authorize", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestLoginSignupHint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/api/auth/login?signup=1", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/signup", loc.Path)
}

func TestLoginProviderNotConfigured(t *testing.T) {
	f := newAPIFixture(t)
	f.cfg.ProviderDomain = ""

	rec := f.request(http.MethodGet, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "provider_not_configured", body["error"])
}

func TestCallbackWithMismatchedState(t *testing.T) {
	f := newAPIFixture(t)

	// Initiate to create a real pending login, then call back with a state
	// that was never issued.
	rec := f.request(http.MethodGet, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.request(http.MethodGet, "/api/auth/callback?code=auth-code&state=not-the-one", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_or_expired_state", body["error"])
}

func TestCallbackMissingParameters(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/api/auth/callback", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_parameters", body["error"])
}

func TestAuthStatusWithoutCookie(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/api/auth-status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status auth.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.IsAuthenticated)
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutClearsSessionAndCookie(t *testing.T) {
	f := newAPIFixture(t)
	sess, cookie := f.login(t)

	rec := f.request(http.MethodPost, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cfg.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "cookie must be cleared")

	_, err := f.sessions.Get(context.Background(), sess.ID)
	assert.Error(t, err)
}

func TestLogoutGETRedirectsToProvider(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.login(t)

	rec := f.request(http.MethodGet, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://auth.example.com/logout")
}

func TestCreateReviewRequiresSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodPost, "/api/reviews", `{"movie_id":550,"rating":5}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateReviewAndReadBack(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	_, cookie := f.login(t)

	// Warm cache entries so invalidation is observable.
	require.NoError(t, f.store.Put(ctx, "movies:response:id:550", "{}", time.Minute))
	require.NoError(t, f.store.Put(ctx, "movies:response:random", "{}", time.Minute))

	rec := f.request(http.MethodPost, "/api/reviews", `{"movie_id":550,"rating":5,"comment":"great"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.MovieReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(550), created.MovieID)
	assert.Equal(t, "alice", created.Username)
	require.NotNil(t, created.Rating)
	assert.Equal(t, 5, *created.Rating)

	// Visible in "my reviews".
	rec = f.request(http.MethodGet, "/api/reviews/mine", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []domain.Review
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	// Both cache entries invalidated.
	_, ok, _ := f.store.Get(ctx, "movies:response:id:550")
	assert.False(t, ok)
	_, ok, _ = f.store.Get(ctx, "movies:response:random")
	assert.False(t, ok)
}

func TestCreateReviewRequiresRatingOrComment(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.login(t)

	rec := f.request(http.MethodPost, "/api/reviews", `{"movie_id":550}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateReviewOwnerOnly(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.login(t)

	other := &domain.Review{MovieID: 550, UserID: 99}
	require.NoError(t, f.reviews.Create(context.Background(), other))

	rec := f.request(http.MethodPut, "/api/reviews/1", `{"rating":1}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateReview(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	sess, cookie := f.login(t)

	rating := 3
	mine := &domain.Review{MovieID: 550, UserID: sess.UserID, Rating: &rating}
	require.NoError(t, f.reviews.Create(ctx, mine))

	rec := f.request(http.MethodPut, "/api/reviews/1", `{"rating":4,"comment":"better on rewatch"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := f.reviews.FindByID(ctx, mine.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 4, *updated.Rating)
}

func TestDeleteReviewInvalidatesCache(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	sess, cookie := f.login(t)

	rating := 5
	mine := &domain.Review{MovieID: 550, UserID: sess.UserID, Rating: &rating}
	require.NoError(t, f.reviews.Create(ctx, mine))

	require.NoError(t, f.store.Put(ctx, "movies:response:id:550", "{}", time.Minute))
	require.NoError(t, f.store.Put(ctx, "movies:response:random", "{}", time.Minute))

	rec := f.request(http.MethodDelete, "/api/reviews/1", "", cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.reviews.FindByID(ctx, mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, ok, _ := f.store.Get(ctx, "movies:response:id:550")
	assert.False(t, ok)
	_, ok, _ = f.store.Get(ctx, "movies:response:random")
	assert.False(t, ok)
}

func TestDeleteReviewNotFound(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.login(t)

	rec := f.request(http.MethodDelete, "/api/reviews/12345", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMovieHandlerRejectsBadID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/api/movies/not-a-number", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionCookieAttributes(t *testing.T) {
	f := newAPIFixture(t)
	e := echo.New()
	a := &API{cfg: f.cfg}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	a.setSessionCookie(c, "session-id", 1800)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "app_session", cookie.Name)
	assert.Equal(t, "session-id", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 1800, cookie.MaxAge)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
}
