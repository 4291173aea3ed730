package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"
)

// Verification failure modes, in the order they are checked.
var (
	ErrMalformedToken      = fmt.Errorf("malformed token")
	ErrUnknownSigningKey   = fmt.Errorf("unknown signing key")
	ErrInvalidSignature    = fmt.Errorf("invalid signature")
	ErrIssuerMismatch      = fmt.Errorf("issuer mismatch")
	ErrAudienceMismatch    = fmt.Errorf("audience mismatch")
	ErrExpired             = fmt.Errorf("token expired")
	ErrAccessTokenMismatch = fmt.Errorf("access token hash mismatch")
)

// IdentityClaims is the decoded claim set of a verified identity token.
type IdentityClaims struct {
	Subject           string
	Username          string
	PreferredUsername string
	Email             string
	Name              string
	Nonce             string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// DisplayUsername resolves the local username for the identity, first
// non-empty of: provider-native username, preferred_username, email, sub.
func (c *IdentityClaims) DisplayUsername() string {
	for _, candidate := range []string{c.Username, c.PreferredUsername, c.Email, c.Subject} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Verifier validates identity tokens against the provider's published
// signing key set. The key set is cached process-wide and refreshed at most
// once per refresh interval, plus one forced refresh when an unknown key ID
// is seen.
type Verifier struct {
	issuer       string
	clientID     string
	jwksURL      string
	refreshEvery time.Duration
	httpClient   *http.Client

	mu        sync.Mutex
	keys      jwk.Set
	fetchedAt time.Time

	now func() time.Time
}

// NewVerifier creates a Verifier. The key set is fetched lazily on first
// use.
func NewVerifier(issuer, clientID, jwksURL string, refreshEvery time.Duration) *Verifier {
	return &Verifier{
		issuer:       issuer,
		clientID:     clientID,
		jwksURL:      jwksURL,
		refreshEvery: refreshEvery,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

func (v *Verifier) fetchKeysLocked(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, v.jwksURL, jwk.WithHTTPClient(v.httpClient))
	if err != nil {
		return fmt.Errorf("failed to fetch signing key set: %w", err)
	}
	v.keys = set
	v.fetchedAt = v.now()
	log.Ctx(ctx).Debug().Int("keys", set.Len()).Msg("signing key set refreshed")
	return nil
}

// lookupKey finds the raw public key for kid, refreshing the cached set at
// most once if the kid is not present.
func (v *Verifier) lookupKey(ctx context.Context, kid string) (interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil || v.now().Sub(v.fetchedAt) > v.refreshEvery {
		if err := v.fetchKeysLocked(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownSigningKey, err)
		}
	}

	key, found := v.keys.LookupKeyID(kid)
	if !found {
		// The provider may have rotated keys since the last fetch. One
		// forced refresh, then fail.
		if err := v.fetchKeysLocked(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownSigningKey, err)
		}
		key, found = v.keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("%w: kid %q", ErrUnknownSigningKey, kid)
		}
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSigningKey, err)
	}
	return raw, nil
}

// Verify validates rawToken and returns its claims. When accessToken is
// non-empty and the token carries an at_hash claim, the access token is
// checked against it. Every failure maps to exactly one of the sentinel
// errors above; nothing is ever treated as valid on error.
func (v *Verifier) Verify(ctx context.Context, rawToken, accessToken string) (*IdentityClaims, error) {
	// Step 1: parse the header without verifying, to learn the key ID.
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	kid, ok := unverified.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: missing kid header", ErrMalformedToken)
	}

	// Step 2: match the key ID against the cached key set.
	key, err := v.lookupKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	// Step 3: signature.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.Parse(rawToken, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	// Step 4: issuer.
	issuer, err := claims.GetIssuer()
	if err != nil || issuer != v.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrIssuerMismatch, issuer)
	}

	// Step 5: audience.
	audiences, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable audience", ErrAudienceMismatch)
	}
	audOK := false
	for _, aud := range audiences {
		if aud == v.clientID {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, fmt.Errorf("%w: got %v", ErrAudienceMismatch, audiences)
	}

	// Step 6: expiry.
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrExpired)
	}
	if !v.now().Before(exp.Time) {
		return nil, fmt.Errorf("%w: at %s", ErrExpired, exp.Time.Format(time.RFC3339))
	}

	// Step 7: access token binding, when both sides are present.
	if atHash := stringClaim(claims, "at_hash"); accessToken != "" && atHash != "" {
		if accessTokenHash(accessToken) != atHash {
			return nil, ErrAccessTokenMismatch
		}
	}

	out := &IdentityClaims{
		Subject:           stringClaim(claims, "sub"),
		Username:          stringClaim(claims, "cognito:username"),
		PreferredUsername: stringClaim(claims, "preferred_username"),
		Email:             stringClaim(claims, "email"),
		Name:              stringClaim(claims, "name"),
		Nonce:             stringClaim(claims, "nonce"),
		ExpiresAt:         exp.Time,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

// accessTokenHash computes the OIDC at_hash for an RS256 token: base64url of
// the left half of the access token's SHA-256 digest.
func accessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if s, ok := claims[name].(string); ok {
		return s
	}
	return ""
}
