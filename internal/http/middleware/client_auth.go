package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookie carries the browser's signed client credential.
const SessionCookie = "ace_session"

type clientClaimsKey struct{}

// DefaultClientTTL bounds how long an issued credential is accepted.
const DefaultClientTTL = 12 * time.Hour

// ErrInvalidClientToken is returned for missing, expired, forged or revoked
// client credentials.
var ErrInvalidClientToken = errors.New("middleware: invalid client token")

// ClientClaims identifies a browser that signed in through /login. Epoch ties
// the credential to one operator sign-in; logging out bumps it.
type ClientClaims struct {
	Epoch uint64 `json:"epoch"`
	jwt.RegisteredClaims
}

// ClientTokens issues and verifies HMAC-signed client credentials.
type ClientTokens struct {
	secret []byte
	ttl    time.Duration
	secure bool
	epoch  atomic.Uint64
	now    func() time.Time
}

// NewClientTokens creates an issuer. An empty secret gets a random key, so
// credentials do not survive a restart.
func NewClientTokens(secret string, ttl time.Duration, secure bool) (*ClientTokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("middleware: generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}
	return &ClientTokens{secret: key, ttl: ttl, secure: secure, now: time.Now}, nil
}

// Issue signs a credential for subject under the current epoch.
func (t *ClientTokens) Issue(subject string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := ClientClaims{
		Epoch: t.epoch.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("middleware: sign client token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a credential and checks signature, expiry and epoch.
func (t *ClientTokens) Verify(token string) (ClientClaims, error) {
	var claims ClientClaims
	if token == "" {
		return claims, ErrInvalidClientToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrInvalidClientToken, err)
	}
	if claims.Epoch != t.epoch.Load() {
		return claims, fmt.Errorf("%w: revoked", ErrInvalidClientToken)
	}
	return claims, nil
}

// RevokeAll invalidates every credential issued so far.
func (t *ClientTokens) RevokeAll() {
	t.epoch.Add(1)
}

// FromRequest verifies the credential in the session cookie or a bearer
// Authorization header.
func (t *ClientTokens) FromRequest(r *http.Request) (ClientClaims, error) {
	return t.Verify(clientToken(r))
}

// SetCookie issues a credential for subject and attaches it to w.
func (t *ClientTokens) SetCookie(w http.ResponseWriter, subject string) error {
	token, expires, err := t.Issue(subject)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie on the client.
func (t *ClientTokens) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// ClientClaimsFromContext returns the verified client claims if present.
func ClientClaimsFromContext(ctx context.Context) (ClientClaims, bool) {
	claims, ok := ctx.Value(clientClaimsKey{}).(ClientClaims)
	return claims, ok
}
