// Package identity verifies bearer tokens and tracks the signed-in principal.
package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

const DefaultJWKSCacheTTL = 15 * time.Minute

// Config selects how tokens are verified. A non-empty TestSecret switches to
// HS256 with that shared secret; otherwise RS256 keys come from JWKS.
type Config struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	TestSecret  []byte
	KeyCacheTTL time.Duration
}

// Auth validates JWT bearer tokens and yields the subject as principal id.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func NewAuth(cfg Config) *Auth {
	a := &Auth{
		jwks:        cfg.JWKS,
		audience:    cfg.Audience,
		issuer:      cfg.Issuer,
		testSecret:  cfg.TestSecret,
		keyCacheTTL: cfg.KeyCacheTTL,
		now:         time.Now,
	}
	if len(a.testSecret) > 0 {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// PrincipalFromHeader verifies the token of an Authorization header value.
func (a *Auth) PrincipalFromHeader(h string) (string, error) {
	token, err := BearerToken(h)
	if err != nil {
		return "", err
	}
	return a.Verify(token)
}

// Verify checks signature and registered claims and returns the subject.
// Every failure wraps domain.ErrAuthenticationRequired.
func (a *Auth) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationRequired, errBadAuthorization)
	}
	parsed, err := a.parser.Parse(token, a.key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationRequired, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", invalid("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return "", invalid("token expired")
	case !claims.VerifyNotBefore(now, false):
		return "", invalid("token not valid yet")
	case !claims.VerifyIssuedAt(now, false):
		return "", invalid("token used before issued")
	case a.audience != "" && !claims.VerifyAudience(a.audience, false):
		return "", invalid("invalid audience")
	case a.issuer != "" && !claims.VerifyIssuer(a.issuer, false):
		return "", invalid("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", invalid("missing sub")
	}
	return sub, nil
}

func (a *Auth) key(t *jwt.Token) (any, error) {
	if len(a.testSecret) > 0 {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.testSecret, nil
	}
	return a.keyForToken(t)
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrAuthenticationRequired, msg)
}
