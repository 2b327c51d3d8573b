package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SignTestToken issues an HS256 token for sub that an Auth configured with
// the same TestSecret accepts.
func SignTestToken(secret []byte, sub string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("test secret is empty")
	}
	if sub == "" {
		return "", errors.New("subject is empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
