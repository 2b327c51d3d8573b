package identity

import (
	"errors"
	"fmt"
	"strings"

	"taskboard/domain"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// BearerToken extracts a compact JWT from an Authorization header value.
func BearerToken(raw string) (string, error) {
	raw = strings.Trim(raw, " ")
	if raw == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationRequired, errMissingAuthorization)
	}
	token, ok := strings.CutPrefix(raw, bearerPrefix)
	if !ok || token == "" || strings.Count(token, ".") != 2 {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationRequired, errBadAuthorization)
	}
	return token, nil
}
