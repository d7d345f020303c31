package validators

import (
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid auth token")

// BearerToken extracts the token from an Authorization header value. The
// "Bearer" scheme is optional; an empty header yields an empty token.
func BearerToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", nil
	}
	if strings.EqualFold(token, "bearer") {
		return "", ErrInvalidToken
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
		if token == "" {
			return "", ErrInvalidToken
		}
	}
	if strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}
