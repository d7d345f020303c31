package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/msa-portal/portal-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// clockSkew tolerates small drift between the token issuer and this process.
const clockSkew = 30 * time.Second

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
)

// Verifier checks portal access tokens against one signing configuration.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Verify parses tokenString and returns its claims. Failures wrap
// ErrTokenExpired or ErrTokenInvalid.
func (v *Verifier) Verify(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := v.parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UserID == uuid.Nil || !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: missing user id or role", ErrTokenInvalid)
	}
	if claims.Subject != "" && claims.Subject != claims.UserID.String() {
		return nil, fmt.Errorf("%w: subject does not match user id", ErrTokenInvalid)
	}
	return claims, nil
}

// ParseAccessToken is a one-shot Verify for callers without a Verifier.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	v, err := NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return v.Verify(tokenString)
}

// MintAccessToken signs a token for payload that expires after the
// configured number of minutes. It backs local development and service
// tokens; members normally receive tokens from the identity provider.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if cfg.Secret == "" || cfg.Issuer == "" {
		return "", fmt.Errorf("jwt secret and issuer are required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", payload.Role)
	}
	if payload.UserID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  strings.ToLower(strings.TrimSpace(payload.Email)),
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
