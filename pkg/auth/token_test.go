package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "portal",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Email:  " Amina@Example.org ",
		Role:   enums.MemberRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Email != "amina@example.org" {
		t.Fatalf("expected normalized email, got %q", claims.Email)
	}
	if claims.Role != enums.MemberRoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "portal", ExpirationMinutes: 10}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleModerator,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err = ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "portal", ExpirationMinutes: 15}
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleVolunteer,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !errors.Is(err, ErrTokenExpired) || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAccessTokenRejectsInvalidPayload(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "portal", ExpirationMinutes: 5}

	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.MemberRoleMember}); err == nil {
		t.Fatal("expected missing user id error")
	}
}

func TestVerifierRejectsForeignAndMalformedClaims(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "portal", ExpirationMinutes: 5}
	verifier, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	other := config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 5}
	foreign, err := MintAccessToken(other, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleMember})
	if err != nil {
		t.Fatalf("mint foreign token: %v", err)
	}
	if _, err := verifier.Verify(foreign); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected issuer mismatch to be invalid, got %v", err)
	}

	noRole := jwt.NewWithClaims(jwtSigningMethod, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "portal",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := noRole.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown role to be invalid, got %v", err)
	}

	noExpiry := jwt.NewWithClaims(jwtSigningMethod, AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             enums.MemberRoleMember,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "portal"},
	})
	signed, _ = noExpiry.SignedString([]byte("secret"))
	if _, err := verifier.Verify(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token without exp to be invalid, got %v", err)
	}
}

func TestVerifierToleratesClockSkew(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "portal", ExpirationMinutes: 1}
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err != nil {
		t.Fatalf("expected token within skew to verify, got %v", err)
	}
}

func TestNewVerifierRequiresConfig(t *testing.T) {
	if _, err := NewVerifier(config.JWTConfig{Issuer: "portal"}); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := NewVerifier(config.JWTConfig{Secret: "secret"}); err == nil {
		t.Fatal("expected missing issuer error")
	}
}
