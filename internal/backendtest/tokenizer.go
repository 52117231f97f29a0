package backendtest

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceChallenge = "session:challenge"
	AudienceAccess    = "session:access"
	AudienceRefresh   = "session:refresh"
)

var (
	errInvalidToken = errors.New("invalid token")
	errRevoked      = errors.New("token has been revoked")
)

type challengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	RefreshID  string `json:"rid"`
	Generation int    `json:"gen"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
}

// tokenizer signs and parses the backend's ES256 tokens
type tokenizer struct {
	signKey *ecdsa.PrivateKey
}

func (t *tokenizer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(t.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenizer) parse(tokenStr, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &t.signKey.PublicKey, nil
	}, jwt.WithAudience(audience))
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return errInvalidToken
	}
	return nil
}

func (t *tokenizer) challenge(address, id, nonce string, now time.Time, ttl time.Duration) (string, error) {
	return t.sign(challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  jwt.ClaimStrings{AudienceChallenge},
		},
		Nonce: nonce,
	})
}

func (t *tokenizer) parseChallenge(tokenStr string) (*challengeClaims, error) {
	var claims challengeClaims
	if err := t.parse(tokenStr, AudienceChallenge, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (t *tokenizer) access(userID, refreshID string, generation int, now time.Time, ttl time.Duration) (string, error) {
	return t.sign(accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID:  refreshID,
		Generation: generation,
	})
}

func (t *tokenizer) parseAccess(tokenStr string) (*accessClaims, error) {
	var claims accessClaims
	if err := t.parse(tokenStr, AudienceAccess, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (t *tokenizer) refresh(userID, refreshID string, now time.Time, ttl time.Duration) (string, error) {
	return t.sign(refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        refreshID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	})
}

func (t *tokenizer) parseRefresh(tokenStr string) (*refreshClaims, error) {
	var claims refreshClaims
	if err := t.parse(tokenStr, AudienceRefresh, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
