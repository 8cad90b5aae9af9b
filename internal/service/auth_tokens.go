package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Token verification (used by the handler middleware)
// ============================================================

const tokenIssuer = "coatings-pipeline"

// SalesRepClaims are the claims carried by access tokens. Sub is the sales rep id.
type SalesRepClaims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens. It identifies callers; it does not log them in.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// ValidateAccessToken parses and verifies tokenString.
func (v *TokenVerifier) ValidateAccessToken(tokenString string) (*SalesRepClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SalesRepClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SalesRepClaims)
	if !ok || !token.Valid || claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

// SignAccessToken issues a token for repID valid for ttl.
func (v *TokenVerifier) SignAccessToken(repID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SalesRepClaims{
		Sub:  repID,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
