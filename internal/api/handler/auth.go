package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"modchat/backend/internal/config"
	"modchat/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization token missing")
	ErrInvalidToken = errors.New("invalid token or expired")
)

// Claims is what the identity provider puts into a connection token: the
// actor id as subject plus the role it may identify as.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies connection tokens issued by the identity provider.
type TokenValidator struct {
	secret     []byte
	issuer     string
	queryParam string
}

func NewTokenValidator(cfg config.AuthConfig) *TokenValidator {
	return &TokenValidator{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		queryParam: cfg.TokenQueryParam,
	}
}

// Principal extracts and validates the token of r. Browsers cannot set
// headers on a websocket upgrade, so the query parameter is checked first.
func (v *TokenValidator) Principal(r *http.Request) (*models.Principal, error) {
	token := r.URL.Query().Get(v.queryParam)
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, ErrMissingToken
		}
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	return v.Validate(token)
}

// Validate parses tokenString and maps its claims to a Principal.
func (v *TokenValidator) Validate(tokenString string) (*models.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &models.Principal{ID: claims.Subject, Role: role, Name: claims.Name}, nil
}

// IssueToken signs a connection token. It is used by tests and by the admin
// CLI to mint tokens for local clients.
func IssueToken(cfg config.AuthConfig, p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
