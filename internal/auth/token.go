// Package auth implements the identity provider: password accounts, OAuth
// sign-in, one-time codes and JWT session tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig holds session token signing parameters.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims is the payload of a session token.
type Claims struct {
	Subject   string
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// ErrMissingToken is returned when no session token was presented.
var ErrMissingToken = errors.New("missing session token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid session token")

// IssueToken signs an HS256 token for claims.
func IssueToken(cfg TokenConfig, claims Claims, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   cfg.Issuer,
		"sub":   claims.Subject,
		"sid":   claims.SessionID,
		"email": claims.Email,
		"iat":   now.Unix(),
		"exp":   claims.ExpiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns its claims.
func ParseToken(token string, cfg TokenConfig) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	sessionID, _ := claims["sid"].(string)
	email, _ := claims["email"].(string)
	if subject == "" || sessionID == "" {
		return nil, ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return &Claims{
		Subject:   subject,
		SessionID: sessionID,
		Email:     email,
		ExpiresAt: exp.Time,
	}, nil
}
