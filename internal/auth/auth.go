// Package auth guards the management API. Services authenticate with the
// shared secret token; operators may instead log in with the admin password
// and use a short-lived JWT.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

// Service validates shared-secret and JWT credentials
type Service struct {
	apiToken      string
	jwtSecret     []byte
	passwordHash  string
	tokenDuration time.Duration
}

// NewService creates an auth service. jwtSecret and passwordHash may be
// empty, which disables the operator login path.
func NewService(apiToken, jwtSecret, passwordHash string, tokenDuration time.Duration) *Service {
	return &Service{
		apiToken:      apiToken,
		jwtSecret:     []byte(jwtSecret),
		passwordHash:  passwordHash,
		tokenDuration: tokenDuration,
	}
}

// CheckAPIToken verifies the shared secret in constant time
func (s *Service) CheckAPIToken(token string) bool {
	if s.apiToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.apiToken), []byte(token)) == 1
}

// LoginEnabled reports whether the operator password login is configured
func (s *Service) LoginEnabled() bool {
	return len(s.jwtSecret) > 0 && s.passwordHash != ""
}

// Login checks the admin password and issues a JWT on success
func (s *Service) Login(password string) (string, error) {
	if !s.LoginEnabled() {
		return "", errors.New("operator login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	return s.issueToken("admin")
}

func (s *Service) issueToken(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyJWT validates a bearer token and returns its subject
func (s *Service) VerifyJWT(tokenString string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// HashPassword produces a bcrypt hash for AUTH_ADMIN_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
