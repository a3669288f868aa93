// Package auth issues and validates the HS256 tokens that guard the HTTP
// surface when a secret is configured.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens. An operator may change the scene; a viewer may
// only watch it.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

const issuer = "vrcreator"

// Claims holds the JWT token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

var (
	// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
	ErrInvalidToken = errors.New("auth: invalid or expired token") //nolint:gochecknoglobals // sentinel error
	// ErrUnknownRole is returned by IssueToken for roles other than operator and viewer.
	ErrUnknownRole = errors.New("auth: unknown role") //nolint:gochecknoglobals // sentinel error
)

// ValidRole reports whether role is one IssueToken accepts.
func ValidRole(role string) bool {
	return slices.Contains([]string{RoleOperator, RoleViewer}, role)
}

// IssueToken creates a signed token for subject with the given role.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth.IssueToken: empty secret")
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("auth.IssueToken %q: %w", role, ErrUnknownRole)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid || !ValidRole(claims.Role) {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}
