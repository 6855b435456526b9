package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// DevSecret is used when no JWT_SECRET is configured outside production.
const DevSecret = "dev-secret-insecure-do-not-use-in-production"

type Claims struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	RelatedID *int64 `json:"relatedId,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens with a shared secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret, issuer string, ttl time.Duration) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// ResolveSecret returns secret, or DevSecret when it is empty and env is not
// production.
func ResolveSecret(secret, env string) (string, error) {
	if secret != "" {
		return secret, nil
	}
	if strings.EqualFold(env, "production") {
		return "", errors.New("JWT_SECRET is required in production")
	}
	return DevSecret, nil
}

func (s *Signer) Sign(claims Claims) (string, error) {
	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   fmt.Sprint(claims.UserID),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reports whether a Parse error was caused by an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// TokenFromHeader strips an optional "Bearer " prefix.
func TokenFromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
