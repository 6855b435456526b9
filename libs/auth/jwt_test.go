package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", "school-auth", time.Hour)
	require.NoError(t, err)
	return s
}

func TestSignParseRoundTrip(t *testing.T) {
	s := testSigner(t)
	related := int64(7)

	token, err := s.Sign(Claims{UserID: 3, Username: "jdoe", Role: "teacher", RelatedID: &related})
	require.NoError(t, err)

	got, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UserID)
	assert.Equal(t, "jdoe", got.Username)
	assert.Equal(t, "teacher", got.Role)
	require.NotNil(t, got.RelatedID)
	assert.Equal(t, int64(7), *got.RelatedID)
	assert.Equal(t, "3", got.Subject)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := testSigner(t).Sign(Claims{UserID: 1, Role: "admin"})
	require.NoError(t, err)

	other, err := NewSigner("other-secret", "school-auth", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseRejectsExpired(t *testing.T) {
	s := testSigner(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := s.Sign(Claims{UserID: 1, Role: "admin"})
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, IsExpired(err))
}

func TestParseRejectsNoneAlg(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testSigner(t).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, IsExpired(err))
}

func TestResolveSecret(t *testing.T) {
	got, err := ResolveSecret("", "development")
	require.NoError(t, err)
	assert.Equal(t, DevSecret, got)

	_, err = ResolveSecret("", "production")
	assert.Error(t, err)

	got, err = ResolveSecret("s3cret", "production")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", TokenFromHeader("Bearer abc"))
	assert.Equal(t, "abc", TokenFromHeader("bearer abc"))
	assert.Equal(t, "abc", TokenFromHeader("abc"))
}

func TestRequireMiddleware(t *testing.T) {
	s := testSigner(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Require(s, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CurrentUser(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(c.Username))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No authorization header")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication failed")

	token, err := s.Sign(Claims{UserID: 2, Username: "admin", Role: "admin"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestOptionalIgnoresBadToken(t *testing.T) {
	s := testSigner(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	opt := Optional(s, logger)(ok)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	opt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRole(t *testing.T) {
	s := testSigner(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	adminOnly := Require(s, logger)(RequireRole("admin")(ok))

	for role, want := range map[string]int{"student": http.StatusForbidden, "teacher": http.StatusForbidden, "admin": http.StatusNoContent} {
		token, err := s.Sign(Claims{UserID: 5, Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	RequireRole("admin")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
