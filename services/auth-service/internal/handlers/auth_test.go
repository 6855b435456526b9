package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/scheduling"
	"github.com/edusched/school/services/auth-service/internal/storage"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]storage.User
}

func (f *fakeUsers) GetActiveByLogin(_ context.Context, login string) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if (u.Username == login || u.Email == login) && u.Status == "active" {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (f *fakeUsers) GetActiveByID(_ context.Context, id int64) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Status != "active" {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fakeUsers) Create(_ context.Context, in storage.NewUser) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64
	for id, u := range f.users {
		if strings.EqualFold(u.Username, in.Username) || strings.EqualFold(u.Email, in.Email) {
			return storage.User{}, storage.ErrDuplicate
		}
		next = max(next, id)
	}
	u := storage.User{
		ID:           next + 1,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		RelatedID:    in.RelatedID,
		Status:       "active",
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) List(context.Context) ([]storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) UsernameTaken(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

type fakeTeachers map[int64]scheduling.Teacher

func (f fakeTeachers) GetTeacher(_ context.Context, id int64) (scheduling.Teacher, error) {
	t, ok := f[id]
	if !ok {
		return scheduling.Teacher{}, scheduling.ErrNotFound
	}
	return t, nil
}

type authFixture struct {
	router http.Handler
	signer *auth.Signer
	users  *fakeUsers
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	hash, err := auth.HashPassword("pass123")
	require.NoError(t, err)
	teacherID := int64(4)
	users := &fakeUsers{users: map[int64]storage.User{
		1: {ID: 1, Username: "admin", Email: "admin@school.test", PasswordHash: hash, Role: "admin", Status: "active"},
		2: {ID: 2, Username: "mrs.lee", Email: "lee@school.test", PasswordHash: hash, Role: "teacher", RelatedID: &teacherID, Status: "active"},
		3: {ID: 3, Username: "gone", Email: "gone@school.test", PasswordHash: hash, Role: "student", Status: "inactive"},
	}}
	teachers := fakeTeachers{4: {ID: 4, FirstName: "Mei", LastName: "Lee", Status: scheduling.TeacherActive}}

	signer, err := auth.NewSigner("test-secret", "school-auth", time.Hour)
	require.NoError(t, err)
	r := chi.NewRouter()
	NewAuthHandler(users, teachers, signer, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)
	return authFixture{router: r, signer: signer, users: users}
}

func (f authFixture) post(t *testing.T, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.post(t, "/login", `{"username":"lee@school.test","password":"pass123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID      int64               `json:"id"`
			Role    string              `json:"role"`
			Teacher *scheduling.Teacher `json:"teacher"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.User.ID)
	require.NotNil(t, resp.User.Teacher)
	assert.Equal(t, "Mei", resp.User.Teacher.FirstName)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	claims, err := f.signer.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "mrs.lee", claims.Username)
	require.NotNil(t, claims.RelatedID)
	assert.EqualValues(t, 4, *claims.RelatedID)
}

func TestLoginRejections(t *testing.T) {
	f := newAuthFixture(t)
	cases := []struct {
		name, body string
		status     int
		msg        string
	}{
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest, "Username and password are required"},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", `{"username":"ghost","password":"pass123"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"inactive user", `{"username":"gone","password":"pass123"}`, http.StatusUnauthorized, "Invalid credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.post(t, "/login", tc.body, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.msg+`"}`, rec.Body.String())
		})
	}
}

func TestVerify(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)

	rec := f.post(t, "/verify", `{"token":"`+token+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	rec = f.post(t, "/verify", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post(t, "/verify", `{"token":"garbage"}`, "")
	assert.JSONEq(t, `{"error":"Invalid token"}`, rec.Body.String())

	stale, err := f.signer.Sign(auth.Claims{UserID: 3, Username: "gone", Role: "student"})
	require.NoError(t, err)
	rec = f.post(t, "/verify", `{"token":"`+stale+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"admin"`)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)

	rec := f.post(t, "/change-password", `{"currentPassword":"pass123","newPassword":"abc"}`, token)
	assert.JSONEq(t, `{"error":"New password must be at least 6 characters"}`, rec.Body.String())

	rec = f.post(t, "/change-password", `{"currentPassword":"wrong1","newPassword":"secret99"}`, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "/change-password", `{"currentPassword":"pass123","newPassword":"secret99"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, "/login", `{"username":"admin","password":"secret99"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.post(t, "/login", `{"username":"admin","password":"pass123"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUser(t *testing.T) {
	f := newAuthFixture(t)
	adminToken, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)
	teacherToken, err := f.signer.Sign(auth.Claims{UserID: 2, Username: "mrs.lee", Role: "teacher"})
	require.NoError(t, err)
	body := `{"username":"j.doe","email":"doe@school.test","password":"secret1","role":"teacher","relatedId":7}`

	rec := f.post(t, "/users", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "/users", body, teacherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden: insufficient permissions"}`, rec.Body.String())

	rec = f.post(t, "/users", body, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":4,"username":"j.doe","email":"doe@school.test","role":"teacher"}`, rec.Body.String())

	created := f.users.users[4]
	assert.NotEqual(t, "secret1", created.PasswordHash)
	assert.True(t, auth.VerifyPassword(created.PasswordHash, "secret1"))
	require.NotNil(t, created.RelatedID)
	assert.Equal(t, int64(7), *created.RelatedID)

	rec = f.post(t, "/login", `{"username":"j.doe","password":"secret1"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, "/users", `{"username":"J.DOE","email":"other@school.test","password":"secret1","role":"student"}`, adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"Username or email already exists"}`, rec.Body.String())
}

func TestCreateUserValidation(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)

	cases := []struct{ body, msg string }{
		{`{"username":"okname","email":"a@b.test","role":"admin"}`, "Username, email, password, and role are required"},
		{`{"username":"bad name","email":"a@b.test","password":"secret1","role":"admin"}`, "Username can only contain letters"},
		{`{"username":"okname","email":"not-an-email","password":"secret1","role":"admin"}`, "Invalid email address"},
		{`{"username":"okname","email":"a@b.test","password":"short","role":"admin"}`, "Password must be at least 6 characters"},
		{`{"username":"okname","email":"a@b.test","password":"secret1","role":"janitor"}`, "Role must be one of admin, teacher, student"},
	}
	for _, tc := range cases {
		rec := f.post(t, "/users", tc.body, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Contains(t, rec.Body.String(), tc.msg, tc.body)
	}
	assert.Len(t, f.users.users, 3)
}

func TestListUsersIsAdminOnly(t *testing.T) {
	f := newAuthFixture(t)
	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}
	teacherToken, err := f.signer.Sign(auth.Claims{UserID: 2, Username: "mrs.lee", Role: "teacher"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(teacherToken).Code)

	adminToken, err := f.signer.Sign(auth.Claims{UserID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)
	rec := get(adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 3)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCheckUsername(t *testing.T) {
	f := newAuthFixture(t)
	get := func(name string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-username/"+name, nil))
		return rec
	}

	rec := get("admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":false,"username":"admin"}`, rec.Body.String())

	rec = get("new.kid")
	assert.JSONEq(t, `{"available":true,"username":"new.kid"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get("ab").Code)
	assert.Equal(t, http.StatusBadRequest, get("bad$name").Code)
}
