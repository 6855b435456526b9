package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/httpx"
	"github.com/edusched/school/libs/scheduling"
	"github.com/edusched/school/services/auth-service/internal/storage"
)

// Users is the subset of storage.UserRepository the handlers use.
type Users interface {
	GetActiveByLogin(ctx context.Context, login string) (storage.User, error)
	GetActiveByID(ctx context.Context, id int64) (storage.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	Create(ctx context.Context, in storage.NewUser) (storage.User, error)
	List(ctx context.Context) ([]storage.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// Teachers resolves the profile attached to teacher accounts.
type Teachers interface {
	GetTeacher(ctx context.Context, id int64) (scheduling.Teacher, error)
}

type AuthHandler struct {
	users    Users
	teachers Teachers
	signer   *auth.Signer
	logger   *slog.Logger
	validate *validator.Validate
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func NewAuthHandler(users Users, teachers Teachers, signer *auth.Signer, logger *slog.Logger) *AuthHandler {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return &AuthHandler{
		users:    users,
		teachers: teachers,
		signer:   signer,
		logger:   logger,
		validate: v,
	}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/verify", h.Verify)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(h.signer, h.logger))
		r.Get("/me", h.Me)
		r.Post("/change-password", h.ChangePassword)
	})
	r.Get("/check-username/{username}", h.CheckUsername)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(h.signer, h.logger), auth.RequireRole("admin"))
		r.Get("/users", h.ListUsers)
		r.Post("/users", h.CreateUser)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type createUserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50,username"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      string `json:"role" validate:"required,oneof=admin teacher student"`
	RelatedID *int64 `json:"relatedId" validate:"omitempty,gt=0"`
}

type createdUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type userView struct {
	storage.User
	Teacher *scheduling.Teacher `json:"teacher,omitempty"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.users.GetActiveByLogin(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		h.logger.Info("login rejected", "login", req.Username)
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		h.logger.Info("login rejected", "login", req.Username)
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.signer.Sign(auth.Claims{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		RelatedID: user.RelatedID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view := userView{User: user}
	if user.Role == "teacher" && user.RelatedID != nil && h.teachers != nil {
		t, err := h.teachers.GetTeacher(r.Context(), *user.RelatedID)
		switch {
		case err == nil:
			view.Teacher = &t
		case !errors.Is(err, scheduling.ErrNotFound):
			h.logger.Warn("teacher profile lookup failed", "user_id", user.ID, "err", err)
		}
	}
	h.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: view})
}

// Verify checks a token handed over in the body and that its user is still
// active.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || h.validate.Struct(req) != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Token is required")
		return
	}
	claims, err := h.signer.Parse(req.Token)
	if err != nil {
		if auth.IsExpired(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	user, err := h.users.GetActiveByID(r.Context(), claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.CurrentUser(r.Context())
	user, err := h.users.GetActiveByID(r.Context(), claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 && ve[0].Tag() == "min" {
			httpx.WriteError(w, http.StatusBadRequest, "New password must be at least 6 characters")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "Current and new passwords are required")
		return
	}

	claims, _ := auth.CurrentUser(r.Context())
	user, err := h.users.GetActiveByID(r.Context(), claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		httpx.WriteError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("password changed", "user_id", user.ID)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// CreateUser is the admin path for opening accounts.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, createUserMessage(err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.users.Create(r.Context(), storage.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		RelatedID:    req.RelatedID,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		httpx.WriteError(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if admin, ok := auth.CurrentUser(r.Context()); ok {
		h.logger.Info("user created", "user_id", user.ID, "role", user.Role, "by", admin.UserID)
	}
	httpx.WriteJSON(w, http.StatusCreated, createdUser{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role})
}

func createUserMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request body"
	}
	fe := ve[0]
	switch {
	case fe.Tag() == "required":
		return "Username, email, password, and role are required"
	case fe.Field() == "Username" && fe.Tag() == "username":
		return "Username can only contain letters, numbers, dots, underscores, and hyphens"
	case fe.Field() == "Username":
		return "Username must be between 3 and 50 characters"
	case fe.Field() == "Email":
		return "Invalid email address"
	case fe.Field() == "Password":
		return "Password must be at least 6 characters"
	case fe.Field() == "Role":
		return "Role must be one of admin, teacher, student"
	}
	return "Invalid " + strings.ToLower(fe.Field())
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if len(username) < 3 {
		httpx.WriteError(w, http.StatusBadRequest, "Username must be at least 3 characters")
		return
	}
	if h.validate.Var(username, "username") != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Username can only contain letters, numbers, dots, underscores, and hyphens")
		return
	}
	taken, err := h.users.UsernameTaken(r.Context(), username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"available": !taken, "username": username})
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("auth request failed",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
}
