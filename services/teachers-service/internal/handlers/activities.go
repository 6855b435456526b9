package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/httpx"
	"github.com/edusched/school/libs/scheduling"
)

// ActivityHandler owns the activity to teacher link that teacher availability
// is derived from.
type ActivityHandler struct {
	store    Store
	logger   *slog.Logger
	validate *validator.Validate
}

func NewActivityHandler(store Store, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, logger: logger, validate: validator.New()}
}

func (h *ActivityHandler) Routes(r chi.Router, signer *auth.Signer) {
	required := auth.Require(signer, h.logger)
	r.Route("/api/activities", func(r chi.Router) {
		r.With(auth.Optional(signer, h.logger)).Get("/{id}", h.Get)
		r.With(required).Put("/{id}", h.Update)
		r.With(required).Put("/{id}/teacher", h.AssignTeacher)
	})
}

type updateActivityRequest struct {
	Name        scheduling.Optional[string]  `json:"name"`
	Description scheduling.Optional[*string] `json:"description"`
	TeacherID   scheduling.Optional[*int64]  `json:"teacher_id"`
	Schedule    scheduling.Optional[*string] `json:"schedule"`
	Status      scheduling.Optional[string]  `json:"status"`
}

type assignTeacherRequest struct {
	TeacherID scheduling.Optional[*int64] `json:"teacher_id"`
}

func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.activity(w, r, "Failed to retrieve activity")
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Update changes an activity. Setting status to anything but active detaches
// its bookings from the teacher's availability.
func (h *ActivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateActivityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	patch := scheduling.ActivityPatch(req)
	if name, ok := patch.Name.Get(); ok && h.validate.Var(name, "required,max=200") != nil {
		httpx.WriteError(w, http.StatusBadRequest, "name must be a non-empty string")
		return
	}
	if st, ok := patch.Status.Get(); ok && h.validate.Var(st, "required,max=20") != nil {
		httpx.WriteError(w, http.StatusBadRequest, "status must be a non-empty string")
		return
	}
	if patch.Empty() {
		httpx.WriteError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	h.apply(w, r, patch, "Failed to update activity")
}

// AssignTeacher moves an activity to another teacher, or unassigns it when
// teacher_id is null.
func (h *ActivityHandler) AssignTeacher(w http.ResponseWriter, r *http.Request) {
	var req assignTeacherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.TeacherID.Set {
		httpx.WriteError(w, http.StatusBadRequest, "teacher_id is required")
		return
	}
	h.apply(w, r, scheduling.ActivityPatch{TeacherID: req.TeacherID}, "Failed to assign teacher")
}

func (h *ActivityHandler) apply(w http.ResponseWriter, r *http.Request, patch scheduling.ActivityPatch, fallback string) {
	before, ok := h.activity(w, r, fallback)
	if !ok {
		return
	}
	if id, set := patch.TeacherID.Get(); set && id != nil {
		_, err := h.store.GetTeacher(r.Context(), *id)
		if errors.Is(err, scheduling.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "Teacher not found")
			return
		}
		if err != nil {
			h.fail(w, r, err, fallback)
			return
		}
	}
	a, err := h.store.UpdateActivity(r.Context(), before.ID, patch)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Activity not found")
		return
	}
	if err != nil {
		status := scheduling.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.fail(w, r, err, fallback)
			return
		}
		httpx.WriteError(w, status, err.Error())
		return
	}
	h.logger.Info("activity updated",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"activity_id", a.ID,
		"from_teacher", before.TeacherID,
		"to_teacher", a.TeacherID,
		"status", a.Status,
	)
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *ActivityHandler) activity(w http.ResponseWriter, r *http.Request, fallback string) (scheduling.Activity, bool) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid activity id")
		return scheduling.Activity{}, false
	}
	a, err := h.store.GetActivity(r.Context(), id)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Activity not found")
		return scheduling.Activity{}, false
	}
	if err != nil {
		h.fail(w, r, err, fallback)
		return scheduling.Activity{}, false
	}
	return a, true
}

func (h *ActivityHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}
