package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/httpx"
	"github.com/edusched/school/libs/scheduling"
)

// Store is the data access the teachers and activities handlers share.
type Store interface {
	scheduling.Reader
	ListActivitiesForTeacher(ctx context.Context, teacherID int64) ([]scheduling.Activity, error)
	GetActivity(ctx context.Context, id int64) (scheduling.Activity, error)
	UpdateTeacher(ctx context.Context, id int64, p scheduling.TeacherPatch) (scheduling.Teacher, error)
	UpdateActivity(ctx context.Context, id int64, p scheduling.ActivityPatch) (scheduling.Activity, error)
}

type TeacherHandler struct {
	store     Store
	evaluator *scheduling.Evaluator
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewTeacherHandler(store Store, logger *slog.Logger) *TeacherHandler {
	return &TeacherHandler{
		store:     store,
		evaluator: scheduling.NewEvaluator(store),
		logger:    logger,
		validate:  validator.New(),
	}
}

func (h *TeacherHandler) Routes(r chi.Router, signer *auth.Signer) {
	optional := auth.Optional(signer, h.logger)
	r.Route("/api/teachers", func(r chi.Router) {
		r.With(optional).Get("/", h.List)
		r.With(optional).Get("/available", h.Available)
		r.With(optional).Get("/{id}", h.Get)
		r.With(optional).Get("/{id}/activities", h.Activities)
		r.With(optional).Get("/{id}/schedule", h.Schedule)
		r.With(optional).Get("/{id}/availability", h.Availability)
		r.With(auth.Require(signer, h.logger)).Put("/{id}", h.Update)
	})
}

type updateTeacherRequest struct {
	FirstName      scheduling.Optional[string]                   `json:"first_name"`
	LastName       scheduling.Optional[string]                   `json:"last_name"`
	Email          scheduling.Optional[string]                   `json:"email"`
	Phone          scheduling.Optional[*string]                  `json:"phone"`
	Specialization scheduling.Optional[*string]                  `json:"specialization"`
	Status         scheduling.Optional[scheduling.TeacherStatus] `json:"status"`
}

func (req updateTeacherRequest) patch(v *validator.Validate) (scheduling.TeacherPatch, string) {
	p := scheduling.TeacherPatch(req)
	if name, ok := p.FirstName.Get(); ok && v.Var(name, "required,max=100") != nil {
		return p, "first_name must be a non-empty string"
	}
	if name, ok := p.LastName.Get(); ok && v.Var(name, "required,max=100") != nil {
		return p, "last_name must be a non-empty string"
	}
	if email, ok := p.Email.Get(); ok && v.Var(email, "required,email") != nil {
		return p, "Invalid email address"
	}
	if st, ok := p.Status.Get(); ok && v.Var(string(st), "oneof=active inactive") != nil {
		return p, "status must be one of active, inactive"
	}
	return p, ""
}

// availableTeacher is a teacher plus its verdict for the requested window.
type availableTeacher struct {
	scheduling.Teacher
	Available bool                 `json:"available"`
	Bookings  []scheduling.Booking `json:"bookings"`
}

type teacherConflict struct {
	BookingID    int64  `json:"booking_id"`
	ActivityName string `json:"activity_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	RoomID       int64  `json:"room_id"`
}

type teacherAvailability struct {
	TeacherID int64             `json:"teacher_id"`
	Available bool              `json:"available"`
	Reason    string            `json:"reason,omitempty"`
	Conflicts []teacherConflict `json:"conflicts"`
}

type teacherStatus struct {
	TeacherID int64                    `json:"teacher_id"`
	Available bool                     `json:"available"`
	Status    scheduling.TeacherStatus `json:"status"`
}

type scheduleEntry struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Schedule  *string    `json:"schedule"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Status    string     `json:"status"`
}

func (h *TeacherHandler) List(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.store.ListTeachers(r.Context(), "")
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve teachers")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, teachers)
}

// Available without a window lists active teachers. With one, every active
// teacher is returned together with whether it is free and what it collides
// with.
func (h *TeacherHandler) Available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win, err := scheduling.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve available teachers")
		return
	}
	if win == nil {
		teachers, err := h.store.ListTeachers(r.Context(), scheduling.TeacherActive)
		if err != nil {
			h.fail(w, r, err, "Failed to retrieve available teachers")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, teachers)
		return
	}

	entries, err := h.evaluator.AvailableTeachers(r.Context(), win)
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve available teachers")
		return
	}
	out := make([]availableTeacher, 0, len(entries))
	free := 0
	for _, e := range entries {
		bookings := e.Conflicts
		if bookings == nil {
			bookings = []scheduling.Booking{}
		}
		if e.Available {
			free++
		}
		out = append(out, availableTeacher{Teacher: e.Teacher, Available: e.Available, Bookings: bookings})
	}
	h.logger.Info("teacher availability evaluated", "available", free, "total", len(out))
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *TeacherHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.teacher(w, r, "Failed to retrieve teacher")
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *TeacherHandler) Activities(w http.ResponseWriter, r *http.Request) {
	t, ok := h.teacher(w, r, "Failed to retrieve activities")
	if !ok {
		return
	}
	activities, err := h.store.ListActivitiesForTeacher(r.Context(), t.ID)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve activities")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, activities)
}

// Schedule lists the teacher's activities ordered by start date, undated ones
// last.
func (h *TeacherHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	t, ok := h.teacher(w, r, "Failed to retrieve teacher schedule")
	if !ok {
		return
	}
	activities, err := h.store.ListActivitiesForTeacher(r.Context(), t.ID)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve teacher schedule")
		return
	}
	entries := make([]scheduleEntry, 0, len(activities))
	for _, a := range activities {
		entries = append(entries, scheduleEntry{
			ID: a.ID, Name: a.Name, Schedule: a.Schedule,
			StartDate: a.StartDate, EndDate: a.EndDate, Status: a.Status,
		})
	}
	sortByStartDate(entries)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"teacher_id": t.ID, "schedule": entries})
}

func (h *TeacherHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid teacher id")
		return
	}
	q := r.URL.Query()
	win, err := scheduling.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, r, err, "Failed to check teacher availability")
		return
	}
	t, a, err := h.evaluator.TeacherAvailability(r.Context(), id, win)
	if err != nil {
		h.writeError(w, r, err, "Failed to check teacher availability")
		return
	}

	// Inactive teachers report a reason whether or not a window was given.
	if win == nil && a.Reason == "" {
		httpx.WriteJSON(w, http.StatusOK, teacherStatus{TeacherID: t.ID, Available: a.Available, Status: t.Status})
		return
	}
	resp := teacherAvailability{
		TeacherID: t.ID,
		Available: a.Available,
		Reason:    a.Reason,
		Conflicts: make([]teacherConflict, 0, len(a.Conflicts)),
	}
	for _, b := range a.Conflicts {
		resp.Conflicts = append(resp.Conflicts, teacherConflict{
			BookingID:    b.ID,
			ActivityName: b.ActivityName,
			StartTime:    scheduling.FormatTime(b.StartTime),
			EndTime:      scheduling.FormatTime(b.EndTime),
			RoomID:       b.RoomID,
		})
	}
	h.logger.Info("teacher availability checked", "teacher_id", t.ID, "available", a.Available)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Update changes a teacher. A teacher set inactive is reported unavailable on
// the next check.
func (h *TeacherHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid teacher id")
		return
	}
	var req updateTeacherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	patch, msg := req.patch(h.validate)
	if msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if patch.Empty() {
		httpx.WriteError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	t, err := h.store.UpdateTeacher(r.Context(), id, patch)
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Teacher not found")
		return
	case errors.Is(err, scheduling.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "Email already exists")
		return
	case err != nil:
		h.writeError(w, r, err, "Failed to update teacher")
		return
	}
	h.logger.Info("teacher updated", "request_id", httpx.RequestIDFromContext(r.Context()), "teacher_id", id, "status", t.Status)
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *TeacherHandler) teacher(w http.ResponseWriter, r *http.Request, fallback string) (scheduling.Teacher, bool) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid teacher id")
		return scheduling.Teacher{}, false
	}
	t, err := h.store.GetTeacher(r.Context(), id)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Teacher not found")
		return scheduling.Teacher{}, false
	}
	if err != nil {
		h.fail(w, r, err, fallback)
		return scheduling.Teacher{}, false
	}
	return t, true
}

func (h *TeacherHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := scheduling.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.fail(w, r, err, fallback)
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func (h *TeacherHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}
