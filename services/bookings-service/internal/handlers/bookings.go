package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/httpx"
	"github.com/edusched/school/libs/scheduling"
)

// Store is what the bookings API needs from storage beyond the scheduling
// collaborator.
type Store interface {
	scheduling.Store
	ListBookings(ctx context.Context) ([]scheduling.Booking, error)
	ListBookingsByRoom(ctx context.Context, roomID int64) ([]scheduling.Booking, error)
}

type BookingHandler struct {
	store    Store
	guard    *scheduling.Guard
	checker  *scheduling.Checker
	logger   *slog.Logger
	validate *validator.Validate
}

func NewBookingHandler(store Store, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		store:    store,
		guard:    scheduling.NewGuard(store),
		checker:  scheduling.NewChecker(store),
		logger:   logger,
		validate: validator.New(),
	}
}

// Routes mounts the bookings API. Reads accept an optional token, writes
// require one.
func (h *BookingHandler) Routes(r chi.Router, signer *auth.Signer) {
	optional := auth.Optional(signer, h.logger)
	required := auth.Require(signer, h.logger)

	r.Route("/api/bookings", func(r chi.Router) {
		r.With(optional).Get("/", h.List)
		r.With(optional).Get("/conflicts", h.Conflicts)
		r.With(optional).Get("/room/{roomId}", h.ListByRoom)
		r.With(optional).Get("/{id}", h.Get)
		r.With(required).Post("/", h.Create)
		r.With(required).Put("/{id}", h.Update)
		r.With(required).Delete("/{id}", h.Delete)
	})
}

type createBookingRequest struct {
	RoomID      int64   `json:"room_id" validate:"required,gt=0"`
	ActivityID  *int64  `json:"activity_id" validate:"omitempty,gt=0"`
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
	StartTime   string  `json:"start_time" validate:"required"`
	EndTime     string  `json:"end_time" validate:"required"`
	Status      string  `json:"status" validate:"omitempty,oneof=pending confirmed cancelled completed"`
	CreatedBy   *int64  `json:"created_by"`
}

type updateBookingRequest struct {
	RoomID      scheduling.Optional[int64]             `json:"room_id"`
	ActivityID  scheduling.Optional[*int64]            `json:"activity_id"`
	Title       scheduling.Optional[string]            `json:"title"`
	Description scheduling.Optional[*string]           `json:"description"`
	StartTime   scheduling.Optional[string]            `json:"start_time"`
	EndTime     scheduling.Optional[string]            `json:"end_time"`
	Status      scheduling.Optional[scheduling.Status] `json:"status"`
}

type conflictsResponse struct {
	HasConflicts bool                 `json:"has_conflicts"`
	Count        int                  `json:"count"`
	Conflicts    []scheduling.Booking `json:"conflicts"`
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.store.ListBookings(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve bookings")
		return
	}
	h.logger.Debug("bookings listed", "count", len(bookings))
	httpx.WriteJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid booking id")
		return
	}
	b, err := h.store.GetBooking(r.Context(), id)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Booking not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve booking")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) ListByRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := httpx.URLParamInt64(r, "roomId")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	if _, err := h.store.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "Room not found")
			return
		}
		h.fail(w, r, err, "Failed to retrieve bookings")
		return
	}
	bookings, err := h.store.ListBookingsByRoom(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve bookings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookings)
}

// Conflicts answers whether a room is free for a window without writing.
func (h *BookingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID, err := httpx.QueryInt64(r, "room_id")
	if err != nil || roomID == 0 || q.Get("start_time") == "" || q.Get("end_time") == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Room ID, start time, and end time are required")
		return
	}
	excludeID, err := httpx.QueryInt64(r, "exclude_id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid exclude_id")
		return
	}
	win, err := scheduling.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, r, err, "Failed to check conflicts")
		return
	}

	conflicts, err := h.checker.FindOverlaps(r.Context(), scheduling.OverlapQuery{
		Scope:     scheduling.RoomScope(roomID),
		Window:    *win,
		ExcludeID: excludeID,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to check conflicts")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, conflictsResponse{
		HasConflicts: len(conflicts) > 0,
		Count:        len(conflicts),
		Conflicts:    conflicts,
	})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	start, err := scheduling.ParseTime(req.StartTime)
	if err != nil {
		h.writeError(w, r, err, "Failed to create booking")
		return
	}
	end, err := scheduling.ParseTime(req.EndTime)
	if err != nil {
		h.writeError(w, r, err, "Failed to create booking")
		return
	}

	ctx := r.Context()
	createdBy := req.CreatedBy
	if user, ok := auth.CurrentUser(ctx); ok {
		createdBy = &user.UserID
		ctx = scheduling.WithActor(ctx, user.UserID)
	}

	b, err := h.guard.Create(ctx, scheduling.NewBooking{
		RoomID:      req.RoomID,
		ActivityID:  req.ActivityID,
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Status:      scheduling.Status(req.Status),
		CreatedBy:   createdBy,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to create booking")
		return
	}
	h.logger.Info("booking created",
		"request_id", httpx.RequestIDFromContext(ctx),
		"booking_id", b.ID,
		"room_id", b.RoomID,
		"title", b.Title,
	)
	httpx.WriteJSON(w, http.StatusCreated, b)
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid booking id")
		return
	}
	var req updateBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.writeError(w, r, err, "Failed to update booking")
		return
	}

	ctx := r.Context()
	if user, ok := auth.CurrentUser(ctx); ok {
		ctx = scheduling.WithActor(ctx, user.UserID)
	}
	b, err := h.guard.Update(ctx, id, patch)
	if err != nil {
		h.writeError(w, r, err, "Failed to update booking")
		return
	}
	h.logger.Info("booking updated", "request_id", httpx.RequestIDFromContext(ctx), "booking_id", id)
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid booking id")
		return
	}
	ctx := r.Context()
	if user, ok := auth.CurrentUser(ctx); ok {
		ctx = scheduling.WithActor(ctx, user.UserID)
	}
	if err := h.guard.Delete(ctx, id); err != nil {
		h.writeError(w, r, err, "Failed to delete booking")
		return
	}
	h.logger.Info("booking deleted", "request_id", httpx.RequestIDFromContext(ctx), "booking_id", id)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Booking deleted successfully"})
}

func (req updateBookingRequest) patch() (scheduling.BookingPatch, error) {
	p := scheduling.BookingPatch{
		RoomID:      req.RoomID,
		ActivityID:  req.ActivityID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}
	if raw, ok := req.StartTime.Get(); ok {
		t, err := scheduling.ParseTime(raw)
		if err != nil {
			return p, err
		}
		p.StartTime = scheduling.Some(t)
	}
	if raw, ok := req.EndTime.Get(); ok {
		t, err := scheduling.ParseTime(raw)
		if err != nil {
			return p, err
		}
		p.EndTime = scheduling.Some(t)
	}
	return p, nil
}

// writeError maps scheduling error kinds to responses. Conflicts carry the
// colliding bookings.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ce *scheduling.ConflictError
	if errors.As(err, &ce) {
		h.logger.Info("booking rejected: conflict",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"conflicts", len(ce.Conflicts),
		)
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":     ce.Error(),
			"conflicts": ce.Conflicts,
		})
		return
	}
	status := scheduling.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.fail(w, r, err, fallback)
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func (h *BookingHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error(msg,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			switch fe.Tag() {
			case "required":
				return "Room ID, title, start time, and end time are required"
			case "oneof":
				return "invalid status " + `"` + fe.Value().(string) + `"`
			}
			return "invalid " + fe.Field()
		}
	}
	return "Invalid request body"
}
