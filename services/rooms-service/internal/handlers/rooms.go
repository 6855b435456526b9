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

type Store interface {
	scheduling.Reader
	UpdateRoom(ctx context.Context, id int64, p scheduling.RoomPatch) (scheduling.Room, error)
}

type RoomHandler struct {
	store     Store
	evaluator *scheduling.Evaluator
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewRoomHandler(store Store, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		store:     store,
		evaluator: scheduling.NewEvaluator(store),
		logger:    logger,
		validate:  validator.New(),
	}
}

func (h *RoomHandler) Routes(r chi.Router, signer *auth.Signer) {
	optional := auth.Optional(signer, h.logger)
	r.Route("/api/rooms", func(r chi.Router) {
		r.With(optional).Get("/", h.List)
		r.With(optional).Get("/available", h.Available)
		r.With(optional).Get("/{id}", h.Get)
		r.With(optional).Get("/{id}/availability", h.Availability)
		r.With(auth.Require(signer, h.logger)).Put("/{id}", h.Update)
	})
}

type updateRoomRequest struct {
	Name      scheduling.Optional[string]                `json:"name"`
	Capacity  scheduling.Optional[int]                   `json:"capacity"`
	RoomType  scheduling.Optional[string]                `json:"room_type"`
	Location  scheduling.Optional[*string]               `json:"location"`
	Equipment scheduling.Optional[*string]               `json:"equipment"`
	Status    scheduling.Optional[scheduling.RoomStatus] `json:"status"`
}

func (req updateRoomRequest) patch(v *validator.Validate) (scheduling.RoomPatch, string) {
	p := scheduling.RoomPatch(req)
	if name, ok := p.Name.Get(); ok && v.Var(name, "required,max=100") != nil {
		return p, "name must be a non-empty string"
	}
	if c, ok := p.Capacity.Get(); ok && v.Var(c, "gt=0") != nil {
		return p, "capacity must be a positive integer"
	}
	if rt, ok := p.RoomType.Get(); ok && v.Var(rt, "required") != nil {
		return p, "room_type must be a non-empty string"
	}
	if st, ok := p.Status.Get(); ok && v.Var(string(st), "oneof=available maintenance unavailable") != nil {
		return p, "status must be one of available, maintenance, unavailable"
	}
	return p, ""
}

type roomStatus struct {
	RoomID    int64                 `json:"room_id"`
	Name      string                `json:"name"`
	Status    scheduling.RoomStatus `json:"status"`
	Available bool                  `json:"available"`
}

type roomWindowStatus struct {
	roomStatus
	Conflicts int                  `json:"conflicts"`
	Bookings  []scheduling.Booking `json:"bookings"`
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context(), scheduling.RoomFilter{})
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve rooms")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rooms)
}

// Available lists rooms in status available, optionally narrowed by capacity,
// room_type and a start_time/end_time window they must be free in.
func (h *RoomHandler) Available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capacity, err := httpx.QueryInt64(r, "capacity")
	if err != nil || capacity < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "capacity must be a non-negative integer")
		return
	}
	win, err := scheduling.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve available rooms")
		return
	}
	rooms, err := h.evaluator.AvailableRooms(r.Context(), scheduling.RoomFilter{
		MinCapacity: int(capacity),
		RoomType:    q.Get("room_type"),
	}, win)
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve available rooms")
		return
	}
	h.logger.Info("available rooms listed", "count", len(rooms), "windowed", win != nil)
	httpx.WriteJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	room, err := h.store.GetRoom(r.Context(), id)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve room")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	q := r.URL.Query()
	win, err := scheduling.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, r, err, "Failed to check availability")
		return
	}
	room, a, err := h.evaluator.RoomAvailability(r.Context(), id, win)
	if err != nil {
		h.writeError(w, r, err, "Failed to check availability")
		return
	}

	status := roomStatus{RoomID: room.ID, Name: room.Name, Status: room.Status, Available: a.Available}
	if win == nil {
		httpx.WriteJSON(w, http.StatusOK, status)
		return
	}
	h.logger.Info("room availability checked", "room_id", room.ID, "available", a.Available)
	httpx.WriteJSON(w, http.StatusOK, roomWindowStatus{
		roomStatus: status,
		Conflicts:  len(a.Conflicts),
		Bookings:   a.Conflicts,
	})
}

// Update changes a room. Taking it out of service makes every later
// availability answer for it negative.
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	var req updateRoomRequest
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
	room, err := h.store.UpdateRoom(r.Context(), id, patch)
	if errors.Is(err, scheduling.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		h.writeError(w, r, err, "Failed to update room")
		return
	}
	h.logger.Info("room updated", "request_id", httpx.RequestIDFromContext(r.Context()), "room_id", id, "status", room.Status)
	httpx.WriteJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := scheduling.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.fail(w, r, err, fallback)
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func (h *RoomHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}
