// Package scheduling detects booking conflicts for rooms and teachers and
// guards booking writes so that no two live bookings of a room overlap.
package scheduling

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomMaintenance RoomStatus = "maintenance"
	RoomUnavailable RoomStatus = "unavailable"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomAvailable, RoomMaintenance, RoomUnavailable:
		return true
	}
	return false
}

type TeacherStatus string

const (
	TeacherActive   TeacherStatus = "active"
	TeacherInactive TeacherStatus = "inactive"
)

func (s TeacherStatus) Valid() bool {
	return s == TeacherActive || s == TeacherInactive
}

type Booking struct {
	ID           int64     `json:"id"`
	RoomID       int64     `json:"room_id"`
	ActivityID   *int64    `json:"activity_id"`
	ActivityName string    `json:"activity_name,omitempty"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status"`
	CreatedBy    *int64    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type bookingJSON Booking

// MarshalJSON writes start_time and end_time as wall clock without an offset.
func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookingJSON
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}{bookingJSON(b), FormatTime(b.StartTime), FormatTime(b.EndTime)})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var aux struct {
		bookingJSON
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Booking(aux.bookingJSON)
	var err error
	if aux.StartTime != "" {
		if b.StartTime, err = ParseTime(aux.StartTime); err != nil {
			return err
		}
	}
	if aux.EndTime != "" {
		if b.EndTime, err = ParseTime(aux.EndTime); err != nil {
			return err
		}
	}
	return nil
}

func (b Booking) Window() Window {
	return Window{Start: b.StartTime, End: b.EndTime}
}

type Room struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	RoomType  string     `json:"room_type"`
	Location  *string    `json:"location"`
	Equipment *string    `json:"equipment"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Teacher struct {
	ID             int64         `json:"id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Email          string        `json:"email"`
	Phone          *string       `json:"phone"`
	Specialization *string       `json:"specialization"`
	Status         TeacherStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Activity links a teacher to the bookings made for it.
type Activity struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	TeacherID   *int64     `json:"teacher_id"`
	Schedule    *string    `json:"schedule"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether w and o share any instant. Touching endpoints do
// not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

type scopeKind int

const (
	scopeRoom scopeKind = iota + 1
	scopeActivities
)

// Scope selects the bookings an overlap search runs against: those of one
// room, or those attached to a set of activities.
type Scope struct {
	kind        scopeKind
	roomID      int64
	activityIDs []int64
}

func RoomScope(roomID int64) Scope {
	return Scope{kind: scopeRoom, roomID: roomID}
}

func ActivityScope(ids []int64) Scope {
	return Scope{kind: scopeActivities, activityIDs: append([]int64(nil), ids...)}
}

func (s Scope) RoomID() (int64, bool) {
	return s.roomID, s.kind == scopeRoom
}

func (s Scope) ActivityIDs() ([]int64, bool) {
	return s.activityIDs, s.kind == scopeActivities
}

// Empty is true only for an activity scope without ids.
func (s Scope) Empty() bool {
	return s.kind == scopeActivities && len(s.activityIDs) == 0
}

func (s Scope) Contains(b Booking) bool {
	switch s.kind {
	case scopeRoom:
		return b.RoomID == s.roomID
	case scopeActivities:
		if b.ActivityID == nil {
			return false
		}
		for _, id := range s.activityIDs {
			if id == *b.ActivityID {
				return true
			}
		}
	}
	return false
}

func (s Scope) label() string {
	if s.kind == scopeActivities {
		return "teacher"
	}
	return "room"
}

// OverlapQuery asks for the live bookings in Scope overlapping Window.
// ExcludeID 0 excludes nothing.
type OverlapQuery struct {
	Scope     Scope
	Window    Window
	ExcludeID int64
}

// Matches is the overlap predicate applied to every candidate booking.
func (q OverlapQuery) Matches(b Booking) bool {
	if b.Status == StatusCancelled {
		return false
	}
	if q.ExcludeID != 0 && b.ID == q.ExcludeID {
		return false
	}
	return q.Scope.Contains(b) && q.Window.Overlaps(b.Window())
}

// RoomFilter narrows ListRooms. Zero fields do not filter.
type RoomFilter struct {
	Status      RoomStatus
	MinCapacity int
	RoomType    string
}
