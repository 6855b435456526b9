package scheduling

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

const reasonTeacherInactive = "Teacher is not active"

// Availability is the verdict for one resource. Conflicts is nil when no
// window was asked about.
type Availability struct {
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
	Conflicts []Booking `json:"conflicts"`
}

// Evaluator combines resource status with overlap searches. It holds no state
// between calls and is safe for concurrent use.
type Evaluator struct {
	r Reader
}

func NewEvaluator(r Reader) *Evaluator {
	return &Evaluator{r: r}
}

// EvaluateRoom: without a window only the room status counts.
func (e *Evaluator) EvaluateRoom(ctx context.Context, room Room, w *Window) (Availability, error) {
	if w == nil {
		return Availability{Available: room.Status == RoomAvailable}, nil
	}
	ctx, span := tracer.Start(ctx, "scheduling.EvaluateRoom")
	defer span.End()
	span.SetAttributes(attribute.Int64("room.id", room.ID))

	conflicts, err := FindOverlaps(ctx, e.r, OverlapQuery{Scope: RoomScope(room.ID), Window: *w})
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Available: room.Status == RoomAvailable && len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// EvaluateTeacher reads the teacher's active activities on every call, so
// reassignments are seen immediately.
func (e *Evaluator) EvaluateTeacher(ctx context.Context, t Teacher, w *Window) (Availability, error) {
	if t.Status != TeacherActive {
		return Availability{Available: false, Reason: reasonTeacherInactive, Conflicts: []Booking{}}, nil
	}
	if w == nil {
		return Availability{Available: true}, nil
	}
	ctx, span := tracer.Start(ctx, "scheduling.EvaluateTeacher")
	defer span.End()
	span.SetAttributes(attribute.Int64("teacher.id", t.ID))

	ids, err := e.r.ActiveActivityIDs(ctx, t.ID)
	if err != nil {
		return Availability{}, err
	}
	conflicts, err := FindOverlaps(ctx, e.r, OverlapQuery{Scope: ActivityScope(ids), Window: *w})
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

func (e *Evaluator) RoomAvailability(ctx context.Context, roomID int64, w *Window) (Room, Availability, error) {
	if err := checkWindow(w); err != nil {
		return Room{}, Availability{}, err
	}
	room, err := e.r.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, Availability{}, notFound(err, "room", roomID)
	}
	a, err := e.EvaluateRoom(ctx, room, w)
	return room, a, err
}

func (e *Evaluator) TeacherAvailability(ctx context.Context, teacherID int64, w *Window) (Teacher, Availability, error) {
	if err := checkWindow(w); err != nil {
		return Teacher{}, Availability{}, err
	}
	t, err := e.r.GetTeacher(ctx, teacherID)
	if err != nil {
		return Teacher{}, Availability{}, notFound(err, "teacher", teacherID)
	}
	a, err := e.EvaluateTeacher(ctx, t, w)
	return t, a, err
}

// AvailableRooms lists rooms in status available that match f and, when w is
// given, have no live booking overlapping it.
func (e *Evaluator) AvailableRooms(ctx context.Context, f RoomFilter, w *Window) ([]Room, error) {
	if err := checkWindow(w); err != nil {
		return nil, err
	}
	f.Status = RoomAvailable
	rooms, err := e.r.ListRooms(ctx, f)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return rooms, nil
	}
	out := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		a, err := e.EvaluateRoom(ctx, room, w)
		if err != nil {
			return nil, err
		}
		if a.Available {
			out = append(out, room)
		}
	}
	return out, nil
}

type TeacherAvailabilityEntry struct {
	Teacher
	Availability
}

// AvailableTeachers evaluates every active teacher against w. Busy teachers
// are included with Available false and their conflicting bookings.
func (e *Evaluator) AvailableTeachers(ctx context.Context, w *Window) ([]TeacherAvailabilityEntry, error) {
	if err := checkWindow(w); err != nil {
		return nil, err
	}
	teachers, err := e.r.ListTeachers(ctx, TeacherActive)
	if err != nil {
		return nil, err
	}
	out := make([]TeacherAvailabilityEntry, 0, len(teachers))
	for _, t := range teachers {
		a, err := e.EvaluateTeacher(ctx, t, w)
		if err != nil {
			return nil, err
		}
		out = append(out, TeacherAvailabilityEntry{Teacher: t, Availability: a})
	}
	return out, nil
}

func checkWindow(w *Window) error {
	if w != nil && !w.Valid() {
		return invalid("end time must be after start time")
	}
	return nil
}
