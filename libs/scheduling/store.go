package scheduling

import "context"

// Reader is the read side of the data-access collaborator. Lookups of a
// missing record return ErrNotFound.
type Reader interface {
	GetRoom(ctx context.Context, id int64) (Room, error)
	GetTeacher(ctx context.Context, id int64) (Teacher, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ActiveActivityIDs(ctx context.Context, teacherID int64) ([]int64, error)
	BookingsOverlapping(ctx context.Context, q OverlapQuery) ([]Booking, error)
	ListRooms(ctx context.Context, f RoomFilter) ([]Room, error)
	ListTeachers(ctx context.Context, status TeacherStatus) ([]Teacher, error)
}

// Writer persists booking mutations. A write that storage rejects because it
// would overlap another live booking of the same room returns ErrOverlap.
type Writer interface {
	InsertBooking(ctx context.Context, b Booking) (Booking, error)
	UpdateBooking(ctx context.Context, b Booking) (Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	RecordChange(ctx context.Context, c Change) error
}

type Tx interface {
	Reader
	Writer
}

// Store runs fn in a single transaction, committing only if fn returns nil.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes a committed booking mutation for downstream consumers.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Booking  Booking    `json:"booking"`
	Previous *Booking   `json:"previous,omitempty"`
	ActorID  *int64     `json:"actor_id,omitempty"`
}
