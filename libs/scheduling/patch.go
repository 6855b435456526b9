package scheduling

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional distinguishes an absent field from one explicitly set, including
// set to null.
type Optional[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// BookingPatch lists the fields an update may change. Absent fields keep
// their stored value.
type BookingPatch struct {
	RoomID      Optional[int64]
	ActivityID  Optional[*int64]
	Title       Optional[string]
	Description Optional[*string]
	StartTime   Optional[time.Time]
	EndTime     Optional[time.Time]
	Status      Optional[Status]
}

func (p BookingPatch) Empty() bool {
	return !p.RoomID.Set && !p.ActivityID.Set && !p.Title.Set && !p.Description.Set &&
		!p.StartTime.Set && !p.EndTime.Set && !p.Status.Set
}

// Reschedules reports whether the patch can move the booking in space or time.
func (p BookingPatch) Reschedules() bool {
	return p.RoomID.Set || p.StartTime.Set || p.EndTime.Set
}

// Apply returns b with every present field of p written over it.
func (p BookingPatch) Apply(b Booking) Booking {
	if v, ok := p.RoomID.Get(); ok {
		b.RoomID = v
	}
	if v, ok := p.ActivityID.Get(); ok {
		b.ActivityID = v
		b.ActivityName = ""
	}
	if v, ok := p.Title.Get(); ok {
		b.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		b.Description = v
	}
	if v, ok := p.StartTime.Get(); ok {
		b.StartTime = v
	}
	if v, ok := p.EndTime.Get(); ok {
		b.EndTime = v
	}
	if v, ok := p.Status.Get(); ok {
		b.Status = v
	}
	return b
}

// RoomPatch changes a room. A status other than available takes the room out
// of every availability answer from then on.
type RoomPatch struct {
	Name      Optional[string]
	Capacity  Optional[int]
	RoomType  Optional[string]
	Location  Optional[*string]
	Equipment Optional[*string]
	Status    Optional[RoomStatus]
}

func (p RoomPatch) Empty() bool {
	return !p.Name.Set && !p.Capacity.Set && !p.RoomType.Set && !p.Location.Set &&
		!p.Equipment.Set && !p.Status.Set
}

func (p RoomPatch) Apply(r Room) Room {
	if v, ok := p.Name.Get(); ok {
		r.Name = v
	}
	if v, ok := p.Capacity.Get(); ok {
		r.Capacity = v
	}
	if v, ok := p.RoomType.Get(); ok {
		r.RoomType = v
	}
	if v, ok := p.Location.Get(); ok {
		r.Location = v
	}
	if v, ok := p.Equipment.Get(); ok {
		r.Equipment = v
	}
	if v, ok := p.Status.Get(); ok {
		r.Status = v
	}
	return r
}

type TeacherPatch struct {
	FirstName      Optional[string]
	LastName       Optional[string]
	Email          Optional[string]
	Phone          Optional[*string]
	Specialization Optional[*string]
	Status         Optional[TeacherStatus]
}

func (p TeacherPatch) Empty() bool {
	return !p.FirstName.Set && !p.LastName.Set && !p.Email.Set && !p.Phone.Set &&
		!p.Specialization.Set && !p.Status.Set
}

func (p TeacherPatch) Apply(t Teacher) Teacher {
	if v, ok := p.FirstName.Get(); ok {
		t.FirstName = v
	}
	if v, ok := p.LastName.Get(); ok {
		t.LastName = v
	}
	if v, ok := p.Email.Get(); ok {
		t.Email = v
	}
	if v, ok := p.Phone.Get(); ok {
		t.Phone = v
	}
	if v, ok := p.Specialization.Get(); ok {
		t.Specialization = v
	}
	if v, ok := p.Status.Get(); ok {
		t.Status = v
	}
	return t
}

// ActivityPatch changes an activity. TeacherID set to nil unassigns it.
type ActivityPatch struct {
	Name        Optional[string]
	Description Optional[*string]
	TeacherID   Optional[*int64]
	Schedule    Optional[*string]
	Status      Optional[string]
}

func (p ActivityPatch) Empty() bool {
	return !p.Name.Set && !p.Description.Set && !p.TeacherID.Set && !p.Schedule.Set && !p.Status.Set
}

func (p ActivityPatch) Apply(a Activity) Activity {
	if v, ok := p.Name.Get(); ok {
		a.Name = v
	}
	if v, ok := p.Description.Get(); ok {
		a.Description = v
	}
	if v, ok := p.TeacherID.Get(); ok {
		a.TeacherID = v
	}
	if v, ok := p.Schedule.Get(); ok {
		a.Schedule = v
	}
	if v, ok := p.Status.Get(); ok {
		a.Status = v
	}
	return a
}
