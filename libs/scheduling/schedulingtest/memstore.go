// Package schedulingtest provides an in-memory scheduling.Store for tests.
package schedulingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edusched/school/libs/scheduling"
)

// MemStore keeps rooms, teachers, activities and bookings in memory.
// Transactions work on a private copy and are applied on commit, where the
// same rule as the database exclusion constraint is enforced: a commit that
// would leave two live bookings of one room overlapping fails with
// scheduling.ErrOverlap.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	data    *dataset
	changes []scheduling.Change

	// QueryErr, when set, is returned by BookingsOverlapping.
	QueryErr error
	// BeforeCommit runs after a transaction body succeeded and before it is
	// applied. Tests use it to slip in a competing write.
	BeforeCommit func()
}

func New() *MemStore {
	return &MemStore{data: newDataset()}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// claim keeps generated ids clear of explicitly chosen ones.
func (s *MemStore) claim(id int64) int64 {
	if id == 0 {
		return s.id()
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

func (s *MemStore) AddRoom(r scheduling.Room) scheduling.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.claim(r.ID)
	if r.Status == "" {
		r.Status = scheduling.RoomAvailable
	}
	s.data.rooms[r.ID] = r
	return r
}

func (s *MemStore) AddTeacher(t scheduling.Teacher) scheduling.Teacher {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.claim(t.ID)
	if t.Status == "" {
		t.Status = scheduling.TeacherActive
	}
	s.data.teachers[t.ID] = t
	return t
}

func (s *MemStore) AddActivity(a scheduling.Activity) scheduling.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.claim(a.ID)
	if a.Status == "" {
		a.Status = "active"
	}
	s.data.activities[a.ID] = a
	return a
}

// AddBooking stores b as is, bypassing every check.
func (s *MemStore) AddBooking(b scheduling.Booking) scheduling.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.claim(b.ID)
	if b.Status == "" {
		b.Status = scheduling.StatusPending
	}
	s.data.bookings[b.ID] = b
	return s.data.decorate(b)
}

func (s *MemStore) SetActivityStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.data.activities[id]
	a.Status = status
	s.data.activities[id] = a
}

func (s *MemStore) Changes() []scheduling.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduling.Change(nil), s.changes...)
}

func (s *MemStore) Bookings() []scheduling.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listBookings(func(scheduling.Booking) bool { return true })
}

func (s *MemStore) GetRoom(ctx context.Context, id int64) (scheduling.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetRoom(ctx, id)
}

func (s *MemStore) GetTeacher(ctx context.Context, id int64) (scheduling.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetTeacher(ctx, id)
}

func (s *MemStore) GetBooking(ctx context.Context, id int64) (scheduling.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetBooking(ctx, id)
}

func (s *MemStore) ActiveActivityIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ActiveActivityIDs(ctx, teacherID)
}

func (s *MemStore) BookingsOverlapping(ctx context.Context, q scheduling.OverlapQuery) ([]scheduling.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return s.data.BookingsOverlapping(ctx, q)
}

func (s *MemStore) ListRooms(ctx context.Context, f scheduling.RoomFilter) ([]scheduling.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRooms(ctx, f)
}

func (s *MemStore) ListTeachers(ctx context.Context, status scheduling.TeacherStatus) ([]scheduling.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListTeachers(ctx, status)
}

// ListBookings returns every booking, latest start first.
func (s *MemStore) ListBookings(_ context.Context) ([]scheduling.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listBookings(func(scheduling.Booking) bool { return true }), nil
}

func (s *MemStore) ListBookingsByRoom(_ context.Context, roomID int64) ([]scheduling.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listBookings(func(b scheduling.Booking) bool { return b.RoomID == roomID }), nil
}

func (s *MemStore) ListActivitiesForTeacher(_ context.Context, teacherID int64) ([]scheduling.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduling.Activity
	for _, a := range s.data.activities {
		if a.TeacherID != nil && *a.TeacherID == teacherID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemStore) GetActivity(_ context.Context, id int64) (scheduling.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.activities[id]
	if !ok {
		return scheduling.Activity{}, scheduling.ErrNotFound
	}
	return a, nil
}

func (s *MemStore) UpdateRoom(_ context.Context, id int64, p scheduling.RoomPatch) (scheduling.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rooms[id]
	if !ok {
		return scheduling.Room{}, scheduling.ErrNotFound
	}
	r = p.Apply(r)
	r.UpdatedAt = time.Now().UTC()
	s.data.rooms[id] = r
	return r, nil
}

// UpdateTeacher refuses an email held by another teacher, like the unique
// index does.
func (s *MemStore) UpdateTeacher(_ context.Context, id int64, p scheduling.TeacherPatch) (scheduling.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.teachers[id]
	if !ok {
		return scheduling.Teacher{}, scheduling.ErrNotFound
	}
	if email, ok := p.Email.Get(); ok {
		for _, other := range s.data.teachers {
			if other.ID != id && other.Email == email {
				return scheduling.Teacher{}, scheduling.ErrDuplicate
			}
		}
	}
	t = p.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	s.data.teachers[id] = t
	return t, nil
}

func (s *MemStore) UpdateActivity(_ context.Context, id int64, p scheduling.ActivityPatch) (scheduling.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.activities[id]
	if !ok {
		return scheduling.Activity{}, scheduling.ErrNotFound
	}
	a = p.Apply(a)
	s.data.activities[id] = a
	return a, nil
}

func (s *MemStore) WithTx(ctx context.Context, fn func(scheduling.Tx) error) error {
	s.mu.Lock()
	tx := &memTx{dataset: s.data.clone(), store: s, touched: map[int64]bool{}}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.BeforeCommit != nil {
		s.BeforeCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	for id := range tx.touched {
		if b, ok := tx.bookings[id]; ok {
			next.bookings[id] = b
		} else {
			delete(next.bookings, id)
		}
	}
	for id := range tx.touched {
		b, ok := next.bookings[id]
		if !ok || b.Status == scheduling.StatusCancelled {
			continue
		}
		for _, other := range next.bookings {
			if other.ID != b.ID && other.RoomID == b.RoomID &&
				other.Status != scheduling.StatusCancelled && other.Window().Overlaps(b.Window()) {
				return scheduling.ErrOverlap
			}
		}
	}
	s.data = next
	s.changes = append(s.changes, tx.changes...)
	return nil
}

type memTx struct {
	*dataset
	store   *MemStore
	touched map[int64]bool
	changes []scheduling.Change
}

func (t *memTx) InsertBooking(_ context.Context, b scheduling.Booking) (scheduling.Booking, error) {
	t.store.mu.Lock()
	b.ID = t.store.id()
	t.store.mu.Unlock()

	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	t.bookings[b.ID] = b
	t.touched[b.ID] = true
	return t.decorate(b), nil
}

func (t *memTx) UpdateBooking(_ context.Context, b scheduling.Booking) (scheduling.Booking, error) {
	if _, ok := t.bookings[b.ID]; !ok {
		return scheduling.Booking{}, scheduling.ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	t.bookings[b.ID] = b
	t.touched[b.ID] = true
	return t.decorate(b), nil
}

func (t *memTx) DeleteBooking(_ context.Context, id int64) error {
	if _, ok := t.bookings[id]; !ok {
		return scheduling.ErrNotFound
	}
	delete(t.bookings, id)
	t.touched[id] = true
	return nil
}

func (t *memTx) RecordChange(_ context.Context, c scheduling.Change) error {
	t.changes = append(t.changes, c)
	return nil
}

type dataset struct {
	rooms      map[int64]scheduling.Room
	teachers   map[int64]scheduling.Teacher
	activities map[int64]scheduling.Activity
	bookings   map[int64]scheduling.Booking
}

func newDataset() *dataset {
	return &dataset{
		rooms:      map[int64]scheduling.Room{},
		teachers:   map[int64]scheduling.Teacher{},
		activities: map[int64]scheduling.Activity{},
		bookings:   map[int64]scheduling.Booking{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.rooms {
		c.rooms[k] = v
	}
	for k, v := range d.teachers {
		c.teachers[k] = v
	}
	for k, v := range d.activities {
		c.activities[k] = v
	}
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	return c
}

func (d *dataset) decorate(b scheduling.Booking) scheduling.Booking {
	b.ActivityName = ""
	if b.ActivityID != nil {
		if a, ok := d.activities[*b.ActivityID]; ok {
			b.ActivityName = a.Name
		}
	}
	return b
}

func (d *dataset) GetRoom(_ context.Context, id int64) (scheduling.Room, error) {
	r, ok := d.rooms[id]
	if !ok {
		return scheduling.Room{}, scheduling.ErrNotFound
	}
	return r, nil
}

func (d *dataset) GetTeacher(_ context.Context, id int64) (scheduling.Teacher, error) {
	t, ok := d.teachers[id]
	if !ok {
		return scheduling.Teacher{}, scheduling.ErrNotFound
	}
	return t, nil
}

func (d *dataset) GetBooking(_ context.Context, id int64) (scheduling.Booking, error) {
	b, ok := d.bookings[id]
	if !ok {
		return scheduling.Booking{}, scheduling.ErrNotFound
	}
	return d.decorate(b), nil
}

func (d *dataset) ActiveActivityIDs(_ context.Context, teacherID int64) ([]int64, error) {
	ids := []int64{}
	for _, a := range d.activities {
		if a.TeacherID != nil && *a.TeacherID == teacherID && a.Status == "active" {
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *dataset) BookingsOverlapping(_ context.Context, q scheduling.OverlapQuery) ([]scheduling.Booking, error) {
	out := d.listBookings(q.Matches)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (d *dataset) ListRooms(_ context.Context, f scheduling.RoomFilter) ([]scheduling.Room, error) {
	out := []scheduling.Room{}
	for _, r := range d.rooms {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.MinCapacity > 0 && r.Capacity < f.MinCapacity {
			continue
		}
		if f.RoomType != "" && r.RoomType != f.RoomType {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *dataset) ListTeachers(_ context.Context, status scheduling.TeacherStatus) ([]scheduling.Teacher, error) {
	out := []scheduling.Teacher{}
	for _, t := range d.teachers {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].LastName < out[j].LastName
	})
	return out, nil
}

func (d *dataset) listBookings(keep func(scheduling.Booking) bool) []scheduling.Booking {
	out := []scheduling.Booking{}
	for _, b := range d.bookings {
		if keep(b) {
			out = append(out, d.decorate(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}
