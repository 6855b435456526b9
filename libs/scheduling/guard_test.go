package scheduling_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusched/school/libs/scheduling"
	"github.com/edusched/school/libs/scheduling/schedulingtest"
)

func newBooking(t *testing.T, roomID int64, start, end string) scheduling.NewBooking {
	return scheduling.NewBooking{RoomID: roomID, Title: "Lesson", StartTime: at(t, start), EndTime: at(t, end)}
}

func TestCreateScenario(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{ID: 1, Name: "Room 1"})
	existing := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "Existing", Status: scheduling.StatusConfirmed,
		StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	g := scheduling.NewGuard(s)

	_, err := g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:30", "2024-01-01 11:30"))
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, existing.ID, ce.Conflicts[0].ID)
	assert.Equal(t, 409, scheduling.HTTPStatus(err))

	created, err := g.Create(ctx, newBooking(t, room.ID, "2024-01-01 11:00", "2024-01-01 12:00"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, scheduling.StatusPending, created.Status)
	assert.Equal(t, "Lesson", created.Title)

	changes := s.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, scheduling.ChangeCreated, changes[0].Kind)
	assert.Equal(t, created.ID, changes[0].Booking.ID)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	g := scheduling.NewGuard(s)

	cases := []struct {
		name string
		in   scheduling.NewBooking
		msg  string
	}{
		{"missing room", scheduling.NewBooking{Title: "x", StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")},
			"Room ID, title, start time, and end time are required"},
		{"blank title", scheduling.NewBooking{RoomID: room.ID, Title: "  ", StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")},
			"Room ID, title, start time, and end time are required"},
		{"missing end", scheduling.NewBooking{RoomID: room.ID, Title: "x", StartTime: at(t, "2024-01-01 10:00")},
			"Room ID, title, start time, and end time are required"},
		{"equal bounds", newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 10:00"),
			"end time must be after start time"},
		{"inverted", newBooking(t, room.ID, "2024-01-01 11:00", "2024-01-01 10:00"),
			"end time must be after start time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Create(ctx, tc.in)
			var ve *scheduling.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.msg, ve.Message)
		})
	}

	in := newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 11:00")
	in.Status = "archived"
	_, err := g.Create(ctx, in)
	assert.Equal(t, 400, scheduling.HTTPStatus(err))
	assert.Empty(t, s.Bookings())
}

func TestCreateUnknownRoom(t *testing.T) {
	g := scheduling.NewGuard(schedulingtest.New())

	_, err := g.Create(context.Background(), newBooking(t, 77, "2024-01-01 10:00", "2024-01-01 11:00"))
	var nf *scheduling.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "room", nf.Resource)
	assert.Equal(t, int64(77), nf.ID)
}

func TestCancelledBookingFreesItsSlot(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	g := scheduling.NewGuard(s)

	first, err := g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 11:00"))
	require.NoError(t, err)
	_, err = g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 11:00"))
	require.Error(t, err)

	_, err = g.Update(ctx, first.ID, scheduling.BookingPatch{Status: scheduling.Some(scheduling.StatusCancelled)})
	require.NoError(t, err)

	_, err = g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 11:00"))
	require.NoError(t, err)
}

func TestUpdateExcludesItself(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{ID: 2, Name: "Room 2"})
	b := s.AddBooking(scheduling.Booking{ID: 5, RoomID: room.ID, Title: "Maths", Status: scheduling.StatusConfirmed,
		StartTime: at(t, "2024-01-01 09:00"), EndTime: at(t, "2024-01-01 10:00")})
	g := scheduling.NewGuard(s)

	updated, err := g.Update(ctx, b.ID, scheduling.BookingPatch{
		RoomID:    scheduling.Some(room.ID),
		StartTime: scheduling.Some(at(t, "2024-01-01 09:30")),
		EndTime:   scheduling.Some(at(t, "2024-01-01 10:30")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.ID)
	assert.Equal(t, at(t, "2024-01-01 09:30"), updated.StartTime)
	assert.Equal(t, at(t, "2024-01-01 10:30"), updated.EndTime)
	assert.Equal(t, "Maths", updated.Title)

	changes := s.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, scheduling.ChangeUpdated, changes[0].Kind)
	require.NotNil(t, changes[0].Previous)
	assert.Equal(t, at(t, "2024-01-01 09:00"), changes[0].Previous.StartTime)
}

func TestUpdateConflictsAndValidation(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	a := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "A", Status: scheduling.StatusConfirmed,
		StartTime: at(t, "2024-01-01 09:00"), EndTime: at(t, "2024-01-01 10:00")})
	b := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "B", Status: scheduling.StatusConfirmed,
		StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	g := scheduling.NewGuard(s)

	_, err := g.Update(ctx, b.ID, scheduling.BookingPatch{StartTime: scheduling.Some(at(t, "2024-01-01 09:30"))})
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, a.ID, ce.Conflicts[0].ID)

	_, err = g.Update(ctx, b.ID, scheduling.BookingPatch{EndTime: scheduling.Some(at(t, "2024-01-01 09:00"))})
	var ve *scheduling.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end time must be after start time", ve.Message)

	_, err = g.Update(ctx, b.ID, scheduling.BookingPatch{})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no fields to update", ve.Message)

	_, err = g.Update(ctx, b.ID, scheduling.BookingPatch{Status: scheduling.Some(scheduling.Status("lost"))})
	require.ErrorAs(t, err, &ve)

	_, err = g.Update(ctx, 999, scheduling.BookingPatch{Title: scheduling.Some("x")})
	var nf *scheduling.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Booking not found", nf.Error())

	_, err = g.Update(ctx, b.ID, scheduling.BookingPatch{RoomID: scheduling.Some(int64(404))})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "room", nf.Resource)
}

func TestUpdateWithoutSchedulingFieldsSkipsCheck(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	b := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "B", Status: scheduling.StatusPending,
		StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	s.QueryErr = assert.AnError
	g := scheduling.NewGuard(s)

	desc := "bring goggles"
	updated, err := g.Update(ctx, b.ID, scheduling.BookingPatch{
		Title:       scheduling.Some("B2"),
		Description: scheduling.Some(&desc),
		Status:      scheduling.Some(scheduling.StatusCompleted),
	})
	require.NoError(t, err)
	assert.Equal(t, "B2", updated.Title)
	assert.Equal(t, scheduling.StatusCompleted, updated.Status)
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)
}

func TestReviveIntoOccupiedSlotIsRefused(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	cancelled := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "Old", Status: scheduling.StatusCancelled,
		StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	live := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "New", Status: scheduling.StatusConfirmed,
		StartTime: at(t, "2024-01-01 10:30"), EndTime: at(t, "2024-01-01 11:30")})
	g := scheduling.NewGuard(s)

	_, err := g.Update(ctx, cancelled.ID, scheduling.BookingPatch{Status: scheduling.Some(scheduling.StatusConfirmed)})
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, live.ID, ce.Conflicts[0].ID)
	assert.Equal(t, 409, scheduling.HTTPStatus(err))

	stored, err := s.GetBooking(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, stored.Status)
	assert.Empty(t, s.Changes())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	b := s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "B",
		StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	g := scheduling.NewGuard(s)

	require.NoError(t, g.Delete(scheduling.WithActor(ctx, 12), b.ID))
	assert.Empty(t, s.Bookings())

	changes := s.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, scheduling.ChangeDeleted, changes[0].Kind)
	require.NotNil(t, changes[0].ActorID)
	assert.Equal(t, int64(12), *changes[0].ActorID)

	err := g.Delete(ctx, b.ID)
	assert.Equal(t, 404, scheduling.HTTPStatus(err))
}

func TestStorageOverlapBecomesConflict(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	var winner scheduling.Booking
	s.BeforeCommit = func() {
		s.BeforeCommit = nil
		winner = s.AddBooking(scheduling.Booking{RoomID: room.ID, Title: "Winner", Status: scheduling.StatusConfirmed,
			StartTime: at(t, "2024-01-01 10:00"), EndTime: at(t, "2024-01-01 11:00")})
	}
	g := scheduling.NewGuard(s)

	_, err := g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:30", "2024-01-01 11:30"))
	var ce *scheduling.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Equal(t, winner.ID, ce.Conflicts[0].ID)
	assert.Len(t, s.Bookings(), 1)
	assert.Empty(t, s.Changes())
}

func TestConcurrentCreatesNeverDoubleBook(t *testing.T) {
	ctx := context.Background()
	s := schedulingtest.New()
	room := s.AddRoom(scheduling.Room{Name: "Lab"})
	g := scheduling.NewGuard(s)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Create(ctx, newBooking(t, room.ID, "2024-01-01 10:00", "2024-01-01 11:00"))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.Equal(t, 409, scheduling.HTTPStatus(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	live := s.Bookings()
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			assert.False(t, live[i].Window().Overlaps(live[j].Window()))
		}
	}
}
