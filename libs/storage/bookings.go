package storage

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/edusched/school/libs/outbox"
	"github.com/edusched/school/libs/scheduling"
)

const bookingColumns = `
	b.id, b.room_id, b.activity_id, COALESCE(a.name, ''), b.title, b.description,
	b.start_time, b.end_time, b.status, b.created_by, b.created_at, b.updated_at`

const bookingFrom = `
	FROM bookings b
	LEFT JOIN activities a ON a.id = b.activity_id`

func scanBooking(row pgx.Row) (scheduling.Booking, error) {
	var b scheduling.Booking
	err := row.Scan(
		&b.ID,
		&b.RoomID,
		&b.ActivityID,
		&b.ActivityName,
		&b.Title,
		&b.Description,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func collectBookings(rows pgx.Rows, err error) ([]scheduling.Booking, error) {
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []scheduling.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (scheduling.Booking, error) {
	b, err := scanBooking(q.q.QueryRow(ctx, `SELECT`+bookingColumns+bookingFrom+` WHERE b.id = $1`, id))
	if err != nil {
		return scheduling.Booking{}, mapError(err)
	}
	return b, nil
}

// BookingsOverlapping applies the half-open overlap test in SQL; callers in
// the scheduling package re-check every row.
func (q *Queries) BookingsOverlapping(ctx context.Context, oq scheduling.OverlapQuery) ([]scheduling.Booking, error) {
	const live = `
		AND b.status <> 'cancelled'
		AND b.start_time < $3
		AND $2 < b.end_time
		AND ($4::bigint = 0 OR b.id <> $4)
		ORDER BY b.start_time ASC`

	if roomID, ok := oq.Scope.RoomID(); ok {
		return collectBookings(q.q.Query(ctx, `SELECT`+bookingColumns+bookingFrom+`
			WHERE b.room_id = $1`+live,
			roomID, oq.Window.Start, oq.Window.End, oq.ExcludeID))
	}
	ids, _ := oq.Scope.ActivityIDs()
	if len(ids) == 0 {
		return []scheduling.Booking{}, nil
	}
	return collectBookings(q.q.Query(ctx, `SELECT`+bookingColumns+bookingFrom+`
		WHERE b.activity_id = ANY($1)`+live,
		ids, oq.Window.Start, oq.Window.End, oq.ExcludeID))
}

func (q *Queries) ListBookings(ctx context.Context) ([]scheduling.Booking, error) {
	return collectBookings(q.q.Query(ctx, `SELECT`+bookingColumns+bookingFrom+` ORDER BY b.start_time DESC`))
}

func (q *Queries) ListBookingsByRoom(ctx context.Context, roomID int64) ([]scheduling.Booking, error) {
	return collectBookings(q.q.Query(ctx, `SELECT`+bookingColumns+bookingFrom+`
		WHERE b.room_id = $1
		ORDER BY b.start_time DESC`, roomID))
}

func (q *Queries) InsertBooking(ctx context.Context, b scheduling.Booking) (scheduling.Booking, error) {
	var id int64
	err := q.q.QueryRow(ctx, `
		INSERT INTO bookings (room_id, activity_id, title, description, start_time, end_time, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, b.RoomID, b.ActivityID, b.Title, b.Description, b.StartTime, b.EndTime, b.Status, b.CreatedBy).Scan(&id)
	if err != nil {
		return scheduling.Booking{}, mapError(err)
	}
	return q.GetBooking(ctx, id)
}

func (q *Queries) UpdateBooking(ctx context.Context, b scheduling.Booking) (scheduling.Booking, error) {
	tag, err := q.q.Exec(ctx, `
		UPDATE bookings
		SET room_id = $2,
			activity_id = $3,
			title = $4,
			description = $5,
			start_time = $6,
			end_time = $7,
			status = $8,
			updated_at = now()
		WHERE id = $1
	`, b.ID, b.RoomID, b.ActivityID, b.Title, b.Description, b.StartTime, b.EndTime, b.Status)
	if err != nil {
		return scheduling.Booking{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.Booking{}, scheduling.ErrNotFound
	}
	return q.GetBooking(ctx, b.ID)
}

func (q *Queries) DeleteBooking(ctx context.Context, id int64) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

// RecordChange writes the change to the outbox in the current transaction.
func (q *Queries) RecordChange(ctx context.Context, c scheduling.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, q.q, outbox.Event{
		AggregateType: "booking",
		AggregateID:   strconv.FormatInt(c.Booking.ID, 10),
		EventType:     EventType(c.Kind),
		Payload:       payload,
	})
}

// EventType names the topic a change is published to.
func EventType(k scheduling.ChangeKind) string {
	return "bookings.booking." + string(k) + ".v1"
}
