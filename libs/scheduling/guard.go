package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type actorKey struct{}

// WithActor records the user performing a mutation; it is attached to the
// emitted Change.
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func actorFrom(ctx context.Context) *int64 {
	if id, ok := ctx.Value(actorKey{}).(int64); ok {
		return &id
	}
	return nil
}

type NewBooking struct {
	RoomID      int64
	ActivityID  *int64
	Title       string
	Description *string
	StartTime   time.Time
	EndTime     time.Time
	Status      Status
	CreatedBy   *int64
}

// Guard validates booking writes and refuses any that would overlap a live
// booking of the same room. Each mutation runs in one transaction.
type Guard struct {
	store Store
}

func NewGuard(s Store) *Guard {
	return &Guard{store: s}
}

func (g *Guard) Create(ctx context.Context, in NewBooking) (Booking, error) {
	if in.RoomID == 0 || strings.TrimSpace(in.Title) == "" || in.StartTime.IsZero() || in.EndTime.IsZero() {
		return Booking{}, invalid("Room ID, title, start time, and end time are required")
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !in.Status.Valid() {
		return Booking{}, invalid("invalid status %q", in.Status)
	}
	w := Window{Start: in.StartTime, End: in.EndTime}
	if !w.Valid() {
		return Booking{}, invalid("end time must be after start time")
	}

	ctx, span := tracer.Start(ctx, "scheduling.Guard.Create")
	defer span.End()
	span.SetAttributes(attribute.Int64("room.id", in.RoomID))

	q := OverlapQuery{Scope: RoomScope(in.RoomID), Window: w}
	var created Booking
	err := g.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetRoom(ctx, in.RoomID); err != nil {
			return notFound(err, "room", in.RoomID)
		}
		conflicts, err := FindOverlaps(ctx, tx, q)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}
		created, err = tx.InsertBooking(ctx, Booking{
			RoomID:      in.RoomID,
			ActivityID:  in.ActivityID,
			Title:       in.Title,
			Description: in.Description,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			Status:      in.Status,
			CreatedBy:   in.CreatedBy,
		})
		if err != nil {
			return err
		}
		return tx.RecordChange(ctx, Change{Kind: ChangeCreated, Booking: created, ActorID: actorFrom(ctx)})
	})
	if err != nil {
		err = g.settle(ctx, err, q)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Booking{}, err
	}
	span.SetAttributes(attribute.Int64("booking.id", created.ID))
	return created, nil
}

// Update applies p to booking id. Scheduling is re-checked only when p moves
// the booking (room, start or end); status may change freely.
func (g *Guard) Update(ctx context.Context, id int64, p BookingPatch) (Booking, error) {
	if p.Empty() {
		return Booking{}, invalid("no fields to update")
	}
	if v, ok := p.Title.Get(); ok && strings.TrimSpace(v) == "" {
		return Booking{}, invalid("title cannot be empty")
	}
	if v, ok := p.Status.Get(); ok && !v.Valid() {
		return Booking{}, invalid("invalid status %q", v)
	}
	if v, ok := p.RoomID.Get(); ok && v <= 0 {
		return Booking{}, invalid("room_id must be positive")
	}

	ctx, span := tracer.Start(ctx, "scheduling.Guard.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", id))

	var (
		updated Booking
		q       OverlapQuery
	)
	err := g.store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetBooking(ctx, id)
		if err != nil {
			return notFound(err, "booking", id)
		}
		next := p.Apply(existing)
		q = OverlapQuery{Scope: RoomScope(next.RoomID), Window: next.Window(), ExcludeID: id}

		if p.Reschedules() {
			if !next.Window().Valid() {
				return invalid("end time must be after start time")
			}
			if next.RoomID != existing.RoomID {
				if _, err := tx.GetRoom(ctx, next.RoomID); err != nil {
					return notFound(err, "room", next.RoomID)
				}
			}
			conflicts, err := FindOverlaps(ctx, tx, q)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}

		updated, err = tx.UpdateBooking(ctx, next)
		if err != nil {
			return err
		}
		return tx.RecordChange(ctx, Change{Kind: ChangeUpdated, Booking: updated, Previous: &existing, ActorID: actorFrom(ctx)})
	})
	if err != nil {
		err = g.settle(ctx, err, q)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Booking{}, err
	}
	return updated, nil
}

func (g *Guard) Delete(ctx context.Context, id int64) error {
	return g.store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetBooking(ctx, id)
		if err != nil {
			return notFound(err, "booking", id)
		}
		if err := tx.DeleteBooking(ctx, id); err != nil {
			return notFound(err, "booking", id)
		}
		return tx.RecordChange(ctx, Change{Kind: ChangeDeleted, Booking: existing, ActorID: actorFrom(ctx)})
	})
}

// settle turns a storage-level overlap rejection, raised when a concurrent
// writer committed first, into a ConflictError listing what is there now.
func (g *Guard) settle(ctx context.Context, err error, q OverlapQuery) error {
	var ce *ConflictError
	if errors.As(err, &ce) || !errors.Is(err, ErrOverlap) {
		return err
	}
	conflicts, ferr := FindOverlaps(ctx, g.store, q)
	if ferr != nil || conflicts == nil {
		conflicts = []Booking{}
	}
	return &ConflictError{Conflicts: conflicts}
}
