package scheduling

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scheduling")

// Checker finds the live bookings that overlap a window.
type Checker struct {
	r Reader
}

func NewChecker(r Reader) *Checker {
	return &Checker{r: r}
}

func (c *Checker) FindOverlaps(ctx context.Context, q OverlapQuery) ([]Booking, error) {
	return FindOverlaps(ctx, c.r, q)
}

// FindOverlaps returns the non-cancelled bookings in q.Scope whose window
// overlaps q.Window, minus q.ExcludeID. An empty activity scope yields an
// empty result without consulting r. The order of the result is unspecified.
func FindOverlaps(ctx context.Context, r Reader, q OverlapQuery) ([]Booking, error) {
	if !q.Window.Valid() {
		return nil, invalid("end time must be after start time")
	}
	if q.Scope.Empty() {
		return []Booking{}, nil
	}

	ctx, span := tracer.Start(ctx, "scheduling.FindOverlaps")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduling.scope", q.Scope.label()),
		attribute.Int64("scheduling.exclude_id", q.ExcludeID),
	)

	candidates, err := r.BookingsOverlapping(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query overlapping bookings")
		return nil, err
	}

	out := make([]Booking, 0, len(candidates))
	for _, b := range candidates {
		if q.Matches(b) {
			out = append(out, b)
		}
	}
	span.SetAttributes(attribute.Int("scheduling.conflicts", len(out)))
	if len(out) > 0 {
		conflictsTotal.WithLabelValues(q.Scope.label()).Inc()
	}
	return out, nil
}
