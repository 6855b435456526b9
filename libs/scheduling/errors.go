package scheduling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned by a Reader when a record does not exist.
	ErrNotFound = errors.New("scheduling: record not found")
	// ErrOverlap is returned by a Writer when storage rejected a write
	// because it would overlap a live booking of the same room.
	ErrOverlap = errors.New("scheduling: booking overlaps an existing booking")
	// ErrDuplicate is returned when a write would repeat a unique value.
	ErrDuplicate = errors.New("scheduling: duplicate record")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "Not found"
	}
	return strings.ToUpper(e.Resource[:1]) + e.Resource[1:] + " not found"
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError carries the live bookings a proposed window collides with.
type ConflictError struct {
	Conflicts []Booking
}

func (e *ConflictError) Error() string {
	return "Room is already booked for this time slot"
}

func (e *ConflictError) Is(target error) bool { return target == ErrOverlap }

// notFound converts a Reader ErrNotFound into a typed NotFoundError.
func notFound(err error, resource string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// HTTPStatus maps an error returned by this package to a response code.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ce), errors.Is(err, ErrOverlap), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
