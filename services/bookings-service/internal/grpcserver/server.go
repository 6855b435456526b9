// Package grpcserver exposes conflict and availability checks over gRPC so
// other services can ask before they write.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	schedulingv1 "github.com/edusched/school/libs/api/schedulingv1"
	"github.com/edusched/school/libs/grpcx"
	"github.com/edusched/school/libs/scheduling"
)

type server struct {
	checker   *scheduling.Checker
	evaluator *scheduling.Evaluator
	logger    *slog.Logger
}

func Register(grpcServer *grpc.Server, r scheduling.Reader, logger *slog.Logger) {
	schedulingv1.RegisterSchedulingServer(grpcServer, &server{
		checker:   scheduling.NewChecker(r),
		evaluator: scheduling.NewEvaluator(r),
		logger:    logger,
	})
}

func (s *server) FindConflicts(ctx context.Context, req *schedulingv1.FindConflictsRequest) (*schedulingv1.FindConflictsResponse, error) {
	if req.RoomID <= 0 || req.StartTime == "" || req.EndTime == "" {
		return nil, status.Error(codes.InvalidArgument, "Room ID, start time, and end time are required")
	}
	w, err := scheduling.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	conflicts, err := s.checker.FindOverlaps(ctx, scheduling.OverlapQuery{
		Scope:     scheduling.RoomScope(req.RoomID),
		Window:    *w,
		ExcludeID: req.ExcludeID,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &schedulingv1.FindConflictsResponse{
		HasConflicts: len(conflicts) > 0,
		Count:        len(conflicts),
		Conflicts:    conflicts,
	}, nil
}

func (s *server) RoomAvailability(ctx context.Context, req *schedulingv1.RoomAvailabilityRequest) (*schedulingv1.RoomAvailabilityResponse, error) {
	w, err := scheduling.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	room, a, err := s.evaluator.RoomAvailability(ctx, req.RoomID, w)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp := &schedulingv1.RoomAvailabilityResponse{
		RoomID:    room.ID,
		Name:      room.Name,
		Status:    string(room.Status),
		Available: a.Available,
	}
	if w != nil {
		resp.Conflicts = len(a.Conflicts)
		resp.Bookings = a.Conflicts
	}
	return resp, nil
}

func (s *server) TeacherAvailability(ctx context.Context, req *schedulingv1.TeacherAvailabilityRequest) (*schedulingv1.TeacherAvailabilityResponse, error) {
	w, err := scheduling.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	t, a, err := s.evaluator.TeacherAvailability(ctx, req.TeacherID, w)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp := &schedulingv1.TeacherAvailabilityResponse{
		TeacherID: t.ID,
		Available: a.Available,
		Reason:    a.Reason,
		Conflicts: make([]schedulingv1.TeacherConflict, 0, len(a.Conflicts)),
	}
	if w == nil && a.Reason == "" {
		resp.Status = string(t.Status)
	}
	for _, b := range a.Conflicts {
		resp.Conflicts = append(resp.Conflicts, schedulingv1.TeacherConflict{
			BookingID:    b.ID,
			ActivityName: b.ActivityName,
			StartTime:    scheduling.FormatTime(b.StartTime),
			EndTime:      scheduling.FormatTime(b.EndTime),
			RoomID:       b.RoomID,
		})
	}
	return resp, nil
}

func (s *server) toStatus(ctx context.Context, err error) error {
	var (
		ve *scheduling.ValidationError
		ce *scheduling.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Message)
	case errors.Is(err, scheduling.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ce):
		return status.Error(codes.AlreadyExists, ce.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error("scheduling rpc failed", "request_id", grpcx.RequestIDFromContext(ctx), "err", err)
	return status.Error(codes.Internal, "internal error")
}
