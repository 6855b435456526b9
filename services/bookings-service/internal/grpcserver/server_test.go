package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	schedulingv1 "github.com/edusched/school/libs/api/schedulingv1"
	"github.com/edusched/school/libs/grpcx"
	"github.com/edusched/school/libs/scheduling"
	"github.com/edusched/school/libs/scheduling/schedulingtest"
)

func startServer(t *testing.T, store *schedulingtest.MemStore) *schedulingv1.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcx.NewServer()
	Register(srv, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial(context.Background(), "bufnet", grpcx.DialOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpcx.WithJSON(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return schedulingv1.NewClient(conn)
}

func seed(t *testing.T) *schedulingtest.MemStore {
	t.Helper()
	s := schedulingtest.New()
	s.AddRoom(scheduling.Room{ID: 1, Name: "Lab", Status: scheduling.RoomAvailable})
	s.AddTeacher(scheduling.Teacher{ID: 1, FirstName: "Ada", Status: scheduling.TeacherActive})
	s.AddTeacher(scheduling.Teacher{ID: 2, FirstName: "Bo", Status: scheduling.TeacherInactive})
	teacherID := int64(1)
	act := s.AddActivity(scheduling.Activity{ID: 5, Name: "Chess", TeacherID: &teacherID, Status: "active"})
	start, _ := scheduling.ParseTime("2024-01-01 10:00")
	end, _ := scheduling.ParseTime("2024-01-01 11:00")
	s.AddBooking(scheduling.Booking{ID: 10, RoomID: 1, ActivityID: &act.ID, Title: "Chess club",
		Status: scheduling.StatusConfirmed, StartTime: start, EndTime: end})
	return s
}

func TestFindConflicts(t *testing.T) {
	client := startServer(t, seed(t))
	ctx := context.Background()

	resp, err := client.FindConflicts(ctx, &schedulingv1.FindConflictsRequest{
		RoomID: 1, StartTime: "2024-01-01T10:30:00", EndTime: "2024-01-01T11:30:00",
	})
	require.NoError(t, err)
	assert.True(t, resp.HasConflicts)
	assert.Equal(t, 1, resp.Count)
	assert.EqualValues(t, 10, resp.Conflicts[0].ID)

	resp, err = client.FindConflicts(ctx, &schedulingv1.FindConflictsRequest{
		RoomID: 1, StartTime: "2024-01-01T10:30:00", EndTime: "2024-01-01T11:30:00", ExcludeID: 10,
	})
	require.NoError(t, err)
	assert.False(t, resp.HasConflicts)

	_, err = client.FindConflicts(ctx, &schedulingv1.FindConflictsRequest{RoomID: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.FindConflicts(ctx, &schedulingv1.FindConflictsRequest{
		RoomID: 1, StartTime: "2024-01-01T11:00:00", EndTime: "2024-01-01T10:00:00",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRoomAvailability(t *testing.T) {
	client := startServer(t, seed(t))
	ctx := context.Background()

	resp, err := client.RoomAvailability(ctx, &schedulingv1.RoomAvailabilityRequest{RoomID: 1})
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, "Lab", resp.Name)
	assert.Zero(t, resp.Conflicts)

	resp, err = client.RoomAvailability(ctx, &schedulingv1.RoomAvailabilityRequest{
		RoomID: 1, StartTime: "2024-01-01 10:15", EndTime: "2024-01-01 10:45",
	})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Equal(t, 1, resp.Conflicts)

	_, err = client.RoomAvailability(ctx, &schedulingv1.RoomAvailabilityRequest{RoomID: 99})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestTeacherAvailability(t *testing.T) {
	client := startServer(t, seed(t))
	ctx := context.Background()

	resp, err := client.TeacherAvailability(ctx, &schedulingv1.TeacherAvailabilityRequest{
		TeacherID: 1, StartTime: "2024-01-01 10:30", EndTime: "2024-01-01 12:00",
	})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "Chess", resp.Conflicts[0].ActivityName)
	assert.Equal(t, "2024-01-01T10:00:00", resp.Conflicts[0].StartTime)

	resp, err = client.TeacherAvailability(ctx, &schedulingv1.TeacherAvailabilityRequest{TeacherID: 1})
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, "active", resp.Status)

	resp, err = client.TeacherAvailability(ctx, &schedulingv1.TeacherAvailabilityRequest{TeacherID: 2})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Equal(t, "Teacher is not active", resp.Reason)
	assert.Empty(t, resp.Conflicts)

	_, err = client.TeacherAvailability(ctx, &schedulingv1.TeacherAvailabilityRequest{TeacherID: 3})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
