// conflict-probe asks bookings-service over gRPC whether a room, or a
// teacher, is free for a window and prints the JSON answer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/edusched/school/libs/api/schedulingv1"
	"github.com/edusched/school/libs/grpcx"
	"github.com/edusched/school/libs/runtime"
)

func main() {
	var (
		addr      = flag.String("addr", runtime.Getenv("BOOKINGS_GRPC_ADDR", "localhost:50051"), "bookings-service gRPC address")
		mode      = flag.String("mode", "conflicts", "conflicts | room | teacher")
		roomID    = flag.Int64("room", 0, "room id")
		teacherID = flag.Int64("teacher", 0, "teacher id")
		start     = flag.String("start", "", "window start, e.g. 2024-01-15T09:00")
		end       = flag.String("end", "", "window end")
		excludeID = flag.Int64("exclude", 0, "booking id to ignore (conflicts mode)")
		timeout   = flag.Duration("timeout", 5*time.Second, "call timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := grpcx.Dial(ctx, *addr, grpcx.DialOptions{}, grpcx.WithJSON())
	if err != nil {
		fatal(fmt.Sprintf("dial %s: %v", *addr, err))
	}
	defer conn.Close()
	client := schedulingv1.NewClient(conn)

	var out any
	switch strings.ToLower(*mode) {
	case "conflicts":
		if *roomID == 0 || *start == "" || *end == "" {
			fatal("-room, -start and -end are required")
		}
		out, err = client.FindConflicts(ctx, &schedulingv1.FindConflictsRequest{
			RoomID: *roomID, StartTime: *start, EndTime: *end, ExcludeID: *excludeID,
		})
	case "room":
		if *roomID == 0 {
			fatal("-room is required")
		}
		out, err = client.RoomAvailability(ctx, &schedulingv1.RoomAvailabilityRequest{
			RoomID: *roomID, StartTime: *start, EndTime: *end,
		})
	case "teacher":
		if *teacherID == 0 {
			fatal("-teacher is required")
		}
		out, err = client.TeacherAvailability(ctx, &schedulingv1.TeacherAvailabilityRequest{
			TeacherID: *teacherID, StartTime: *start, EndTime: *end,
		})
	default:
		fatal("unknown mode " + *mode)
	}
	if err != nil {
		fatal(err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func fatal(msg string) {
	_, _ = os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}
