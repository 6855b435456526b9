// Package schedulingv1 is the school.scheduling.v1 gRPC API. Messages are
// plain structs carried by the grpcx JSON codec.
package schedulingv1

import "github.com/edusched/school/libs/scheduling"

type FindConflictsRequest struct {
	RoomID    int64  `json:"room_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	ExcludeID int64  `json:"exclude_id,omitempty"`
}

type FindConflictsResponse struct {
	HasConflicts bool                 `json:"has_conflicts"`
	Count        int                  `json:"count"`
	Conflicts    []scheduling.Booking `json:"conflicts"`
}

// RoomAvailabilityRequest leaves StartTime and EndTime empty for a plain
// status check.
type RoomAvailabilityRequest struct {
	RoomID    int64  `json:"room_id"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type RoomAvailabilityResponse struct {
	RoomID    int64                `json:"room_id"`
	Name      string               `json:"name"`
	Status    string               `json:"status"`
	Available bool                 `json:"available"`
	Conflicts int                  `json:"conflicts"`
	Bookings  []scheduling.Booking `json:"bookings,omitempty"`
}

type TeacherAvailabilityRequest struct {
	TeacherID int64  `json:"teacher_id"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type TeacherConflict struct {
	BookingID    int64  `json:"booking_id"`
	ActivityName string `json:"activity_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	RoomID       int64  `json:"room_id"`
}

type TeacherAvailabilityResponse struct {
	TeacherID int64             `json:"teacher_id"`
	Available bool              `json:"available"`
	Reason    string            `json:"reason,omitempty"`
	Status    string            `json:"status,omitempty"`
	Conflicts []TeacherConflict `json:"conflicts"`
}
