package scheduling_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusched/school/libs/scheduling"
)

func TestParseTimeKeepsWallClock(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	for _, raw := range []string{
		"2024-01-01T10:30:00Z",
		"2024-01-01T10:30:00+02:00",
		"2024-01-01T10:30:00",
		"2024-01-01 10:30:00",
		"2024-01-01T10:30",
		" 2024-01-01 10:30 ",
	} {
		got, err := scheduling.ParseTime(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s -> %s", raw, got)
	}

	_, err := scheduling.ParseTime("yesterday")
	assert.Equal(t, 400, scheduling.HTTPStatus(err))
}

func TestParseWindow(t *testing.T) {
	w, err := scheduling.ParseWindow("", "2024-01-01 10:00")
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = scheduling.ParseWindow("2024-01-01 10:00", "2024-01-01 11:00")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, time.Hour, w.End.Sub(w.Start))

	_, err = scheduling.ParseWindow("2024-01-01 11:00", "2024-01-01 10:00")
	var ve *scheduling.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestBookingJSONHasNoOffset(t *testing.T) {
	start, err := scheduling.ParseTime("2024-01-01T10:00:00+05:00")
	require.NoError(t, err)
	b := scheduling.Booking{ID: 1, RoomID: 2, Title: "Maths", StartTime: start, EndTime: start.Add(time.Hour),
		Status: scheduling.StatusPending}

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "2024-01-01T10:00:00", fields["start_time"])
	assert.Equal(t, "2024-01-01T11:00:00", fields["end_time"])
	assert.Equal(t, "Maths", fields["title"])

	var back scheduling.Booking
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, b.StartTime.Equal(back.StartTime))
	assert.True(t, b.EndTime.Equal(back.EndTime))
	assert.Equal(t, b.Title, back.Title)

	assert.Error(t, json.Unmarshal([]byte(`{"start_time":"soon"}`), &back))
}
