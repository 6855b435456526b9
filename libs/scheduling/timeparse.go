package scheduling

import (
	"strings"
	"time"
)

// WallClockLayout is how booking times are written back out: no offset,
// since none is stored.
const WallClockLayout = "2006-01-02T15:04:05"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime accepts the datetime forms clients send and keeps the wall clock
// exactly as written: any offset is dropped and the result is tagged UTC so
// that values compare the way the store compares them.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return wallClock(t), nil
		}
	}
	return time.Time{}, invalid("invalid datetime %q", raw)
}

func FormatTime(t time.Time) string {
	return t.Format(WallClockLayout)
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseWindow builds a window from optional query values. It returns nil when
// either bound is missing.
func ParseWindow(start, end string) (*Window, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return nil, nil
	}
	s, err := ParseTime(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseTime(end)
	if err != nil {
		return nil, err
	}
	w := Window{Start: s, End: e}
	if !w.Valid() {
		return nil, invalid("end time must be after start time")
	}
	return &w, nil
}
