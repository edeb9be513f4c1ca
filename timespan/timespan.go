// Package timespan clips tracked intervals to reporting windows and splits
// tracked time across participants.
package timespan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformedWindow = errors.New("malformed reporting window")

// Interval is a tracked span. Stop is nil while the interval is open.
// Duration, when present, is the server computed length in seconds.
type Interval struct {
	Start    time.Time
	Stop     *time.Time
	Duration *int64
}

// Window is the half-open range [Start, End). The zero Window covers all time.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Seconds is the window length, or -1 for the unbounded window.
func (w Window) Seconds() int64 {
	if w.Start.IsZero() || w.End.IsZero() {
		return -1
	}
	return int64(w.End.Sub(w.Start) / time.Second)
}

func (w Window) String() string {
	if w.IsZero() {
		return "all-time"
	}
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

// Clip returns the whole seconds of iv that fall inside w. Open intervals
// contribute nothing. A persisted duration smaller than the geometric overlap
// wins, so the result never exceeds either.
func Clip(iv Interval, w Window) int64 {
	if iv.Stop == nil {
		return 0
	}
	start, stop := iv.Start, *iv.Stop
	if !w.Start.IsZero() && start.Before(w.Start) {
		start = w.Start
	}
	if !w.End.IsZero() && stop.After(w.End) {
		stop = w.End
	}
	if !stop.After(start) {
		return 0
	}
	secs := int64(stop.Sub(start) / time.Second)
	if iv.Duration != nil && *iv.Duration >= 0 && *iv.Duration < secs {
		return *iv.Duration
	}
	return secs
}

// Split divides total equally across count participants. A count of one or
// less attributes the whole total to a single bucket.
func Split(total int64, count int) float64 {
	if count <= 1 {
		return float64(total)
	}
	return float64(total) / float64(count)
}

// MonthWindow is the UTC calendar month containing t.
func MonthWindow(t time.Time) Window {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// ParseWindow accepts "" (all time), "YYYY-MM" (UTC month),
// "YYYY-MM-DD/YYYY-MM-DD" (UTC days, end exclusive) and RFC3339 "start/end".
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Window{}, nil
	}
	if !strings.Contains(s, "/") {
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return Window{}, fmt.Errorf("%w: %q", ErrMalformedWindow, s)
		}
		return MonthWindow(t), nil
	}

	parts := strings.SplitN(s, "/", 2)
	start, err := parseBound(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("%w: %q", ErrMalformedWindow, s)
	}
	end, err := parseBound(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("%w: %q", ErrMalformedWindow, s)
	}
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: end not after start in %q", ErrMalformedWindow, s)
	}
	return Window{Start: start, End: end}, nil
}

func parseBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
