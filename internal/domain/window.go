package domain

import (
	"iter"
	"time"
)

const (
	// ImagesPerDay is the number of half-hour windows accumulated into one day.
	ImagesPerDay = 48

	windowStep     = 30 * time.Minute
	windowStartsAt = 12 // hour of the previous day where accumulation starts
)

// AcquisitionWindow is one 30-minute observation slot. End is always
// Start + 30min - 1s.
type AcquisitionWindow struct {
	Year, Month, Day                    int
	StartHour, StartMinute, StartSecond int
	EndHour, EndMinute, EndSecond       int

	// MinutesSinceMidnight is derived from the start hour and minute only.
	// The archive uses it as a windowing key, not as a duration.
	MinutesSinceMidnight int
}

// Start returns the window start as a UTC time.
func (w AcquisitionWindow) Start() time.Time {
	return time.Date(w.Year, time.Month(w.Month), w.Day, w.StartHour, w.StartMinute, w.StartSecond, 0, time.UTC)
}

// End returns the last second covered by the window as a UTC time.
func (w AcquisitionWindow) End() time.Time {
	return w.Start().Add(windowStep - time.Second)
}

func newWindow(start time.Time) AcquisitionWindow {
	end := start.Add(windowStep - time.Second)
	return AcquisitionWindow{
		Year:                 start.Year(),
		Month:                int(start.Month()),
		Day:                  start.Day(),
		StartHour:            start.Hour(),
		StartMinute:          start.Minute(),
		StartSecond:          start.Second(),
		EndHour:              end.Hour(),
		EndMinute:            end.Minute(),
		EndSecond:            end.Second(),
		MinutesSinceMidnight: start.Hour()*60 + start.Minute(),
	}
}

// WindowsForDay yields the 48 windows accumulated for day: previous day
// 12:00:00 through day 11:59:59. Only the calendar date of day is used.
// The sequence is lazy and can be ranged over any number of times.
func WindowsForDay(day time.Time) iter.Seq[AcquisitionWindow] {
	first := time.Date(day.Year(), day.Month(), day.Day()-1, windowStartsAt, 0, 0, 0, time.UTC)
	return func(yield func(AcquisitionWindow) bool) {
		start := first
		for range ImagesPerDay {
			if !yield(newWindow(start)) {
				return
			}
			start = start.Add(windowStep)
		}
	}
}

// ProbeWindow returns the window starting at 12:00:00 on day itself. It is
// the artifact the liveness check asks the archive for.
func ProbeWindow(day time.Time) AcquisitionWindow {
	return newWindow(time.Date(day.Year(), day.Month(), day.Day(), windowStartsAt, 0, 0, 0, time.UTC))
}

// DateLabel formats a calendar day as YYYY-MM-DD.
func DateLabel(day time.Time) string {
	return day.Format(time.DateOnly)
}
