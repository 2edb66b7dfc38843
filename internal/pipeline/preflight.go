package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/series"
)

// dateLayout accepts zero-padded and unpadded month and day.
const dateLayout = "2006-1-2"

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrDateOrder       = errors.New("initial date after end date")
	ErrMissingStations = errors.New("missing station file")
	ErrInvalidStations = errors.New("invalid station file")
)

// PreconditionError is a configuration problem found before any output is
// written. Message is shown to the operator as is.
type PreconditionError struct {
	Err     error
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

func (e *PreconditionError) Unwrap() error { return e.Err }

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &PreconditionError{
			Err:     fmt.Errorf("%w: %w", ErrInvalidDate, err),
			Message: fmt.Sprintf("No valid date '%s' (YYYY-MM-DD)", s),
		}
	}
	return t, nil
}

// ParseDateRange parses both dates and checks ini <= end.
func ParseDateRange(ini, end string) (time.Time, time.Time, error) {
	a, err := ParseDate(ini)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	b, err := ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if a.After(b) {
		return time.Time{}, time.Time{}, &PreconditionError{
			Err:     ErrDateOrder,
			Message: fmt.Sprintf("ini_date(%s) > end_date(%s)", domain.DateLabel(a), domain.DateLabel(b)),
		}
	}
	return a, b, nil
}

// Prober checks the archive before a run starts.
type Prober interface {
	Probe(ctx context.Context, day time.Time) error
}

// Plan is a validated run.
type Plan struct {
	Ini, End   time.Time
	Days       int
	Stations   []domain.Station
	OutputPath string
	ErrorPath  string
}

// Preflight validates dates, loads stations and probes the archive, in
// that order. It creates no files.
func Preflight(ctx context.Context, ini, end, stationsPath string, prober Prober) (Plan, error) {
	a, b, err := ParseDateRange(ini, end)
	if err != nil {
		return Plan{}, err
	}

	info, err := os.Stat(stationsPath)
	if err != nil || !info.Mode().IsRegular() {
		return Plan{}, &PreconditionError{
			Err:     ErrMissingStations,
			Message: fmt.Sprintf("Missing file '%s'", stationsPath),
		}
	}
	stations, err := series.LoadStations(stationsPath)
	if err != nil {
		return Plan{}, &PreconditionError{
			Err:     fmt.Errorf("%w: %w", ErrInvalidStations, err),
			Message: fmt.Sprintf("Invalid station file '%s': %v", stationsPath, err),
		}
	}

	if err := prober.Probe(ctx, a); err != nil {
		return Plan{}, &PreconditionError{Err: err, Message: err.Error()}
	}

	out, errPath := series.Paths(stationsPath, a, b)
	return Plan{
		Ini:        a,
		End:        b,
		Days:       Days(a, b),
		Stations:   stations,
		OutputPath: out,
		ErrorPath:  errPath,
	}, nil
}
