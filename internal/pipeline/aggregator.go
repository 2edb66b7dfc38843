package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/source"
)

// DefaultWorkers is the number of rasters sampled concurrently.
const DefaultWorkers = 4

// Stage identifies what the aggregator is doing for progress reporting.
type Stage int

const (
	StageFetching Stage = iota
	StageSampling
)

// Progress is called on the aggregating goroutine. For StageFetching, index
// is the 1-based window number and name the image being resolved.
type Progress func(stage Stage, index int, name string)

// DayResult is the outcome of one day.
type DayResult struct {
	Day      time.Time
	Rows     []domain.OutputRow
	Failures []*domain.SampleError
	// Resolved counts windows whose raster was obtained.
	Resolved int
}

// Aggregator computes one day's per-station totals.
type Aggregator struct {
	source   source.Source
	opener   raster.Opener
	stations []domain.Station
	workers  int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewAggregator creates an Aggregator. workers < 1 selects DefaultWorkers.
func NewAggregator(src source.Source, opener raster.Opener, stations []domain.Station, workers int, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Aggregator{
		source:   src,
		opener:   opener,
		stations: stations,
		workers:  workers,
		logger:   logger,
		metrics:  metrics,
	}
}

// windowSample is what one pool task hands back to the aggregating goroutine.
type windowSample struct {
	result raster.Result
	err    error
}

// Aggregate resolves the day's 48 windows one after another, samples the
// resolved rasters on a bounded pool and sums the values. Window failures
// are collected in the result; only an unclassified error from the source
// is returned, and it aborts the day.
func (a *Aggregator) Aggregate(ctx context.Context, day time.Time, progress Progress) (DayResult, error) {
	if progress == nil {
		progress = func(Stage, int, string) {}
	}
	res := DayResult{Day: day}

	resolved, failures, err := a.resolve(ctx, day, progress)
	if err != nil {
		return res, err
	}
	res.Failures = failures
	res.Resolved = len(resolved)

	progress(StageSampling, 0, "")
	samples := a.sample(resolved)

	totals := domain.NewStationTotals(a.stations)
	for i, r := range resolved {
		s := samples[i]
		if s.err != nil {
			res.Failures = append(res.Failures, domain.NewSampleError(r.Name, domain.KindDecoding, r.Target, s.err))
			continue
		}
		for _, v := range s.result.Values {
			totals.Add(v.StationID, v.Value)
		}
		for _, f := range s.result.Failures {
			res.Failures = append(res.Failures, domain.NewSampleError(r.Name, domain.KindSampling, r.Target,
				fmt.Errorf("station '%s': %w", f.StationID, f.Err)))
		}
	}
	res.Rows = totals.Rows(day)

	for _, r := range resolved {
		if err := a.source.Cleanup(r); err != nil {
			a.logger.Warn("cleanup failed", "image", r.Name, "error", err)
		}
	}
	for _, f := range res.Failures {
		a.metrics.SampleErrors.WithLabelValues(string(f.Kind)).Inc()
	}
	return res, nil
}

func (a *Aggregator) resolve(ctx context.Context, day time.Time, progress Progress) ([]source.Resolved, []*domain.SampleError, error) {
	resolved := make([]source.Resolved, 0, domain.ImagesPerDay)
	var failures []*domain.SampleError

	k := 0
	for w := range domain.WindowsForDay(day) {
		k++
		progress(StageFetching, k, a.source.ImageName(w))
		r, err := a.source.Resolve(ctx, w)
		if err != nil {
			var se *domain.SampleError
			if !errors.As(err, &se) {
				// Files already resolved for this day are left in place.
				return nil, nil, fmt.Errorf("resolve window %d of %s: %w", k, domain.DateLabel(day), err)
			}
			a.logger.Debug("window unavailable", "image", se.Window, "kind", se.Kind, "error", se.Message)
			failures = append(failures, se)
			continue
		}
		resolved = append(resolved, r)
	}
	return resolved, failures, nil
}

// sample opens every resolved raster on its own pool task. Tasks write only
// their own slot; the caller reads the slice after Wait.
func (a *Aggregator) sample(resolved []source.Resolved) []windowSample {
	out := make([]windowSample, len(resolved))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, r := range resolved {
		g.Go(func() error {
			result, err := raster.SampleLocator(a.opener, r.Locator, a.stations)
			out[i] = windowSample{result: result, err: err}
			return nil
		})
	}
	_ = g.Wait() // tasks never fail the group
	return out
}
