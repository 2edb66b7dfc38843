package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/series"
)

// timestampLayout prints Started/Finished times with microseconds.
const timestampLayout = "2006-01-02 15:04:05.000000"

// statusWidth pads the rewritten status line so shorter messages erase
// longer ones.
const statusWidth = 100

// DayAggregator produces one day's rows and failures.
type DayAggregator interface {
	Aggregate(ctx context.Context, day time.Time, progress Progress) (DayResult, error)
}

// DayWriter persists one day at a time.
type DayWriter interface {
	WriteDay(ctx context.Context, day time.Time, rows []domain.OutputRow, failures []*domain.SampleError) error
	Close() (series.Summary, error)
}

// Pipeline drives a date range through the aggregator and writer.
type Pipeline struct {
	aggregator DayAggregator
	writer     DayWriter
	stations   int
	out        io.Writer
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Pipeline. Status text goes to out; logs go to logger.
func New(agg DayAggregator, w DayWriter, stations int, out io.Writer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		aggregator: agg,
		writer:     w,
		stations:   stations,
		out:        out,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one day has been flushed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not flushed any day yet")
	}
	return nil
}

// Days is the number of calendar days in [ini, end].
func Days(ini, end time.Time) int {
	return int(end.Sub(ini).Hours()/24) + 1
}

// Run processes ini..end in order. A day already started is finished even
// if ctx is cancelled; the remaining days are skipped. The writer is always
// closed, and the returned summary describes what it left on disk.
func (p *Pipeline) Run(ctx context.Context, ini, end time.Time) (series.Summary, error) {
	n := Days(ini, end)
	fmt.Fprintf(p.out, "%d Days | %d Images/Day | %d Stations\n", n, domain.ImagesPerDay, p.stations)

	started := p.clock.Now()
	fmt.Fprintf(p.out, "Started  %s\n", started.Format(timestampLayout))
	p.logger.Info("run started", "ini", domain.DateLabel(ini), "end", domain.DateLabel(end), "days", n, "stations", p.stations)

	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)
	p.metrics.Stations.Set(float64(p.stations))

	runErr := p.processRange(ctx, ini, n)
	if runErr != nil {
		fmt.Fprintf(p.out, "\nError processing: %v\n\n", runErr)
		p.logger.Error("run aborted", "error", runErr)
	}

	sum, closeErr := p.writer.Close()
	p.status(fmt.Sprintf("Saved '%s'.", sum.OutputPath))
	if sum.Errors > 0 {
		fmt.Fprintf(p.out, "\nErrors read images (%d images): '%s'\n", sum.Errors, sum.ErrorPath)
	}

	finished := p.clock.Now()
	fmt.Fprintf(p.out, "\nFinished  %s(%s)\n", finished.Format(timestampLayout), elapsed(started, finished))
	p.logger.Info("run finished", "days", sum.Days, "errors", sum.Errors, "output", sum.OutputPath)

	return sum, errors.Join(runErr, closeErr)
}

func (p *Pipeline) processRange(ctx context.Context, ini time.Time, n int) error {
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		day := ini.AddDate(0, 0, i)
		label := fmt.Sprintf("%s (%d/%d)", domain.DateLabel(day), i+1, n)

		if err := p.processDay(context.WithoutCancel(ctx), day, label); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processDay(ctx context.Context, day time.Time, label string) error {
	start := p.clock.Now()

	res, err := p.aggregator.Aggregate(ctx, day, p.progress(label))
	if err != nil {
		return err
	}
	if err := p.writer.WriteDay(ctx, day, res.Rows, res.Failures); err != nil {
		return fmt.Errorf("write %s: %w", domain.DateLabel(day), err)
	}

	p.metrics.DaysProcessed.Inc()
	p.metrics.DayDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("day processed",
		"date", domain.DateLabel(day),
		"resolved", res.Resolved,
		"errors", len(res.Failures),
	)
	return nil
}

func (p *Pipeline) progress(label string) Progress {
	return func(stage Stage, index int, name string) {
		switch stage {
		case StageFetching:
			p.status(fmt.Sprintf("%s - Fetching %s (%d/%d)...", label, name, index, domain.ImagesPerDay))
		case StageSampling:
			p.status(label + " - Precipitations calculating...")
		}
	}
}

// status rewrites the current terminal line.
func (p *Pipeline) status(msg string) {
	fmt.Fprintf(p.out, "\r%-*s", statusWidth, msg)
}

// elapsed renders d as "Days = 0 hours = 1.5". Hours count whole seconds
// past the last full day.
func elapsed(from, to time.Time) string {
	d := to.Sub(from)
	days := int(d / (24 * time.Hour))
	secs := int((d % (24 * time.Hour)) / time.Second)
	return fmt.Sprintf("Days = %d hours = %s", days, series.FormatDecimal(float64(secs)/3600))
}
