package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/source"
)

var imergGrid = domain.GeoTransform{-180, 0.1, 0, 90, 0, -0.1}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// windowIndex is the 0-based position of w within its day.
func windowIndex(w domain.AcquisitionWindow) int {
	return ((w.MinutesSinceMidnight-720)+1440)%1440/30
}

// fakeSource resolves every window to an in-memory constant raster unless
// the window index is listed in fail.
type fakeSource struct {
	archive    domain.Archive
	opener     *raster.MemoryOpener
	value      float64
	fail       map[int]bool
	unexpected map[string]error // date label -> error on first window
	probeErr   error

	mu       sync.Mutex
	resolved []string
	cleaned  []string
	probes   int
}

func newFakeSource(value float64) *fakeSource {
	return &fakeSource{
		archive: domain.DefaultArchive(),
		opener:  raster.NewMemoryOpener(),
		value:   value,
		fail:    map[int]bool{},
	}
}

func (f *fakeSource) Mode() source.Mode { return source.ModeDownload }

func (f *fakeSource) ImageName(w domain.AcquisitionWindow) string { return f.archive.ImageName(w) }

func (f *fakeSource) Resolve(_ context.Context, w domain.AcquisitionWindow) (source.Resolved, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.archive.ImageName(w)
	target := "ftp://archive.test" + f.archive.RemotePath(w)
	if err := f.unexpected[w.Start().AddDate(0, 0, 1).Format(time.DateOnly)]; err != nil && windowIndex(w) == 0 {
		return source.Resolved{}, err
	}
	if f.fail[windowIndex(w)] {
		return source.Resolved{}, domain.NewSampleError(name, domain.KindConnectivity, target, errors.New("i/o timeout"))
	}
	f.opener.Register(name, raster.NewConstantMemory(name, imergGrid, 3600, 1800, f.value))
	f.resolved = append(f.resolved, name)
	return source.Resolved{Window: w, Name: name, Locator: name, Target: target, Local: true}, nil
}

func (f *fakeSource) Cleanup(r source.Resolved) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, r.Name)
	f.opener.Remove(r.Locator)
	return nil
}

func (f *fakeSource) Probe(context.Context, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

// trackingOpener records the peak number of rasters open at once.
type trackingOpener struct {
	inner raster.Opener
	open  atomic.Int32
	peak  atomic.Int32
}

func (o *trackingOpener) Open(locator string) (raster.Raster, error) {
	n := o.open.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	r, err := o.inner.Open(locator)
	if err != nil {
		o.open.Add(-1)
		return nil, err
	}
	return &trackedRaster{Raster: r, done: func() { o.open.Add(-1) }}, nil
}

type trackedRaster struct {
	raster.Raster
	done func()
}

func (r *trackedRaster) Close() error {
	r.done()
	return r.Raster.Close()
}

// failingOpener fails every open.
type failingOpener struct{}

func (failingOpener) Open(locator string) (raster.Raster, error) {
	return nil, errors.New(locator + ": not recognized as a supported file format")
}
