// Package source resolves acquisition windows to rasters the sampler can
// open, either by downloading them into a local cache or by streaming them
// from the archive through GDAL's /vsicurl/ reader.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/archive"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
)

// ErrArchiveDown is returned by Probe when the archive cannot be reached.
var ErrArchiveDown = errors.New("archive unreachable")

// Mode selects the acquisition strategy.
type Mode string

const (
	ModeDownload Mode = "download"
	ModeStream   Mode = "stream"
)

// ParseMode accepts "download" or "stream", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDownload, ModeStream:
		return m, nil
	default:
		return "", fmt.Errorf("unknown acquisition mode %q (want download or stream)", s)
	}
}

// Resolved is a window whose raster opened successfully.
type Resolved struct {
	Window domain.AcquisitionWindow
	Name   string
	// Locator reopens the raster through a raster.Opener.
	Locator string
	// Target names the image in error messages, credentials redacted.
	Target string
	// Cached is true when the file was already in the cache.
	Cached bool
	// Local is true when Locator is a cache file owned by the source.
	Local bool
}

// Source resolves windows to rasters. Failures are *domain.SampleError.
type Source interface {
	Mode() Mode
	ImageName(w domain.AcquisitionWindow) string
	Resolve(ctx context.Context, w domain.AcquisitionWindow) (Resolved, error)
	// Cleanup releases whatever Resolve left behind for r.
	Cleanup(r Resolved) error
	// Probe checks that the archive answers for the probe window of day.
	Probe(ctx context.Context, day time.Time) error
}

// Options configures a Source.
type Options struct {
	Archive domain.Archive
	Email   string
	// CacheDir receives downloaded images in download mode.
	CacheDir string
	// KeepDownloads disables Cleanup of cached files.
	KeepDownloads bool
	// Timeout bounds the reachability check before each download and the probe.
	Timeout time.Duration
}

// New returns the Source for mode.
func New(mode Mode, opts Options, client archive.Client, opener raster.Opener, logger *slog.Logger, metrics *observability.Metrics) (Source, error) {
	switch mode {
	case ModeDownload:
		return NewDownloadSource(opts, client, opener, logger, metrics), nil
	case ModeStream:
		return NewStreamSource(opts, client, opener, logger, metrics), nil
	default:
		return nil, fmt.Errorf("unknown acquisition mode %q", mode)
	}
}

// base holds what both strategies share.
type base struct {
	archive domain.Archive
	email   string
	timeout time.Duration
	client  archive.Client
	opener  raster.Opener
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newBase(opts Options, client archive.Client, opener raster.Opener, logger *slog.Logger, metrics *observability.Metrics) base {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = archive.DefaultTimeout
	}
	return base{
		archive: opts.Archive,
		email:   opts.Email,
		timeout: timeout,
		client:  client,
		opener:  opener,
		logger:  logger,
		metrics: metrics,
	}
}

func (b *base) ImageName(w domain.AcquisitionWindow) string {
	return b.archive.ImageName(w)
}

func (b *base) Probe(ctx context.Context, day time.Time) error {
	u := b.archive.URL(domain.ProbeWindow(day), b.email)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.client.Stat(ctx, u); err != nil {
		return fmt.Errorf("%w: Host: '%s' Url: %s: %v", ErrArchiveDown, b.archive.Host, u.Redacted(), err)
	}
	return nil
}

// reachable checks the remote image exists before any transfer starts and
// returns its size. A size <= 0 means the archive did not report one.
func (b *base) reachable(ctx context.Context, name, target string, w domain.AcquisitionWindow) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	size, err := b.client.Stat(ctx, b.archive.URL(w, b.email))
	if err != nil {
		return 0, domain.NewSampleError(name, domain.KindConnectivity, target, err)
	}
	return size, nil
}

// verify opens and closes locator once so only readable rasters resolve.
func (b *base) verify(locator string) error {
	r, err := b.opener.Open(locator)
	if err != nil {
		return err
	}
	return r.Close()
}

func (b *base) record(mode Mode, outcome string) {
	b.metrics.ImagesResolved.WithLabelValues(string(mode), outcome).Inc()
}

var errOpenImage = errors.New("error open image")

func openError(err error) error {
	return fmt.Errorf("%w: %v", errOpenImage, err)
}
