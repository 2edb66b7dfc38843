package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/archive"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
)

// DownloadSource fetches each image into the cache directory and serves it
// from there. A non-empty file already present under the image name is
// trusted without contacting the archive.
type DownloadSource struct {
	base
	cacheDir string
	keep     bool
}

// NewDownloadSource creates a download-and-cache Source.
func NewDownloadSource(opts Options, client archive.Client, opener raster.Opener, logger *slog.Logger, metrics *observability.Metrics) *DownloadSource {
	return &DownloadSource{
		base:     newBase(opts, client, opener, logger, metrics),
		cacheDir: opts.CacheDir,
		keep:     opts.KeepDownloads,
	}
}

func (s *DownloadSource) Mode() Mode { return ModeDownload }

// CachePath is where the image of w is stored.
func (s *DownloadSource) CachePath(w domain.AcquisitionWindow) string {
	return filepath.Join(s.cacheDir, s.archive.FileName(w))
}

func (s *DownloadSource) Resolve(ctx context.Context, w domain.AcquisitionWindow) (Resolved, error) {
	name := s.archive.ImageName(w)
	path := s.CachePath(w)
	target := s.archive.URL(w, s.email).Redacted()

	cached := isCached(path)
	if !cached {
		if err := s.download(ctx, w, name, path, target); err != nil {
			s.record(ModeDownload, "error")
			return Resolved{}, err
		}
	}

	if err := s.verify(path); err != nil {
		// A file that does not open must not be trusted by a later run.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("remove unreadable image failed", "path", path, "error", rmErr)
		}
		s.record(ModeDownload, "error")
		return Resolved{}, domain.NewSampleError(name, domain.KindDecoding, target, openError(err))
	}

	if cached {
		s.record(ModeDownload, "cached")
		s.logger.Debug("image served from cache", "image", name, "path", path)
	} else {
		s.record(ModeDownload, "success")
	}
	return Resolved{Window: w, Name: name, Locator: path, Target: target, Cached: cached, Local: true}, nil
}

// download transfers the image into a temporary sibling of path and renames
// it into place once complete.
func (s *DownloadSource) download(ctx context.Context, w domain.AcquisitionWindow, name, path, target string) error {
	size, err := s.reachable(ctx, name, target, w)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.cacheDir, filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op after a successful rename

	start := time.Now()
	n, err := s.client.Fetch(ctx, s.archive.URL(w, s.email), tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil && size > 0 && n != size {
		err = fmt.Errorf("short transfer: got %d of %d bytes", n, size)
	}
	if err != nil {
		return domain.NewSampleError(name, domain.KindConnectivity, target, err)
	}
	s.metrics.FetchBytes.Add(float64(n))
	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("move %s into cache: %w", name, err)
	}
	s.logger.Debug("image downloaded", "image", name, "bytes", n)
	return nil
}

// Cleanup deletes the cached file unless downloads are kept.
func (s *DownloadSource) Cleanup(r Resolved) error {
	if s.keep || !r.Local {
		return nil
	}
	if err := os.Remove(r.Locator); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cached image: %w", err)
	}
	return nil
}

func isCached(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
