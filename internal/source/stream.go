package source

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/adapter/archive"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
)

// StreamSource opens images directly from the archive. Nothing is written
// locally.
type StreamSource struct {
	base
}

// NewStreamSource creates a streaming Source.
func NewStreamSource(opts Options, client archive.Client, opener raster.Opener, logger *slog.Logger, metrics *observability.Metrics) *StreamSource {
	return &StreamSource{base: newBase(opts, client, opener, logger, metrics)}
}

func (s *StreamSource) Mode() Mode { return ModeStream }

func (s *StreamSource) Resolve(_ context.Context, w domain.AcquisitionWindow) (Resolved, error) {
	name := s.archive.ImageName(w)
	u := s.archive.URL(w, s.email)
	locator := raster.VSICurl(u.String())
	target := raster.VSICurl(u.Redacted())

	if err := s.verify(locator); err != nil {
		s.record(ModeStream, "error")
		return Resolved{}, domain.NewSampleError(name, domain.KindDecoding, target, openError(err))
	}
	s.record(ModeStream, "success")
	return Resolved{Window: w, Name: name, Locator: locator, Target: target}, nil
}

func (s *StreamSource) Cleanup(Resolved) error { return nil }
