package raster

import (
	"fmt"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

// Sampler answers point queries against one open raster band. The inverse
// geotransform is computed once at construction.
type Sampler struct {
	raster   Raster
	band     int
	dataType DataType
	inverse  domain.GeoTransform
}

// NewSampler prepares r for sampling band.
func NewSampler(r Raster, band int) (*Sampler, error) {
	gt, err := r.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("read geotransform: %w", err)
	}
	inv, err := gt.Invert()
	if err != nil {
		return nil, fmt.Errorf("invert geotransform: %w", err)
	}
	dt, err := r.DataType(band)
	if err != nil {
		return nil, fmt.Errorf("band %d: %w", band, err)
	}
	if _, err := pixelBuffer(dt); err != nil {
		return nil, fmt.Errorf("band %d: %w", band, err)
	}
	return &Sampler{raster: r, band: band, dataType: dt, inverse: inv}, nil
}

// Value returns the pixel value under (lon, lat), rounded to two decimals.
// Points outside the raster fail in the raster layer and are returned as
// errors, never as zero.
func (s *Sampler) Value(lon, lat float64) (float64, error) {
	col, row := s.inverse.PixelOf(lon, lat)

	buf, err := pixelBuffer(s.dataType)
	if err != nil {
		return 0, err
	}
	if err := s.raster.ReadPixel(s.band, col, row, buf); err != nil {
		return 0, fmt.Errorf("read pixel (%d, %d): %w", col, row, err)
	}
	v, err := decodePixel(buf)
	if err != nil {
		return 0, err
	}
	return domain.RoundValue(v), nil
}

// StationFailure is a station whose pixel could not be read.
type StationFailure struct {
	StationID string
	Err       error
}

// Result holds the values sampled for one raster.
type Result struct {
	Values   []domain.StationValue
	Failures []StationFailure
}

// Sample reads every station's value. Stations are visited in the given
// order; a failing station does not stop the others.
func (s *Sampler) Sample(stations []domain.Station) Result {
	res := Result{Values: make([]domain.StationValue, 0, len(stations))}
	for _, st := range stations {
		v, err := s.Value(st.Lon, st.Lat)
		if err != nil {
			res.Failures = append(res.Failures, StationFailure{StationID: st.ID, Err: err})
			continue
		}
		res.Values = append(res.Values, domain.StationValue{StationID: st.ID, Value: v})
	}
	return res
}

// SampleLocator opens locator, samples all stations on the precipitation
// band and closes the raster again.
func SampleLocator(opener Opener, locator string, stations []domain.Station) (Result, error) {
	r, err := opener.Open(locator)
	if err != nil {
		return Result{}, fmt.Errorf("open raster: %w", err)
	}
	defer r.Close()

	s, err := NewSampler(r, PrecipitationBand)
	if err != nil {
		return Result{}, err
	}
	return s.Sample(stations), nil
}
