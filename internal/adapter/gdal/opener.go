// Package gdal opens GeoTIFF rasters through the GDAL C library, either from
// a local file or remotely through GDAL's /vsicurl/ virtual filesystem.
package gdal

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
)

var registerOnce sync.Once

// Opener implements raster.Opener with godal.
type Opener struct {
	config []string
}

// NewOpener registers the GDAL drivers once per process. connectTimeout
// bounds the TCP connect of /vsicurl/ opens; zero leaves GDAL's default.
func NewOpener(connectTimeout time.Duration) *Opener {
	registerOnce.Do(godal.RegisterAll)
	o := &Opener{}
	if connectTimeout > 0 {
		o.config = append(o.config, connectTimeoutOption(connectTimeout))
	}
	return o
}

// connectTimeoutOption renders d in whole seconds, rounded up.
func connectTimeoutOption(d time.Duration) string {
	return fmt.Sprintf("GDAL_HTTP_CONNECTTIMEOUT=%d", int(math.Ceil(d.Seconds())))
}

// Open opens locator read-only in raster mode.
func (o *Opener) Open(locator string) (raster.Raster, error) {
	opts := []godal.OpenOption{godal.RasterOnly()}
	if len(o.config) > 0 && strings.HasPrefix(locator, "/vsicurl/") {
		opts = append(opts, godal.ConfigOption(o.config...))
	}
	ds, err := godal.Open(locator, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdal open %s: %w", locator, err)
	}
	return &dataset{locator: locator, ds: ds}, nil
}

type dataset struct {
	locator string
	ds      *godal.Dataset
}

func (d *dataset) Description() string { return d.locator }

func (d *dataset) GeoTransform() (domain.GeoTransform, error) {
	gt, err := d.ds.GeoTransform()
	if err != nil {
		return domain.GeoTransform{}, err
	}
	return domain.GeoTransform(gt), nil
}

func (d *dataset) band(n int) (godal.Band, error) {
	bands := d.ds.Bands()
	if n < 1 || n > len(bands) {
		return godal.Band{}, fmt.Errorf("band %d does not exist (%d bands)", n, len(bands))
	}
	return bands[n-1], nil
}

func (d *dataset) DataType(band int) (raster.DataType, error) {
	b, err := d.band(band)
	if err != nil {
		return raster.Unknown, err
	}
	return convertType(b.Structure().DataType), nil
}

func (d *dataset) ReadPixel(band, col, row int, buf any) error {
	b, err := d.band(band)
	if err != nil {
		return err
	}
	return b.Read(col, row, buf, 1, 1)
}

func (d *dataset) Close() error {
	return d.ds.Close()
}

func convertType(t godal.DataType) raster.DataType {
	switch t {
	case godal.Byte:
		return raster.Byte
	case godal.UInt16:
		return raster.UInt16
	case godal.Int16:
		return raster.Int16
	case godal.UInt32:
		return raster.UInt32
	case godal.Int32:
		return raster.Int32
	case godal.Float32:
		return raster.Float32
	case godal.Float64:
		return raster.Float64
	default:
		return raster.Unknown
	}
}
