// Package raster samples single-band precipitation rasters at station
// coordinates. Decoding of the underlying file format is delegated to an
// Opener (GDAL in production).
package raster

import (
	"fmt"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

// PrecipitationBand is the only band of the IMERG GIS product.
const PrecipitationBand = 1

// DataType is the native pixel type of a band.
type DataType int

const (
	Unknown DataType = iota
	Byte
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

func (d DataType) String() string {
	switch d {
	case Byte:
		return "Byte"
	case UInt16:
		return "UInt16"
	case Int16:
		return "Int16"
	case UInt32:
		return "UInt32"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// Raster is an opened raster dataset.
type Raster interface {
	// Description is the locator the raster was opened from. Passing it back
	// to an Opener opens the same dataset.
	Description() string
	GeoTransform() (domain.GeoTransform, error)
	// DataType reports the native type of a 1-based band.
	DataType(band int) (DataType, error)
	// ReadPixel reads the single pixel at (col, row) of band into buf, a
	// one-element slice of the Go type matching the band's DataType.
	ReadPixel(band, col, row int, buf any) error
	Close() error
}

// Opener opens a raster from a local path or a GDAL virtual path such as
// /vsicurl/ftp://...
type Opener interface {
	Open(locator string) (Raster, error)
}

// VSICurl prefixes a remote URL for GDAL's streaming reader.
func VSICurl(remote string) string {
	return "/vsicurl/" + remote
}

// pixelBuffer allocates the one-pixel read buffer for a data type.
func pixelBuffer(d DataType) (any, error) {
	switch d {
	case Byte:
		return make([]uint8, 1), nil
	case UInt16:
		return make([]uint16, 1), nil
	case Int16:
		return make([]int16, 1), nil
	case UInt32:
		return make([]uint32, 1), nil
	case Int32:
		return make([]int32, 1), nil
	case Float32:
		return make([]float32, 1), nil
	case Float64:
		return make([]float64, 1), nil
	default:
		return nil, fmt.Errorf("unsupported pixel type %s", d)
	}
}

// decodePixel converts a filled pixel buffer to float64.
func decodePixel(buf any) (float64, error) {
	switch b := buf.(type) {
	case []uint8:
		return float64(b[0]), nil
	case []uint16:
		return float64(b[0]), nil
	case []int16:
		return float64(b[0]), nil
	case []uint32:
		return float64(b[0]), nil
	case []int32:
		return float64(b[0]), nil
	case []float32:
		return float64(b[0]), nil
	case []float64:
		return b[0], nil
	default:
		return 0, fmt.Errorf("unsupported pixel buffer %T", buf)
	}
}
