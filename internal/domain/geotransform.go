package domain

import (
	"errors"
	"math"
)

// ErrSingularTransform is returned when a geotransform cannot be inverted.
var ErrSingularTransform = errors.New("geotransform is not invertible")

// GeoTransform is a GDAL-style affine transform:
//
//	Xgeo = T[0] + col*T[1] + row*T[2]
//	Ygeo = T[3] + col*T[4] + row*T[5]
type GeoTransform [6]float64

// Apply maps (x, y) through the transform.
func (t GeoTransform) Apply(x, y float64) (float64, float64) {
	return t[0] + x*t[1] + y*t[2], t[3] + x*t[4] + y*t[5]
}

// Invert returns the transform that maps geographic coordinates back to
// fractional pixel column and row.
func (t GeoTransform) Invert() (GeoTransform, error) {
	// North-up rasters have no rotation terms; keep the exact reciprocal.
	if t[2] == 0 && t[4] == 0 && t[1] != 0 && t[5] != 0 {
		return GeoTransform{
			-t[0] / t[1], 1 / t[1], 0,
			-t[3] / t[5], 0, 1 / t[5],
		}, nil
	}

	det := t[1]*t[5] - t[2]*t[4]
	magnitude := math.Max(math.Max(math.Abs(t[1]), math.Abs(t[2])), math.Max(math.Abs(t[4]), math.Abs(t[5])))
	if math.Abs(det) <= 1e-10*magnitude*magnitude {
		return GeoTransform{}, ErrSingularTransform
	}
	inv := 1 / det

	return GeoTransform{
		(t[2]*t[3] - t[0]*t[5]) * inv,
		t[5] * inv,
		-t[2] * inv,
		(-t[1]*t[3] + t[0]*t[4]) * inv,
		-t[4] * inv,
		t[1] * inv,
	}, nil
}

// PixelOf returns the integer pixel (col, row) containing the geographic
// point (lon, lat) for an already inverted transform. Fractional indices
// are truncated toward zero, not rounded.
func (t GeoTransform) PixelOf(lon, lat float64) (col, row int) {
	px, py := t.Apply(lon, lat)
	return int(px), int(py)
}
