package raster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

// ErrOutOfBounds is returned by Memory for reads outside the grid.
var ErrOutOfBounds = errors.New("access window out of range")

// Memory is an in-memory single-band raster. It backs tests and tooling
// that synthesize grids without touching GDAL.
type Memory struct {
	Name      string
	Transform domain.GeoTransform
	Type      DataType
	Width     int
	Height    int
	// Pixels is row-major with len == Width*Height. When nil, every pixel
	// reads as Fill.
	Pixels []float64
	Fill   float64
}

// NewConstantMemory returns a raster whose pixels all read as v. No pixel
// storage is allocated, so full-size grids are cheap.
func NewConstantMemory(name string, gt domain.GeoTransform, width, height int, v float64) *Memory {
	return &Memory{Name: name, Transform: gt, Type: Float32, Width: width, Height: height, Fill: v}
}

func (m *Memory) Description() string { return m.Name }

func (m *Memory) GeoTransform() (domain.GeoTransform, error) { return m.Transform, nil }

func (m *Memory) DataType(band int) (DataType, error) {
	if band != PrecipitationBand {
		return Unknown, fmt.Errorf("band %d does not exist", band)
	}
	return m.Type, nil
}

func (m *Memory) ReadPixel(band, col, row int, buf any) error {
	if band != PrecipitationBand {
		return fmt.Errorf("band %d does not exist", band)
	}
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfBounds, col, row, m.Width, m.Height)
	}
	v := m.Fill
	if m.Pixels != nil {
		v = m.Pixels[row*m.Width+col]
	}
	switch b := buf.(type) {
	case []uint8:
		b[0] = uint8(v)
	case []uint16:
		b[0] = uint16(v)
	case []int16:
		b[0] = int16(v)
	case []uint32:
		b[0] = uint32(v)
	case []int32:
		b[0] = int32(v)
	case []float32:
		b[0] = float32(v)
	case []float64:
		b[0] = v
	default:
		return fmt.Errorf("unsupported pixel buffer %T", buf)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// MemoryOpener serves registered in-memory rasters by locator.
type MemoryOpener struct {
	mu      sync.Mutex
	rasters map[string]*Memory
	opened  map[string]int
}

// NewMemoryOpener creates an empty opener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{rasters: make(map[string]*Memory), opened: make(map[string]int)}
}

// Register makes r available under locator.
func (o *MemoryOpener) Register(locator string, r *Memory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rasters[locator] = r
}

// Remove forgets locator. Later opens fail as unknown files.
func (o *MemoryOpener) Remove(locator string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.rasters, locator)
}

// Len is the number of registered rasters.
func (o *MemoryOpener) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rasters)
}

// Open implements Opener.
func (o *MemoryOpener) Open(locator string) (Raster, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rasters[locator]
	if !ok {
		return nil, fmt.Errorf("%s: not recognized as a supported file format", locator)
	}
	o.opened[locator]++
	return r, nil
}

// Opened reports how many times locator was opened.
func (o *MemoryOpener) Opened(locator string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[locator]
}
