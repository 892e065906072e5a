// Package raster holds the in-memory representation of georeferenced
// multi-band images, and the Driver contract used to read and write them.
package raster

import (
	"context"
	"fmt"
	"strings"
)

// DataType is the on-disk pixel type of a raster. In memory everything is float64.
type DataType int32

const (
	Undefined DataType = iota
	Byte
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

func (dt DataType) String() string {
	switch dt {
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
	}
	return "Undefined"
}

func DataTypeFromString(s string) DataType {
	switch strings.ToLower(s) {
	default:
		return Undefined
	case "uint8", "byte", "u1":
		return Byte
	case "uint16", "u2":
		return UInt16
	case "int16", "i2":
		return Int16
	case "uint32", "u4":
		return UInt32
	case "int32", "i4":
		return Int32
	case "float32", "f4":
		return Float32
	case "float64", "f8":
		return Float64
	}
}

// Geometry is the pixel grid and its georeferencing. Every raster in one
// compositing run must share the same Geometry.
type Geometry struct {
	Width, Height int
	GeoTransform  [6]float64
	Projection    string
}

func (g Geometry) Equal(o Geometry) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.GeoTransform == o.GeoTransform && g.Projection == o.Projection
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d@%v", g.Width, g.Height, g.GeoTransform)
}

// A Raster is an ordered set of same-sized bands. Band numbers are 1-based,
// as in GDAL.
type Raster struct {
	Geometry
	Bands     []*Grid
	NoData    float64
	HasNoData bool
	DataType  DataType
}

// New allocates a raster with nbands zeroed bands.
func New(geom Geometry, nbands int, dt DataType) *Raster {
	r := &Raster{Geometry: geom, DataType: dt, Bands: make([]*Grid, nbands)}
	for i := range r.Bands {
		r.Bands[i] = NewGrid(geom.Width, geom.Height)
	}
	return r
}

// FromGrid wraps a single grid as a one-band raster.
func FromGrid(geom Geometry, g *Grid, dt DataType) *Raster {
	return &Raster{Geometry: geom, DataType: dt, Bands: []*Grid{g}}
}

func (r *Raster) NumBands() int { return len(r.Bands) }

// Band returns band n (1-based).
func (r *Raster) Band(n int) (*Grid, error) {
	if n < 1 || n > len(r.Bands) {
		return nil, fmt.Errorf("band %d out of range [1,%d]", n, len(r.Bands))
	}
	return r.Bands[n-1], nil
}

// SelectBands returns a raster sharing the listed bands (1-based, in the
// given order) with r. Pixel data is not copied.
func (r *Raster) SelectBands(bands []int) (*Raster, error) {
	out := &Raster{Geometry: r.Geometry, NoData: r.NoData, HasNoData: r.HasNoData, DataType: r.DataType}
	for _, n := range bands {
		b, err := r.Band(n)
		if err != nil {
			return nil, fmt.Errorf("SelectBands: %w", err)
		}
		out.Bands = append(out.Bands, b)
	}
	return out, nil
}

// Validate checks that every band matches the declared geometry.
func (r *Raster) Validate() error {
	if len(r.Bands) == 0 {
		return fmt.Errorf("raster has no bands")
	}
	for i, b := range r.Bands {
		if b.Dx() != r.Width || b.Dy() != r.Height {
			return fmt.Errorf("band %d is %dx%d, raster is %dx%d", i+1, b.Dx(), b.Dy(), r.Width, r.Height)
		}
	}
	return nil
}

func (r *Raster) Copy() *Raster {
	out := *r
	out.Bands = make([]*Grid, len(r.Bands))
	for i, b := range r.Bands {
		out.Bands[i] = b.Copy()
	}
	return &out
}

// A Driver persists rasters. Copy must produce a byte-identical duplicate
// of the source dataset.
type Driver interface {
	Read(ctx context.Context, name string) (*Raster, error)
	Write(ctx context.Context, name string, r *Raster) error
	Copy(ctx context.Context, src, dst string) error
}
