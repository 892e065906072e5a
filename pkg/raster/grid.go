package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// A Grid is a single band of pixel values, stored row-major as float64
// regardless of the on-disk data type.
type Grid struct {
	stride int
	values []float64
}

func NewGrid(w, h int) *Grid {
	return &Grid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewGridFilled returns a grid with every pixel set to v.
func NewGridFilled(w, h int, v float64) *Grid {
	g := NewGrid(w, h)
	for i := range g.values {
		g.values[i] = v
	}
	return g
}

// NewGridFromValues wraps vals (row-major, len == w*h) without copying.
func NewGridFromValues(w, h int, vals []float64) (*Grid, error) {
	if w <= 0 || h <= 0 || len(vals) != w*h {
		return nil, fmt.Errorf("grid %dx%d cannot hold %d values", w, h, len(vals))
	}
	return &Grid{stride: w, values: vals}, nil
}

func (g *Grid) NewFromThis() *Grid     { return NewGrid(g.Dx(), g.Dy()) }
func (g *Grid) Set(x, y int, v float64) { g.values[g.stride*y+x] = v }
func (g *Grid) Get(x, y int) float64    { return g.values[g.stride*y+x] }
func (g *Grid) Dx() int                 { return g.stride }
func (g *Grid) Dy() int {
	if g.stride == 0 {
		return 0
	}
	return len(g.values) / g.stride
}

// Len, At and SetAt address pixels by their row-major offset, which is how
// all the stack reductions walk a grid.
func (g *Grid) Len() int                { return len(g.values) }
func (g *Grid) At(i int) float64        { return g.values[i] }
func (g *Grid) SetAt(i int, v float64)  { g.values[i] = v }
func (g *Grid) Values() []float64       { return g.values }
func (g *Grid) SameSize(o *Grid) bool   { return g.Dx() == o.Dx() && g.Dy() == o.Dy() }
func (g *Grid) Bounds() image.Rectangle { return image.Rect(0, 0, g.Dx(), g.Dy()) }

func (g *Grid) Copy() *Grid {
	g2 := Grid{stride: g.stride, values: make([]float64, len(g.values))}
	copy(g2.values, g.values)
	return &g2
}

// MinMax returns the range of the grid, skipping pixels equal to nodata
// and NaNs. ok is false if no pixel qualified.
func (g *Grid) MinMax(nodata float64) (min, max float64, ok bool) {
	min, max = math.MaxFloat64, -math.MaxFloat64
	for _, v := range g.values {
		if v == nodata || math.IsNaN(v) {
			continue
		}
		ok = true
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

func (g *Grid) Stats(nodata float64) string {
	min, max, ok := g.MinMax(nodata)
	if !ok {
		return fmt.Sprintf("grid[%dx%d, all nodata]", g.Dx(), g.Dy())
	}
	return fmt.Sprintf("grid[%dx%d, vals{%f,%f}]", g.Dx(), g.Dy(), min, max)
}

// ToImg saves a grayscale rendering of the grid, stretched over its
// range of valid values, with a title drawn in the corner. Nodata
// pixels come out black.
func (g *Grid) ToImg(title, filename string, nodata float64) error {
	min, max, ok := g.MinMax(nodata)
	span := max - min
	if !ok || span == 0 {
		span = 1
	}

	img := image.NewRGBA64(g.Bounds())
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			v := g.Get(x, y)
			if v == nodata || math.IsNaN(v) {
				img.Set(x, y, color.RGBA64{0, 0, 0, 0xFFFF})
				continue
			}
			gray := uint16((v - min) / span * 65535.0)
			img.Set(x, y, color.RGBA64{gray, gray, gray, 0xFFFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 0.2, 0.2)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
