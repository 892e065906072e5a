// Package tiffio is a raster driver for plain (non-geo) TIFFs, using only Go
// code. An image is either one TIFF, or a directory of single band TIFFs
// named B1.tif, B2.tif ...
package tiffio

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/abworrall/stack-composite/pkg/raster"
)

type Driver struct{}

func NewDriver() *Driver { return &Driver{} }

func (d *Driver) Read(ctx context.Context, name string) (*raster.Raster, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("tiff read: %w", err)
	}
	if !info.IsDir() {
		return readFile(name)
	}

	files, err := bandFiles(name)
	if err != nil {
		return nil, err
	}
	var out *raster.Raster
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := readFile(f)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = r
			continue
		}
		if !r.Geometry.Equal(out.Geometry) {
			return nil, fmt.Errorf("tiff read '%s': %s is %s, first band is %s", name, f, r.Geometry, out.Geometry)
		}
		out.Bands = append(out.Bands, r.Bands...)
	}
	return out, nil
}

// bandFiles lists B<n>.tif in dir, ordered by n.
func bandFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tiff readdir '%s': %w", dir, err)
	}
	nums := map[string]int{}
	files := []string{}
	for _, e := range entries {
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		n, err := strconv.Atoi(strings.TrimLeft(base, "bB"))
		if e.IsDir() || err != nil || !strings.EqualFold(filepath.Ext(e.Name()), ".tif") {
			continue
		}
		f := filepath.Join(dir, e.Name())
		nums[f] = n
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("tiff read '%s': no band files", dir)
	}
	sort.Slice(files, func(i, j int) bool { return nums[files[i]] < nums[files[j]] })
	return files, nil
}

func readFile(filename string) (*raster.Raster, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %w", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff decode '%s': %w", filename, err)
	}

	b := img.Bounds()
	geom := raster.Geometry{Width: b.Dx(), Height: b.Dy()}

	var r *raster.Raster
	switch img.(type) {
	case *image.Gray:
		r = raster.New(geom, 1, raster.Byte)
	case *image.Gray16:
		r = raster.New(geom, 1, raster.UInt16)
	case *image.RGBA64, *image.NRGBA64:
		r = raster.New(geom, 3, raster.UInt16)
	default:
		r = raster.New(geom, 3, raster.Byte)
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch img.(type) {
			case *image.Gray:
				r.Bands[0].Set(x, y, float64(c.(color.Gray).Y))
			case *image.Gray16:
				r.Bands[0].Set(x, y, float64(c.(color.Gray16).Y))
			default:
				nc := color.NRGBA64Model.Convert(c).(color.NRGBA64)
				vals := []uint16{nc.R, nc.G, nc.B}
				for i, v := range vals {
					if r.DataType == raster.Byte {
						v >>= 8
					}
					r.Bands[i].Set(x, y, float64(v))
				}
			}
		}
	}
	return r, nil
}

// Write saves a one band raster as a single TIFF, anything else as a band
// directory. Byte rasters are written as 8-bit gray, the rest as 16-bit
// gray, clamping values that don't fit.
func (d *Driver) Write(ctx context.Context, name string, r *raster.Raster) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("tiff write '%s': %w", name, err)
	}
	if r.NumBands() == 1 {
		return writeFile(name, r.Bands[0], r.DataType)
	}

	if err := os.MkdirAll(name, 0755); err != nil {
		return fmt.Errorf("tiff mkdir '%s': %w", name, err)
	}
	for i, g := range r.Bands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(name, fmt.Sprintf("B%d.tif", i+1)), g, r.DataType); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(filename string, g *raster.Grid, dt raster.DataType) error {
	var img image.Image
	if dt == raster.Byte {
		gray := image.NewGray(g.Bounds())
		for i := 0; i < g.Len(); i++ {
			gray.Pix[i] = uint8(clamp(g.At(i), math.MaxUint8))
		}
		img = gray
	} else {
		gray := image.NewGray16(g.Bounds())
		for y := 0; y < g.Dy(); y++ {
			for x := 0; x < g.Dx(); x++ {
				gray.SetGray16(x, y, color.Gray16{uint16(clamp(g.Get(x, y), math.MaxUint16))})
			}
		}
		img = gray
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %w", filename, err)
	}
	if err := tiff.Encode(writer, img, nil); err != nil {
		writer.Close()
		return fmt.Errorf("tiff encode '%s': %w", filename, err)
	}
	return writer.Close()
}

func clamp(v, max float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > max:
		return max
	}
	return math.Round(v)
}

func (d *Driver) Copy(ctx context.Context, src, dst string) error {
	return raster.CopyPath(src, dst)
}
