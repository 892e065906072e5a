package composite

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/stack-composite/pkg/raster"
)

var (
	Tonemappers = []string{"drago03", "linear", "reinhard05"}
)

func ListTonemappers() string {
	return fmt.Sprintf("%v", Tonemappers)
}

// A Quicklook presents three bands of a composite as an HDR color image.
// Implements hdr.Image.
type Quicklook struct {
	R, G, B *raster.Grid
	Scale   float64 // pixel value to linear reflectance
	Ignore  float64 // background value, drawn black
}

// NewQuicklook picks three bands (1-based) out of r.
func NewQuicklook(r *raster.Raster, qc QuicklookConfig) (*Quicklook, error) {
	bands := qc.Bands
	if len(bands) == 0 {
		bands = []int{1, 1, 1}
		if r.NumBands() >= 3 {
			bands = []int{3, 2, 1}
		}
	}
	if len(bands) != 3 {
		return nil, MakeConfiguration(fmt.Errorf("quicklook wants 3 bands, got %v", bands))
	}

	sel, err := r.SelectBands(bands)
	if err != nil {
		return nil, MakeConfiguration(fmt.Errorf("quicklook: %w", err))
	}
	scale := qc.Scale
	if scale == 0 {
		scale = 1
	}
	return &Quicklook{R: sel.Bands[0], G: sel.Bands[1], B: sel.Bands[2], Scale: scale, Ignore: r.NoData}, nil
}

// Implement image.Image
func (q *Quicklook) ColorModel() color.Model { return hdrcolor.RGBModel }
func (q *Quicklook) Bounds() image.Rectangle { return q.R.Bounds() }
func (q *Quicklook) At(x, y int) color.Color { return q.HDRAt(x, y) }

// Implement hdr.Image
func (q *Quicklook) Size() int { return q.R.Len() }
func (q *Quicklook) HDRAt(x, y int) hdrcolor.Color {
	r, g, b := q.R.Get(x, y), q.G.Get(x, y), q.B.Get(x, y)
	if r == q.Ignore && g == q.Ignore && b == q.Ignore {
		return hdrcolor.RGB{}
	}
	return hdrcolor.RGB{R: q.linear(r), G: q.linear(g), B: q.linear(b)}
}

func (q *Quicklook) linear(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v * q.Scale
}

// WriteHDR outputs a Radiance HDR file, for tools that want the full range.
func (q *Quicklook) WriteHDR(filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("Quicklook.WriteHDR, open+w '%s': %w", filename, err)
	}
	defer writer.Close()
	return rgbe.Encode(writer, q)
}

func (q *Quicklook) Tonemapper(name string) (tmo.ToneMappingOperator, error) {
	switch name {
	case "", "linear":
		return tmo.NewLinear(q), nil
	case "drago03":
		op := tmo.NewDefaultDrago03(q)
		op.Bias = 1.0
		return op, nil
	case "reinhard05":
		return tmo.NewDefaultReinhard05(q), nil
	}
	return nil, MakeConfiguration(fmt.Errorf("no tonemapper named '%s', wanted %s", name, ListTonemappers()))
}

// WritePNG tonemaps the quicklook down to an 8-bit PNG.
func (q *Quicklook) WritePNG(filename, tonemapper string) error {
	op, err := q.Tonemapper(tonemapper)
	if err != nil {
		return err
	}
	return WritePNG(op.Perform(), filename)
}

func WritePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %w", filename, err)
	}
	if err := png.Encode(writer, img); err != nil {
		writer.Close()
		return fmt.Errorf("png encode '%s': %w", filename, err)
	}
	return writer.Close()
}
