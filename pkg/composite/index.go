package composite

import (
	"fmt"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// An IndexDefn names a normalized difference of two bands, (plus-minus)/(plus+minus).
type IndexDefn struct {
	Name  string
	Plus  int // 1-based band number
	Minus int // 1-based band number
}

// NDVI is the vegetation index for a layout; NDWI is the water index.
func NDVI(sl SensorLayout) IndexDefn { return IndexDefn{Name: "ndvi", Plus: sl.NIR, Minus: sl.Red} }
func NDWI(sl SensorLayout) IndexDefn { return IndexDefn{Name: "ndwi", Plus: sl.NIR, Minus: sl.SWIR} }

func (d IndexDefn) String() string {
	return fmt.Sprintf("%s=(b%d-b%d)/(b%d+b%d)", d.Name, d.Plus, d.Minus, d.Plus, d.Minus)
}

// Validate checks the operands exist in an image of nbands bands.
func (d IndexDefn) Validate(nbands int) error {
	if d.Plus < 1 || d.Plus > nbands || d.Minus < 1 || d.Minus > nbands {
		return MakeConsistency(fmt.Errorf("index %s needs bands %d and %d, image has %d", d.Name, d.Plus, d.Minus, nbands))
	}
	if d.Plus == d.Minus {
		return MakeConfiguration(fmt.Errorf("index %s uses band %d twice", d.Name, d.Plus))
	}
	return nil
}

// NormalizedDifference computes (a-b)/(a+b) per pixel. Where a+b is zero
// the pixel is nodata, so the result never holds NaN or Inf from a division.
func NormalizedDifference(a, b *raster.Grid, nodata float64) (*raster.Grid, error) {
	if !a.SameSize(b) {
		return nil, MakeConsistency(fmt.Errorf("operands are %dx%d and %dx%d", a.Dx(), a.Dy(), b.Dx(), b.Dy()))
	}

	out := a.NewFromThis()
	for i := 0; i < a.Len(); i++ {
		va, vb := a.At(i), b.At(i)
		sum := va + vb
		if sum == 0 {
			out.SetAt(i, nodata)
			continue
		}
		out.SetAt(i, (va-vb)/sum)
	}
	return out, nil
}

// ComputeIndex evaluates defn over the native bands of r.
func ComputeIndex(r *raster.Raster, defn IndexDefn, nodata float64) (*raster.Grid, error) {
	if err := defn.Validate(r.NumBands()); err != nil {
		return nil, err
	}
	plus, _ := r.Band(defn.Plus)
	minus, _ := r.Band(defn.Minus)

	g, err := NormalizedDifference(plus, minus, nodata)
	if err != nil {
		return nil, fmt.Errorf("ComputeIndex %s: %w", defn.Name, err)
	}
	return g, nil
}
