package composite

import (
	"fmt"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// Mask classes, in local and consensus masks.
const (
	MaskNoData = 0
	MaskLand   = 1
	MaskWater  = 2
)

// Classify returns the land/water class of a single pixel. The rules are
// tried in order; the first one to match wins.
//
// The nodata rule compares against a bound below the index's valid range,
// so only the nodata sentinel of the index can trigger it.
func (t Thresholds) Classify(ndvi, ndwi float64) float64 {
	switch {
	case ndvi < t.NodataBelow:
		return MaskNoData
	case ndvi > t.Vegetation:
		return MaskLand
	case ndwi > t.Water:
		return MaskWater
	default:
		return MaskLand
	}
}

// ClassifyLandWater builds the local mask of one image from its two indices.
func ClassifyLandWater(ndvi, ndwi *raster.Grid, t Thresholds) (*raster.Grid, error) {
	if !ndvi.SameSize(ndwi) {
		return nil, MakeConsistency(fmt.Errorf("ClassifyLandWater: ndvi is %dx%d, ndwi is %dx%d",
			ndvi.Dx(), ndvi.Dy(), ndwi.Dx(), ndwi.Dy()))
	}

	out := ndvi.NewFromThis()
	for i := 0; i < ndvi.Len(); i++ {
		out.SetAt(i, t.Classify(ndvi.At(i), ndwi.At(i)))
	}
	return out, nil
}
