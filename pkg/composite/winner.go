package composite

import (
	"fmt"
	"math"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// ResolveWinners walks the criteria in stack order and records, per pixel,
// the 1-based index of the largest valid value. An earlier image keeps the
// pixel on a tie. Where every criterion is nodata (or NaN) the id is 0.
//
// counts[k] is the number of pixels won by image k; counts[0] the pixels
// nobody won.
func ResolveWinners(criteria []*raster.Grid, nodata float64) (ids *raster.Grid, counts []int, err error) {
	if len(criteria) == 0 {
		return nil, nil, MakeConfiguration(fmt.Errorf("ResolveWinners: no criteria"))
	}
	for i, c := range criteria[1:] {
		if !c.SameSize(criteria[0]) {
			return nil, nil, MakeConsistency(fmt.Errorf("ResolveWinners: criterion %d is %dx%d, criterion 1 is %dx%d",
				i+2, c.Dx(), c.Dy(), criteria[0].Dx(), criteria[0].Dy()))
		}
	}

	ids = criteria[0].NewFromThis()
	counts = make([]int, len(criteria)+1)

	for i := 0; i < ids.Len(); i++ {
		winner, best := 0, 0.0
		for k, c := range criteria {
			v := c.At(i)
			if v == nodata || math.IsNaN(v) {
				continue
			}
			if winner == 0 || v > best {
				winner, best = k+1, v
			}
		}
		ids.SetAt(i, float64(winner))
		counts[winner]++
	}

	return ids, counts, nil
}
