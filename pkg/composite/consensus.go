package composite

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// BuildConsensus reduces the local masks of the whole stack to one mask,
// taking per pixel the median of the valid (non-zero) classes. With an even
// number of valid classes the lower median is used, so {land, water} is
// land. Pixels with no valid class stay MaskNoData.
func BuildConsensus(masks []*raster.Grid) (*raster.Grid, error) {
	if len(masks) == 0 {
		return nil, MakeConfiguration(fmt.Errorf("BuildConsensus: no masks"))
	}
	for i, m := range masks[1:] {
		if !m.SameSize(masks[0]) {
			return nil, MakeConsistency(fmt.Errorf("BuildConsensus: mask %d is %dx%d, mask 1 is %dx%d",
				i+2, m.Dx(), m.Dy(), masks[0].Dx(), masks[0].Dy()))
		}
	}

	out := masks[0].NewFromThis()
	buf := make([]float64, 0, len(masks))
	for i := 0; i < out.Len(); i++ {
		buf = buf[:0]
		for _, m := range masks {
			if v := m.At(i); v != MaskNoData {
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			out.SetAt(i, MaskNoData)
			continue
		}
		sort.Float64s(buf)
		out.SetAt(i, stat.Quantile(0.5, stat.Empirical, buf, nil))
	}

	return out, nil
}
