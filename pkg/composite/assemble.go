package composite

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// Assemble gathers the composite: every band of pixel p is copied from the
// image whose id the reference grid holds at p, or set to background where
// the id is 0. The sources must already be harmonized to the same band
// count; each output band is filled concurrently.
func Assemble(ctx context.Context, ref *raster.Grid, sources []*raster.Raster, background float64) (*raster.Raster, error) {
	if len(sources) == 0 {
		return nil, MakeConfiguration(fmt.Errorf("Assemble: no sources"))
	}

	geom := sources[0].Geometry
	nbands := sources[0].NumBands()
	for i, src := range sources {
		if src.NumBands() != nbands {
			return nil, MakeConsistency(fmt.Errorf("Assemble: source %d has %d bands, source 1 has %d", i+1, src.NumBands(), nbands))
		}
		if src.Width != ref.Dx() || src.Height != ref.Dy() {
			return nil, MakeConsistency(fmt.Errorf("Assemble: source %d is %dx%d, reference is %dx%d",
				i+1, src.Width, src.Height, ref.Dx(), ref.Dy()))
		}
	}

	out := raster.New(geom, nbands, sources[0].DataType)
	out.NoData, out.HasNoData = background, true

	g, gctx := errgroup.WithContext(ctx)
	for b := 0; b < nbands; b++ {
		b := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			band := out.Bands[b]
			for i := 0; i < ref.Len(); i++ {
				id := int(ref.At(i))
				if id < 1 || id > len(sources) {
					band.SetAt(i, background)
					continue
				}
				band.SetAt(i, sources[id-1].Bands[b].At(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Assemble.%w", err)
	}

	return out, nil
}

// Harmonize cuts every layer's image down to the bands chosen by
// Config.HarmonizedBands. Pixel data is shared, not copied.
func (c Config) Harmonize(layers []*Layer) ([]*raster.Raster, error) {
	selections, err := c.HarmonizedBands(layers)
	if err != nil {
		return nil, err
	}

	out := make([]*raster.Raster, len(layers))
	for i, l := range layers {
		if out[i], err = l.Image.SelectBands(selections[i]); err != nil {
			return nil, MakeConsistency(fmt.Errorf("harmonize %s: %w", l.Filename(), err))
		}
	}
	return out, nil
}
