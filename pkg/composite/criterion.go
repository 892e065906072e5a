package composite

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/stack-composite/pkg/bandmath"
	"github.com/abworrall/stack-composite/pkg/log"
	"github.com/abworrall/stack-composite/pkg/raster"
)

// A CriterionFunc fills in the Criterion grid of every layer. It returns the
// consensus mask when the mode builds one, nil otherwise.
type CriterionFunc func(ctx context.Context, cfg Config, ws *Workspace, layers []*Layer) (*raster.Grid, error)

// SelectCriterion picks, per pixel, the index that ranks this image: the
// vegetation index where the stack agrees on land, the water index where it
// agrees on water. The image's own mask only gates out its nodata pixels.
func SelectCriterion(local, consensus, ndvi, ndwi *raster.Grid, nodata float64) (*raster.Grid, error) {
	for _, g := range []*raster.Grid{consensus, ndvi, ndwi} {
		if !g.SameSize(local) {
			return nil, MakeConsistency(fmt.Errorf("SelectCriterion: grid is %dx%d, local mask is %dx%d",
				g.Dx(), g.Dy(), local.Dx(), local.Dy()))
		}
	}

	out := local.NewFromThis()
	for i := 0; i < local.Len(); i++ {
		switch {
		case local.At(i) == MaskNoData:
			out.SetAt(i, nodata)
		case consensus.At(i) == MaskLand:
			out.SetAt(i, ndvi.At(i))
		case consensus.At(i) == MaskWater:
			out.SetAt(i, ndwi.At(i))
		default:
			out.SetAt(i, nodata)
		}
	}
	return out, nil
}

// CriterionByMaxIndex ranks every image by one index: a band-math expression
// if one is configured, else the vegetation index.
func CriterionByMaxIndex(ctx context.Context, cfg Config, ws *Workspace, layers []*Layer) (*raster.Grid, error) {
	var expr *bandmath.Expression
	if cfg.Expression != "" {
		var err error
		if expr, err = bandmath.New(cfg.Expression); err != nil {
			return nil, MakeConfiguration(fmt.Errorf("CriterionByMaxIndex: %w", err))
		}
		log.Logger(ctx).Sugar().Debugf("criterion expression %s, bands %v", expr, expr.Defns)
	}

	err := forEachLayer(ctx, cfg.Workers, layers, func(ctx context.Context, l *Layer) error {
		if expr != nil {
			g, err := expr.Evaluate(l.Image, cfg.NoData)
			if err != nil {
				return MakeConsistency(fmt.Errorf("%s: %w", l.Filename(), err))
			}
			l.Criterion = g
			return ws.Dump(ctx, l.BaseName()+"_criterion", g, cfg.NoData)
		}

		defn, err := cfg.vegetationIndex(l)
		if err != nil {
			return err
		}
		if l.NDVI, err = ComputeIndex(l.Image, defn, cfg.NoData); err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}
		l.Criterion = l.NDVI
		return ws.Dump(ctx, l.BaseName()+"_ndvi", l.NDVI, cfg.NoData)
	})

	return nil, err
}

// CriterionByLandWater computes both indices and a local mask per image,
// reduces the masks to a consensus, then picks each image's criterion
// against that one consensus.
func CriterionByLandWater(ctx context.Context, cfg Config, ws *Workspace, layers []*Layer) (*raster.Grid, error) {
	err := forEachLayer(ctx, cfg.Workers, layers, func(ctx context.Context, l *Layer) error {
		layout, err := cfg.Layout(l.Sensor)
		if err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}
		if l.NDVI, err = ComputeIndex(l.Image, NDVI(layout), cfg.NoData); err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}
		if l.NDWI, err = ComputeIndex(l.Image, NDWI(layout), cfg.NoData); err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}
		if l.LocalMask, err = ClassifyLandWater(l.NDVI, l.NDWI, cfg.Thresholds); err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}

		if err := ws.Dump(ctx, l.BaseName()+"_ndvi", l.NDVI, cfg.NoData); err != nil {
			return err
		}
		if err := ws.Dump(ctx, l.BaseName()+"_ndwi", l.NDWI, cfg.NoData); err != nil {
			return err
		}
		return ws.Dump(ctx, l.BaseName()+"_msk", l.LocalMask, MaskNoData)
	})
	if err != nil {
		return nil, err
	}

	masks := make([]*raster.Grid, len(layers))
	for i, l := range layers {
		masks[i] = l.LocalMask
	}
	consensus, err := BuildConsensus(masks)
	if err != nil {
		return nil, fmt.Errorf("CriterionByLandWater.%w", err)
	}
	log.Logger(ctx).Debug("consensus mask built", zap.String("stats", consensus.Stats(MaskNoData)))
	if err := ws.Dump(ctx, "consensus_msk", consensus, MaskNoData); err != nil {
		return nil, err
	}

	err = forEachLayer(ctx, cfg.Workers, layers, func(ctx context.Context, l *Layer) error {
		var err error
		if l.Criterion, err = SelectCriterion(l.LocalMask, consensus, l.NDVI, l.NDWI, cfg.NoData); err != nil {
			return fmt.Errorf("%s: %w", l.Filename(), err)
		}
		return ws.Dump(ctx, l.BaseName()+"_criterion", l.Criterion, cfg.NoData)
	})

	return consensus, err
}

// vegetationIndex uses the configured red/nir bands, falling back to the
// layer's sensor layout for any left at zero.
func (c Config) vegetationIndex(l *Layer) (IndexDefn, error) {
	defn := IndexDefn{Name: "ndvi", Plus: c.NIRBand, Minus: c.RedBand}
	if defn.Plus == 0 || defn.Minus == 0 {
		layout, err := c.Layout(l.Sensor)
		if err != nil {
			return defn, MakeConfiguration(fmt.Errorf("%s: no red/nir bands configured and %w", l.Filename(), err))
		}
		if defn.Plus == 0 {
			defn.Plus = layout.NIR
		}
		if defn.Minus == 0 {
			defn.Minus = layout.Red
		}
	}
	return defn, nil
}

// forEachLayer runs f over the layers, at most workers at once. The first
// error cancels the rest.
func forEachLayer(ctx context.Context, workers int, layers []*Layer, f func(context.Context, *Layer) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, l := range layers {
		l := l
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return f(log.With(gctx, zap.Int("layer", l.Index)), l)
		})
	}
	return g.Wait()
}
