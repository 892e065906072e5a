package composite

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/stack-composite/pkg/log"
	"github.com/abworrall/stack-composite/pkg/lut"
	"github.com/abworrall/stack-composite/pkg/raster"
	"github.com/abworrall/stack-composite/pkg/stats"
)

// A Request names the inputs, in stack order, and where the outputs go.
// Reference and Mask are optional.
type Request struct {
	Sources   []Source
	Composite string
	Reference string
	Mask      string // consensus mask; landwater mode only
}

// A Result holds what a run produced. For a single image stack only Copied
// is set: the image itself is the composite.
type Result struct {
	Reference *raster.Grid
	LUT       *lut.Table
	Mask      *raster.Grid
	Composite *raster.Raster
	Counts    []int
	Copied    bool
}

type Pipeline struct {
	Config
	Driver raster.Driver
	Rand   *rand.Rand // colors the LUT; nil means a fresh generator seeded from Seed on every Run
}

// NewPipeline checks cfg. Rand is left nil, so every Run colors its LUT the
// same way for the same Seed; callers may set it to share one generator.
func NewPipeline(cfg Config, driver raster.Driver) (*Pipeline, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, MakeConfiguration(fmt.Errorf("no raster driver"))
	}
	return &Pipeline{
		Config: cfg,
		Driver: driver,
	}, nil
}

// Run builds the composite. Nothing is written unless every stage succeeds.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Sources) == 0 {
		return nil, MakeConfiguration(fmt.Errorf("Run: the image stack is empty"))
	}
	if req.Composite == "" {
		return nil, MakeConfiguration(fmt.Errorf("Run: no composite output named"))
	}
	ctx = log.With(ctx, zap.String("composite", req.Composite), zap.Int("images", len(req.Sources)))

	if len(req.Sources) == 1 {
		log.Logger(ctx).Info("single image, copying it as the composite", zap.String("source", req.Sources[0].Path))
		if err := p.Driver.Copy(ctx, req.Sources[0].Path, req.Composite); err != nil {
			return nil, fmt.Errorf("Run.Copy.%w", err)
		}
		return &Result{Copied: true}, nil
	}

	criterionFunc, err := p.GetCriterionFunc()
	if err != nil {
		return nil, err
	}

	ws, err := NewWorkspace(p.TmpPath, p.DumpIntermediates)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	if p.KeepWorkspace {
		log.Logger(ctx).Info("keeping workspace", zap.String("path", ws.Path))
	} else {
		defer ws.Close(ctx)
	}

	layers, err := p.loadLayers(ctx, req.Sources)
	if err != nil {
		return nil, fmt.Errorf("Run.Load.%w", err)
	}

	log.Logger(ctx).Info("computing criteria", zap.String("mode", p.Mode))
	consensus, err := criterionFunc(ctx, p.Config, ws, layers)
	if err != nil {
		return nil, fmt.Errorf("Run.Criterion.%w", err)
	}

	criteria := make([]*raster.Grid, len(layers))
	names := make([]string, len(layers))
	for i, l := range layers {
		criteria[i] = l.Criterion
		names[i] = l.Filename()
	}
	ref, counts, err := ResolveWinners(criteria, p.NoData)
	if err != nil {
		return nil, fmt.Errorf("Run.Winners.%w", err)
	}
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(p.Seed))
	}
	table := lut.New(names, rng)
	for id, n := range counts {
		log.Logger(ctx).Debug("winner count", zap.Int("id", id), zap.String("image", table.Name(id)), zap.Int("pixels", n))
	}

	sources, err := p.Harmonize(layers)
	if err != nil {
		return nil, fmt.Errorf("Run.Harmonize.%w", err)
	}
	out, err := Assemble(ctx, ref, sources, p.Background)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	if dt := raster.DataTypeFromString(p.DataType); dt != raster.Undefined {
		out.DataType = dt
	}

	res := &Result{Reference: ref, LUT: table, Mask: consensus, Composite: out, Counts: counts}
	if err := p.writeOutputs(ctx, req, res); err != nil {
		return nil, fmt.Errorf("Run.Write.%w", err)
	}

	log.Logger(ctx).Info("composite written", zap.Int("bands", out.NumBands()), zap.Int("unfilled", counts[0]))
	return res, nil
}

// loadLayers reads the first image, then the rest concurrently, checking
// each against the first image's geometry. Stack order is kept.
func (p *Pipeline) loadLayers(ctx context.Context, sources []Source) ([]*Layer, error) {
	layers := make([]*Layer, len(sources))
	for i, src := range sources {
		src.Sensor = p.SensorFor(src)
		layers[i] = &Layer{Source: src, Index: i + 1}
	}

	load := func(ctx context.Context, l *Layer) error {
		img, err := p.Driver.Read(ctx, l.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", l.Path, err)
		}
		if err := img.Validate(); err != nil {
			return MakeConsistency(fmt.Errorf("%s: %w", l.Path, err))
		}
		l.Image = img
		log.Logger(ctx).Debug("loaded " + l.String())
		return nil
	}

	if err := load(ctx, layers[0]); err != nil {
		return nil, err
	}
	geom := layers[0].Image.Geometry

	g, gctx := errgroup.WithContext(ctx)
	if p.Workers > 0 {
		g.SetLimit(p.Workers)
	}
	for _, l := range layers[1:] {
		l := l
		g.Go(func() error {
			if err := load(gctx, l); err != nil {
				return err
			}
			if !l.Image.Geometry.Equal(geom) {
				return MakeConsistency(fmt.Errorf("%s has geometry %s, %s has %s",
					l.Filename(), l.Image.Geometry, layers[0].Filename(), geom))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

func (p *Pipeline) writeOutputs(ctx context.Context, req Request, res *Result) error {
	geom := res.Composite.Geometry

	if err := p.Driver.Write(ctx, req.Composite, res.Composite); err != nil {
		return err
	}

	if req.Reference != "" {
		if err := p.Driver.Write(ctx, req.Reference, raster.FromGrid(geom, res.Reference, raster.UInt32)); err != nil {
			return err
		}
		if err := res.LUT.WriteYaml(req.Reference + ".lut.yaml"); err != nil {
			return err
		}
		if p.ReferencePNG {
			if err := res.LUT.Render(res.Reference, withExt(req.Reference, ".png")); err != nil {
				return fmt.Errorf("reference png: %w", err)
			}
		}
	}

	if req.Mask != "" && res.Mask != nil {
		mask := raster.FromGrid(geom, res.Mask, raster.Byte)
		mask.NoData, mask.HasNoData = MaskNoData, true
		if err := p.Driver.Write(ctx, req.Mask, mask); err != nil {
			return err
		}
	}

	if p.CalcStats {
		rep, err := stats.Summarize(res.Composite, p.Background)
		if err != nil {
			return err
		}
		rep.AddWinners(res.Counts, res.LUT.Name)
		if err := rep.WriteYaml(req.Composite + ".stats.yaml"); err != nil {
			return err
		}
	}

	if len(p.Quicklook.Bands) > 0 {
		q, err := NewQuicklook(res.Composite, p.Quicklook)
		if err != nil {
			return err
		}
		base := withExt(req.Composite, "") + "_quicklook"
		if err := q.WriteHDR(base + ".hdr"); err != nil {
			return err
		}
		if err := q.WritePNG(base+".png", p.Quicklook.Tonemapper); err != nil {
			return err
		}
	}

	return nil
}

func withExt(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
