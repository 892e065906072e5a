package composite_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/abworrall/stack-composite/pkg/composite"
	"github.com/abworrall/stack-composite/pkg/lut"
	"github.com/abworrall/stack-composite/pkg/raster"
)

var geom = raster.Geometry{
	Width:        3,
	Height:       1,
	GeoTransform: [6]float64{600000, 30, 0, 5800000, 0, -30},
	Projection:   "EPSG:32630",
}

type px struct{ red, nir, swir float64 }

// landsat builds an image whose spectral bands hold the given pixels; every
// other band holds a value unique to (image, band, pixel).
func landsat(id int, layout composite.SensorLayout, pixels ...px) *raster.Raster {
	r := raster.New(geom, layout.NumBands, raster.UInt16)
	for b := range r.Bands {
		for i := 0; i < r.Bands[b].Len(); i++ {
			r.Bands[b].SetAt(i, float64(1000*id+10*(b+1)+i))
		}
	}
	for i, p := range pixels {
		r.Bands[layout.Red-1].SetAt(i, p.red)
		r.Bands[layout.NIR-1].SetAt(i, p.nir)
		r.Bands[layout.SWIR-1].SetAt(i, p.swir)
	}
	return r
}

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		dir    string
		driver *raster.MemDriver
		cfg    composite.Config
		req    composite.Request
		ls7    = composite.DefaultSensors["LS7"]
		ls8    = composite.DefaultSensors["LS8"]
	)

	put := func(name string, r *raster.Raster) string {
		path := filepath.Join(dir, name)
		Expect(driver.Write(ctx, path, r)).To(Succeed())
		return path
	}

	run := func() (*composite.Result, error) {
		p, err := composite.NewPipeline(cfg, driver)
		Expect(err).NotTo(HaveOccurred())
		return p.Run(ctx, req)
	}

	// expectGathered checks every composite pixel came from its winner.
	expectGathered := func(res *composite.Result, sources []*raster.Raster) {
		for i := 0; i < res.Reference.Len(); i++ {
			id := int(res.Reference.At(i))
			for b, band := range res.Composite.Bands {
				if id == 0 {
					Expect(band.At(i)).To(Equal(cfg.Background))
				} else {
					Expect(band.At(i)).To(Equal(sources[id-1].Bands[b].At(i)), "pixel %d band %d", i, b+1)
				}
			}
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "composite")
		Expect(err).NotTo(HaveOccurred())
		driver = raster.NewMemDriver()
		cfg = composite.NewConfig()
		cfg.TmpPath = filepath.Join(dir, "tmp")
		cfg.DefaultSensor = "LS7"
		cfg.Workers = 2
		req = composite.Request{
			Composite: filepath.Join(dir, "composite.tif"),
			Reference: filepath.Join(dir, "ref.tif"),
			Mask:      filepath.Join(dir, "mask.tif"),
		}
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	Context("with an empty stack", func() {
		It("fails with a configuration error and writes nothing", func() {
			_, err := run()
			Expect(composite.IsConfiguration(err)).To(BeTrue())
			Expect(driver.Names()).To(BeEmpty())
			Expect(cfg.TmpPath).NotTo(BeADirectory())
		})
	})

	Context("with a single image", func() {
		It("copies it as the composite", func() {
			src := landsat(1, ls7, px{10, 20, 30})
			req.Sources = []composite.Source{{Path: put("a.kea", src)}}

			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Copied).To(BeTrue())
			Expect(res.Reference).To(BeNil())
			Expect(res.LUT).To(BeNil())

			out, err := driver.Read(ctx, req.Composite)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(src))
			Expect(driver.Names()).NotTo(ContainElement(req.Reference))
			Expect(filepath.Join(dir, "ref.tif.lut.yaml")).NotTo(BeAnExistingFile())
		})
	})

	Context("in maxindex mode", func() {
		var sources []*raster.Raster

		BeforeEach(func() {
			sources = []*raster.Raster{
				landsat(1, ls7, px{100, 300, 0}, px{0, 0, 0}, px{100, 300, 0}), // ndvi 0.5, nodata, 0.5
				landsat(2, ls7, px{30, 170, 0}, px{0, 0, 0}, px{100, 300, 0}),  // ndvi 0.7, nodata, 0.5
				landsat(3, ls7, px{80, 120, 0}, px{0, 0, 0}, px{100, 300, 0}),  // ndvi 0.2, nodata, 0.5
			}
			req.Sources = []composite.Source{
				{Path: put("a.kea", sources[0])},
				{Path: put("b.kea", sources[1])},
				{Path: put("c.kea", sources[2])},
			}
		})

		It("takes each pixel from the image with the highest index", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Copied).To(BeFalse())
			Expect(res.Mask).To(BeNil())

			Expect(res.Reference.Values()).To(Equal([]float64{2, 0, 1}))
			Expect(res.Counts).To(Equal([]int{1, 1, 1, 0}))
			Expect(res.Composite.NumBands()).To(Equal(6))
			Expect(res.Composite.Geometry).To(Equal(geom))
			expectGathered(res, sources)

			ref, err := driver.Read(ctx, req.Reference)
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.DataType).To(Equal(raster.UInt32))
			Expect(driver.Names()).NotTo(ContainElement(req.Mask))

			table, err := lut.LoadYaml(req.Reference + ".lut.yaml")
			Expect(err).NotTo(HaveOccurred())
			Expect(table.Name(0)).To(Equal(""))
			Expect(table.Name(2)).To(Equal("b.kea"))
		})

		It("fills pixels nobody won with the background", func() {
			cfg.Background = 7
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			for _, band := range res.Composite.Bands {
				Expect(band.At(1)).To(Equal(7.0))
			}
			Expect(res.Composite.NoData).To(Equal(7.0))
		})

		It("ranks by a band-math expression when given one", func() {
			cfg.Expression = "b4 - b3"
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			// differences 200, 140, 40 | 0, 0, 0 | 200, 200, 200
			Expect(res.Reference.Values()).To(Equal([]float64{1, 1, 1}))
		})

		It("rejects an expression that doesn't parse", func() {
			cfg.Expression = "b4 -"
			_, err := run()
			Expect(composite.IsConfiguration(err)).To(BeTrue())
			Expect(driver.Names()).NotTo(ContainElement(req.Composite))
		})

		It("uses the configured red and nir bands", func() {
			cfg.DefaultSensor = ""
			cfg.RedBand, cfg.NIRBand = 3, 4
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reference.Values()).To(Equal([]float64{2, 0, 1}))
		})

		It("needs bands from somewhere", func() {
			cfg.DefaultSensor = ""
			_, err := run()
			Expect(composite.IsConfiguration(err)).To(BeTrue())
		})

		It("colors the lookup table from the seed", func() {
			res1, err := run()
			Expect(err).NotTo(HaveOccurred())
			res2, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res1.LUT.Entries).To(Equal(res2.LUT.Entries))

			p, err := composite.NewPipeline(cfg, driver)
			Expect(err).NotTo(HaveOccurred())
			p.Rand = rand.New(rand.NewSource(5))
			res3, err := p.Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res3.LUT.Entries).To(Equal(res1.LUT.Entries))
		})

		It("colors the lookup table the same on every run of one pipeline", func() {
			p, err := composite.NewPipeline(cfg, driver)
			Expect(err).NotTo(HaveOccurred())
			res1, err := p.Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			res2, err := p.Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res2.LUT.Entries).To(Equal(res1.LUT.Entries))
		})

		It("runs a pipeline built without NewPipeline and no worker limit", func() {
			cfg.Workers = 0
			p := &composite.Pipeline{Config: cfg, Driver: driver}
			res, err := p.Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reference.Values()).To(Equal([]float64{2, 0, 1}))
			expectGathered(res, sources)
		})

		It("removes its workspace", func() {
			_, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.TmpPath).NotTo(BeADirectory())
		})

		It("keeps the workspace and intermediates when asked", func() {
			cfg.KeepWorkspace = true
			cfg.DumpIntermediates = true
			_, err := run()
			Expect(err).NotTo(HaveOccurred())

			runs, err := filepath.Glob(filepath.Join(cfg.TmpPath, "RefLyrs_*"))
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(filepath.Join(runs[0], "b_ndvi.png")).To(BeAnExistingFile())
		})

		It("writes statistics and pictures", func() {
			cfg.CalcStats = true
			cfg.ReferencePNG = true
			cfg.Quicklook.Bands = []int{3, 2, 1}
			cfg.Quicklook.Scale = 0.0001
			_, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Composite + ".stats.yaml").To(BeAnExistingFile())
			Expect(filepath.Join(dir, "ref.png")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "composite_quicklook.hdr")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "composite_quicklook.png")).To(BeAnExistingFile())
		})

		It("rejects images on a different grid", func() {
			moved := landsat(4, ls7)
			moved.GeoTransform[0] += 30
			req.Sources = append(req.Sources, composite.Source{Path: put("d.kea", moved)})

			_, err := run()
			Expect(composite.IsConsistency(err)).To(BeTrue())
			Expect(driver.Names()).NotTo(ContainElement(req.Composite))
			Expect(cfg.TmpPath).NotTo(BeADirectory())
		})

		It("surfaces a missing image", func() {
			req.Sources = append(req.Sources, composite.Source{Path: filepath.Join(dir, "gone.kea")})
			_, err := run()
			Expect(err).To(MatchError(os.ErrNotExist))
			Expect(driver.Names()).NotTo(ContainElement(req.Composite))
		})
	})

	Context("with a mixed Landsat 8 and Landsat 7 stack", func() {
		It("cuts Landsat 8 down to the Landsat 7 bands", func() {
			a := landsat(1, ls8, px{100, 300, 0}, px{100, 150, 0}, px{0, 0, 0}) // ndvi 0.5, 0.2, nodata
			b := landsat(2, ls7, px{100, 200, 0}, px{100, 400, 0}, px{0, 0, 0}) // ndvi 0.33, 0.6, nodata
			req.Sources = []composite.Source{
				{Path: put("LS8_a.kea", a), Sensor: "LS8"},
				{Path: put("LS7_b.kea", b), Sensor: "LS7"},
			}

			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reference.Values()).To(Equal([]float64{1, 2, 0}))
			Expect(res.Composite.NumBands()).To(Equal(6))

			harmonized, err := a.SelectBands(ls8.Subset)
			Expect(err).NotTo(HaveOccurred())
			expectGathered(res, []*raster.Raster{harmonized, b})
			Expect(res.Composite.Bands[0].At(0)).To(Equal(a.Bands[1].At(0)))
		})

		It("refuses to guess an unknown sensor", func() {
			req.Sources = []composite.Source{
				{Path: put("x.kea", landsat(1, ls8, px{100, 300, 0})), Sensor: "MODIS"},
				{Path: put("y.kea", landsat(2, ls7, px{100, 300, 0})), Sensor: "LS7"},
			}
			cfg.RedBand, cfg.NIRBand = 3, 4
			_, err := run()
			Expect(composite.IsConsistency(err)).To(BeTrue())
		})

		It("refuses an unknown sensor on the smaller image too", func() {
			req.Sources = []composite.Source{
				{Path: put("x.kea", landsat(1, ls8, px{100, 300, 0})), Sensor: "LS8"},
				{Path: put("y.kea", landsat(2, ls7, px{100, 300, 0})), Sensor: "MODIS"},
			}
			cfg.RedBand, cfg.NIRBand = 3, 4
			_, err := run()
			Expect(composite.IsConsistency(err)).To(BeTrue())
			Expect(driver.Names()).NotTo(ContainElement(req.Composite))
		})

		It("infers sensors from names only when asked", func() {
			cfg.DefaultSensor = ""
			cfg.InferSensorFromName = true
			a := landsat(1, ls8, px{100, 300, 0})
			b := landsat(2, ls7, px{100, 200, 0})
			req.Sources = []composite.Source{
				{Path: put("LS8_a.kea", a)},
				{Path: put("LE7_b.kea", b)},
			}
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Composite.NumBands()).To(Equal(6))
		})
	})

	Context("in landwater mode", func() {
		var sources []*raster.Raster

		BeforeEach(func() {
			cfg.Mode = "landwater"
			sources = []*raster.Raster{
				// pixel 0: water everywhere, A has the highest water index
				// pixel 1: land twice, water once; B has the highest vegetation index
				// pixel 2: no signal at all
				landsat(1, ls7, px{100, 110, 50}, px{100, 300, 300}, px{0, 0, 0}),
				landsat(2, ls7, px{100, 120, 100}, px{100, 400, 300}, px{0, 0, 0}),
				landsat(3, ls7, px{100, 130, 120}, px{100, 110, 10}, px{0, 0, 0}),
			}
			req.Sources = []composite.Source{
				{Path: put("a.kea", sources[0])},
				{Path: put("b.kea", sources[1])},
				{Path: put("c.kea", sources[2])},
			}
		})

		It("ranks by the index that suits the consensus class", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Mask.Values()).To(Equal([]float64{composite.MaskWater, composite.MaskLand, composite.MaskNoData}))
			Expect(res.Reference.Values()).To(Equal([]float64{1, 2, 0}))
			expectGathered(res, sources)

			mask, err := driver.Read(ctx, req.Mask)
			Expect(err).NotTo(HaveOccurred())
			Expect(mask.DataType).To(Equal(raster.Byte))
			Expect(mask.Bands[0].Values()).To(Equal(res.Mask.Values()))
		})

		It("differs from ranking by vegetation alone", func() {
			cfg.Mode = "maxindex"
			res, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reference.At(0)).To(Equal(3.0))
		})

		It("needs a sensor layout", func() {
			cfg.DefaultSensor = ""
			_, err := run()
			Expect(composite.IsConsistency(err)).To(BeTrue())
		})
	})
})
