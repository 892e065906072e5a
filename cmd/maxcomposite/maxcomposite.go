package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/abworrall/stack-composite/pkg/composite"
	"github.com/abworrall/stack-composite/pkg/gdalio"
	"github.com/abworrall/stack-composite/pkg/log"
	"github.com/abworrall/stack-composite/pkg/raster"
	"github.com/abworrall/stack-composite/pkg/tiffio"
)

var (
	fVerbosity   int
	fMode        string
	fRedBand     int
	fNIRBand     int
	fExpression  string
	fOutput      string
	fReference   string
	fMask        string
	fTmpPath     string
	fFormat      string
	fDataType    string
	fBackground  float64
	fSeed        int64
	fWorkers     int
	fKeepTmp     bool
	fDump        bool
	fInferSensor bool
	fSensor      string
	fStats       bool
	fRefPNG      bool
	fQuicklook   string
	fTonemapper  string
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fMode, "mode", "maxindex", "how to rank pixels: "+composite.ListModes())
	flag.IntVar(&fRedBand, "red", 0, "maxindex: red band (1-based); 0 takes it from the sensor layout")
	flag.IntVar(&fNIRBand, "nir", 0, "maxindex: near infrared band (1-based); 0 takes it from the sensor layout")
	flag.StringVar(&fExpression, "expr", "", "maxindex: rank by this band-math expression instead, e.g. '(b4-b3)/(b4+b3)'")

	flag.StringVar(&fOutput, "out", "composite.tif", "composite output")
	flag.StringVar(&fReference, "ref", "", "reference (winning image id) output; optional")
	flag.StringVar(&fMask, "mask", "", "consensus land/water mask output, landwater mode only; optional")
	flag.StringVar(&fTmpPath, "tmp", "./tmp", "where the per-run workspace is created")
	flag.StringVar(&fFormat, "format", "gtiff", "raster format: gtiff, kea or tiff (plain TIFF, no GDAL)")
	flag.StringVar(&fDataType, "datatype", "", "composite data type; defaults to that of the first input")
	flag.Float64Var(&fBackground, "background", 0, "composite value where no image is valid")

	flag.Int64Var(&fSeed, "seed", 5, "seed for the reference color table")
	flag.IntVar(&fWorkers, "workers", 0, "images processed at once; 0 means one per CPU")
	flag.BoolVar(&fKeepTmp, "keeptmp", false, "don't delete the workspace")
	flag.BoolVar(&fDump, "dump", false, "write PNGs of the intermediate grids into the workspace")
	flag.BoolVar(&fInferSensor, "infersensor", false, "compatibility: images with LS8 in the name are Landsat 8, others Landsat 7")
	flag.StringVar(&fSensor, "sensor", "", "sensor tag for images without one (LS5, LS7, LS8, or a configured layout)")

	flag.BoolVar(&fStats, "stats", false, "write band statistics next to the composite")
	flag.BoolVar(&fRefPNG, "refpng", false, "render the reference output as a PNG with a legend")
	flag.StringVar(&fQuicklook, "quicklook", "", "write a quicklook from these three composite bands, e.g. '5,4,3'")
	flag.StringVar(&fTonemapper, "tonemapper", "linear", "quicklook tonemapper: "+composite.ListTonemappers())
	flag.Parse()
}

func main() {
	logger, err := log.New(fVerbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	ctx := log.WithLogger(context.Background(), logger)

	stack := composite.NewStack()
	if err := stack.LoadFilesAndDirs(flag.Args()...); err != nil {
		logger.Fatal("loading inputs", zap.Error(err))
	}

	if err := applyFlags(&stack.Config); err != nil {
		logger.Fatal("bad flags", zap.Error(err))
	}
	if stack.Verbosity > 0 {
		logger.Sugar().Debugf("Final configuration:-\n\n%s\n%s", stack.Config.AsYaml(), stack)
	}

	var driver raster.Driver
	switch stack.Format {
	case "tiff":
		driver = tiffio.NewDriver()
	default:
		driver = gdalio.NewDriver(stack.Format)
	}

	p, err := composite.NewPipeline(stack.Config, driver)
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}

	req := composite.Request{
		Sources:   stack.Sources,
		Composite: fOutput,
		Reference: fReference,
		Mask:      fMask,
	}
	if _, err := p.Run(ctx, req); err != nil {
		logger.Fatal("compositing failed", zap.Error(err),
			zap.Bool("configuration", composite.IsConfiguration(err)),
			zap.Bool("consistency", composite.IsConsistency(err)))
	}
}

// applyFlags copies the flags given on the command line over the config,
// leaving anything set by a config file alone otherwise.
func applyFlags(c *composite.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			c.Verbosity = fVerbosity
		case "mode":
			c.Mode = fMode
		case "red":
			c.RedBand = fRedBand
		case "nir":
			c.NIRBand = fNIRBand
		case "expr":
			c.Expression = fExpression
		case "tmp":
			c.TmpPath = fTmpPath
		case "format":
			c.Format = fFormat
		case "datatype":
			c.DataType = fDataType
		case "background":
			c.Background = fBackground
		case "seed":
			c.Seed = fSeed
		case "workers":
			c.Workers = fWorkers
		case "keeptmp":
			c.KeepWorkspace = fKeepTmp
		case "dump":
			c.DumpIntermediates = fDump
		case "infersensor":
			c.InferSensorFromName = fInferSensor
		case "sensor":
			c.DefaultSensor = fSensor
		case "stats":
			c.CalcStats = fStats
		case "refpng":
			c.ReferencePNG = fRefPNG
		case "tonemapper":
			c.Quicklook.Tonemapper = fTonemapper
		case "quicklook":
			c.Quicklook.Bands, err = parseBands(fQuicklook)
		}
	})
	if c.Workers == 0 {
		c.Workers = composite.NewConfig().Workers
	}
	return err
}

func parseBands(s string) ([]int, error) {
	bands := []int{}
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("band list '%s': %w", s, err)
		}
		bands = append(bands, n)
	}
	return bands, nil
}
