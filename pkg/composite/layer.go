package composite

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// A Source names one image of the stack. Its position in the stack (not
// anything in here) decides its id in the reference raster.
type Source struct {
	Path   string
	Sensor string // e.g. "LS8"; see Config.SensorFor
	Bands  []int  // 1-based bands to bring into the composite; empty means all (after harmonization)
}

func (s Source) Filename() string {
	return filepath.Base(s.Path)
}

// BaseName is the filename without its extension; intermediates are named after it.
func (s Source) BaseName() string {
	return strings.TrimSuffix(s.Filename(), filepath.Ext(s.Path))
}

// A Layer holds a loaded source image plus the per-image grids derived
// from it during a run. Layers only live for one run.
type Layer struct {
	Source
	Index int // 1-based position in the stack; this is the id in the reference raster

	Image *raster.Raster

	NDVI      *raster.Grid // vegetation index
	NDWI      *raster.Grid // water index (landwater mode only)
	LocalMask *raster.Grid // 0 nodata, 1 land, 2 water (landwater mode only)
	Criterion *raster.Grid // the value ranked across the stack
}

func (l Layer) String() string {
	str := fmt.Sprintf("[%d] %s", l.Index, l.Filename())
	if l.Sensor != "" {
		str += fmt.Sprintf(" (%s)", l.Sensor)
	}
	if l.Image != nil {
		str += fmt.Sprintf(", %d bands %s", l.Image.NumBands(), l.Image.Geometry)
	}
	return str
}
