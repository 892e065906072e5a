package composite

import (
	"fmt"
	"runtime"

	"gopkg.in/yaml.v2"
)

/* Example config file ...

mode: landwater
nodata: -999
background: 0
seed: 5
tmppath: ./tmp
thresholds:
  nodatabelow: -1
  vegetation: 0.3
  water: 0.01
defaultsensor: LS7
sourcesensors:
  LS8_20170610_lat52lon421_r24p204.kea: LS8
sensors:
  S2:
    red: 4
    nir: 8
    swir: 11
    numbands: 13
quicklook:
  bands: [5, 4, 3]
  scale: 0.0001

*/

// Thresholds drive the per-image land/water classification.
type Thresholds struct {
	NodataBelow float64 // vegetation index below this is nodata; below the valid index range by default
	Vegetation  float64 // vegetation index above this is land
	Water       float64 // otherwise, water index above this is water
}

type QuicklookConfig struct {
	Bands      []int   // three composite bands, mapped to R,G,B
	Scale      float64 // multiplier taking pixel values to reflectance-ish [0,1]
	Tonemapper string  // see ListTonemappers
}

type Config struct {
	Verbosity int

	Mode       string // how to rank pixels: "maxindex" or "landwater"
	RedBand    int    // maxindex: 1-based red band; 0 means take it from the sensor layout
	NIRBand    int    // maxindex: 1-based near infrared band; 0 means take it from the sensor layout
	Expression string // maxindex: band-math criterion like "(b4-b3)/(b4+b3)", overrides RedBand/NIRBand

	Thresholds Thresholds
	NoData     float64 // sentinel for index and criterion grids
	Background float64 // composite value where no image contributed
	Seed       int64   // seeds the reference color table
	Workers    int     // how many images are processed at once

	TmpPath           string
	KeepWorkspace     bool
	DumpIntermediates bool // write PNG renderings of the per-image grids into the workspace

	InferSensorFromName bool              // compatibility: "LS8" in the filename means LS8, anything else LS7
	DefaultSensor       string            // tag for sources that carry none
	SourceSensors       map[string]string // tags by file basename
	Sensors             map[string]SensorLayout

	Format   string // raster driver: "gtiff", "kea" or "tiff"
	DataType string // composite data type; defaults to the first input's

	CalcStats    bool
	ReferencePNG bool
	Quicklook    QuicklookConfig
}

var (
	Modes = []string{"maxindex", "landwater"}
)

func ListModes() string {
	return fmt.Sprintf("%v", Modes)
}

func NewConfig() Config {
	return Config{
		Mode: "maxindex",
		Thresholds: Thresholds{
			NodataBelow: -1,
			Vegetation:  0.3,
			Water:       0.01,
		},
		NoData:        -999,
		Background:    0,
		Seed:          5,
		Workers:       runtime.NumCPU(),
		TmpPath:       "./tmp",
		SourceSensors: map[string]string{},
		Sensors:       map[string]SensorLayout{},
		Format:        "gtiff",
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Finalize fills in defaults and sanity checks the configuration.
func (c *Config) Finalize() error {
	if _, err := c.GetCriterionFunc(); err != nil {
		return err
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.SourceSensors == nil {
		c.SourceSensors = map[string]string{}
	}
	if c.Sensors == nil {
		c.Sensors = map[string]SensorLayout{}
	}
	for name, layout := range DefaultSensors {
		if _, exists := c.Sensors[name]; !exists {
			c.Sensors[name] = layout
		}
	}
	for name, layout := range c.Sensors {
		if err := layout.Validate(); err != nil {
			return MakeConfiguration(fmt.Errorf("sensor %s: %w", name, err))
		}
	}
	if c.RedBand < 0 || c.NIRBand < 0 {
		return MakeConfiguration(fmt.Errorf("band numbers are 1-based, got red=%d nir=%d", c.RedBand, c.NIRBand))
	}
	if c.Thresholds.Vegetation < c.Thresholds.NodataBelow {
		return MakeConfiguration(fmt.Errorf("vegetation threshold %f is below the nodata bound %f",
			c.Thresholds.Vegetation, c.Thresholds.NodataBelow))
	}
	if q := c.Quicklook; len(q.Bands) != 0 && len(q.Bands) != 3 {
		return MakeConfiguration(fmt.Errorf("quicklook wants 3 bands, got %v", q.Bands))
	}
	if tm := c.Quicklook.Tonemapper; tm != "" {
		known := false
		for _, name := range Tonemappers {
			known = known || name == tm
		}
		if !known {
			return MakeConfiguration(fmt.Errorf("no tonemapper named '%s', wanted %s", tm, ListTonemappers()))
		}
	}
	return nil
}

// GetCriterionFunc resolves the Mode into the function that ranks pixels.
func (c Config) GetCriterionFunc() (CriterionFunc, error) {
	switch c.Mode {
	case "maxindex":
		return CriterionByMaxIndex, nil
	case "landwater":
		return CriterionByLandWater, nil
	default:
		return nil, MakeConfiguration(fmt.Errorf("no Mode named '%s', wanted %s", c.Mode, ListModes()))
	}
}
