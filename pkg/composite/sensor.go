package composite

import (
	"fmt"
	"path/filepath"
	"strings"
)

// A SensorLayout describes where the spectral bands sit in a sensor's
// images, and how to cut it down to match a smaller layout.
type SensorLayout struct {
	Red, NIR, SWIR int   // 1-based band numbers
	NumBands       int   // bands in a native image
	Subset         []int // bands kept when harmonizing to a layout with fewer bands
}

var (
	// Landsat 8 carries a leading coastal band that Landsat 5/7 don't have.
	DefaultSensors = map[string]SensorLayout{
		"LS8": {Red: 4, NIR: 5, SWIR: 6, NumBands: 7, Subset: []int{2, 3, 4, 5, 6, 7}},
		"LS7": {Red: 3, NIR: 4, SWIR: 5, NumBands: 6},
		"LS5": {Red: 3, NIR: 4, SWIR: 5, NumBands: 6},
	}
)

func (sl SensorLayout) Validate() error {
	if sl.NumBands < 1 {
		return fmt.Errorf("numbands must be positive, got %d", sl.NumBands)
	}
	for _, b := range append([]int{sl.Red, sl.NIR, sl.SWIR}, sl.Subset...) {
		if b < 0 || b > sl.NumBands {
			return fmt.Errorf("band %d outside [1,%d]", b, sl.NumBands)
		}
	}
	return nil
}

// SensorFor works out the sensor tag of a source: its own tag, then the
// per-file tags from the config, then the default; filename sniffing only
// happens when InferSensorFromName is set.
func (c Config) SensorFor(src Source) string {
	if src.Sensor != "" {
		return src.Sensor
	}
	if tag, exists := c.SourceSensors[filepath.Base(src.Path)]; exists {
		return tag
	}
	if c.DefaultSensor != "" {
		return c.DefaultSensor
	}
	if c.InferSensorFromName {
		if strings.Contains(filepath.Base(src.Path), "LS8") {
			return "LS8"
		}
		return "LS7"
	}
	return ""
}

// Layout looks up a sensor tag. Unknown (or missing) tags are a
// ConsistencyError, since guessing would mix up bands.
func (c Config) Layout(sensor string) (SensorLayout, error) {
	if sensor == "" {
		return SensorLayout{}, MakeConsistency(fmt.Errorf("source has no sensor tag"))
	}
	layout, exists := c.Sensors[sensor]
	if !exists {
		if layout, exists = DefaultSensors[sensor]; !exists {
			return SensorLayout{}, MakeConsistency(fmt.Errorf("unrecognised sensor '%s'", sensor))
		}
	}
	return layout, nil
}

// HarmonizedBands decides, for every layer, which of its bands go into the
// composite. A layer's own Bands list wins; otherwise when the stack mixes
// layouts of different sizes, the larger ones are cut down by their
// sensor's Subset. In a mixed stack every layer without its own Bands list
// needs a known sensor tag, smaller ones included. The result always has the
// same band count per layer.
func (c Config) HarmonizedBands(layers []*Layer) ([][]int, error) {
	counts := make([]int, len(layers))
	smallest := 0
	for i, l := range layers {
		counts[i] = l.Image.NumBands()
		if len(l.Source.Bands) > 0 {
			counts[i] = len(l.Source.Bands)
		}
		if i == 0 || counts[i] < smallest {
			smallest = counts[i]
		}
	}

	mixed := false
	for _, n := range counts {
		mixed = mixed || n != smallest
	}

	out := make([][]int, len(layers))
	for i, l := range layers {
		// When layouts get cut down, every image must be a sensor we know,
		// or bands of different meaning end up in one composite band.
		if mixed && len(l.Source.Bands) == 0 {
			if _, err := c.Layout(l.Sensor); err != nil {
				return nil, fmt.Errorf("harmonize %s (%d bands, stack minimum %d): %w", l.Filename(), counts[i], smallest, err)
			}
		}

		switch {
		case len(l.Source.Bands) > 0:
			out[i] = l.Source.Bands

		case counts[i] == smallest:
			out[i] = allBands(counts[i])

		default:
			layout, _ := c.Layout(l.Sensor)
			if len(layout.Subset) != smallest {
				return nil, MakeConsistency(fmt.Errorf("harmonize %s: sensor %s has no %d band subset",
					l.Filename(), l.Sensor, smallest))
			}
			out[i] = layout.Subset
		}

		if len(out[i]) != smallest {
			return nil, MakeConsistency(fmt.Errorf("harmonize %s: %d bands selected, stack needs %d",
				l.Filename(), len(out[i]), smallest))
		}
	}

	return out, nil
}

func allBands(n int) []int {
	bands := make([]int, n)
	for i := range bands {
		bands[i] = i + 1
	}
	return bands
}
