// Package stats summarizes the bands of a composite.
package stats

import (
	"fmt"
	"math"
	"os"

	"github.com/codahale/hdrhistogram"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// Quantiles are read from a histogram holding values to this many decimal places.
const resolution = 1000.0

type BandSummary struct {
	Band   int
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
	P99    float64
}

type WinnerCount struct {
	ID     int
	Image  string
	Pixels int
}

// A Report is written next to a composite as <composite>.stats.yaml.
type Report struct {
	Bands   []BandSummary
	Winners []WinnerCount `yaml:",omitempty"`
}

// SummarizeBand describes the pixels of g, skipping those equal to ignore
// and NaNs. Count is zero if nothing qualified.
func SummarizeBand(band int, g *raster.Grid, ignore float64) (BandSummary, error) {
	s := BandSummary{Band: band}

	min, max, ok := g.MinMax(ignore)
	if !ok {
		return s, nil
	}
	s.Min, s.Max = min, max

	h := hdrhistogram.New(1, int64(math.Ceil((max-min)*resolution))+2, 3)
	vals := make([]float64, 0, g.Len())
	for _, v := range g.Values() {
		if v == ignore || math.IsNaN(v) {
			continue
		}
		vals = append(vals, v)
		if err := h.RecordValue(int64(math.Round((v - min) * resolution))); err != nil {
			return s, fmt.Errorf("band %d: %w", band, err)
		}
	}

	s.Count = len(vals)
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	if s.Count < 2 {
		s.StdDev = 0
	}
	s.Median = min + float64(h.ValueAtQuantile(50))/resolution
	s.P99 = min + float64(h.ValueAtQuantile(99))/resolution
	return s, nil
}

// Summarize describes every band of r, ignoring the background value.
func Summarize(r *raster.Raster, ignore float64) (*Report, error) {
	rep := &Report{}
	for i, g := range r.Bands {
		s, err := SummarizeBand(i+1, g, ignore)
		if err != nil {
			return nil, fmt.Errorf("Summarize: %w", err)
		}
		rep.Bands = append(rep.Bands, s)
	}
	return rep, nil
}

// AddWinners records how many pixels each id took; names[k] names id k.
func (r *Report) AddWinners(counts []int, names func(int) string) {
	for id, n := range counts {
		r.Winners = append(r.Winners, WinnerCount{ID: id, Image: names(id), Pixels: n})
	}
}

func (r *Report) WriteYaml(filename string) error {
	b, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("stats marshal: %w", err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("stats write '%s': %w", filename, err)
	}
	return nil
}
