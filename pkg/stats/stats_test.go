package stats

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/abworrall/stack-composite/pkg/raster"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSummarizeBand(t *testing.T) {
	g, _ := raster.NewGridFromValues(3, 2, []float64{0, 10, 20, 30, 40, 0})

	s, err := SummarizeBand(1, g, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 4 || s.Min != 10 || s.Max != 40 {
		t.Errorf("got count=%d min=%v max=%v", s.Count, s.Min, s.Max)
	}
	if !near(s.Mean, 25, 1e-9) {
		t.Errorf("mean = %v, want 25", s.Mean)
	}
	if !near(s.StdDev, math.Sqrt(500.0/3.0), 1e-9) {
		t.Errorf("stddev = %v", s.StdDev)
	}
	if s.Median < 20 || s.Median > 30.1 {
		t.Errorf("median = %v, want within [20,30]", s.Median)
	}
	if !near(s.P99, 40, 0.1) {
		t.Errorf("p99 = %v, want 40", s.P99)
	}
}

func TestSummarizeAllIgnored(t *testing.T) {
	g := raster.NewGridFilled(2, 2, -999)
	s, err := SummarizeBand(3, g, -999)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 0 || s.Band != 3 {
		t.Errorf("got %+v", s)
	}
}

func TestReportWrite(t *testing.T) {
	r := raster.New(raster.Geometry{Width: 2, Height: 1}, 2, raster.UInt16)
	r.Bands[0].SetAt(0, 5)
	r.Bands[1].SetAt(1, 7)

	rep, err := Summarize(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Bands) != 2 || rep.Bands[0].Count != 1 || rep.Bands[1].Max != 7 {
		t.Errorf("got %+v", rep.Bands)
	}

	rep.AddWinners([]int{1, 1}, func(id int) string { return []string{"", "a.tif"}[id] })
	if len(rep.Winners) != 2 || rep.Winners[1].Image != "a.tif" {
		t.Errorf("got %+v", rep.Winners)
	}
	if err := rep.WriteYaml(filepath.Join(t.TempDir(), "out.stats.yaml")); err != nil {
		t.Fatal(err)
	}
}
