package bandmath

import (
	"math"
	"testing"

	"github.com/abworrall/stack-composite/pkg/raster"
)

func threeBands(t *testing.T, b1, b2, b3 []float64) *raster.Raster {
	t.Helper()
	r := &raster.Raster{Geometry: raster.Geometry{Width: len(b1), Height: 1}}
	for _, vals := range [][]float64{b1, b2, b3} {
		g, err := raster.NewGridFromValues(len(vals), 1, vals)
		if err != nil {
			t.Fatal(err)
		}
		r.Bands = append(r.Bands, g)
	}
	return r
}

func TestNewBindsDefaultBandNames(t *testing.T) {
	e, err := New("(b3-b1)/(b3+b1)")
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Defns) != 2 || e.Defns[0] != (Defn{"b1", 1}) || e.Defns[1] != (Defn{"b3", 3}) {
		t.Errorf("unexpected defns %v", e.Defns)
	}
	if e.MaxBand() != 3 {
		t.Errorf("MaxBand = %d, want 3", e.MaxBand())
	}
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		defns []Defn
	}{
		{"empty", "  ", nil},
		{"syntax", "(b1 - ", nil},
		{"unbound", "nir - red", nil},
		{"partly bound", "nir - red", []Defn{{"nir", 4}}},
		{"zero band", "nir", []Defn{{"nir", 0}}},
		{"b0", "b0 + 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.expr, tt.defns...); err == nil {
				t.Errorf("New(%q) should fail", tt.expr)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	r := threeBands(t,
		[]float64{1, 0, 2, 5},
		[]float64{0, 0, 0, 0},
		[]float64{3, 0, 2, -999},
	)
	r.NoData, r.HasNoData = -999, true

	e, err := New("(nir-red)/(nir+red)", Defn{"nir", 3}, Defn{"red", 1})
	if err != nil {
		t.Fatal(err)
	}
	g, err := e.Evaluate(r, -1)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0.5, -1, 0, -1}
	for i, w := range want {
		if got := g.At(i); math.Abs(got-w) > 1e-12 {
			t.Errorf("pixel %d: got %v, want %v", i, got, w)
		}
	}
}

func TestEvaluateBool(t *testing.T) {
	r := threeBands(t, []float64{1, 5}, []float64{2, 2}, []float64{0, 0})
	e, err := New("b1 > b2")
	if err != nil {
		t.Fatal(err)
	}
	g, err := e.Evaluate(r, -999)
	if err != nil {
		t.Fatal(err)
	}
	if g.At(0) != 0 || g.At(1) != 1 {
		t.Errorf("got %v, want [0 1]", g.Values())
	}
}

func TestEvaluateTooFewBands(t *testing.T) {
	r := threeBands(t, []float64{1}, []float64{1}, []float64{1})
	e, err := New("b4 - b1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(r, -999); err == nil {
		t.Error("expected an error reading band 4 of 3")
	}
}
