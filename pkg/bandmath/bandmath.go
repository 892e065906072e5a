// Package bandmath evaluates per-pixel expressions over the bands of a raster.
package bandmath

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	goeval "github.com/edisonguo/govaluate"

	"github.com/abworrall/stack-composite/pkg/raster"
)

// A Defn binds a variable name in an expression to a 1-based band number.
type Defn struct {
	Name string
	Band int
}

// An Expression is a parsed band-math formula with its variables bound to bands.
type Expression struct {
	Source string
	Defns  []Defn

	expr *goeval.EvaluableExpression
}

var bandVar = regexp.MustCompile(`^[bB]([0-9]+)$`)

// New parses expression. Variables are bound by defns; when none are given,
// variables named bN are bound to band N. Any variable left unbound is an
// error, so a bad expression fails before any pixel is touched.
func New(expression string, defns ...Defn) (*Expression, error) {
	if len(strings.TrimSpace(expression)) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	expr, err := goeval.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("parse '%s': %w", expression, err)
	}

	bound := map[string]int{}
	for _, d := range defns {
		if d.Band < 1 {
			return nil, fmt.Errorf("variable %s: band numbers are 1-based, got %d", d.Name, d.Band)
		}
		bound[d.Name] = d.Band
	}

	e := &Expression{Source: expression, expr: expr}
	seen := map[string]bool{}
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		band, found := bound[name]
		if !found && len(defns) == 0 {
			if m := bandVar.FindStringSubmatch(name); m != nil {
				band, _ = strconv.Atoi(m[1])
				found = band > 0
			}
		}
		if !found {
			return nil, fmt.Errorf("variable %s is not bound to a band", name)
		}
		e.Defns = append(e.Defns, Defn{Name: name, Band: band})
	}

	sort.Slice(e.Defns, func(i, j int) bool { return e.Defns[i].Name < e.Defns[j].Name })
	return e, nil
}

func (e *Expression) String() string { return e.Source }

// MaxBand is the highest band number the expression reads.
func (e *Expression) MaxBand() int {
	max := 0
	for _, d := range e.Defns {
		if d.Band > max {
			max = d.Band
		}
	}
	return max
}

// Evaluate runs the expression over every pixel of r. Pixels where any input
// band holds r's nodata value, or where the result is not a finite number,
// get nodata. Boolean results come out as 1 or 0.
func (e *Expression) Evaluate(r *raster.Raster, nodata float64) (*raster.Grid, error) {
	if n := e.MaxBand(); n > r.NumBands() {
		return nil, fmt.Errorf("expression '%s' reads band %d, raster has %d", e.Source, n, r.NumBands())
	}

	bands := make([]*raster.Grid, len(e.Defns))
	for i, d := range e.Defns {
		bands[i], _ = r.Band(d.Band)
	}

	out := raster.NewGrid(r.Width, r.Height)
	params := make(map[string]interface{}, len(e.Defns))

	for i := 0; i < out.Len(); i++ {
		masked := false
		for j, d := range e.Defns {
			v := bands[j].At(i)
			if r.HasNoData && v == r.NoData {
				masked = true
				break
			}
			params[d.Name] = v
		}
		if masked {
			out.SetAt(i, nodata)
			continue
		}

		result, err := e.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("expression '%s' at pixel %d: %w", e.Source, i, err)
		}

		switch val := result.(type) {
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				val = nodata
			}
			out.SetAt(i, val)
		case bool:
			if val {
				out.SetAt(i, 1)
			} else {
				out.SetAt(i, 0)
			}
		default:
			return nil, fmt.Errorf("expression '%s': result '%v' is not numeric", e.Source, result)
		}
	}

	return out, nil
}
