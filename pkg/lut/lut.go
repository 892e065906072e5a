// Package lut is the lookup table that goes with a reference raster: which
// image each id stands for, and a color to draw it in.
package lut

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/stack-composite/pkg/raster"
)

type Entry struct {
	ID    int
	Image string // source basename; empty for id 0
	Red   uint8
	Green uint8
	Blue  uint8
	Alpha uint8
}

func (e Entry) Color() color.RGBA { return color.RGBA{e.Red, e.Green, e.Blue, e.Alpha} }

// A Table has one entry per id, 0..N, in id order.
type Table struct {
	Entries []Entry
}

// New builds the table for a stack of images, named in stack order. Id 0
// (no image) is black; the others get a color drawn from rng, so the same
// seed always gives the same colors.
func New(names []string, rng *rand.Rand) *Table {
	t := &Table{Entries: make([]Entry, 0, len(names)+1)}
	t.Entries = append(t.Entries, Entry{ID: 0, Alpha: 255})

	for i, name := range names {
		c := colorful.Hsv(rng.Float64()*360.0, 0.4+rng.Float64()*0.6, 0.5+rng.Float64()*0.5)
		r, g, b := c.Clamped().RGB255()
		t.Entries = append(t.Entries, Entry{
			ID:    i + 1,
			Image: filepath.Base(name),
			Red:   r,
			Green: g,
			Blue:  b,
			Alpha: 255,
		})
	}
	return t
}

// Len is the number of ids, including 0.
func (t *Table) Len() int { return len(t.Entries) }

func (t *Table) Name(id int) string {
	if id < 0 || id >= len(t.Entries) {
		return ""
	}
	return t.Entries[id].Image
}

func (t *Table) Color(id int) color.RGBA {
	if id < 0 || id >= len(t.Entries) {
		return color.RGBA{0, 0, 0, 255}
	}
	return t.Entries[id].Color()
}

func (t *Table) String() string {
	str := "LUT [\n"
	for _, e := range t.Entries {
		str += fmt.Sprintf("  %3d: #%02x%02x%02x %s\n", e.ID, e.Red, e.Green, e.Blue, e.Image)
	}
	return str + "]\n"
}

// WriteYaml saves the table as a sidecar, next to the reference raster.
func (t *Table) WriteYaml(filename string) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("lut marshal: %w", err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("lut write '%s': %w", filename, err)
	}
	return nil
}

func LoadYaml(filename string) (*Table, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("lut read '%s': %w", filename, err)
	}
	t := &Table{}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, fmt.Errorf("lut parse '%s': %w", filename, err)
	}
	for i, e := range t.Entries {
		if e.ID != i {
			return nil, fmt.Errorf("lut '%s': entry %d has id %d", filename, i, e.ID)
		}
	}
	return t, nil
}

// Render paints the reference grid in the table's colors, with a legend of
// image names down the left hand side.
func (t *Table) Render(ref *raster.Grid, filename string) error {
	img := image.NewRGBA(ref.Bounds())
	for y := 0; y < ref.Dy(); y++ {
		for x := 0; x < ref.Dx(); x++ {
			img.SetRGBA(x, y, t.Color(int(ref.Get(x, y))))
		}
	}

	dc := gg.NewContextForImage(img)
	for i, e := range t.Entries[1:] {
		y := 20.0 + float64(i)*16.0
		c := e.Color()
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(8, y-10, 10, 10)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawString(fmt.Sprintf("%d %s", e.ID, e.Image), 22, y)
	}
	return dc.SavePNG(filename)
}
