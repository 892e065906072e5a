package composite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// A Stack is the ordered list of inputs, plus the configuration read
// alongside them.
type Stack struct {
	Sources []Source
	Config
}

func NewStack() Stack {
	return Stack{
		Sources: []Source{},
		Config:  NewConfig(),
	}
}

func (s Stack) String() string {
	str := fmt.Sprintf("Stack (%s) [\n", s.Mode)
	for i, src := range s.Sources {
		str += fmt.Sprintf("  %d: %s\n", i+1, src.Path)
	}
	return str + "]\n"
}

// AddSource appends to the stack. Order is never changed afterwards, as it
// defines the reference ids.
func (s *Stack) AddSource(src Source) {
	s.Sources = append(s.Sources, src)
}

// LoadFilesAndDirs adds images named by args. An arg can be a file, a
// directory (recursed into, in name order) or a glob pattern (matches are
// taken in name order). A .yaml file replaces the configuration.
func (s *Stack) LoadFilesAndDirs(args ...string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "*?[") {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return MakeConfiguration(fmt.Errorf("glob %s: %w", arg, err))
			}
			sort.Strings(matches)
			if err := s.LoadFilesAndDirs(matches...); err != nil {
				return err
			}
			continue
		}

		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return fmt.Errorf("load %s: %w", arg, err)

		case item.IsDir() && isBandDir(arg):
			// A directory of per-band TIFFs is one image for the tiff driver
			s.AddSource(Source{Path: arg})

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %w", arg, err)
			}
			for _, content := range contents {
				if err := s.LoadFilesAndDirs(filepath.Join(arg, content.Name())); err != nil {
					return fmt.Errorf("load %s: %w", arg, err)
				}
			}

		default:
			if err := s.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %w", arg, err)
			}
		}
	}

	return nil
}

func (s *Stack) loadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {

	case ".tif", ".tiff", ".kea", ".img", ".vrt":
		s.AddSource(Source{Path: filename})

	case ".yaml", ".yml":
		cfg, err := loadConfig(filename)
		if err != nil {
			return MakeConfiguration(fmt.Errorf("Loading %s as config YAML failed: %w", filename, err))
		}
		s.Config = cfg
	}

	return nil
}

func loadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", filename, err)
	}

	return newConfigFromYaml(contents)
}

// isBandDir reports whether dir holds band files (B1.tif, B2.tif ...) and
// nothing else worth loading.
func isBandDir(dir string) bool {
	contents, err := os.ReadDir(dir)
	if err != nil || len(contents) == 0 {
		return false
	}
	for _, c := range contents {
		name := strings.ToUpper(c.Name())
		if c.IsDir() || !strings.HasPrefix(name, "B") || !strings.HasSuffix(name, ".TIF") {
			return false
		}
	}
	return true
}
