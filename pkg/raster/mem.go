package raster

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemDriver keeps rasters in a map keyed by name. It is used by tests and
// for runs where the caller already holds the stack in memory.
type MemDriver struct {
	mu      sync.RWMutex
	rasters map[string]*Raster
}

func NewMemDriver() *MemDriver {
	return &MemDriver{rasters: map[string]*Raster{}}
}

func (m *MemDriver) Read(ctx context.Context, name string) (*Raster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rasters[name]
	if !ok {
		return nil, fmt.Errorf("mem read %s: %w", name, os.ErrNotExist)
	}
	return r.Copy(), nil
}

func (m *MemDriver) Write(ctx context.Context, name string, r *Raster) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("mem write %s: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters[name] = r.Copy()
	return nil
}

func (m *MemDriver) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rasters[src]
	if !ok {
		return fmt.Errorf("mem copy %s: %w", src, os.ErrNotExist)
	}
	m.rasters[dst] = r.Copy()
	return nil
}

// Names lists the stored rasters, sorted.
func (m *MemDriver) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.rasters))
	for n := range m.rasters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
