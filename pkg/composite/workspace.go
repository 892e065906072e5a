package composite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abworrall/stack-composite/pkg/log"
	"github.com/abworrall/stack-composite/pkg/raster"
)

// A Workspace is the scratch directory of one run, <tmp>/RefLyrs_<uuid>.
// It is owned by that run alone.
type Workspace struct {
	Root string
	Path string

	createdRoot bool
	dump        bool
}

// NewWorkspace creates the run directory, and the tmp root too if needed.
// With dump set, Dump renders intermediate grids into it.
func NewWorkspace(tmpPath string, dump bool) (*Workspace, error) {
	ws := &Workspace{Root: tmpPath, dump: dump}

	if _, err := os.Stat(tmpPath); os.IsNotExist(err) {
		ws.createdRoot = true
	}

	ws.Path = filepath.Join(tmpPath, "RefLyrs_"+uuid.New().String())
	if err := os.MkdirAll(ws.Path, 0755); err != nil {
		return nil, fmt.Errorf("NewWorkspace: %w", err)
	}
	return ws, nil
}

func (ws *Workspace) String() string { return ws.Path }

// Dump writes a PNG rendering of g into the workspace, if dumping is on.
func (ws *Workspace) Dump(ctx context.Context, name string, g *raster.Grid, nodata float64) error {
	if ws == nil || !ws.dump {
		return nil
	}
	filename := filepath.Join(ws.Path, name+".png")
	if err := g.ToImg(name, filename, nodata); err != nil {
		return fmt.Errorf("dump %s: %w", name, err)
	}
	log.Logger(ctx).Debug("dumped "+filename, zap.String("stats", g.Stats(nodata)))
	return nil
}

// Close removes the run directory, and the tmp root if this run created it
// and nothing else has been put there. Failures are logged, never returned.
func (ws *Workspace) Close(ctx context.Context) {
	if ws == nil {
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		log.Logger(ctx).Warn("workspace cleanup failed", zap.String("path", ws.Path), zap.Error(err))
		return
	}
	if ws.createdRoot {
		if err := os.Remove(ws.Root); err != nil {
			log.Logger(ctx).Warn("tmp root cleanup failed", zap.String("path", ws.Root), zap.Error(err))
		}
	}
}
