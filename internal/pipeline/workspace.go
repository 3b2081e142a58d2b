package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"refinery/internal/config"
)

const lockFileName = "refinery.lock"

// ErrWorkspaceLocked reports that another controller holds the workspace.
var ErrWorkspaceLocked = errors.New("workspace is locked by another controller")

// Workspace names the bootstrap directory and the numbered stage directories.
type Workspace struct {
	Root       string
	Bootstrap  string
	StagesRoot string
	Stages     int
}

// NewWorkspace derives the layout from resolved configuration paths.
func NewWorkspace(cfg *config.Config) *Workspace {
	return &Workspace{
		Root:       cfg.Paths.WorkDir,
		Bootstrap:  cfg.Paths.BootstrapDir,
		StagesRoot: cfg.Paths.StagesDir,
		Stages:     cfg.Pipeline.Stages,
	}
}

// BootstrapDir holds raw generated batches.
func (w *Workspace) BootstrapDir() string {
	return w.Bootstrap
}

// StageDir returns the directory for stage k (1-based).
func (w *Workspace) StageDir(k int) string {
	return filepath.Join(w.StagesRoot, strconv.Itoa(k))
}

// TerminalDir is the last stage directory; its item count is the progress.
func (w *Workspace) TerminalDir() string {
	return w.StageDir(w.Stages)
}

// Dirs lists the bootstrap directory followed by every stage directory.
func (w *Workspace) Dirs() []string {
	dirs := make([]string, 0, w.Stages+1)
	dirs = append(dirs, w.BootstrapDir())
	for k := 1; k <= w.Stages; k++ {
		dirs = append(dirs, w.StageDir(k))
	}
	return dirs
}

// Ensure creates every directory of the layout. It is safe to call repeatedly.
func (w *Workspace) Ensure() error {
	if w.Stages < 1 {
		return fmt.Errorf("workspace needs at least one stage, got %d", w.Stages)
	}
	for _, dir := range w.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the file guarding the workspace against a second controller.
func (w *Workspace) LockPath() string {
	return filepath.Join(w.Root, lockFileName)
}

// Lock takes the workspace lock without blocking. The caller releases it with
// Unlock on the returned handle.
func (w *Workspace) Lock() (*flock.Flock, error) {
	if err := os.MkdirAll(w.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	lock := flock.New(w.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrWorkspaceLocked, w.LockPath())
	}
	return lock, nil
}
