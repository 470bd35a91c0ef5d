// Package workspace manages the per-dump directory {data_dir}/{file name}
// that holds the database and the completion marker of an analysis.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jsnap/pkg/compression"
)

const markerFile = ".complete"

// Workspace is the directory of one analysed dump.
type Workspace struct {
	Name string
	Dir  string
}

// New returns the workspace for dump inside dataDir. The name is the dump's
// base name without a compression suffix, so heap.hprof and heap.hprof.gz
// share a workspace. dump may be a local path or a storage key.
func New(dataDir, dump string) (*Workspace, error) {
	name := compression.TrimExt(path.Base(filepath.ToSlash(dump)))
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, "..") {
		return nil, fmt.Errorf("cannot derive a workspace name from %q", dump)
	}
	return &Workspace{Name: name, Dir: filepath.Join(dataDir, name)}, nil
}

// Path returns the path of a file inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// IsComplete reports whether a previous analysis finished.
func (w *Workspace) IsComplete() bool {
	_, err := os.Stat(w.Path(markerFile))
	return err == nil
}

// CompletedAt returns when the analysis finished.
func (w *Workspace) CompletedAt() (time.Time, error) {
	data, err := os.ReadFile(w.Path(markerFile))
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
}

// Prepare makes the directory ready for a new analysis. It reports true
// without touching anything when a completed analysis exists and force is
// false. Otherwise leftovers are removed first.
func (w *Workspace) Prepare(force bool) (bool, error) {
	if !force && w.IsComplete() {
		return true, nil
	}
	if err := os.RemoveAll(w.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to clear workspace: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create workspace: %w", err)
	}
	return false, nil
}

// MarkComplete records that the analysis finished at t.
func (w *Workspace) MarkComplete(t time.Time) error {
	tmp := w.Path(markerFile + ".tmp")
	if err := os.WriteFile(tmp, []byte(t.UTC().Format(time.RFC3339)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	if err := os.Rename(tmp, w.Path(markerFile)); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// Exists reports whether the workspace directory exists.
func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.Dir)
	return err == nil && info.IsDir()
}
