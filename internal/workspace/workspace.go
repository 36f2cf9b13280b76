package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Workspace manages temporary files for a single extraction job
type Workspace struct {
	Dir       string
	CreatedAt time.Time
}

// Create creates a new isolated workspace under root. The song code becomes
// part of the directory name so leftovers are easy to attribute.
func Create(root, songCode string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	prefix := unsafeChars.ReplaceAllString(songCode, "_")
	if prefix == "" {
		prefix = "job"
	}
	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{
		Dir:       dir,
		CreatedAt: time.Now(),
	}, nil
}

// Path helpers for workspace files
func (w *Workspace) DownloadDir() string   { return filepath.Join(w.Dir, "download") }
func (w *Workspace) StemsDir() string      { return filepath.Join(w.Dir, "stems") }
func (w *Workspace) NormalizedWAV() string { return filepath.Join(w.Dir, "mono.wav") }
func (w *Workspace) PitchJSON() string     { return filepath.Join(w.Dir, "pitch.json") }

// Cleanup removes the workspace directory and all contents
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// CopyFile copies a file into the workspace
func (w *Workspace) CopyFile(src, dstName string) (string, error) {
	dst := filepath.Join(w.Dir, dstName)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("write destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("write destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("write destination: %w", err)
	}
	return dst, nil
}
