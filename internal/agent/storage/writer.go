package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/skystation-io/skystation/pkg/log"
)

// ErrWrite marks local filesystem failures (storage full, permissions).
// The orchestrator treats these as non-transient: no retry.
var ErrWrite = errors.New("write error")

// StagingSuffix is appended to a target path to form its staging path.
// A file carrying this suffix has never passed verification and is safe to
// delete at any time.
const StagingSuffix = ".new"

// Writer stages and atomically commits file content under the device's
// writable root. The write-then-rename sequence guarantees a target file is
// never observable in a partially-written state: the old content stays fully
// intact until the new content is staged, synced and verified, and the
// rename either happens entirely or not at all.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root %q: %v", ErrWrite, abs, err)
	}
	return &Writer{root: abs}, nil
}

// Root returns the absolute writable root.
func (w *Writer) Root() string {
	return w.root
}

// TargetPath resolves a validated relative path to its absolute location
// under the root. It refuses anything that would escape the root.
func (w *Writer) TargetPath(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes the writable root", relPath)
	}
	return filepath.Join(w.root, clean), nil
}

// StagingPath returns the staging location for a target path.
func StagingPath(targetPath string) string {
	return targetPath + StagingSuffix
}

// Stage writes data fully to the target's staging path, flushes it to
// stable storage and verifies the staged length before returning. Nothing
// destructive happens here; the current target file is untouched.
func (w *Writer) Stage(relPath string, data []byte) error {
	target, err := w.TargetPath(relPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	staging := StagingPath(target)

	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		return fmt.Errorf("%w: create parent dir: %v", ErrWrite, err)
	}

	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open staging %q: %v", ErrWrite, staging, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(staging)
		return fmt.Errorf("%w: write staging %q: %v", ErrWrite, staging, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(staging)
		return fmt.Errorf("%w: sync staging %q: %v", ErrWrite, staging, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staging)
		return fmt.Errorf("%w: close staging %q: %v", ErrWrite, staging, err)
	}

	// Length check before any destructive action. A short file here means
	// the filesystem lied about the write; do not promote it.
	st, err := os.Stat(staging)
	if err != nil {
		return fmt.Errorf("%w: stat staging %q: %v", ErrWrite, staging, err)
	}
	if st.Size() != int64(len(data)) {
		os.Remove(staging)
		return fmt.Errorf("%w: staged %d bytes, expected %d", ErrWrite, st.Size(), len(data))
	}

	log.Debug("Staged file", "path", relPath, "bytes", len(data))
	return nil
}

// Commit atomically replaces the target with its staged content. On POSIX
// the rename is atomic: a crash leaves either the old file or the new one,
// never a mixture. The containing directory is synced so the rename itself
// survives power loss.
func (w *Writer) Commit(relPath string) error {
	target, err := w.TargetPath(relPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	staging := StagingPath(target)

	if err := os.Rename(staging, target); err != nil {
		return fmt.Errorf("%w: rename %q -> %q: %v", ErrWrite, staging, target, err)
	}

	if dir, err := os.Open(filepath.Dir(target)); err == nil {
		_ = dir.Sync()
		dir.Close()
	}

	log.Info("Committed file", "path", relPath)
	return nil
}

// DiscardStaging removes the staging file for a target, if present.
func (w *Writer) DiscardStaging(relPath string) {
	if target, err := w.TargetPath(relPath); err == nil {
		_ = os.Remove(StagingPath(target))
	}
}

// RecoverIncomplete deletes staging leftovers from interrupted updates.
// Run once at process start. Leftovers never passed verification, so they
// are never promoted; removing them restores the invariant that every file
// under the root is a fully-committed version.
func (w *Writer) RecoverIncomplete() ([]string, error) {
	var removed []string

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), StagingSuffix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("%w: remove leftover %q: %v", ErrWrite, path, err)
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			rel = path
		}
		removed = append(removed, filepath.ToSlash(rel))
		log.Warn("Removed interrupted staging file", "path", rel)
		return nil
	})
	if err != nil {
		return removed, err
	}

	return removed, nil
}
