// Package staging writes incoming uploads to a temporary directory on
// local disk. Staged files are the handoff point between the HTTP layer
// and the worker: the API stages a file and enqueues a job carrying its
// path, and the worker reads it back when the job runs.
package staging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempDirName = "temp"

// StagedFile describes a file written to the staging area.
type StagedFile struct {
	// Name is the collision-resistant on-disk name.
	Name string
	// Path is the absolute path of the staged file.
	Path string
	// Size is the number of bytes written.
	Size int64
}

// Stager manages the staging directory under the configured upload root.
type Stager struct {
	root string
}

func New(uploadDir string) *Stager {
	return &Stager{root: uploadDir}
}

// TempDir returns the staging directory path.
func (s *Stager) TempDir() string {
	return filepath.Join(s.root, tempDirName)
}

// EnsureDirs creates the upload root and staging directory.
func (s *Stager) EnsureDirs() error {
	if err := os.MkdirAll(s.TempDir(), 0o755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	return nil
}

// Save streams r into the staging directory under a unique name that
// keeps the original extension. The original base name is not trusted.
func (s *Stager) Save(r io.Reader, originalName string) (*StagedFile, error) {
	name := stagedName(originalName)
	path := filepath.Join(s.TempDir(), name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating staged file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing staged file: %w", err)
	}

	return &StagedFile{Name: name, Path: path, Size: n}, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (s *Stager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep removes staged files older than ttl and returns how many were
// deleted. Files still inside the ttl window are left for their jobs.
func (s *Stager) Sweep(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.TempDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading staging dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.TempDir(), entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// stagedName builds "<unix-millis>-<random>.<ext>" from the original
// file name so concurrent uploads of the same name never collide.
func stagedName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to nanosecond timestamp entropy.
		return fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), time.Now().UnixNano()%1e9, ext)
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), hex.EncodeToString(buf), ext)
}
