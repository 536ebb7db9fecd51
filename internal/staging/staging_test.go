package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStager(t *testing.T) *Stager {
	t.Helper()
	s := New(t.TempDir())
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	return s
}

func TestSave(t *testing.T) {
	s := newTestStager(t)

	staged, err := s.Save(strings.NewReader("hello upload"), "Vacation Photo.JPG")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !strings.HasSuffix(staged.Name, ".jpg") {
		t.Errorf("staged name %q should keep a lowercased extension", staged.Name)
	}
	if strings.Contains(staged.Name, "Vacation") {
		t.Errorf("staged name %q leaks the original file name", staged.Name)
	}
	if staged.Size != int64(len("hello upload")) {
		t.Errorf("size: got %d, want %d", staged.Size, len("hello upload"))
	}

	data, err := os.ReadFile(staged.Path)
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(data) != "hello upload" {
		t.Errorf("staged content: got %q", data)
	}
}

func TestSaveUniqueNames(t *testing.T) {
	s := newTestStager(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		staged, err := s.Save(strings.NewReader("x"), "same.png")
		if err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		if seen[staged.Name] {
			t.Fatalf("duplicate staged name %q", staged.Name)
		}
		seen[staged.Name] = true
	}
}

func TestRemove(t *testing.T) {
	s := newTestStager(t)

	staged, err := s.Save(strings.NewReader("x"), "a.jpg")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Remove(staged.Path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Error("staged file still exists after Remove")
	}

	// Removing an already-gone file is a no-op.
	if err := s.Remove(staged.Path); err != nil {
		t.Errorf("Remove of missing file returned %v", err)
	}
}

func TestSweep(t *testing.T) {
	s := newTestStager(t)

	stale, err := s.Save(strings.NewReader("old"), "old.jpg")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale.Path, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	fresh, err := s.Save(strings.NewReader("new"), "new.jpg")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed: got %d, want 1", removed)
	}
	if _, err := os.Stat(stale.Path); !os.IsNotExist(err) {
		t.Error("stale file survived sweep")
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("fresh file removed by sweep: %v", err)
	}
}

func TestSweepMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never-created"))

	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed: got %d, want 0", removed)
	}
}
