package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func TestStageThenCommit(t *testing.T) {
	w := newTestWriter(t)

	if err := w.Stage("modules/config.py", []byte("X=1")); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	target := filepath.Join(w.Root(), "modules", "config.py")
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("target must not exist before commit, stat err = %v", err)
	}
	if _, err := os.Stat(target + StagingSuffix); err != nil {
		t.Fatalf("staging file missing after Stage: %v", err)
	}

	if err := w.Commit("modules/config.py"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "X=1" {
		t.Errorf("target content = %q, want %q", got, "X=1")
	}
	if _, err := os.Stat(target + StagingSuffix); !os.IsNotExist(err) {
		t.Errorf("staging file should be gone after commit, stat err = %v", err)
	}
}

func TestStageLeavesOldContentIntact(t *testing.T) {
	w := newTestWriter(t)

	if err := os.WriteFile(filepath.Join(w.Root(), "main.py"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.Stage("main.py", []byte("new content")); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(w.Root(), "main.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("staging must not touch the target; content = %q", got)
	}

	if err := w.Commit("main.py"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(w.Root(), "main.py"))
	if string(got) != "new content" {
		t.Errorf("after commit content = %q, want %q", got, "new content")
	}
}

func TestCommitWithoutStageFails(t *testing.T) {
	w := newTestWriter(t)

	err := w.Commit("never-staged.py")
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Commit without staging = %v, want ErrWrite", err)
	}
}

func TestCommitIsRepeatableWithIdenticalContent(t *testing.T) {
	w := newTestWriter(t)

	for i := 0; i < 2; i++ {
		if err := w.Stage("config.py", []byte("X=1")); err != nil {
			t.Fatalf("Stage #%d: %v", i+1, err)
		}
		if err := w.Commit("config.py"); err != nil {
			t.Fatalf("Commit #%d: %v", i+1, err)
		}
		got, _ := os.ReadFile(filepath.Join(w.Root(), "config.py"))
		if string(got) != "X=1" {
			t.Fatalf("after commit #%d content = %q, want %q", i+1, got, "X=1")
		}
	}
}

func TestTargetPathRejectsEscapes(t *testing.T) {
	w := newTestWriter(t)

	for _, p := range []string{"../evil.py", "a/../../evil.py", "/etc/passwd", "..", "."} {
		if _, err := w.TargetPath(p); err == nil {
			t.Errorf("TargetPath(%q) accepted a path escaping the root", p)
		}
	}
	if _, err := w.TargetPath("ok/file.py"); err != nil {
		t.Errorf("TargetPath rejected a valid path: %v", err)
	}
}

func TestRecoverIncomplete(t *testing.T) {
	w := newTestWriter(t)

	// Simulate a crash between Stage and Commit: a leftover staging file
	// next to an intact previous version.
	if err := os.MkdirAll(filepath.Join(w.Root(), "modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(w.Root(), "modules", "config.py")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	leftover := old + StagingSuffix
	if err := os.WriteFile(leftover, []byte("half-writ"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := w.RecoverIncomplete()
	if err != nil {
		t.Fatalf("RecoverIncomplete: %v", err)
	}
	if len(removed) != 1 || removed[0] != "modules/config.py.new" {
		t.Errorf("removed = %v, want [modules/config.py.new]", removed)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("leftover staging file still present")
	}
	got, _ := os.ReadFile(old)
	if string(got) != "old" {
		t.Errorf("previous version must survive recovery; content = %q", got)
	}

	// A second sweep is a no-op.
	removed, err = w.RecoverIncomplete()
	if err != nil {
		t.Fatalf("second RecoverIncomplete: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("second sweep removed %v, want nothing", removed)
	}
}

func TestDiscardStaging(t *testing.T) {
	w := newTestWriter(t)

	if err := w.Stage("a.py", []byte("data")); err != nil {
		t.Fatal(err)
	}
	w.DiscardStaging("a.py")

	if _, err := os.Stat(filepath.Join(w.Root(), "a.py"+StagingSuffix)); !os.IsNotExist(err) {
		t.Errorf("staging file should be removed")
	}
}
