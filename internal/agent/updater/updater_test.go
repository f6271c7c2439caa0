package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/skystation-io/skystation/internal/agent/fetch"
	"github.com/skystation-io/skystation/internal/agent/storage"
	"github.com/skystation-io/skystation/pkg/options"
)

// fakeFetcher serves canned content or errors and counts attempts.
type fakeFetcher struct {
	content map[string][]byte
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.content[relPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fetch.ErrNotFound, relPath)
	}
	return data, nil
}

func newTestUpdater(t *testing.T, f fetch.Fetcher) (*Updater, *storage.Writer) {
	t.Helper()
	store, err := storage.NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	u := New(f, store, &options.UpdateOptions{
		Root:         store.Root(),
		MaxAttempts:  3,
		RetryBackoff: 0,
	})
	return u, store
}

func TestApplyCommitted(t *testing.T) {
	f := &fakeFetcher{content: map[string][]byte{"modules/config.py": []byte("X=1")}}
	u, store := newTestUpdater(t, f)

	out := u.Apply(context.Background(), "modules/config.py")

	if out.Phase != PhaseCommitted || out.Err != nil {
		t.Fatalf("Apply = {%s, %v}, want committed", out.Phase, out.Err)
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", out.Attempts)
	}

	got, err := os.ReadFile(filepath.Join(store.Root(), "modules", "config.py"))
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "X=1" {
		t.Errorf("target content = %q, want %q", got, "X=1")
	}
}

func TestApplyIdempotent(t *testing.T) {
	f := &fakeFetcher{content: map[string][]byte{"config.py": []byte("X=1")}}
	u, store := newTestUpdater(t, f)

	for i := 0; i < 2; i++ {
		out := u.Apply(context.Background(), "config.py")
		if out.Phase != PhaseCommitted {
			t.Fatalf("Apply #%d phase = %s, want committed (err %v)", i+1, out.Phase, out.Err)
		}
		got, _ := os.ReadFile(filepath.Join(store.Root(), "config.py"))
		if string(got) != "X=1" {
			t.Fatalf("after Apply #%d content = %q, want %q", i+1, got, "X=1")
		}
	}
}

func TestApplyRetriesExactlyMaxOnNetworkError(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: connection refused", fetch.ErrNetwork)}
	u, _ := newTestUpdater(t, f)

	out := u.Apply(context.Background(), "main.py")

	if out.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", out.Phase)
	}
	if f.calls != 3 {
		t.Errorf("fetch attempts = %d, want exactly 3", f.calls)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
	if ReasonForError(out.Err) != ReasonNetwork {
		t.Errorf("reason = %s, want %s", ReasonForError(out.Err), ReasonNetwork)
	}
}

func TestApplyNotFoundFailsWithoutRetry(t *testing.T) {
	f := &fakeFetcher{content: map[string][]byte{}}
	u, _ := newTestUpdater(t, f)

	out := u.Apply(context.Background(), "missing.py")

	if out.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", out.Phase)
	}
	if f.calls != 1 {
		t.Errorf("fetch attempts = %d, want 1 (no retry on NotFound)", f.calls)
	}
	if ReasonForError(out.Err) != ReasonNotFound {
		t.Errorf("reason = %s, want %s", ReasonForError(out.Err), ReasonNotFound)
	}
}

func TestApplyTooLargeFailsWithoutRetry(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: 9000 bytes", fetch.ErrTooLarge)}
	u, _ := newTestUpdater(t, f)

	out := u.Apply(context.Background(), "big.bin")

	if out.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", out.Phase)
	}
	if f.calls != 1 {
		t.Errorf("fetch attempts = %d, want 1 (no retry on TooLarge)", f.calls)
	}
	if ReasonForError(out.Err) != ReasonTooLarge {
		t.Errorf("reason = %s, want %s", ReasonForError(out.Err), ReasonTooLarge)
	}
}

func TestApplyWriteFailureIsTerminal(t *testing.T) {
	f := &fakeFetcher{content: map[string][]byte{"blocked/file.py": []byte("data")}}
	u, store := newTestUpdater(t, f)

	// A regular file where the parent directory should go makes staging fail.
	if err := os.WriteFile(filepath.Join(store.Root(), "blocked"), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	out := u.Apply(context.Background(), "blocked/file.py")

	if out.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", out.Phase)
	}
	if ReasonForError(out.Err) != ReasonWrite {
		t.Errorf("reason = %s, want %s", ReasonForError(out.Err), ReasonWrite)
	}
	if f.calls != 1 {
		t.Errorf("fetch attempts = %d, want 1 (write failures are not retried)", f.calls)
	}
}

func TestApplyTransientThenSuccess(t *testing.T) {
	// Fails once with a network error, then serves content.
	flaky := &flakyFetcher{
		failures: 1,
		data:     []byte("v2"),
	}
	u, store := newTestUpdater(t, flaky)

	out := u.Apply(context.Background(), "config.py")

	if out.Phase != PhaseCommitted || out.Err != nil {
		t.Fatalf("Apply = {%s, %v}, want committed", out.Phase, out.Err)
	}
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	got, _ := os.ReadFile(filepath.Join(store.Root(), "config.py"))
	if string(got) != "v2" {
		t.Errorf("content = %q, want %q", got, "v2")
	}
}

type flakyFetcher struct {
	failures int
	calls    int
	data     []byte
}

func (f *flakyFetcher) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: transient", fetch.ErrNetwork)
	}
	return f.data, nil
}
