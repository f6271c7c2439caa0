package updater

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"

	"github.com/skystation-io/skystation/internal/agent/fetch"
	"github.com/skystation-io/skystation/internal/agent/storage"
	"github.com/skystation-io/skystation/internal/pkg/metrics"
	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/options"
)

// Reason strings reported in acknowledgments for failed jobs.
const (
	ReasonNotFound = "NotFound"
	ReasonNetwork  = "NetworkError"
	ReasonTooLarge = "TooLarge"
	ReasonWrite    = "WriteError"
	ReasonInternal = "Internal"
)

// ReasonForError maps a terminal job error to its stable reason string.
func ReasonForError(err error) string {
	switch {
	case errors.Is(err, fetch.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, fetch.ErrTooLarge):
		return ReasonTooLarge
	case errors.Is(err, fetch.ErrNetwork):
		return ReasonNetwork
	case errors.Is(err, storage.ErrWrite):
		return ReasonWrite
	default:
		return ReasonInternal
	}
}

// Job is the transient state of one update, owned by the Updater for the
// duration of a single Apply call. No job survives a restart; the storage
// recovery sweep is the only state that does.
type Job struct {
	TargetPath  string
	StagingPath string
	Attempts    int

	// err records the root cause captured inside an fsm callback, so the
	// reason mapping does not depend on how the fsm wraps callback errors.
	err error
}

// cause prefers the error recorded by a callback over the fsm's own view.
func (j *Job) cause(fallback error) error {
	if j.err != nil {
		return j.err
	}
	return fallback
}

// Outcome is the terminal result of one update job.
type Outcome struct {
	Path     string
	Phase    string
	Attempts int
	Err      error
}

// Updater drives one update job at a time through
// fetching -> staged -> committed, or to failed. Transient fetch errors are
// retried with a fixed backoff up to the attempt limit; local write failures
// are treated as non-transient and never retried.
type Updater struct {
	fetcher fetch.Fetcher
	store   *storage.Writer

	maxAttempts int
	backoff     time.Duration

	logger log.Logger
}

// New creates an Updater with the given policy.
func New(fetcher fetch.Fetcher, store *storage.Writer, opts *options.UpdateOptions) *Updater {
	return &Updater{
		fetcher:     fetcher,
		store:       store,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		logger:      log.WithName("updater"),
	}
}

// Apply runs one update job to a terminal state and returns its outcome.
// Exactly one Apply runs at a time by construction: the listener processes
// commands serially, so no locking guards the target/staging pair.
func (u *Updater) Apply(ctx context.Context, relPath string) Outcome {
	start := time.Now()
	defer func() {
		metrics.UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	job := &Job{
		TargetPath:  relPath,
		StagingPath: relPath + storage.StagingSuffix,
	}
	m := u.newJobFSM()

	if err := m.Event(ctx, eventBegin, job); err != nil {
		// Cannot happen from a fresh machine; fail loudly if it does.
		return u.fail(ctx, m, job, err)
	}

	payload, err := u.fetchWithRetry(ctx, job)
	if err != nil {
		return u.fail(ctx, m, job, err)
	}

	if err := m.Event(ctx, eventStage, job, payload); err != nil {
		return u.fail(ctx, m, job, job.cause(err))
	}

	if err := m.Event(ctx, eventPromote, job); err != nil {
		return u.fail(ctx, m, job, job.cause(err))
	}

	metrics.UpdatesTotal.WithLabelValues(PhaseCommitted).Inc()
	return Outcome{Path: relPath, Phase: m.Current(), Attempts: job.Attempts}
}

// fetchWithRetry fetches the payload, retrying transient network errors up
// to the attempt limit with a fixed backoff. NotFound and TooLarge are
// final on the first occurrence.
func (u *Updater) fetchWithRetry(ctx context.Context, job *Job) ([]byte, error) {
	var lastErr error

	for job.Attempts = 1; job.Attempts <= u.maxAttempts; job.Attempts++ {
		metrics.FetchAttemptsTotal.Inc()

		payload, err := u.fetcher.Fetch(ctx, job.TargetPath)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if !errors.Is(err, fetch.ErrNetwork) {
			return nil, err
		}
		if job.Attempts == u.maxAttempts {
			break
		}

		u.logger.Warn("Fetch failed, will retry",
			"path", job.TargetPath, "attempt", job.Attempts, "backoff", u.backoff, "error", err)

		select {
		case <-time.After(u.backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// fail drives the machine to its terminal failure state and cleans up any
// staged content. The startup recovery sweep would catch the staging file
// anyway, but there is no reason to leave it behind.
func (u *Updater) fail(ctx context.Context, m *fsm.FSM, job *Job, cause error) Outcome {
	if err := m.Event(ctx, eventFail, job); err != nil {
		u.logger.Error(err, "Failed to transition job to failed state", "path", job.TargetPath)
	}
	u.store.DiscardStaging(job.TargetPath)

	u.logger.Error(cause, "Update failed",
		"path", job.TargetPath, "attempts", job.Attempts, "reason", ReasonForError(cause))
	metrics.UpdatesTotal.WithLabelValues(PhaseFailed).Inc()

	return Outcome{Path: job.TargetPath, Phase: PhaseFailed, Attempts: job.Attempts, Err: cause}
}
