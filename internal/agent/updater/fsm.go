package updater

import (
	"context"

	"github.com/looplab/fsm"

	fsmutil "github.com/skystation-io/skystation/internal/pkg/util/fsm"
	"github.com/skystation-io/skystation/pkg/log"
)

// Phases of one update job. These are the fsm state names and also the
// values reported in outcomes.
const (
	PhaseIdle      = "idle"
	PhaseFetching  = "fetching"
	PhaseStaged    = "staged"
	PhaseCommitted = "committed"
	PhaseFailed    = "failed"
)

const (
	// eventBegin accepts the job and starts fetching.
	eventBegin = "event_begin"
	// eventStage carries the fetched payload into the staging write.
	eventStage = "event_stage"
	// eventPromote commits staged content onto the target.
	eventPromote = "event_promote"
	// eventFail terminates the job from any non-terminal working state.
	eventFail = "event_fail"
)

// newJobFSM builds the per-job state machine. The stage and promote
// transitions perform their storage side effects in before_ guards, so a
// failing write leaves the machine in its prior state and the caller
// drives it to PhaseFailed explicitly.
func (u *Updater) newJobFSM() *fsm.FSM {
	return fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventBegin, Src: []string{PhaseIdle}, Dst: PhaseFetching},
			{Name: eventStage, Src: []string{PhaseFetching}, Dst: PhaseStaged},
			{Name: eventPromote, Src: []string{PhaseStaged}, Dst: PhaseCommitted},
			{Name: eventFail, Src: []string{PhaseFetching, PhaseStaged}, Dst: PhaseFailed},
		},
		fsm.Callbacks{
			"before_" + eventStage:   fsmutil.WrapEvent(u.actionStage),
			"before_" + eventPromote: fsmutil.WrapEvent(u.actionPromote),
			"enter_" + PhaseCommitted: func(ctx context.Context, e *fsm.Event) {
				job := e.Args[0].(*Job)
				log.Info("Update committed", "path", job.TargetPath, "attempts", job.Attempts)
			},
		},
	)
}

// actionStage writes the fetched payload to the staging path.
// Args: [0] *Job, [1] []byte payload.
func (u *Updater) actionStage(ctx context.Context, e *fsm.Event) error {
	job := e.Args[0].(*Job)
	payload := e.Args[1].([]byte)
	if err := u.store.Stage(job.TargetPath, payload); err != nil {
		job.err = err
		return err
	}
	return nil
}

// actionPromote atomically replaces the target with the staged content.
// Args: [0] *Job.
func (u *Updater) actionPromote(ctx context.Context, e *fsm.Event) error {
	job := e.Args[0].(*Job)
	if err := u.store.Commit(job.TargetPath); err != nil {
		job.err = err
		return err
	}
	return nil
}
