package sync

import (
	"context"
	"fmt"

	"shopmirror/internal/core/entity"
	"shopmirror/pkg/logger"
)

// Step is one remote mutation of a composite push. Run returns an optional
// reference (e.g. the created draft's remote id) persisted alongside the
// step name so a retry can resume with it.
type Step struct {
	Name string
	Run  func(ctx context.Context, ref string) (string, error)
}

// StepSequence executes a composite remote mutation (draft-create →
// line-add → commit) as a resumable sequence. Progress is recorded on the
// record's sync metadata after every completed step, so a retry resumes
// after the last completed step instead of re-creating the root object.
type StepSequence struct {
	meta  *entity.SyncMeta
	steps []Step

	// persist saves the metadata between steps; without it a crash between
	// steps would lose the resume point.
	persist func(ctx context.Context) error
}

// NewStepSequence builds a sequence over the record's metadata.
func NewStepSequence(meta *entity.SyncMeta, persist func(ctx context.Context) error, steps ...Step) *StepSequence {
	return &StepSequence{meta: meta, steps: steps, persist: persist}
}

// Run executes the remaining steps. On failure the metadata still names the
// last completed step; the error wraps the failing step's name.
func (s *StepSequence) Run(ctx context.Context) error {
	start := s.resumeIndex()
	if start > 0 {
		logger.Info(ctx, "resuming composite push",
			"completed_step", s.meta.PushStage,
			"resume_at", s.steps[start].Name,
		)
	}

	ref := s.meta.PushStageRef
	for i := start; i < len(s.steps); i++ {
		step := s.steps[i]
		newRef, err := step.Run(ctx, ref)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		if newRef != "" {
			ref = newRef
		}

		s.meta.PushStage = step.Name
		s.meta.PushStageRef = ref
		if s.persist != nil {
			if err := s.persist(ctx); err != nil {
				return fmt.Errorf("persist progress after %s: %w", step.Name, err)
			}
		}
	}
	return nil
}

// RootRef returns the reference recorded by the first completed step, used
// for best-effort cleanup of an orphaned draft after a terminal failure.
func (s *StepSequence) RootRef() string {
	return s.meta.PushStageRef
}

// Started reports whether any step has completed (an orphan may exist).
func (s *StepSequence) Started() bool {
	return s.meta.PushStage != ""
}

func (s *StepSequence) resumeIndex() int {
	if s.meta.PushStage == "" {
		return 0
	}
	for i, step := range s.steps {
		if step.Name == s.meta.PushStage {
			return i + 1
		}
	}
	// Stage from an older sequence layout; start over.
	return 0
}
