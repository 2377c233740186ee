package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/entity"
)

func step(name string, calls *[]string, ref string, err error) Step {
	return Step{
		Name: name,
		Run: func(_ context.Context, _ string) (string, error) {
			*calls = append(*calls, name)
			return ref, err
		},
	}
}

func TestStepSequenceRunsAllSteps(t *testing.T) {
	meta := entity.NewLocalSyncMeta()
	var calls []string
	var persisted int

	seq := NewStepSequence(&meta,
		func(context.Context) error { persisted++; return nil },
		step("create_draft", &calls, "draft-1", nil),
		step("add_lines", &calls, "", nil),
		step("commit", &calls, "", nil),
	)

	require.NoError(t, seq.Run(context.Background()))
	assert.Equal(t, []string{"create_draft", "add_lines", "commit"}, calls)
	assert.Equal(t, 3, persisted, "progress persists after every step")
	assert.Equal(t, "commit", meta.PushStage)
	// The root ref survives steps that return no ref of their own.
	assert.Equal(t, "draft-1", meta.PushStageRef)
}

func TestStepSequenceRecordsProgressOnFailure(t *testing.T) {
	meta := entity.NewLocalSyncMeta()
	var calls []string

	seq := NewStepSequence(&meta, nil,
		step("create_draft", &calls, "draft-1", nil),
		step("add_lines", &calls, "", errors.New("boom")),
		step("commit", &calls, "", nil),
	)

	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add_lines")
	assert.Equal(t, []string{"create_draft", "add_lines"}, calls)
	assert.Equal(t, "create_draft", meta.PushStage)
	assert.True(t, seq.Started())
	assert.Equal(t, "draft-1", seq.RootRef())
}

func TestStepSequenceResumesAfterLastCompletedStep(t *testing.T) {
	meta := entity.NewLocalSyncMeta()
	meta.PushStage = "create_draft"
	meta.PushStageRef = "draft-1"

	var calls []string
	var seenRef string
	seq := NewStepSequence(&meta, nil,
		step("create_draft", &calls, "draft-2", nil),
		Step{Name: "add_lines", Run: func(_ context.Context, ref string) (string, error) {
			calls = append(calls, "add_lines")
			seenRef = ref
			return "", nil
		}},
		step("commit", &calls, "", nil),
	)

	require.NoError(t, seq.Run(context.Background()))
	assert.Equal(t, []string{"add_lines", "commit"}, calls, "the draft is never re-created")
	assert.Equal(t, "draft-1", seenRef, "resume reuses the persisted ref")
}

func TestStepSequenceUnknownStageStartsOver(t *testing.T) {
	meta := entity.NewLocalSyncMeta()
	meta.PushStage = "stage_from_old_layout"

	var calls []string
	seq := NewStepSequence(&meta, nil,
		step("create_draft", &calls, "draft-1", nil),
		step("commit", &calls, "", nil),
	)

	require.NoError(t, seq.Run(context.Background()))
	assert.Equal(t, []string{"create_draft", "commit"}, calls)
}

func TestStepSequencePersistFailureStops(t *testing.T) {
	meta := entity.NewLocalSyncMeta()
	var calls []string

	seq := NewStepSequence(&meta,
		func(context.Context) error { return errors.New("db down") },
		step("create_draft", &calls, "draft-1", nil),
		step("commit", &calls, "", nil),
	)

	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"create_draft"}, calls)
}
