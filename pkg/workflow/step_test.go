package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/groundswell-ai/groundswell/pkg/execctx"
	"github.com/groundswell-ai/groundswell/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func TestStepEmitsStartAndEndWithDuration(t *testing.T) {
	root, _ := workflow.New("root", nil)
	obs := &recordingObserver{}
	require.NoError(t, root.AddObserver(obs))

	result, err := workflow.Step(context.Background(), root, "do-thing", workflow.StepOptions{}, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)

	var sawStart, sawEnd bool
	for _, e := range obs.events {
		if e.Type == workflow.EventStepStart && e.Step == "do-thing" {
			sawStart = true
		}
		if e.Type == workflow.EventStepEnd && e.Step == "do-thing" {
			sawEnd = true
		}
	}
	require.True(t, sawStart)
	require.True(t, sawEnd)
}

func TestStepEstablishesExecutionContext(t *testing.T) {
	root, _ := workflow.New("root", nil)

	_, err := workflow.Step(context.Background(), root, "inspect", workflow.StepOptions{}, func(ctx context.Context) (any, error) {
		v, ok := execctx.Get(ctx)
		require.True(t, ok)
		require.Equal(t, root.ID(), v.WorkflowID)
		require.False(t, v.HasParent)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestStepWrapsFailureAsWorkflowError(t *testing.T) {
	root, _ := workflow.New("root", nil)
	boom := errors.New("boom")

	_, err := workflow.Step(context.Background(), root, "fail", workflow.StepOptions{}, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}
