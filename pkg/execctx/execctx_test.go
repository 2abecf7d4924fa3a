package execctx_test

import (
	"context"
	"testing"

	"github.com/groundswell-ai/groundswell/pkg/execctx"
	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
	"github.com/stretchr/testify/require"
)

func TestRunEstablishesAndRestoresContext(t *testing.T) {
	ctx := context.Background()
	_, ok := execctx.Get(ctx)
	require.False(t, ok)

	outer := execctx.Value{WorkflowID: "outer"}
	result, err := execctx.Run(ctx, outer, func(ctx context.Context) (string, error) {
		v, ok := execctx.Get(ctx)
		require.True(t, ok)
		require.Equal(t, "outer", v.WorkflowID)

		inner := execctx.Value{WorkflowID: "inner"}
		_, err := execctx.Run(ctx, inner, func(ctx context.Context) (string, error) {
			v, _ := execctx.Get(ctx)
			require.Equal(t, "inner", v.WorkflowID)
			return "", nil
		})
		require.NoError(t, err)

		v, _ = execctx.Get(ctx)
		require.Equal(t, "outer", v.WorkflowID, "outer context restored after nested run unwinds")
		return "done", nil
	})

	require.NoError(t, err)
	require.Equal(t, "done", result)

	_, ok = execctx.Get(ctx)
	require.False(t, ok, "original background context is untouched")
}

func TestRunPropagatesError(t *testing.T) {
	ctx := context.Background()
	sentinel := &node.Node{}
	_ = sentinel

	_, err := execctx.Run(ctx, execctx.Value{}, func(ctx context.Context) (int, error) {
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }

func TestRequireFailsOutsideRun(t *testing.T) {
	_, err := execctx.Require(context.Background(), "step")
	require.Error(t, err)

	var cm *wferrors.ContextMissing
	require.ErrorAs(t, err, &cm)
	require.Equal(t, "step", cm.Operation)
}
