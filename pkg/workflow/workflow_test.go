package workflow_test

import (
	"testing"

	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
	"github.com/groundswell-ai/groundswell/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	events []workflow.Event
	trees  int
	states int
}

func (o *recordingObserver) OnLog(node.LogEntry)         {}
func (o *recordingObserver) OnEvent(e workflow.Event)    { o.events = append(o.events, e) }
func (o *recordingObserver) OnStateUpdated(*node.Node)   { o.states++ }
func (o *recordingObserver) OnTreeChanged(*node.Node)    { o.trees++ }

func TestNewValidatesName(t *testing.T) {
	_, err := workflow.New("   ", nil)
	require.Error(t, err)
	var invalid *wferrors.NameInvalid
	require.ErrorAs(t, err, &invalid)
}

func TestAttachChildBuildsMirroredTree(t *testing.T) {
	root, err := workflow.New("root", nil)
	require.NoError(t, err)

	child, err := workflow.New("child", root)
	require.NoError(t, err)

	require.Equal(t, root, child.Parent())
	require.Len(t, root.Children(), 1)
	require.Equal(t, child, root.Children()[0])

	require.Equal(t, root.Node(), child.Node().Parent)
	require.Len(t, root.Node().Children, 1)
	require.Equal(t, child.Node(), root.Node().Children[0])
}

func TestAttachChildRejectsSelfAttach(t *testing.T) {
	root, err := workflow.New("root", nil)
	require.NoError(t, err)

	err = root.AttachChild(root)
	require.Error(t, err)
	var violation *wferrors.TreeConstraintViolation
	require.ErrorAs(t, err, &violation)
}

func TestAttachChildRejectsCycle(t *testing.T) {
	root, err := workflow.New("root", nil)
	require.NoError(t, err)
	child, err := workflow.New("child", root)
	require.NoError(t, err)

	err = child.AttachChild(root)
	require.Error(t, err)
	var cycle *wferrors.CycleDetected
	require.ErrorAs(t, err, &cycle)
}

func TestAttachChildRejectsDoubleAttach(t *testing.T) {
	rootA, err := workflow.New("rootA", nil)
	require.NoError(t, err)
	rootB, err := workflow.New("rootB", nil)
	require.NoError(t, err)
	child, err := workflow.New("child", rootA)
	require.NoError(t, err)

	err = rootB.AttachChild(child)
	require.Error(t, err)
}

func TestDetachChildClearsParentBothSides(t *testing.T) {
	root, err := workflow.New("root", nil)
	require.NoError(t, err)
	child, err := workflow.New("child", root)
	require.NoError(t, err)

	require.NoError(t, root.DetachChild(child))

	require.Nil(t, child.Parent())
	require.Empty(t, root.Children())
	require.Nil(t, child.Node().Parent)
	require.Empty(t, root.Node().Children)
}

func TestIsDescendantOf(t *testing.T) {
	root, _ := workflow.New("root", nil)
	mid, _ := workflow.New("mid", root)
	leaf, _ := workflow.New("leaf", mid)

	require.True(t, leaf.IsDescendantOf(root))
	require.True(t, leaf.IsDescendantOf(mid))
	require.False(t, root.IsDescendantOf(leaf))
}

func TestSetStatusRejectsIllegalTransitions(t *testing.T) {
	root, _ := workflow.New("root", nil)
	require.NoError(t, root.SetStatus(workflow.StatusRunning))
	require.NoError(t, root.SetStatus(workflow.StatusCompleted))

	err := root.SetStatus(workflow.StatusRunning)
	require.Error(t, err)
}

func TestAddObserverRejectsNonRoot(t *testing.T) {
	root, _ := workflow.New("root", nil)
	child, _ := workflow.New("child", root)

	err := child.AddObserver(&recordingObserver{})
	require.Error(t, err)
	var violation *wferrors.TreeConstraintViolation
	require.ErrorAs(t, err, &violation)
}

func TestObserverReceivesAttachAndStatusEvents(t *testing.T) {
	root, _ := workflow.New("root", nil)
	obs := &recordingObserver{}
	require.NoError(t, root.AddObserver(obs))

	_, err := workflow.New("child", root)
	require.NoError(t, err)
	require.NoError(t, root.SetStatus(workflow.StatusRunning))

	require.GreaterOrEqual(t, obs.trees, 2) // one for attach, one for SetStatus
	foundAttached := false
	for _, e := range obs.events {
		if e.Type == workflow.EventChildAttached {
			foundAttached = true
		}
	}
	require.True(t, foundAttached)
}

type panicObserver struct{}

func (panicObserver) OnLog(node.LogEntry)      {}
func (panicObserver) OnEvent(workflow.Event)   { panic("boom") }
func (panicObserver) OnStateUpdated(*node.Node) {}
func (panicObserver) OnTreeChanged(*node.Node)  {}

func TestObserverPanicIsIsolated(t *testing.T) {
	root, _ := workflow.New("root", nil)
	require.NoError(t, root.AddObserver(panicObserver{}))
	second := &recordingObserver{}
	require.NoError(t, root.AddObserver(second))

	require.NotPanics(t, func() {
		_, err := workflow.New("child", root)
		require.NoError(t, err)
	})

	require.NotEmpty(t, second.events)
}

func TestSnapshotStateCapturesTaggedFields(t *testing.T) {
	type state struct {
		Name   string `groundswell:"observe"`
		APIKey string `groundswell:"observe,redact"`
		hidden string
	}

	root, _ := workflow.New("root", nil)
	root.SnapshotState(state{Name: "x", APIKey: "secret", hidden: "y"})

	require.True(t, root.Node().HasSnapshot)
	require.Equal(t, "x", root.Node().StateSnapshot["Name"])
	require.Equal(t, node.Redacted, root.Node().StateSnapshot["APIKey"])
	_, hasHidden := root.Node().StateSnapshot["hidden"]
	require.False(t, hasHidden)
}

func TestRunOnNonFunctionalWorkflowErrors(t *testing.T) {
	root, _ := workflow.New("root", nil)
	_, err := root.Run(nil) //nolint:staticcheck // passing nil ctx: Run never reaches past the executor check here
	require.Error(t, err)
}
