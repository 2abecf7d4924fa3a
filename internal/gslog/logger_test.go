package gslog_test

import (
	"testing"

	"github.com/groundswell-ai/groundswell/internal/gslog"
	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/stretchr/testify/require"
)

type fakeDispatch struct {
	observers []node.Observer
}

func (f *fakeDispatch) ObserversForLog() []node.Observer { return f.observers }

type recordingObserver struct {
	logs    []node.LogEntry
	onLog   func(node.LogEntry)
}

func (o *recordingObserver) OnLog(entry node.LogEntry) {
	o.logs = append(o.logs, entry)
	if o.onLog != nil {
		o.onLog(entry)
	}
}
func (o *recordingObserver) OnEvent(node.Event)          {}
func (o *recordingObserver) OnStateUpdated(*node.Node)   {}
func (o *recordingObserver) OnTreeChanged(*node.Node)    {}

func TestLoggerAppendsAndFansOut(t *testing.T) {
	n := node.New("n1", "root")
	obs := &recordingObserver{}
	d := &fakeDispatch{observers: []node.Observer{obs}}

	l := gslog.New(n, d, nil)
	l.Info("hello", map[string]any{"x": 1})

	require.Len(t, n.Logs, 1)
	require.Equal(t, "hello", n.Logs[0].Message)
	require.False(t, n.Logs[0].HasParentLog)

	require.Len(t, obs.logs, 1)
	require.Equal(t, "hello", obs.logs[0].Message)
}

func TestChildLoggerStampsParentLogID(t *testing.T) {
	n := node.New("n1", "root")
	l := gslog.New(n, &fakeDispatch{}, nil)

	c := l.Child("p1")
	c.Info("x", nil)

	c2 := l.ChildFromMeta(gslog.ChildMeta{ParentLogID: "p2"})
	c2.Info("y", nil)

	l.Info("z", nil)

	require.Len(t, n.Logs, 3)
	require.True(t, n.Logs[0].HasParentLog)
	require.Equal(t, "p1", n.Logs[0].ParentLogID)
	require.True(t, n.Logs[1].HasParentLog)
	require.Equal(t, "p2", n.Logs[1].ParentLogID)
	require.False(t, n.Logs[2].HasParentLog)
}

func TestOnLogPanicIsIsolatedWithoutReenteringObservers(t *testing.T) {
	n := node.New("n1", "root")
	var secondCalls int
	panicking := &recordingObserver{onLog: func(node.LogEntry) { panic("boom") }}
	second := &recordingObserver{onLog: func(node.LogEntry) { secondCalls++ }}

	d := &fakeDispatch{observers: []node.Observer{panicking, second}}
	l := gslog.New(n, d, nil)

	require.NotPanics(t, func() { l.Info("hi", nil) })
	require.Equal(t, 1, secondCalls)

	// Two entries in the node: the original, and the local failure
	// entry written bypassing observer dispatch.
	require.Len(t, n.Logs, 2)
	require.Equal(t, node.LevelError, n.Logs[1].Level)

	// The failure entry itself must not have re-entered observer
	// delivery: each observer only ever saw the original "hi" entry,
	// never the local failure entry the logger wrote afterwards.
	require.Len(t, panicking.logs, 1)
	require.Equal(t, "hi", panicking.logs[0].Message)
	require.Len(t, second.logs, 1)
	require.Equal(t, "hi", second.logs[0].Message)
}
