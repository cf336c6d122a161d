package install

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	subctx "github.com/cuemby/subiquityd/internal/context"
	"github.com/cuemby/subiquityd/internal/errorreport"
	"github.com/cuemby/subiquityd/internal/eventbus/membus"
	"github.com/cuemby/subiquityd/internal/model"
)

func newTestTask(t *testing.T) (*Task, *model.Model) {
	t.Helper()
	m := model.New()
	bus := membus.New()
	reporter, err := errorreport.New(errorreport.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	root := subctx.New(logrus.StandardLogger(), "test")

	task, err := New(Config{
		Model:       m,
		Bus:         bus,
		Reporter:    reporter,
		RootContext: root,
		DryRun:      true,
		TargetDir:   t.TempDir(),
	})
	require.NoError(t, err)
	return task, m
}

func TestRunReachesNeedsConfirmationThenDone(t *testing.T) {
	task, m := newTestTask(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	for _, name := range model.InstallControllerNames {
		m.SetConfigured(name)
	}

	deadline := time.After(time.Second)
	for task.Status().Current() != StateNeedsConfirmation {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for NEEDS_CONFIRMATION")
		default:
		}
	}

	task.Confirm()

	for _, name := range model.PostinstallControllerNames {
		m.SetConfigured(name)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("install did not finish")
	}

	assert.Equal(t, StateDone, task.Status().Current())
}

func TestCurtinEventTrackerUnknownPathFallsBackToAncestor(t *testing.T) {
	root := subctx.New(logrus.StandardLogger(), "test")
	tracker := NewCurtinEventTracker(root)

	tracker.Handle(CurtinEvent{EventType: "start", Path: "partitioning", Name: "partitioning"})
	tracker.Handle(CurtinEvent{EventType: "finish", Path: "partitioning/unexpected/child", Result: "SUCCESS"})

	// No panic, and the known "partitioning" ancestor context is still
	// tracked.
	tracker.mu.Lock()
	_, ok := tracker.contexts["partitioning"]
	tracker.mu.Unlock()
	assert.True(t, ok)
}
