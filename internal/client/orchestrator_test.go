package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespHookDistinguishesOutcomes(t *testing.T) {
	assert.ErrorIs(t, RespHook("skip", ""), ErrSkip)
	assert.ErrorIs(t, RespHook("confirm", ""), ErrConfirm)
	assert.NoError(t, RespHook("ok", ""))

	err := RespHook("error", "ref-123")
	var abort *ErrAbort
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "ref-123", abort.Ref)
}

func TestOrchestratorAdvanceRetreatPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-screen")

	o2 := &Orchestrator{LastScreenPath: path}
	o2.Advance()
	o2.Advance()
	assert.Equal(t, 2, LoadLastScreen(path))
	o2.Retreat()
	assert.Equal(t, 1, LoadLastScreen(path))
}

func TestProgressTimerThrottles(t *testing.T) {
	start := time.Now()
	p := NewProgressTimer(start)

	assert.False(t, p.ShouldShow(start.Add(50*time.Millisecond)))
	assert.True(t, p.ShouldShow(start.Add(150*time.Millisecond)))
	assert.True(t, p.MinRemainingWait(start.Add(200*time.Millisecond)) > 0)
	assert.Equal(t, time.Duration(0), p.MinRemainingWait(start.Add(2*time.Second)))
}
