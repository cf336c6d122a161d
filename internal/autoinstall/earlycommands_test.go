package autoinstall

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/subiquityd/internal/eventbus"
	"github.com/cuemby/subiquityd/internal/eventbus/membus"
)

func TestRunEarlyCommandsRunsInOrder(t *testing.T) {
	bus := membus.New()
	doc := &Document{EarlyCommands: []string{
		"echo one",
		"echo two",
		"echo three",
	}}

	require.NoError(t, RunEarlyCommands(context.Background(), t.TempDir(), doc, bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var markers []string
	go func() {
		defer close(done)
		_ = bus.Listen(ctx, []string{EarlyCommandsIdentifier}, false, func(e eventbus.Entry) {
			if strings.HasPrefix(e.Message, "+ ") {
				markers = append(markers, strings.TrimPrefix(e.Message, "+ "))
			}
		})
	}()
	cancel()
	<-done

	assert.Equal(t, []string{"echo one", "echo two", "echo three"}, markers)
}

func TestRunEarlyCommandsStopsOnFailure(t *testing.T) {
	bus := membus.New()
	doc := &Document{EarlyCommands: []string{
		"echo first",
		"exit 1",
		"echo never",
	}}

	err := RunEarlyCommands(context.Background(), t.TempDir(), doc, bus)
	require.Error(t, err)
}

func TestRunEarlyCommandsSkipsIfStamped(t *testing.T) {
	bus := membus.New()
	dir := t.TempDir()
	doc := &Document{EarlyCommands: []string{"echo once"}}

	require.NoError(t, RunEarlyCommands(context.Background(), dir, doc, bus))
	require.NoError(t, RunEarlyCommands(context.Background(), dir, doc, bus))
}
