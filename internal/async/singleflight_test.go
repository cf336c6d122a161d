package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSingleFlightRunsToCompletion(t *testing.T) {
	var sf SingleFlight
	var ran bool

	sf.Start(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	sf.Cancel()

	require.True(t, ran)
}

func TestSingleFlightSupersedesPreviousRun(t *testing.T) {
	var sf SingleFlight
	var mu sync.Mutex
	var canceledFirst, ranSecond bool

	sf.Start(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			mu.Lock()
			canceledFirst = true
			mu.Unlock()
		}
		return nil
	})

	sf.Start(context.Background(), func(ctx context.Context) error {
		mu.Lock()
		ranSecond = true
		mu.Unlock()
		return nil
	})
	sf.Cancel()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, canceledFirst)
	require.True(t, ranSecond)
}

func TestSingleFlightCancelWithNoRunIsANoOp(t *testing.T) {
	var sf SingleFlight
	sf.Cancel()
	sf.Cancel()
}
