package robots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"
	"robotbakery/internal/txn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// directExecutor runs tasks without a store and commits every success
type directExecutor struct{}

func (directExecutor) Execute(ctx context.Context, task txn.Task) (txn.Result, error) {
	res, err := task(ctx, nil)
	res.Committed = err == nil && res.OK
	return res, err
}

type scriptedWorkflow struct {
	mu    sync.Mutex
	calls int
	step  func(n int, ctx context.Context) (txn.Result, error)
}

func (w *scriptedWorkflow) Role() string { return "test" }

func (w *scriptedWorkflow) RunIteration(ctx context.Context, tx txn.Tx) (txn.Result, error) {
	w.mu.Lock()
	w.calls++
	n := w.calls
	w.mu.Unlock()
	return w.step(n, ctx)
}

func (w *scriptedWorkflow) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestRobot_StopsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wf := &scriptedWorkflow{step: func(n int, ctx context.Context) (txn.Result, error) {
		if n == 3 {
			cancel()
		}
		return txn.Success().WithAction("work"), nil
	}}

	monitor := monitoring.NewMonitor()
	r := NewRobot("r-1", wf, directExecutor{}, WithPollInterval(time.Millisecond), WithMonitor(monitor))
	assert.Equal(t, StateCancelled, r.State())

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 3, wf.Calls())
	assert.Equal(t, StateCancelled, r.State())

	robots := monitor.Robots()
	require.Len(t, robots, 1)
	assert.Equal(t, 3, robots[0].Committed)
	assert.Equal(t, string(StateCancelled), robots[0].State)
}

func TestRobot_InFlightIterationCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sawCancelled bool
	wf := &scriptedWorkflow{step: func(n int, ctx context.Context) (txn.Result, error) {
		cancel()
		sawCancelled = ctx.Err() != nil
		return txn.Success().WithAction("work"), nil
	}}

	r := NewRobot("r-1", wf, directExecutor{}, WithPollInterval(time.Millisecond))
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 1, wf.Calls())
	assert.False(t, sawCancelled)
}

func TestRobot_ProgrammerErrorAborts(t *testing.T) {
	wf := &scriptedWorkflow{step: func(n int, ctx context.Context) (txn.Result, error) {
		return txn.Result{}, models.ErrUnknownRecipe
	}}

	monitor := monitoring.NewMonitor()
	metrics := monitoring.NewMetrics()
	r := NewRobot("r-1", wf, directExecutor{}, WithMonitor(monitor), WithMetrics(metrics))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrUnknownRecipe)
	assert.Equal(t, StateCancelled, r.State())
	assert.Equal(t, 1, wf.Calls())
	assert.Contains(t, monitor.Robots()[0].Error, "unknown recipe")
}

func TestRobot_WaitsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wf := &scriptedWorkflow{step: func(n int, ctx context.Context) (txn.Result, error) {
		return txn.Failure("no flour"), nil
	}}
	r := NewRobot("r-1", wf, directExecutor{}, WithPollInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return wf.Calls() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateRunning, r.State())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, wf.Calls())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("robot did not stop")
	}
}

func TestStoreFailure(t *testing.T) {
	res, err := storeFailure(errors.New("database is locked"), "take %s", "EGGS")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "take EGGS: database is locked", res.Reason)

	_, err = storeFailure(models.ErrInvalidTx, "take")
	assert.ErrorIs(t, err, models.ErrInvalidTx)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
