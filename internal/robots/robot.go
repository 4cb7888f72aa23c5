// Package robots holds the bakery workers: a shared control loop, the
// production chooser and the workflows each kind of robot repeats.
package robots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"robotbakery/internal/logger"
	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"
	"robotbakery/internal/txn"
)

// Role names the kind of work a robot does
type Role string

const (
	RoleKnead    Role = "knead"
	RoleBake     Role = "bake"
	RoleCustomer Role = "customer"
)

// Robot types recorded in product contributions
const (
	RobotTypeKnead    = "KneadRobot"
	RobotTypeBake     = "BakeRobot"
	RobotTypeCustomer = "Customer"
)

// ActionIdle marks an iteration that found nothing to do
const ActionIdle = "idle"

// DefaultPollInterval is how long a robot waits after an unproductive
// iteration
const DefaultPollInterval = time.Second

// State of a robot's control loop
type State string

const (
	StateRunning   State = "RUNNING"
	StateCancelled State = "CANCELLED"
)

// Executor runs a task in its own transaction
type Executor interface {
	Execute(ctx context.Context, task txn.Task) (txn.Result, error)
}

// Runner runs a task nested in an open transaction
type Runner interface {
	Run(ctx context.Context, tx txn.Tx, task txn.Task) (txn.Result, error)
}

// Robot repeats its workflow until cancelled
type Robot struct {
	ID string

	workflow     Workflow
	engine       Executor
	pollInterval time.Duration
	log          *logger.Logger
	monitor      *monitoring.Monitor
	metrics      *monitoring.Metrics

	mu    sync.RWMutex
	state State
}

// Option configures a robot
type Option func(*Robot)

// WithPollInterval sets the wait after an unproductive iteration
func WithPollInterval(d time.Duration) Option {
	return func(r *Robot) { r.pollInterval = d }
}

// WithLogger sets the robot's logger
func WithLogger(l *logger.Logger) Option {
	return func(r *Robot) { r.log = l }
}

// WithMonitor reports iterations to the status board
func WithMonitor(m *monitoring.Monitor) Option {
	return func(r *Robot) { r.monitor = m }
}

// WithMetrics reports iterations to prometheus
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Robot) { r.metrics = m }
}

// NewRobot creates a robot running workflow through engine
func NewRobot(id string, workflow Workflow, engine Executor, opts ...Option) *Robot {
	r := &Robot{
		ID:           id,
		workflow:     workflow,
		engine:       engine,
		pollInterval: DefaultPollInterval,
		log:          logger.Discard(),
		state:        StateCancelled,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(id)
	if r.monitor != nil {
		r.monitor.RegisterRobot(id, workflow.Role(), string(r.state))
	}
	return r
}

// State returns the current loop state
func (r *Robot) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Robot) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.monitor != nil {
		r.monitor.SetRobotState(r.ID, string(s), err)
	}
}

// Run loops until ctx is cancelled. Cancellation is checked between
// iterations only, so an iteration that has started always finishes and may
// still commit. A non-nil error means the workflow hit a programmer error.
func (r *Robot) Run(ctx context.Context) error {
	r.setState(StateRunning, nil)
	r.log.Info("started %s robot", r.workflow.Role())

	for {
		if ctx.Err() != nil {
			r.setState(StateCancelled, nil)
			r.log.Info("stopped")
			return nil
		}

		res, err := r.RunOnce(ctx)
		if err != nil {
			r.setState(StateCancelled, err)
			r.log.Error("aborted: %v", err)
			return fmt.Errorf("robot %s: %w", r.ID, err)
		}

		if res.Committed && res.Action != ActionIdle {
			continue
		}
		_ = Sleep(ctx, r.pollInterval)
	}
}

// RunOnce executes a single iteration in its own transaction
func (r *Robot) RunOnce(ctx context.Context) (txn.Result, error) {
	start := time.Now()
	res, err := r.engine.Execute(context.WithoutCancel(ctx), r.workflow.RunIteration)
	elapsed := time.Since(start)

	outcome := monitoring.OutcomeFailed
	switch {
	case err != nil:
		outcome = monitoring.OutcomeError
	case res.Committed:
		outcome = monitoring.OutcomeCommitted
	}

	if r.metrics != nil {
		r.metrics.RecordIteration(r.workflow.Role(), res.Action, outcome, elapsed)
	}
	if r.monitor != nil && err == nil {
		r.monitor.RecordIteration(r.ID, res.Action, res.Reason, res.Committed)
	}

	switch {
	case err != nil:
	case res.Committed && res.Reason != "":
		r.log.Info("%s (%s) in %s", res.Action, res.Reason, elapsed.Round(time.Millisecond))
	case res.Committed && res.Action != ActionIdle:
		r.log.Info("%s in %s", res.Action, elapsed.Round(time.Millisecond))
	case !res.Committed:
		r.log.Debug("iteration failed: %s", res.Reason)
	}
	return res, err
}

// isProgrammerError reports errors no retry can fix
func isProgrammerError(err error) bool {
	return errors.Is(err, models.ErrUnknownRecipe) ||
		errors.Is(err, models.ErrInvalidTx) ||
		errors.Is(err, models.ErrTerminalState)
}

// storeFailure turns a store error into a failed result, passing programmer
// errors through so they abort the robot
func storeFailure(err error, format string, args ...interface{}) (txn.Result, error) {
	if isProgrammerError(err) {
		return txn.Result{}, err
	}
	return txn.Failure("%s: %v", fmt.Sprintf(format, args...), err), nil
}
