// Package txn runs units of bakery work against the shared store so that
// either everything a task did is committed or none of it is.
package txn

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Result is the outcome of a task. OK means the task reached its goal and
// its effects may be kept; Committed is set by the engine once they were.
type Result struct {
	OK        bool   `json:"ok"`
	Committed bool   `json:"committed"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Success returns a successful result
func Success() Result {
	return Result{OK: true}
}

// Failure returns a failed result with a formatted reason
func Failure(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// WithAction labels the result with the action that produced it
func (r Result) WithAction(action string) Result {
	r.Action = action
	return r
}

// Tx is the handle a task works on. Savepoints let a nested task undo its
// own changes without ending the enclosing transaction.
type Tx interface {
	Savepoint(name string) error
	RollbackTo(name string) error
	ReleaseSavepoint(name string) error
}

// Transaction is a Tx owned by the engine
type Transaction interface {
	Tx
	Commit() error
	Rollback() error
}

// Beginner opens transactions on the shared store
type Beginner interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Task is a unit of work executed inside a transaction. A returned error is
// reserved for programmer errors; everything the bakery can recover from is
// reported through a failed Result.
type Task func(ctx context.Context, tx Tx) (Result, error)

// Manager executes tasks against a store
type Manager struct {
	store Beginner
	seq   atomic.Uint64
}

// NewManager creates a manager for the given store
func NewManager(store Beginner) *Manager {
	return &Manager{store: store}
}

// Execute runs task in a fresh transaction. The transaction is committed
// only when the task succeeds without error; it is rolled back on failure,
// on error and on panic. A transaction that cannot be opened or committed is
// reported as a failed result.
func (m *Manager) Execute(ctx context.Context, task Task) (res Result, err error) {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return Failure("begin transaction: %v", err), nil
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			res = Failure("task panicked: %v", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	res, err = task(ctx, tx)
	res.Committed = false
	if err != nil || !res.OK {
		_ = tx.Rollback()
		if err != nil {
			res.OK = false
			if res.Reason == "" {
				res.Reason = err.Error()
			}
		}
		return res, err
	}

	if cerr := tx.Commit(); cerr != nil {
		return Failure("commit: %v", cerr).WithAction(res.Action), nil
	}
	res.Committed = true
	return res, nil
}

// Run executes task nested in the transaction of an enclosing task. The
// nested task runs under a savepoint: when it fails, everything it changed
// is undone and the enclosing task decides how to go on.
func (m *Manager) Run(ctx context.Context, tx Tx, task Task) (Result, error) {
	name := fmt.Sprintf("task_%d", m.seq.Add(1))
	if err := tx.Savepoint(name); err != nil {
		return Failure("savepoint %s: %v", name, err), nil
	}

	res, err := task(ctx, tx)
	res.Committed = false
	if err != nil || !res.OK {
		if rerr := tx.RollbackTo(name); rerr != nil {
			return Result{Action: res.Action, Reason: res.Reason}, fmt.Errorf("rollback to savepoint %s: %w", name, rerr)
		}
		if err != nil {
			res.OK = false
		}
		return res, err
	}

	if err := tx.ReleaseSavepoint(name); err != nil {
		if rerr := tx.RollbackTo(name); rerr != nil {
			return Result{Action: res.Action}, fmt.Errorf("release savepoint %s: %w", name, err)
		}
		return Failure("release savepoint %s: %v", name, err).WithAction(res.Action), nil
	}
	return res, nil
}
