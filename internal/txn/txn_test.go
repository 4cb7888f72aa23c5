package txn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records the changes a task makes and supports savepoints by
// remembering how many changes existed when each one was taken.
type fakeTx struct {
	changes    []string
	savepoints map[string]int
	committed  bool
	rolledBack bool
	commitErr  error
	calls      []string
}

func newFakeTx() *fakeTx {
	return &fakeTx{savepoints: map[string]int{}}
}

func (f *fakeTx) Savepoint(name string) error {
	f.calls = append(f.calls, "savepoint")
	f.savepoints[name] = len(f.changes)
	return nil
}

func (f *fakeTx) RollbackTo(name string) error {
	f.calls = append(f.calls, "rollback_to")
	mark, ok := f.savepoints[name]
	if !ok {
		return errors.New("no such savepoint")
	}
	f.changes = f.changes[:mark]
	return nil
}

func (f *fakeTx) ReleaseSavepoint(name string) error {
	f.calls = append(f.calls, "release")
	delete(f.savepoints, name)
	return nil
}

func (f *fakeTx) Commit() error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rolledBack = true
	return nil
}

type fakeStore struct {
	txs      []*fakeTx
	beginErr error
	next     func() *fakeTx
}

func (s *fakeStore) Begin(ctx context.Context) (Transaction, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx := newFakeTx()
	if s.next != nil {
		tx = s.next()
	}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func record(tx Tx, change string) {
	tx.(*fakeTx).changes = append(tx.(*fakeTx).changes, change)
}

func TestExecute_CommitsOnSuccess(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		record(tx, "take pack")
		return Success().WithAction("knead"), nil
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Committed)
	assert.Equal(t, "knead", res.Action)
	require.Len(t, store.txs, 1)
	assert.True(t, store.txs[0].committed)
	assert.False(t, store.txs[0].rolledBack)
}

func TestExecute_RollsBackOnFailure(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		record(tx, "take pack")
		return Failure("not enough flour: %d missing", 50), nil
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Committed)
	assert.Equal(t, "not enough flour: 50 missing", res.Reason)
	assert.False(t, store.txs[0].committed)
	assert.True(t, store.txs[0].rolledBack)
}

func TestExecute_RollsBackOnError(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)
	boom := errors.New("boom")

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		return Success(), boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, res.OK)
	assert.False(t, res.Committed)
	assert.True(t, store.txs[0].rolledBack)
}

func TestExecute_RecoversPanic(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		panic("nil recipe")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil recipe")
	assert.False(t, res.OK)
	assert.True(t, store.txs[0].rolledBack)
}

func TestExecute_BeginAndCommitFailuresAreResults(t *testing.T) {
	m := NewManager(&fakeStore{beginErr: errors.New("database is locked")})
	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		t.Fatal("task must not run without a transaction")
		return Success(), nil
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, strings.Contains(res.Reason, "database is locked"))

	store := &fakeStore{next: func() *fakeTx {
		tx := newFakeTx()
		tx.commitErr = errors.New("serialization failure")
		return tx
	}}
	m = NewManager(store)
	res, err = m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		return Success().WithAction("bake"), nil
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Committed)
	assert.Equal(t, "bake", res.Action)
}

func TestRun_NestedFailureUndoesOnlyInnerChanges(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	var inner Result
	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		record(tx, "outer")
		var err error
		inner, err = m.Run(ctx, tx, func(ctx context.Context, tx Tx) (Result, error) {
			record(tx, "inner egg 1")
			record(tx, "inner egg 2")
			return Failure("only 2 of 4 eggs"), nil
		})
		if err != nil {
			return Result{}, err
		}
		// The outer task treats the inner failure as recoverable
		return Success(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.False(t, inner.OK)
	assert.False(t, inner.Committed)
	tx := store.txs[0]
	assert.Equal(t, []string{"outer"}, tx.changes)
	assert.Equal(t, []string{"savepoint", "rollback_to"}, tx.calls)
}

func TestRun_NestedSuccessIsKeptByOuter(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		r, err := m.Run(ctx, tx, func(ctx context.Context, tx Tx) (Result, error) {
			record(tx, "water")
			return Success(), nil
		})
		if err != nil || !r.OK {
			return r, err
		}
		record(tx, "mix")
		return Success(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.Committed)
	tx := store.txs[0]
	assert.Equal(t, []string{"water", "mix"}, tx.changes)
	assert.Equal(t, []string{"savepoint", "release"}, tx.calls)
}

func TestRun_OuterFailureDiscardsNestedSuccess(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	res, err := m.Execute(context.Background(), func(ctx context.Context, tx Tx) (Result, error) {
		_, _ = m.Run(ctx, tx, func(ctx context.Context, tx Tx) (Result, error) {
			record(tx, "water")
			return Success(), nil
		})
		return Failure("no flour"), nil
	})

	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.False(t, store.txs[0].committed)
	assert.True(t, store.txs[0].rolledBack)
}

func TestRun_UniqueSavepointNames(t *testing.T) {
	tx := newFakeTx()
	m := NewManager(&fakeStore{})
	var names []string
	for i := 0; i < 3; i++ {
		_, err := m.Run(context.Background(), tx, func(ctx context.Context, inner Tx) (Result, error) {
			for name := range tx.savepoints {
				names = append(names, name)
			}
			return Success(), nil
		})
		require.NoError(t, err)
	}
	assert.Len(t, names, 3)
	assert.NotEqual(t, names[0], names[1])
	assert.NotEqual(t, names[1], names[2])
}
