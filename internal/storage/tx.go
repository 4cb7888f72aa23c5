package storage

import (
	"context"
	"database/sql"
	"fmt"

	"robotbakery/internal/events"
	"robotbakery/internal/models"
	"robotbakery/internal/txn"

	"github.com/jinzhu/gorm"
)

// Tx is a store transaction. Change events are held back until commit and
// dropped on rollback, so subscribers only ever see committed changes.
type Tx struct {
	db      *gorm.DB
	pub     events.Publisher
	pending []events.Event
	marks   map[string]int
}

// Begin opens a transaction on the store
func (s *Store) Begin(ctx context.Context) (txn.Transaction, error) {
	tx := s.db.BeginTx(ctx, &sql.TxOptions{})
	if tx.Error != nil {
		return nil, fmt.Errorf("begin: %w", tx.Error)
	}
	return &Tx{db: tx, pub: s.pub, marks: make(map[string]int)}, nil
}

// Savepoint marks a point the transaction can be rolled back to
func (t *Tx) Savepoint(name string) error {
	if err := t.db.Exec("SAVEPOINT " + name).Error; err != nil {
		return err
	}
	t.marks[name] = len(t.pending)
	return nil
}

// RollbackTo undoes everything done since the savepoint
func (t *Tx) RollbackTo(name string) error {
	mark, ok := t.marks[name]
	if !ok {
		return fmt.Errorf("unknown savepoint %s", name)
	}
	if err := t.db.Exec("ROLLBACK TO SAVEPOINT " + name).Error; err != nil {
		return err
	}
	t.pending = t.pending[:mark]
	delete(t.marks, name)
	return nil
}

// ReleaseSavepoint keeps everything done since the savepoint
func (t *Tx) ReleaseSavepoint(name string) error {
	if _, ok := t.marks[name]; !ok {
		return fmt.Errorf("unknown savepoint %s", name)
	}
	if err := t.db.Exec("RELEASE SAVEPOINT " + name).Error; err != nil {
		return err
	}
	delete(t.marks, name)
	return nil
}

// Commit makes the transaction's changes visible and publishes its events
func (t *Tx) Commit() error {
	if err := t.db.Commit().Error; err != nil {
		t.pending = nil
		return err
	}
	if t.pub != nil && len(t.pending) > 0 {
		t.pub.Publish(t.pending...)
	}
	t.pending = nil
	return nil
}

// Rollback discards the transaction's changes and events
func (t *Tx) Rollback() error {
	t.pending = nil
	return t.db.Rollback().Error
}

func (t *Tx) emit(e events.Event) {
	t.pending = append(t.pending, e)
}

// conn resolves the handle a store operation runs on. A nil handle works
// directly on the database outside of any transaction.
func (s *Store) conn(tx txn.Tx) (*gorm.DB, *Tx, error) {
	if tx == nil {
		return s.db, nil, nil
	}
	t, ok := tx.(*Tx)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T", models.ErrInvalidTx, tx)
	}
	return t.db, t, nil
}

func (s *Store) emit(t *Tx, e events.Event) {
	if t != nil {
		t.emit(e)
		return
	}
	if s.pub != nil {
		s.pub.Publish(e)
	}
}
