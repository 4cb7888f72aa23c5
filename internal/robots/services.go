package robots

import (
	"context"
	"time"

	"robotbakery/internal/models"
	"robotbakery/internal/txn"
)

// StockReader reads the snapshots the chooser decides on
type StockReader interface {
	ReadIngredientStock(ctx context.Context, tx txn.Tx) (models.IngredientStock, error)
	ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error)
	ReadBaseDoughsInStorage(ctx context.Context, tx txn.Tx) ([]*models.Product, error)
}

// KneadService is what a knead robot needs from the shared store
type KneadService interface {
	StockReader
	TakePackFromStorage(ctx context.Context, tx txn.Tx) (*models.FlourPack, error)
	PutPackInStorage(ctx context.Context, tx txn.Tx, pack *models.FlourPack) error
	TakeIngredients(ctx context.Context, tx txn.Tx, kind models.IngredientType, count int) ([]models.Ingredient, error)
	AcquireWaterPipe(ctx context.Context, tx txn.Tx, robotID string) (*models.WaterPipe, error)
	ReleaseWaterPipe(ctx context.Context, tx txn.Tx, pipe *models.WaterPipe) error
	FetchProduct(ctx context.Context, tx txn.Tx, id string) (*models.Product, error)
	PutBaseDoughInStorage(ctx context.Context, tx txn.Tx, p *models.Product) error
	PutInBakeroom(ctx context.Context, tx txn.Tx, p *models.Product) error
}

// BakeService is what a bake robot needs from the shared store
type BakeService interface {
	ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error)
	TakeDoughFromBakeroom(ctx context.Context, tx txn.Tx) (*models.Product, error)
	TakeProductForCounter(ctx context.Context, tx txn.Tx, productName string) (*models.Product, error)
	PutInCounter(ctx context.Context, tx txn.Tx, p *models.Product) error
	PutProductInStorage(ctx context.Context, tx txn.Tx, p *models.Product) error
}

// CounterService is what a customer needs from the shared store
type CounterService interface {
	ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error)
	TakeFromCounter(ctx context.Context, tx txn.Tx, productName string) (*models.Product, error)
	MarkSold(ctx context.Context, tx txn.Tx, p *models.Product) error
}

// Workflow is the work a robot repeats. RunIteration is executed inside a
// transaction that is committed only when the returned result is OK.
type Workflow interface {
	Role() string
	RunIteration(ctx context.Context, tx txn.Tx) (txn.Result, error)
}

// Sleeper simulates physical time. It returns early when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips every delay
func NoSleep(context.Context, time.Duration) error {
	return nil
}
