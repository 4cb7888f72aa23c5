package robots

import (
	"context"
	"errors"
	"time"

	"robotbakery/internal/models"
	"robotbakery/internal/txn"
)

// Bake actions reported in iteration results
const (
	ActionBake    = "bake"
	ActionRestock = "restock"
)

// DefaultBakeDuration is how long a dough stays in the oven
const DefaultBakeDuration = 3 * time.Second

// BakeWorkflow bakes finished doughs and keeps the counter stocked
type BakeWorkflow struct {
	robotID      string
	store        BakeService
	catalog      *models.Catalog
	maxCapacity  int
	bakeDuration time.Duration
	sleep        Sleeper
}

// NewBakeWorkflow creates the workflow of a bake robot
func NewBakeWorkflow(robotID string, store BakeService, catalog *models.Catalog, maxCapacity int, bakeDuration time.Duration, sleep Sleeper) *BakeWorkflow {
	if sleep == nil {
		sleep = Sleep
	}
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	return &BakeWorkflow{
		robotID:      robotID,
		store:        store,
		catalog:      catalog,
		maxCapacity:  maxCapacity,
		bakeDuration: bakeDuration,
		sleep:        sleep,
	}
}

// Role implements Workflow
func (w *BakeWorkflow) Role() string {
	return string(RoleBake)
}

// RunIteration bakes the oldest dough in the bake room. With nothing to
// bake it moves a stored product to the counter instead.
func (w *BakeWorkflow) RunIteration(ctx context.Context, tx txn.Tx) (txn.Result, error) {
	dough, err := w.store.TakeDoughFromBakeroom(ctx, tx)
	if errors.Is(err, models.ErrNoneAvailable) {
		return w.restockCounter(ctx, tx)
	}
	if err != nil {
		return storeFailure(err, "take dough from bakeroom")
	}

	if err := w.sleep(ctx, w.bakeDuration); err != nil {
		return txn.Failure("baking interrupted: %v", err), nil
	}
	dough.AddContribution(w.robotID, models.ContributionBaked, RobotTypeBake)

	counter, err := w.store.ReadCounterStock(ctx, tx)
	if err != nil {
		return storeFailure(err, "read counter stock")
	}

	if counter[dough.ProductName] < w.maxCapacity {
		err = w.store.PutInCounter(ctx, tx, dough)
	} else {
		err = w.store.PutProductInStorage(ctx, tx, dough)
	}
	if err != nil {
		return storeFailure(err, "store baked %s", dough.ID)
	}
	return txn.Success().WithAction(ActionBake), nil
}

func (w *BakeWorkflow) restockCounter(ctx context.Context, tx txn.Tx) (txn.Result, error) {
	counter, err := w.store.ReadCounterStock(ctx, tx)
	if err != nil {
		return storeFailure(err, "read counter stock")
	}

	for _, name := range w.catalog.ProductNames() {
		if counter[name] >= w.maxCapacity {
			continue
		}
		p, err := w.store.TakeProductForCounter(ctx, tx, name)
		if errors.Is(err, models.ErrNoneAvailable) {
			continue
		}
		if err != nil {
			return storeFailure(err, "take stored %s", name)
		}
		if err := w.store.PutInCounter(ctx, tx, p); err != nil {
			return storeFailure(err, "restock %s", name)
		}
		return txn.Success().WithAction(ActionRestock), nil
	}
	return txn.Success().WithAction(ActionIdle), nil
}
