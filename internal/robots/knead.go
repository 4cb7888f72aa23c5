package robots

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"robotbakery/internal/models"
	"robotbakery/internal/txn"
)

// Knead actions reported in iteration results
const (
	ActionFinish  = "finish"
	ActionCounter = "counter"
	ActionStorage = "storage"
	ActionPark    = "park"
	ActionStock   = "stock"
)

// KneadTimings are the simulated physical durations of kneading
type KneadTimings struct {
	// WaterTimePer500 is how long the pipe runs for 500 units of water
	WaterTimePer500 time.Duration
	MixMin          time.Duration
	MixMax          time.Duration
}

// DefaultKneadTimings returns the timings used when none are configured
func DefaultKneadTimings() KneadTimings {
	return KneadTimings{
		WaterTimePer500: 2 * time.Second,
		MixMin:          time.Second,
		MixMax:          3 * time.Second,
	}
}

// KneadWorkflow makes base doughs from flour and water and finishes them
// with the remaining ingredients
type KneadWorkflow struct {
	robotID string
	store   KneadService
	engine  Runner
	chooser *Chooser
	timings KneadTimings
	sleep   Sleeper
}

// NewKneadWorkflow creates the workflow of a knead robot. A nil sleeper
// waits in real time.
func NewKneadWorkflow(robotID string, store KneadService, engine Runner, chooser *Chooser, timings KneadTimings, sleep Sleeper) *KneadWorkflow {
	if sleep == nil {
		sleep = Sleep
	}
	return &KneadWorkflow{
		robotID: robotID,
		store:   store,
		engine:  engine,
		chooser: chooser,
		timings: timings,
		sleep:   sleep,
	}
}

// Role implements Workflow
func (w *KneadWorkflow) Role() string {
	return string(RoleKnead)
}

// RunIteration asks the chooser what to do and does it
func (w *KneadWorkflow) RunIteration(ctx context.Context, tx txn.Tx) (txn.Result, error) {
	snapshot, err := ReadSnapshot(ctx, w.store, tx)
	if err != nil {
		return storeFailure(err, "read snapshot")
	}

	decision := w.chooser.Choose(snapshot)
	switch decision.Kind {
	case DecisionFinishDough:
		return w.finishStoredDough(ctx, tx, decision.Product)
	case DecisionCounterDough:
		return w.makeCounterProduct(ctx, tx, decision.Product)
	case DecisionStorageDough:
		return w.makeStorageDough(ctx, tx, decision.Product)
	case DecisionStorageGood:
		res, err := w.makeCounterProduct(ctx, tx, decision.Product)
		if res.Action == ActionCounter {
			res.Action = ActionStock
		}
		return res, err
	}
	return txn.Success().WithAction(ActionIdle), nil
}

// finishStoredDough claims a parked base dough and finishes it. A dough
// that cannot be finished goes back to storage.
func (w *KneadWorkflow) finishStoredDough(ctx context.Context, tx txn.Tx, dough *models.Product) (txn.Result, error) {
	p, err := w.store.FetchProduct(ctx, tx, dough.ID)
	if err != nil {
		return storeFailure(err, "claim base dough %s", dough.ID)
	}

	res, err := w.engine.Run(ctx, tx, w.FinishBaseDough(p))
	if err != nil {
		return res, err
	}
	if !res.OK {
		return w.park(ctx, tx, p, res.Reason)
	}

	if err := w.store.PutInBakeroom(ctx, tx, p); err != nil {
		return storeFailure(err, "put %s in bakeroom", p.ID)
	}
	return txn.Success().WithAction(ActionFinish), nil
}

// makeCounterProduct makes a new base dough and tries to finish it right
// away
func (w *KneadWorkflow) makeCounterProduct(ctx context.Context, tx txn.Tx, p *models.Product) (txn.Result, error) {
	res, err := w.engine.Run(ctx, tx, w.MakeBaseDough(p))
	if err != nil || !res.OK {
		return res.WithAction(ActionCounter), err
	}

	res, err = w.engine.Run(ctx, tx, w.FinishBaseDough(p))
	if err != nil {
		return res, err
	}
	if !res.OK {
		return w.park(ctx, tx, p, res.Reason)
	}

	if err := w.store.PutInBakeroom(ctx, tx, p); err != nil {
		return storeFailure(err, "put %s in bakeroom", p.ID)
	}
	return txn.Success().WithAction(ActionCounter), nil
}

// makeStorageDough makes a base dough to be finished later
func (w *KneadWorkflow) makeStorageDough(ctx context.Context, tx txn.Tx, p *models.Product) (txn.Result, error) {
	res, err := w.engine.Run(ctx, tx, w.MakeBaseDough(p))
	if err != nil || !res.OK {
		return res.WithAction(ActionStorage), err
	}
	if err := w.store.PutBaseDoughInStorage(ctx, tx, p); err != nil {
		return storeFailure(err, "park %s", p.ID)
	}
	return txn.Success().WithAction(ActionStorage), nil
}

func (w *KneadWorkflow) park(ctx context.Context, tx txn.Tx, p *models.Product, reason string) (txn.Result, error) {
	if err := w.store.PutBaseDoughInStorage(ctx, tx, p); err != nil {
		return storeFailure(err, "park %s", p.ID)
	}
	res := txn.Success().WithAction(ActionPark)
	res.Reason = reason
	return res, nil
}

// MakeBaseDough returns the task that turns flour and water into the base
// dough of p
func (w *KneadWorkflow) MakeBaseDough(p *models.Product) txn.Task {
	return func(ctx context.Context, tx txn.Tx) (txn.Result, error) {
		if p.Recipe == nil {
			return txn.Result{}, fmt.Errorf("make base dough %s: %w", p.ProductName, models.ErrUnknownRecipe)
		}
		recipe := p.Recipe

		missing := recipe.Amount(models.IngredientFlour)
		var last *models.FlourPack
		for missing > 0 {
			pack, err := w.store.TakePackFromStorage(ctx, tx)
			if errors.Is(err, models.ErrNoneAvailable) {
				return txn.Failure("not enough flour for %s: %d missing", p.ProductName, missing), nil
			}
			if err != nil {
				return storeFailure(err, "take flour pack")
			}
			missing = pack.Take(missing)
			last = pack
		}
		if last != nil && !last.IsEmpty() {
			if err := w.store.PutPackInStorage(ctx, tx, last); err != nil {
				return storeFailure(err, "return flour pack")
			}
		}

		res, err := w.engine.Run(ctx, tx, w.drawWater(recipe.Amount(models.IngredientWater)))
		if err != nil {
			return res, err
		}
		if !res.OK {
			return txn.Failure("no water for %s: %s", p.ProductName, res.Reason), nil
		}

		if err := w.mix(ctx); err != nil {
			return txn.Failure("mixing interrupted: %v", err), nil
		}

		p.AddContribution(w.robotID, models.ContributionDoughBase, RobotTypeKnead)
		if err := p.SetState(models.StateDoughBase); err != nil {
			return txn.Result{}, err
		}
		return txn.Success(), nil
	}
}

// FinishBaseDough returns the task that adds the additional ingredients to
// the base dough of p
func (w *KneadWorkflow) FinishBaseDough(p *models.Product) txn.Task {
	return func(ctx context.Context, tx txn.Tx) (txn.Result, error) {
		if p.Recipe == nil {
			return txn.Result{}, fmt.Errorf("finish base dough %s: %w", p.ProductName, models.ErrUnknownRecipe)
		}

		for _, need := range p.Recipe.AdditionalIngredients() {
			taken, err := w.store.TakeIngredients(ctx, tx, need.Kind, need.Amount)
			if err != nil {
				return storeFailure(err, "take %s", need.Kind)
			}
			if len(taken) < need.Amount {
				return txn.Failure("only %d of %d %s for %s", len(taken), need.Amount, need.Kind, p.ProductName), nil
			}
		}

		if err := w.mix(ctx); err != nil {
			return txn.Failure("mixing interrupted: %v", err), nil
		}

		p.AddContribution(w.robotID, models.ContributionDoughFinal, RobotTypeKnead)
		if err := p.SetState(models.StateDoughFinal); err != nil {
			return txn.Result{}, err
		}
		return txn.Success(), nil
	}
}

// drawWater occupies the water pipe for as long as the amount takes to run
func (w *KneadWorkflow) drawWater(amount int) txn.Task {
	return func(ctx context.Context, tx txn.Tx) (txn.Result, error) {
		pipe, err := w.store.AcquireWaterPipe(ctx, tx, w.robotID)
		if err != nil {
			return storeFailure(err, "acquire water pipe")
		}

		d := time.Duration(float64(w.timings.WaterTimePer500) * float64(amount) / 500)
		if err := w.sleep(ctx, d); err != nil {
			return txn.Failure("water interrupted: %v", err), nil
		}

		if err := w.store.ReleaseWaterPipe(ctx, tx, pipe); err != nil {
			return storeFailure(err, "release water pipe")
		}
		return txn.Success(), nil
	}
}

func (w *KneadWorkflow) mix(ctx context.Context) error {
	d := w.timings.MixMin
	if spread := w.timings.MixMax - w.timings.MixMin; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread) + 1))
	}
	return w.sleep(ctx, d)
}
