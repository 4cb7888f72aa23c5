package robots

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"robotbakery/internal/models"
	"robotbakery/internal/txn"
)

// ActionBuy is reported when a customer bought a product
const ActionBuy = "buy"

// CustomerWorkflow buys a random product from the counter
type CustomerWorkflow struct {
	customerID string
	store      CounterService
	pick       func(n int) int
}

// NewCustomerWorkflow creates the workflow of a customer
func NewCustomerWorkflow(customerID string, store CounterService) *CustomerWorkflow {
	return &CustomerWorkflow{customerID: customerID, store: store, pick: rand.Intn}
}

// Role implements Workflow
func (w *CustomerWorkflow) Role() string {
	return string(RoleCustomer)
}

// RunIteration takes one product off the counter and marks it sold
func (w *CustomerWorkflow) RunIteration(ctx context.Context, tx txn.Tx) (txn.Result, error) {
	counter, err := w.store.ReadCounterStock(ctx, tx)
	if err != nil {
		return storeFailure(err, "read counter stock")
	}

	var available []string
	for name, count := range counter {
		if count > 0 {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return txn.Success().WithAction(ActionIdle), nil
	}
	sort.Strings(available)
	name := available[w.pick(len(available))]

	p, err := w.store.TakeFromCounter(ctx, tx, name)
	if errors.Is(err, models.ErrNoneAvailable) {
		return txn.Failure("%s sold out", name), nil
	}
	if err != nil {
		return storeFailure(err, "take %s from counter", name)
	}

	p.AddContribution(w.customerID, models.ContributionSold, RobotTypeCustomer)
	if err := w.store.MarkSold(ctx, tx, p); err != nil {
		return storeFailure(err, "sell %s", p.ID)
	}
	return txn.Success().WithAction(ActionBuy), nil
}
