package robots

import (
	"context"
	"fmt"
	"sort"

	"robotbakery/internal/models"
	"robotbakery/internal/txn"
)

// DefaultMaxCapacity is the most products of one name the counter holds
const DefaultMaxCapacity = 10

// Snapshot is a point-in-time view of the bakery the chooser decides on
type Snapshot struct {
	Ingredients models.IngredientStock
	Counter     models.CounterStock
	BaseDoughs  []*models.Product
}

// ReadSnapshot reads all three views through the given transaction
func ReadSnapshot(ctx context.Context, r StockReader, tx txn.Tx) (Snapshot, error) {
	ingredients, err := r.ReadIngredientStock(ctx, tx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read ingredient stock: %w", err)
	}
	counter, err := r.ReadCounterStock(ctx, tx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read counter stock: %w", err)
	}
	doughs, err := r.ReadBaseDoughsInStorage(ctx, tx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read base doughs: %w", err)
	}
	return Snapshot{Ingredients: ingredients, Counter: counter, BaseDoughs: doughs}, nil
}

// DecisionKind says what a knead robot should do next
type DecisionKind string

const (
	DecisionNone         DecisionKind = "none"
	DecisionFinishDough  DecisionKind = "finish"
	DecisionCounterDough DecisionKind = "counter"
	DecisionStorageDough DecisionKind = "storage"
	DecisionStorageGood  DecisionKind = "stock"
)

// Decision is the chooser's answer. Product is nil for DecisionNone.
type Decision struct {
	Kind    DecisionKind
	Product *models.Product
}

// Chooser picks the next product to work on. It only reads the snapshot;
// resources are claimed later by the workflow.
type Chooser struct {
	catalog       *models.Catalog
	maxCapacity   int
	targets       map[string]int
	stockProducts bool
}

// ChooserOption configures a Chooser
type ChooserOption func(*Chooser)

// WithStockProducts lets the chooser make complete products for product
// storage once no counter product can be made
func WithStockProducts() ChooserOption {
	return func(c *Chooser) {
		c.stockProducts = true
	}
}

// NewChooser creates a chooser. Products without a target aim for a full
// counter.
func NewChooser(catalog *models.Catalog, maxCapacity int, targets map[string]int, opts ...ChooserOption) *Chooser {
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	t := make(map[string]int, len(targets))
	for name, target := range targets {
		t[name] = target
	}
	c := &Chooser{catalog: catalog, maxCapacity: maxCapacity, targets: t}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxCapacity returns the counter ceiling per product
func (c *Chooser) MaxCapacity() int {
	return c.maxCapacity
}

// Target returns the desired counter level of a product
func (c *Chooser) Target(productName string) int {
	if t, ok := c.targets[productName]; ok {
		return t
	}
	return c.maxCapacity
}

// Choose applies the priorities in order: finish a stored base dough, start
// a product for the counter, start a base dough for storage. With
// WithStockProducts a complete product for storage comes before the base
// dough.
func (c *Chooser) Choose(s Snapshot) Decision {
	if p := c.FinishableBaseDough(s); p != nil {
		return Decision{Kind: DecisionFinishDough, Product: p}
	}
	if p := c.NextProductForCounter(s); p != nil {
		return Decision{Kind: DecisionCounterDough, Product: p}
	}
	if c.stockProducts {
		if p := c.NextProductForStorage(s); p != nil {
			return Decision{Kind: DecisionStorageGood, Product: p}
		}
	}
	if p := c.NextBaseDoughForStorage(s); p != nil {
		return Decision{Kind: DecisionStorageDough, Product: p}
	}
	return Decision{Kind: DecisionNone}
}

// FinishableBaseDough returns the first stored base dough whose additional
// ingredients are all in stock
func (c *Chooser) FinishableBaseDough(s Snapshot) *models.Product {
	for _, dough := range s.BaseDoughs {
		recipe := dough.Recipe
		if recipe == nil {
			r, ok := c.catalog.Lookup(dough.ProductName)
			if !ok {
				continue
			}
			recipe = &r
		}
		if s.Ingredients.Covers(recipe.AdditionalIngredients()) {
			return dough
		}
	}
	return nil
}

type candidate struct {
	recipe  models.Recipe
	deficit int
	order   int
}

// NextProductForCounter ranks products by how far the counter is below
// target and returns a new product for the first one the stock can build
// completely. Among equal deficits the later declared product goes first.
func (c *Chooser) NextProductForCounter(s Snapshot) *models.Product {
	var candidates []candidate
	for i, r := range c.catalog.Recipes() {
		count := s.Counter[r.ProductName]
		if count >= c.maxCapacity {
			continue
		}
		candidates = append(candidates, candidate{
			recipe:  r,
			deficit: c.Target(r.ProductName) - count,
			order:   i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].deficit != candidates[j].deficit {
			return candidates[i].deficit > candidates[j].deficit
		}
		return candidates[i].order > candidates[j].order
	})

	for _, cand := range candidates {
		if s.Ingredients.Covers(cand.recipe.Ingredients()) {
			return models.NewProduct(cand.recipe)
		}
	}
	return nil
}

// NextProductForStorage returns a new product for the recipe with the most
// additional ingredients the stock covers completely. Rich products are the
// ones hardest to make on demand, so they are worth keeping in storage.
// Ties go to the earlier declared recipe.
func (c *Chooser) NextProductForStorage(s Snapshot) *models.Product {
	var best *models.Recipe
	bestUnits := -1
	for _, r := range c.catalog.Recipes() {
		if !s.Ingredients.Covers(r.Ingredients()) {
			continue
		}
		units := 0
		for _, ing := range r.AdditionalIngredients() {
			units += ing.Amount
		}
		if units > bestUnits {
			r := r
			best, bestUnits = &r, units
		}
	}
	if best == nil {
		return nil
	}
	return models.NewProduct(*best)
}

// NextBaseDoughForStorage returns a new product for the first declared
// recipe whose flour need the stock covers
func (c *Chooser) NextBaseDoughForStorage(s Snapshot) *models.Product {
	flour := s.Ingredients[models.IngredientFlour]
	for _, r := range c.catalog.Recipes() {
		if r.Amount(models.IngredientFlour) <= flour {
			return models.NewProduct(r)
		}
	}
	return nil
}
