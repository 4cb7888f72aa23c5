package robots

import (
	"testing"

	"robotbakery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChooser() *Chooser {
	return NewChooser(models.DefaultCatalog(), 10, nil)
}

func storedDough(t *testing.T, name string) *models.Product {
	t.Helper()
	r, ok := models.DefaultCatalog().Lookup(name)
	require.True(t, ok)
	p := models.NewProduct(r)
	p.State = models.StateDoughInStorage
	return p
}

func counter(p1, p2, p3, p4, p5 int) models.CounterStock {
	return models.CounterStock{
		models.ProductKaisersemmel: p1,
		models.ProductBauernbrot:   p2,
		models.ProductMarmorkuchen: p3,
		models.ProductFladenbrot:   p4,
		models.ProductCroissant:    p5,
	}
}

func TestFinishableBaseDough(t *testing.T) {
	c := newTestChooser()
	stock := models.IngredientStock{models.IngredientBakingMixSpicy: 2}

	kaisersemmel := storedDough(t, models.ProductKaisersemmel)
	bauernbrot := storedDough(t, models.ProductBauernbrot)

	got := c.FinishableBaseDough(Snapshot{Ingredients: stock, BaseDoughs: []*models.Product{bauernbrot, kaisersemmel}})
	require.NotNil(t, got)
	assert.Equal(t, kaisersemmel.ID, got.ID)

	got = c.FinishableBaseDough(Snapshot{Ingredients: stock, BaseDoughs: []*models.Product{bauernbrot}})
	assert.Nil(t, got)

	assert.Nil(t, c.FinishableBaseDough(Snapshot{Ingredients: stock}))
}

func TestFinishableBaseDough_FirstInStoreOrder(t *testing.T) {
	c := newTestChooser()
	stock := models.IngredientStock{
		models.IngredientBakingMixSpicy: 5,
		models.IngredientBakingMixSweet: 5,
		models.IngredientEggs:           5,
	}
	first := storedDough(t, models.ProductCroissant)
	second := storedDough(t, models.ProductKaisersemmel)

	got := c.FinishableBaseDough(Snapshot{Ingredients: stock, BaseDoughs: []*models.Product{first, second}})
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestNextProductForCounter_FullCounter(t *testing.T) {
	c := newTestChooser()
	s := Snapshot{
		Ingredients: models.IngredientStock{
			models.IngredientFlour:          5000,
			models.IngredientEggs:           50,
			models.IngredientBakingMixSweet: 50,
			models.IngredientBakingMixSpicy: 50,
		},
		Counter: counter(10, 10, 10, 10, 10),
	}
	assert.Nil(t, c.NextProductForCounter(s))
}

func TestNextProductForCounter_SkipsUnsatisfiable(t *testing.T) {
	c := newTestChooser()
	s := Snapshot{
		Ingredients: models.IngredientStock{
			models.IngredientBakingMixSpicy: 2,
			models.IngredientFlour:          500,
			models.IngredientBakingMixSweet: 5,
			models.IngredientEggs:           1,
		},
		Counter: counter(3, 1, 7, 8, 5),
	}

	got := c.NextProductForCounter(s)
	require.NotNil(t, got)
	assert.Equal(t, models.ProductKaisersemmel, got.ProductName)
	assert.Equal(t, models.StateNew, got.State)
}

func TestNextProductForCounter_LastSuitable(t *testing.T) {
	c := newTestChooser()
	stock := models.IngredientStock{
		models.IngredientBakingMixSpicy: 15,
		models.IngredientFlour:          1000,
		models.IngredientBakingMixSweet: 1,
		models.IngredientEggs:           15,
	}
	s := Snapshot{Ingredients: stock, Counter: counter(9, 2, 8, 2, 1)}

	// Croissant has the highest deficit but needs two sweet mixes. Of the
	// two products tied behind it, the later declared one wins.
	got := c.NextProductForCounter(s)
	require.NotNil(t, got)
	assert.Equal(t, models.ProductFladenbrot, got.ProductName)

	stock[models.IngredientBakingMixSweet] = 0
	got = c.NextProductForCounter(s)
	require.NotNil(t, got)
	assert.Equal(t, models.ProductBauernbrot, got.ProductName)
}

func TestNextProductForCounter_NoStock(t *testing.T) {
	c := newTestChooser()
	s := Snapshot{Ingredients: models.IngredientStock{}, Counter: counter(0, 0, 0, 0, 0)}
	assert.Nil(t, c.NextProductForCounter(s))
}

func TestNextProductForCounter_Targets(t *testing.T) {
	c := NewChooser(models.DefaultCatalog(), 10, map[string]int{models.ProductMarmorkuchen: 20})
	assert.Equal(t, 20, c.Target(models.ProductMarmorkuchen))
	assert.Equal(t, 10, c.Target(models.ProductCroissant))

	s := Snapshot{
		Ingredients: models.IngredientStock{
			models.IngredientFlour:          5000,
			models.IngredientEggs:           50,
			models.IngredientBakingMixSweet: 50,
			models.IngredientBakingMixSpicy: 50,
		},
		Counter: counter(0, 0, 9, 0, 0),
	}
	got := c.NextProductForCounter(s)
	require.NotNil(t, got)
	assert.Equal(t, models.ProductMarmorkuchen, got.ProductName)
}

func TestNextBaseDoughForStorage(t *testing.T) {
	c := newTestChooser()

	got := c.NextBaseDoughForStorage(Snapshot{Ingredients: models.IngredientStock{models.IngredientFlour: 155}})
	require.NotNil(t, got)
	assert.Equal(t, models.ProductCroissant, got.ProductName)

	assert.Nil(t, c.NextBaseDoughForStorage(Snapshot{Ingredients: models.IngredientStock{models.IngredientFlour: 99}}))

	got = c.NextBaseDoughForStorage(Snapshot{Ingredients: models.IngredientStock{models.IngredientFlour: 1000}})
	require.NotNil(t, got)
	assert.Equal(t, models.ProductKaisersemmel, got.ProductName)
}

func TestChoose_Priorities(t *testing.T) {
	c := newTestChooser()
	dough := storedDough(t, models.ProductKaisersemmel)

	s := Snapshot{
		Ingredients: models.IngredientStock{models.IngredientFlour: 500, models.IngredientBakingMixSpicy: 2},
		Counter:     counter(0, 0, 0, 0, 0),
		BaseDoughs:  []*models.Product{dough},
	}
	d := c.Choose(s)
	assert.Equal(t, DecisionFinishDough, d.Kind)
	assert.Equal(t, dough.ID, d.Product.ID)

	s.BaseDoughs = nil
	d = c.Choose(s)
	assert.Equal(t, DecisionCounterDough, d.Kind)
	assert.Equal(t, models.ProductKaisersemmel, d.Product.ProductName)

	s.Counter = counter(10, 10, 10, 10, 10)
	d = c.Choose(s)
	assert.Equal(t, DecisionStorageDough, d.Kind)
	assert.Equal(t, models.ProductKaisersemmel, d.Product.ProductName)

	s.Ingredients = models.IngredientStock{models.IngredientFlour: 50}
	d = c.Choose(s)
	assert.Equal(t, DecisionNone, d.Kind)
	assert.Nil(t, d.Product)
}

func TestNextProductForStorage(t *testing.T) {
	c := newTestChooser()

	got := c.NextProductForStorage(Snapshot{Ingredients: models.IngredientStock{
		models.IngredientBakingMixSpicy: 4,
		models.IngredientFlour:          1000,
		models.IngredientBakingMixSweet: 15,
		models.IngredientEggs:           13,
	}})
	require.NotNil(t, got)
	assert.Equal(t, models.ProductMarmorkuchen, got.ProductName)

	assert.Nil(t, c.NextProductForStorage(Snapshot{Ingredients: models.IngredientStock{
		models.IngredientFlour: 1000,
		models.IngredientEggs:  1,
	}}))

	// Kaisersemmel and Fladenbrot both need two units; the earlier one wins
	got = c.NextProductForStorage(Snapshot{Ingredients: models.IngredientStock{
		models.IngredientFlour:          1000,
		models.IngredientBakingMixSpicy: 2,
		models.IngredientBakingMixSweet: 1,
	}})
	require.NotNil(t, got)
	assert.Equal(t, models.ProductKaisersemmel, got.ProductName)
}

func TestChoose_StockProducts(t *testing.T) {
	s := Snapshot{
		Ingredients: models.IngredientStock{
			models.IngredientFlour:          1000,
			models.IngredientBakingMixSweet: 3,
			models.IngredientEggs:           4,
		},
		Counter: counter(10, 10, 10, 10, 10),
	}

	assert.Equal(t, DecisionStorageDough, newTestChooser().Choose(s).Kind)

	c := NewChooser(models.DefaultCatalog(), 10, nil, WithStockProducts())
	d := c.Choose(s)
	assert.Equal(t, DecisionStorageGood, d.Kind)
	assert.Equal(t, models.ProductMarmorkuchen, d.Product.ProductName)

	// the counter still comes first
	s.Counter = counter(10, 10, 9, 10, 10)
	assert.Equal(t, DecisionCounterDough, c.Choose(s).Kind)
}
