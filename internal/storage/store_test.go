package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"robotbakery/internal/database"
	"robotbakery/internal/events"
	"robotbakery/internal/models"
	"robotbakery/internal/txn"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *events.Hub) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := events.NewHub()
	store := New(db, models.DefaultCatalog(), hub)
	require.NoError(t, store.EnsureWaterPipe(context.Background()))
	return store, hub
}

func begin(t *testing.T, s *Store) txn.Transaction {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestTakePackFromStorage_PrefersOpenedPacks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddFlourPacks(ctx, nil, 2))
	require.NoError(t, store.PutPackInStorage(ctx, nil, &models.FlourPack{CurrentAmount: 120}))

	tx := begin(t, store)
	pack, err := store.TakePackFromStorage(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 120, pack.CurrentAmount)

	_, err = store.TakePackFromStorage(ctx, tx)
	require.NoError(t, err)
	_, err = store.TakePackFromStorage(ctx, tx)
	require.NoError(t, err)

	_, err = store.TakePackFromStorage(ctx, tx)
	assert.ErrorIs(t, err, models.ErrNoneAvailable)
	require.NoError(t, tx.Commit())

	count, err := store.CountPacks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPutPackInStorage_DiscardsEmptyPacks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutPackInStorage(ctx, nil, &models.FlourPack{CurrentAmount: 0}))
	count, err := store.CountPacks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTakeIngredients_ReturnsUpToCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientEggs, 3))

	tx := begin(t, store)
	taken, err := store.TakeIngredients(ctx, tx, models.IngredientEggs, 2)
	require.NoError(t, err)
	assert.Len(t, taken, 2)

	taken, err = store.TakeIngredients(ctx, tx, models.IngredientEggs, 4)
	require.NoError(t, err)
	assert.Len(t, taken, 1)

	taken, err = store.TakeIngredients(ctx, tx, models.IngredientBakingMixSweet, 1)
	require.NoError(t, err)
	assert.Empty(t, taken)
	require.NoError(t, tx.Commit())

	stock, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stock[models.IngredientEggs])
}

func TestAddIngredients_RejectsBaseKinds(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.AddIngredients(context.Background(), nil, models.IngredientFlour, 1))
	assert.Error(t, store.AddIngredients(context.Background(), nil, models.IngredientWater, 1))
}

func TestDeliveries_AllOrNothing(t *testing.T) {
	store, hub := newTestStore(t)
	ctx := context.Background()

	// the third insert of each delivery fails
	inserts := 0
	store.db.Callback().Create().Before("gorm:create").Register("test:fail_third_insert", func(scope *gorm.Scope) {
		inserts++
		if inserts == 3 {
			scope.Err(errors.New("disk full"))
		}
	})

	sub, cancel := hub.Subscribe(16)
	defer cancel()

	err := store.AddIngredients(ctx, nil, models.IngredientEggs, 5)
	assert.ErrorContains(t, err, "disk full")

	inserts = 0
	err = store.AddFlourPacks(ctx, nil, 4)
	assert.ErrorContains(t, err, "disk full")

	stock, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stock[models.IngredientEggs])
	assert.Equal(t, 0, stock[models.IngredientFlour])
	assert.Empty(t, drain(sub))

	inserts = 10
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientEggs, 2))
	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Added)
}

func TestReadIngredientStock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddFlourPacks(ctx, nil, 1))
	require.NoError(t, store.PutPackInStorage(ctx, nil, &models.FlourPack{CurrentAmount: 55}))
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientBakingMixSpicy, 2))

	stock, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.IngredientStock{
		models.IngredientFlour:          555,
		models.IngredientEggs:           0,
		models.IngredientBakingMixSweet: 0,
		models.IngredientBakingMixSpicy: 2,
	}, stock)
}

func TestRollback_LeavesStockUnchanged(t *testing.T) {
	store, hub := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddFlourPacks(ctx, nil, 1))
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientEggs, 2))

	before, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)

	sub, cancel := hub.Subscribe(16)
	defer cancel()

	tx := begin(t, store)
	pack, err := store.TakePackFromStorage(ctx, tx)
	require.NoError(t, err)
	pack.Take(100)
	require.NoError(t, store.PutPackInStorage(ctx, tx, pack))
	_, err = store.TakeIngredients(ctx, tx, models.IngredientEggs, 2)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	after, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, drain(sub))
}

func TestCommit_PublishesEventsInOrder(t *testing.T) {
	store, hub := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddFlourPacks(ctx, nil, 1))

	sub, cancel := hub.Subscribe(16)
	defer cancel()

	tx := begin(t, store)
	pack, err := store.TakePackFromStorage(ctx, tx)
	require.NoError(t, err)
	pack.Take(300)
	require.NoError(t, store.PutPackInStorage(ctx, tx, pack))
	assert.Empty(t, drain(sub))
	require.NoError(t, tx.Commit())

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, events.PackTaken, got[0].Type)
	assert.Equal(t, -500, got[0].Added)
	assert.Equal(t, events.PackAdded, got[1].Type)
	assert.Equal(t, 200, got[1].Added)
}

func TestSavepoint_RollbackDiscardsInnerWork(t *testing.T) {
	store, hub := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientEggs, 1))
	require.NoError(t, store.AddIngredients(ctx, nil, models.IngredientBakingMixSweet, 1))

	sub, cancel := hub.Subscribe(16)
	defer cancel()

	tx := begin(t, store)
	_, err := store.TakeIngredients(ctx, tx, models.IngredientBakingMixSweet, 1)
	require.NoError(t, err)

	require.NoError(t, tx.Savepoint("inner"))
	_, err = store.TakeIngredients(ctx, tx, models.IngredientEggs, 1)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo("inner"))
	assert.Empty(t, tx.(*Tx).marks)
	assert.Error(t, tx.RollbackTo("inner"), "a savepoint is consumed by its rollback")
	require.NoError(t, tx.Commit())

	stock, err := store.ReadIngredientStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stock[models.IngredientEggs])
	assert.Equal(t, 0, stock[models.IngredientBakingMixSweet])

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, string(models.IngredientBakingMixSweet), got[0].Kind)

	assert.Error(t, tx.RollbackTo("missing"))
}

func TestFetchProduct_ClaimsStoredDoughOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	recipe, _ := store.Catalog().Lookup(models.ProductCroissant)

	p := models.NewProduct(recipe)
	p.AddContribution("knead-1", models.ContributionDoughBase, "KneadRobot")
	require.NoError(t, store.PutBaseDoughInStorage(ctx, nil, p))

	doughs, err := store.ReadBaseDoughsInStorage(ctx, nil)
	require.NoError(t, err)
	require.Len(t, doughs, 1)
	assert.Equal(t, p.ID, doughs[0].ID)
	require.NotNil(t, doughs[0].Recipe)
	require.Len(t, doughs[0].Contributions, 1)

	tx := begin(t, store)
	fetched, err := store.FetchProduct(ctx, tx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDoughBase, fetched.State)

	_, err = store.FetchProduct(ctx, tx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, tx.Commit())

	_, err = store.FetchProduct(ctx, nil, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestProductFlow_CounterAndSale(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	catalog := store.Catalog()

	for _, name := range []string{models.ProductFladenbrot, models.ProductFladenbrot, models.ProductCroissant} {
		r, _ := catalog.Lookup(name)
		require.NoError(t, store.PutInCounter(ctx, nil, models.NewProduct(r)))
	}

	counter, err := store.ReadCounterStock(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.CounterStock{models.ProductFladenbrot: 2, models.ProductCroissant: 1}, counter)

	tx := begin(t, store)
	p, err := store.TakeFromCounter(ctx, tx, models.ProductCroissant)
	require.NoError(t, err)
	require.NoError(t, store.MarkSold(ctx, tx, p))
	_, err = store.TakeFromCounter(ctx, tx, models.ProductCroissant)
	assert.ErrorIs(t, err, models.ErrNoneAvailable)
	require.NoError(t, tx.Commit())

	sold, err := store.ListProducts(ctx, models.StateSold)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.ErrorIs(t, store.PutInCounter(ctx, nil, sold[0]), models.ErrTerminalState)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSold, got.State)
}

func TestTakeDoughFromBakeroom_OldestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := store.Catalog().Lookup(models.ProductBauernbrot)

	first := models.NewProduct(r)
	second := models.NewProduct(r)
	second.Timestamp = first.Timestamp.Add(time.Second)
	require.NoError(t, store.PutInBakeroom(ctx, nil, second))
	require.NoError(t, store.PutInBakeroom(ctx, nil, first))

	tx := begin(t, store)
	got, err := store.TakeDoughFromBakeroom(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	require.NoError(t, tx.Rollback())
}

func TestWaterPipe(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureWaterPipe(ctx))

	tx := begin(t, store)
	pipe, err := store.AcquireWaterPipe(ctx, tx, "knead-1")
	require.NoError(t, err)
	assert.Equal(t, "knead-1", pipe.OccupiedBy)
	require.NoError(t, store.ReleaseWaterPipe(ctx, tx, pipe))
	require.NoError(t, tx.Commit())
}

func TestForeignTransactionHandle(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.TakePackFromStorage(context.Background(), foreignTx{})
	assert.ErrorIs(t, err, models.ErrInvalidTx)
}

type foreignTx struct{}

func (foreignTx) Savepoint(string) error        { return nil }
func (foreignTx) RollbackTo(string) error       { return nil }
func (foreignTx) ReleaseSavepoint(string) error { return nil }
