// Package storage is the shared bakery store. Every robot reads and takes
// stock through it, and every take is atomic: two robots never receive the
// same pack, ingredient unit or product.
package storage

import (
	"context"
	"fmt"
	"time"

	"robotbakery/internal/events"
	"robotbakery/internal/models"
	"robotbakery/internal/txn"

	"github.com/jinzhu/gorm"
)

// defaultTakeAttempts bounds how often a take retries after losing a race
const defaultTakeAttempts = 3

// Store implements the robot service contracts on a gorm database
type Store struct {
	db           *gorm.DB
	catalog      *models.Catalog
	pub          events.Publisher
	takeAttempts int
}

// New creates a store. pub may be nil when nobody listens for changes.
func New(db *gorm.DB, catalog *models.Catalog, pub events.Publisher) *Store {
	return &Store{
		db:           db,
		catalog:      catalog,
		pub:          pub,
		takeAttempts: defaultTakeAttempts,
	}
}

// Catalog returns the recipe catalog products are resolved against
func (s *Store) Catalog() *models.Catalog {
	return s.catalog
}

// TakePackFromStorage removes one flour pack from storage. Packs that were
// already opened are used first.
func (s *Store) TakePackFromStorage(ctx context.Context, tx txn.Tx) (*models.FlourPack, error) {
	conn, t, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.takeAttempts; attempt++ {
		var pack models.FlourPack
		err := conn.Order("current_amount asc").Order("id asc").First(&pack).Error
		if gorm.IsRecordNotFoundError(err) {
			return nil, models.ErrNoneAvailable
		}
		if err != nil {
			return nil, fmt.Errorf("find flour pack: %w", err)
		}

		res := conn.Where("id = ?", pack.ID).Delete(&models.FlourPack{})
		if res.Error != nil {
			return nil, fmt.Errorf("take flour pack %d: %w", pack.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			s.emit(t, events.Event{
				Type:  events.PackTaken,
				Room:  events.RoomStorage,
				Kind:  string(models.IngredientFlour),
				Added: -pack.CurrentAmount,
			})
			return &pack, nil
		}
	}
	return nil, models.ErrNoneAvailable
}

// PutPackInStorage returns a pack to storage. Empty packs are discarded.
func (s *Store) PutPackInStorage(ctx context.Context, tx txn.Tx, pack *models.FlourPack) error {
	conn, t, err := s.conn(tx)
	if err != nil {
		return err
	}
	if pack.IsEmpty() {
		return nil
	}
	if err := conn.Create(pack).Error; err != nil {
		return fmt.Errorf("put flour pack: %w", err)
	}
	s.emit(t, events.Event{
		Type:  events.PackAdded,
		Room:  events.RoomStorage,
		Kind:  string(models.IngredientFlour),
		Added: pack.CurrentAmount,
	})
	return nil
}

// TakeIngredients removes up to count units of kind from storage. The
// caller checks the number of returned units against count.
func (s *Store) TakeIngredients(ctx context.Context, tx txn.Tx, kind models.IngredientType, count int) ([]models.Ingredient, error) {
	conn, t, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	var candidates []models.Ingredient
	if err := conn.Where("kind = ?", kind).Order("id asc").Limit(count).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}

	taken := make([]models.Ingredient, 0, len(candidates))
	for _, ing := range candidates {
		res := conn.Where("id = ?", ing.ID).Delete(&models.Ingredient{})
		if res.Error != nil {
			return taken, fmt.Errorf("take %s %d: %w", kind, ing.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			taken = append(taken, ing)
		}
	}

	if len(taken) > 0 {
		s.emit(t, events.Event{
			Type:  events.IngredientsTaken,
			Room:  events.RoomStorage,
			Kind:  string(kind),
			Added: -len(taken),
		})
	}
	return taken, nil
}

// AcquireWaterPipe reserves the water pipe for the rest of the transaction
func (s *Store) AcquireWaterPipe(ctx context.Context, tx txn.Tx, robotID string) (*models.WaterPipe, error) {
	conn, _, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := conn.Model(&models.WaterPipe{}).
		Where("name = ?", models.DefaultWaterPipe).
		Updates(map[string]interface{}{"occupied_by": robotID, "occupied_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("acquire water pipe: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("water pipe %s: %w", models.DefaultWaterPipe, models.ErrNotFound)
	}

	var pipe models.WaterPipe
	if err := conn.Where("name = ?", models.DefaultWaterPipe).First(&pipe).Error; err != nil {
		return nil, fmt.Errorf("read water pipe: %w", err)
	}
	return &pipe, nil
}

// ReleaseWaterPipe marks the pipe as free again
func (s *Store) ReleaseWaterPipe(ctx context.Context, tx txn.Tx, pipe *models.WaterPipe) error {
	conn, _, err := s.conn(tx)
	if err != nil {
		return err
	}
	err = conn.Model(&models.WaterPipe{}).
		Where("id = ?", pipe.ID).
		Updates(map[string]interface{}{"occupied_by": "", "occupied_at": nil}).Error
	if err != nil {
		return fmt.Errorf("release water pipe: %w", err)
	}
	return nil
}

// EnsureWaterPipe creates the bakery's water pipe if it does not exist yet
func (s *Store) EnsureWaterPipe(ctx context.Context) error {
	var count int
	if err := s.db.Model(&models.WaterPipe{}).Where("name = ?", models.DefaultWaterPipe).Count(&count).Error; err != nil {
		return fmt.Errorf("count water pipes: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.db.Create(&models.WaterPipe{Name: models.DefaultWaterPipe}).Error
}

// FetchProduct takes a base dough out of storage by identity
func (s *Store) FetchProduct(ctx context.Context, tx txn.Tx, id string) (*models.Product, error) {
	conn, t, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	res := conn.Model(&models.Product{}).
		Where("id = ? AND state = ?", id, models.StateDoughInStorage).
		Update("state", models.StateDoughBase)
	if res.Error != nil {
		return nil, fmt.Errorf("fetch product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}

	p, err := s.load(conn, id)
	if err != nil {
		return nil, err
	}
	s.emit(t, productEvent(events.ProductTaken, events.RoomStorage, p))
	return p, nil
}

// PutBaseDoughInStorage parks an unfinished base dough in storage
func (s *Store) PutBaseDoughInStorage(ctx context.Context, tx txn.Tx, p *models.Product) error {
	return s.place(tx, p, models.StateDoughInStorage, events.RoomStorage)
}

// PutInBakeroom hands a finished dough to the bake room
func (s *Store) PutInBakeroom(ctx context.Context, tx txn.Tx, p *models.Product) error {
	return s.place(tx, p, models.StateDoughInBakeroom, events.RoomBakeroom)
}

// PutInCounter puts a baked product on the sales counter
func (s *Store) PutInCounter(ctx context.Context, tx txn.Tx, p *models.Product) error {
	return s.place(tx, p, models.StateProductInCounter, events.RoomCounter)
}

// PutProductInStorage stores a baked product that did not fit on the counter
func (s *Store) PutProductInStorage(ctx context.Context, tx txn.Tx, p *models.Product) error {
	return s.place(tx, p, models.StateProductInStorage, events.RoomStorage)
}

// MarkSold hands the product to the customer. Sold products never change.
func (s *Store) MarkSold(ctx context.Context, tx txn.Tx, p *models.Product) error {
	return s.place(tx, p, models.StateSold, events.RoomTerminal)
}

// TakeDoughFromBakeroom takes the oldest dough waiting in the bake room
func (s *Store) TakeDoughFromBakeroom(ctx context.Context, tx txn.Tx) (*models.Product, error) {
	return s.takeOldest(tx, models.StateDoughInBakeroom, models.StateDoughFinal, "", events.RoomBakeroom)
}

// TakeProductForCounter takes the oldest baked product of the given name
// from storage
func (s *Store) TakeProductForCounter(ctx context.Context, tx txn.Tx, productName string) (*models.Product, error) {
	return s.takeOldest(tx, models.StateProductInStorage, models.StateProductInCounter, productName, events.RoomStorage)
}

// TakeFromCounter takes the oldest product of the given name off the counter
func (s *Store) TakeFromCounter(ctx context.Context, tx txn.Tx, productName string) (*models.Product, error) {
	return s.takeOldest(tx, models.StateProductInCounter, models.StateProductInTerminal, productName, events.RoomCounter)
}

// ReadIngredientStock returns the available amount of every stock kind.
// Flour is the sum over all packs.
func (s *Store) ReadIngredientStock(ctx context.Context, tx txn.Tx) (models.IngredientStock, error) {
	conn, _, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	stock := models.IngredientStock{}
	for _, kind := range models.IngredientTypes() {
		if kind != models.IngredientWater {
			stock[kind] = 0
		}
	}

	var flour int
	row := conn.Model(&models.FlourPack{}).Select("COALESCE(SUM(current_amount), 0)").Row()
	if err := row.Scan(&flour); err != nil {
		return nil, fmt.Errorf("sum flour: %w", err)
	}
	stock[models.IngredientFlour] = flour

	rows, err := conn.Model(&models.Ingredient{}).Select("kind, COUNT(*)").Group("kind").Rows()
	if err != nil {
		return nil, fmt.Errorf("count ingredients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan ingredient count: %w", err)
		}
		stock[models.IngredientType(kind)] = count
	}
	return stock, rows.Err()
}

// ReadCounterStock returns how many products of each name are on the counter
func (s *Store) ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error) {
	conn, _, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Model(&models.Product{}).
		Select("product_name, COUNT(*)").
		Where("state = ?", models.StateProductInCounter).
		Group("product_name").Rows()
	if err != nil {
		return nil, fmt.Errorf("count counter products: %w", err)
	}
	defer rows.Close()

	stock := models.CounterStock{}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan counter count: %w", err)
		}
		stock[name] = count
	}
	return stock, rows.Err()
}

// ReadBaseDoughsInStorage lists unfinished base doughs, oldest first
func (s *Store) ReadBaseDoughsInStorage(ctx context.Context, tx txn.Tx) ([]*models.Product, error) {
	conn, _, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	return s.find(conn, models.StateDoughInStorage)
}

// ListProducts lists products, optionally filtered by state
func (s *Store) ListProducts(ctx context.Context, state models.ProductState) ([]*models.Product, error) {
	return s.find(s.db, state)
}

// GetProduct reads a product by identity without taking it
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.load(s.db, id)
}

// AddIngredients delivers count units of a discrete ingredient kind. A nil
// handle runs the delivery in its own transaction, so either every unit
// arrives or none does.
func (s *Store) AddIngredients(ctx context.Context, tx txn.Tx, kind models.IngredientType, count int) error {
	if !kind.IsDiscrete() {
		return fmt.Errorf("%s is not delivered as single units", kind)
	}
	if tx == nil {
		return s.atomically(ctx, func(tx txn.Tx) error {
			return s.AddIngredients(ctx, tx, kind, count)
		})
	}
	conn, t, err := s.conn(tx)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := conn.Create(&models.Ingredient{Kind: kind}).Error; err != nil {
			return fmt.Errorf("add %s: %w", kind, err)
		}
	}
	if count > 0 {
		s.emit(t, events.Event{Type: events.IngredientsAdded, Room: events.RoomStorage, Kind: string(kind), Added: count})
	}
	return nil
}

// AddFlourPacks delivers count full flour packs, all or none
func (s *Store) AddFlourPacks(ctx context.Context, tx txn.Tx, count int) error {
	if tx == nil {
		return s.atomically(ctx, func(tx txn.Tx) error {
			return s.AddFlourPacks(ctx, tx, count)
		})
	}
	for i := 0; i < count; i++ {
		if err := s.PutPackInStorage(ctx, tx, models.NewFlourPack()); err != nil {
			return err
		}
	}
	return nil
}

// atomically runs fn in a transaction of its own
func (s *Store) atomically(ctx context.Context, fn func(tx txn.Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CountPacks returns the number of flour packs in storage
func (s *Store) CountPacks(ctx context.Context) (int, error) {
	var count int
	err := s.db.Model(&models.FlourPack{}).Count(&count).Error
	return count, err
}

func (s *Store) place(tx txn.Tx, p *models.Product, state models.ProductState, room string) error {
	conn, t, err := s.conn(tx)
	if err != nil {
		return err
	}
	if err := p.SetState(state); err != nil {
		return err
	}

	var count int
	if err := conn.Model(&models.Product{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("look up product %s: %w", p.ID, err)
	}
	if count == 0 {
		err = conn.Create(p).Error
	} else {
		err = conn.Save(p).Error
	}
	if err != nil {
		return fmt.Errorf("store product %s: %w", p.ID, err)
	}

	typ := events.ProductAdded
	if state == models.StateSold {
		typ = events.ProductSold
	}
	s.emit(t, productEvent(typ, room, p))
	return nil
}

func (s *Store) takeOldest(tx txn.Tx, from, to models.ProductState, productName, room string) (*models.Product, error) {
	conn, t, err := s.conn(tx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.takeAttempts; attempt++ {
		query := conn.Where("state = ?", from)
		if productName != "" {
			query = query.Where("product_name = ?", productName)
		}
		var p models.Product
		err := query.Order("stamped_at asc").Order("id asc").First(&p).Error
		if gorm.IsRecordNotFoundError(err) {
			return nil, models.ErrNoneAvailable
		}
		if err != nil {
			return nil, fmt.Errorf("find %s product: %w", from, err)
		}

		res := conn.Model(&models.Product{}).
			Where("id = ? AND state = ?", p.ID, from).
			Update("state", to)
		if res.Error != nil {
			return nil, fmt.Errorf("take product %s: %w", p.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			p.State = to
			if err := p.ResolveRecipe(s.catalog); err != nil {
				return nil, err
			}
			s.emit(t, productEvent(events.ProductTaken, room, &p))
			return &p, nil
		}
	}
	return nil, models.ErrNoneAvailable
}

func (s *Store) find(conn *gorm.DB, state models.ProductState) ([]*models.Product, error) {
	query := conn
	if state != "" {
		query = query.Where("state = ?", state)
	}
	var products []*models.Product
	if err := query.Order("stamped_at asc").Order("id asc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		if err := p.ResolveRecipe(s.catalog); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (s *Store) load(conn *gorm.DB, id string) (*models.Product, error) {
	var p models.Product
	err := conn.Where("id = ?", id).First(&p).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	if err := p.ResolveRecipe(s.catalog); err != nil {
		return nil, err
	}
	return &p, nil
}

func productEvent(typ events.Type, room string, p *models.Product) events.Event {
	added := 1
	if typ == events.ProductTaken {
		added = -1
	}
	return events.Event{
		Type:        typ,
		Room:        room,
		ProductID:   p.ID,
		ProductName: p.ProductName,
		Added:       added,
	}
}
