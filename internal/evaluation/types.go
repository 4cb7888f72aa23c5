package evaluation

import (
	"context"
	"time"

	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"
	"robotbakery/internal/txn"
)

// Scenario is a named starting stock for a bakery run
type Scenario struct {
	ID          string                        `json:"id"`
	Name        string                        `json:"name"`
	Description string                        `json:"description"`
	FlourPacks  int                           `json:"flour_packs"`
	Ingredients map[models.IngredientType]int `json:"ingredients"`
}

// ShiftReport is a snapshot of the bakery for the dashboard
type ShiftReport struct {
	GeneratedAt     time.Time                   `json:"generated_at"`
	Scenario        string                      `json:"scenario,omitempty"`
	Ingredients     models.IngredientStock      `json:"ingredients"`
	FlourPacks      int                         `json:"flour_packs"`
	Counter         models.CounterStock         `json:"counter"`
	ProductsByState map[models.ProductState]int `json:"products_by_state"`
	Production      ProductionStats             `json:"production"`
	Robots          []monitoring.RobotStatus    `json:"robots"`
	Narrative       string                      `json:"narrative,omitempty"`
}

// ProductionStats summarizes finished and in-progress products
type ProductionStats struct {
	Total                int            `json:"total"`
	InProgress           int            `json:"in_progress"`
	Sold                 int            `json:"sold"`
	SoldByProduct        map[string]int `json:"sold_by_product"`
	ContributionsByRobot map[string]int `json:"contributions_by_robot"`
	AverageLeadTime      time.Duration  `json:"average_lead_time_ns"`
	LongestLeadTime      time.Duration  `json:"longest_lead_time_ns"`
	LongestLeadProduct   string         `json:"longest_lead_product,omitempty"`
}

// Supplier delivers stock into storage
type Supplier interface {
	AddFlourPacks(ctx context.Context, tx txn.Tx, count int) error
	AddIngredients(ctx context.Context, tx txn.Tx, kind models.IngredientType, count int) error
}

// Reader reads the state a report is built from
type Reader interface {
	ReadIngredientStock(ctx context.Context, tx txn.Tx) (models.IngredientStock, error)
	ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error)
	ListProducts(ctx context.Context, state models.ProductState) ([]*models.Product, error)
	CountPacks(ctx context.Context) (int, error)
}

// Store is everything the evaluator needs from storage
type Store interface {
	Supplier
	Reader
}

// RobotBoard lists robot statuses
type RobotBoard interface {
	Robots() []monitoring.RobotStatus
}
