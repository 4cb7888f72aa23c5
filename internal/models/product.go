package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProductState represents where a product is in its life cycle
type ProductState string

const (
	StateNew               ProductState = "NEW"
	StateDoughBase         ProductState = "DOUGH_BASE"
	StateDoughInStorage    ProductState = "DOUGH_IN_STORAGE"
	StateDoughInBakeroom   ProductState = "DOUGH_IN_BAKEROOM"
	StateDoughFinal        ProductState = "DOUGH_FINAL"
	StateProductInStorage  ProductState = "PRODUCT_IN_STORAGE"
	StateProductInCounter  ProductState = "PRODUCT_IN_COUNTER"
	StateProductInTerminal ProductState = "PRODUCT_IN_TERMINAL"
	StateSold              ProductState = "SOLD"
)

// IsTerminal reports whether no further change is allowed
func (s ProductState) IsTerminal() bool {
	return s == StateSold
}

// IsValid checks if a product state is valid
func (s ProductState) IsValid() bool {
	switch s {
	case StateNew, StateDoughBase, StateDoughInStorage, StateDoughInBakeroom, StateDoughFinal,
		StateProductInStorage, StateProductInCounter, StateProductInTerminal, StateSold:
		return true
	}
	return false
}

// ContributionType names the step a robot performed on a product
type ContributionType string

const (
	ContributionDoughBase  ContributionType = "DOUGH_BASE"
	ContributionDoughFinal ContributionType = "DOUGH_FINAL"
	ContributionBaked      ContributionType = "BAKED"
	ContributionSold       ContributionType = "SOLD"
)

// Contribution records which robot performed which step and when
type Contribution struct {
	RobotID   string           `json:"robot_id"`
	Kind      ContributionType `json:"kind"`
	RobotType string           `json:"robot_type"`
	Timestamp time.Time        `json:"timestamp"`
}

// Contributions is the audit trail of a product, stored as a JSON column
type Contributions []Contribution

// Value converts the log to a JSON string for storage
func (c Contributions) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]Contribution(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan converts the database value back to a log
func (c *Contributions) Scan(value interface{}) error {
	if value == nil {
		*c = Contributions{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("unsupported type for Contributions")
	}
}

// Product is an in-progress or finished good
type Product struct {
	ID            string        `gorm:"primary_key;type:varchar(36)" json:"id"`
	ProductName   string        `gorm:"index;not null" json:"product_name"`
	State         ProductState  `gorm:"type:varchar(32);index;not null" json:"state"`
	Timestamp     time.Time     `gorm:"column:stamped_at;index" json:"timestamp"`
	Contributions Contributions `gorm:"type:text" json:"contributions"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Transient, resolved from the catalog
	Recipe *Recipe `gorm:"-" json:"-"`
}

// TableName sets the table name for Product
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a fresh product for a recipe
func NewProduct(recipe Recipe) *Product {
	r := recipe
	now := time.Now()
	return &Product{
		ID:            uuid.NewString(),
		ProductName:   recipe.ProductName,
		State:         StateNew,
		Timestamp:     now,
		Contributions: Contributions{},
		Recipe:        &r,
	}
}

// ResolveRecipe attaches the catalog recipe for the product's name
func (p *Product) ResolveRecipe(c *Catalog) error {
	r, ok := c.Lookup(p.ProductName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipe, p.ProductName)
	}
	p.Recipe = &r
	return nil
}

// SetState moves the product to a new state. Sold products cannot change.
func (p *Product) SetState(state ProductState) error {
	if p.State.IsTerminal() {
		return fmt.Errorf("product %s: %w", p.ID, ErrTerminalState)
	}
	if !state.IsValid() {
		return fmt.Errorf("product %s: invalid state %q", p.ID, state)
	}
	p.State = state
	return nil
}

// AddContribution appends a step to the audit trail and stamps the product
func (p *Product) AddContribution(robotID string, kind ContributionType, robotType string) {
	now := time.Now()
	p.Contributions = append(p.Contributions, Contribution{
		RobotID:   robotID,
		Kind:      kind,
		RobotType: robotType,
		Timestamp: now,
	})
	p.Timestamp = now
}

// Clone returns a deep copy of the product
func (p *Product) Clone() *Product {
	cp := *p
	cp.Contributions = append(Contributions(nil), p.Contributions...)
	if p.Recipe != nil {
		r := *p.Recipe
		cp.Recipe = &r
	}
	return &cp
}
