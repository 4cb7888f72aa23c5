package models

import "time"

// FlourPackSize is the amount of flour in a fresh pack
const FlourPackSize = 500

// FlourPack represents a bulk pack of flour in storage.
// CurrentAmount always stays within [0, FlourPackSize].
type FlourPack struct {
	ID            uint `gorm:"primary_key" json:"id"`
	CurrentAmount int  `gorm:"not null" json:"current_amount"`
	CreatedAt     time.Time
}

// TableName sets the table name for FlourPack
func (FlourPack) TableName() string {
	return "flour_packs"
}

// NewFlourPack returns a full pack
func NewFlourPack() *FlourPack {
	return &FlourPack{CurrentAmount: FlourPackSize}
}

// Take removes up to amount flour from the pack and returns the amount that
// could not be satisfied from it
func (p *FlourPack) Take(amount int) int {
	if amount <= 0 {
		return 0
	}
	if amount <= p.CurrentAmount {
		p.CurrentAmount -= amount
		return 0
	}
	missing := amount - p.CurrentAmount
	p.CurrentAmount = 0
	return missing
}

// IsEmpty reports whether the pack should be discarded
func (p *FlourPack) IsEmpty() bool {
	return p.CurrentAmount <= 0
}

// Ingredient is a single discrete unit of an ingredient kind (one egg, one
// unit of baking mix)
type Ingredient struct {
	ID        uint           `gorm:"primary_key" json:"id"`
	Kind      IngredientType `gorm:"type:varchar(32);index;not null" json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName sets the table name for Ingredient
func (Ingredient) TableName() string {
	return "ingredients"
}

// WaterPipe is the bakery's water source. Holding it inside a transaction
// keeps every other robot from using it until that transaction ends.
type WaterPipe struct {
	ID         uint   `gorm:"primary_key" json:"id"`
	Name       string `gorm:"unique_index" json:"name"`
	OccupiedBy string `json:"occupied_by"`
	OccupiedAt *time.Time
}

// TableName sets the table name for WaterPipe
func (WaterPipe) TableName() string {
	return "water_pipes"
}

// DefaultWaterPipe is the name of the pipe created on first start
const DefaultWaterPipe = "main"

// IngredientStock is a point-in-time view of available ingredients.
// Flour is counted in units of flour across all packs, every other kind in
// discrete units.
type IngredientStock map[IngredientType]int

// Kinds returns the kinds present in the view in declaration order
func (s IngredientStock) Kinds() []IngredientType {
	kinds := make([]IngredientType, 0, len(s))
	for kind := range s {
		kinds = append(kinds, kind)
	}
	SortIngredientTypes(kinds)
	return kinds
}

// Covers reports whether every amount is available. Water is never checked
// against stock since it is drawn from the pipe.
func (s IngredientStock) Covers(amounts []IngredientAmount) bool {
	for _, a := range amounts {
		if a.Kind == IngredientWater {
			continue
		}
		if s[a.Kind] < a.Amount {
			return false
		}
	}
	return true
}

// CounterStock is a point-in-time view of products at the sales counter,
// keyed by product name
type CounterStock map[string]int
