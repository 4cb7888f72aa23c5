package models

import (
	"fmt"
	"sort"
)

// IngredientType enumerates the raw materials a recipe can ask for
type IngredientType string

const (
	IngredientFlour          IngredientType = "FLOUR"
	IngredientWater          IngredientType = "WATER"
	IngredientEggs           IngredientType = "EGGS"
	IngredientBakingMixSweet IngredientType = "BAKING_MIX_SWEET"
	IngredientBakingMixSpicy IngredientType = "BAKING_MIX_SPICY"
)

// ingredientOrder is the declaration order used whenever kinds are listed.
var ingredientOrder = map[IngredientType]int{
	IngredientFlour:          0,
	IngredientWater:          1,
	IngredientEggs:           2,
	IngredientBakingMixSweet: 3,
	IngredientBakingMixSpicy: 4,
}

// IngredientTypes returns every known kind in declaration order
func IngredientTypes() []IngredientType {
	return []IngredientType{
		IngredientFlour,
		IngredientWater,
		IngredientEggs,
		IngredientBakingMixSweet,
		IngredientBakingMixSpicy,
	}
}

// IsValid reports whether the kind is one of the declared ingredient types
func (t IngredientType) IsValid() bool {
	_, ok := ingredientOrder[t]
	return ok
}

// IsBase reports whether the kind belongs to the base dough (flour and water)
func (t IngredientType) IsBase() bool {
	return t == IngredientFlour || t == IngredientWater
}

// IsDiscrete reports whether the kind is stored as single ingredient units.
// Flour lives in packs and water comes out of a pipe.
func (t IngredientType) IsDiscrete() bool {
	return t.IsValid() && !t.IsBase()
}

// SortIngredientTypes orders kinds by declaration order, unknown kinds last
func SortIngredientTypes(kinds []IngredientType) {
	sort.SliceStable(kinds, func(i, j int) bool {
		oi, ok := ingredientOrder[kinds[i]]
		if !ok {
			oi = len(ingredientOrder)
		}
		oj, ok := ingredientOrder[kinds[j]]
		if !ok {
			oj = len(ingredientOrder)
		}
		return oi < oj
	})
}

// IngredientAmount pairs a kind with a required amount
type IngredientAmount struct {
	Kind   IngredientType `json:"kind" yaml:"kind"`
	Amount int            `json:"amount" yaml:"amount"`
}

// Recipe describes what one instance of a product is made of.
// A recipe is never mutated after it has been added to a Catalog.
type Recipe struct {
	ProductName string
	amounts     map[IngredientType]int
}

// NewRecipe builds a recipe from the given amounts. Zero amounts are dropped.
func NewRecipe(productName string, amounts map[IngredientType]int) (Recipe, error) {
	if productName == "" {
		return Recipe{}, fmt.Errorf("recipe product name is required")
	}
	copied := make(map[IngredientType]int, len(amounts))
	for kind, amount := range amounts {
		if !kind.IsValid() {
			return Recipe{}, fmt.Errorf("recipe %s: unknown ingredient %q", productName, kind)
		}
		if amount < 0 {
			return Recipe{}, fmt.Errorf("recipe %s: negative amount for %s", productName, kind)
		}
		if amount > 0 {
			copied[kind] = amount
		}
	}
	if copied[IngredientFlour] == 0 {
		return Recipe{}, fmt.Errorf("recipe %s: flour amount must be greater than 0", productName)
	}
	return Recipe{ProductName: productName, amounts: copied}, nil
}

// Amount returns the required amount of the given kind, 0 if not needed
func (r Recipe) Amount(kind IngredientType) int {
	return r.amounts[kind]
}

// Ingredients returns every required kind with its amount, in kind order
func (r Recipe) Ingredients() []IngredientAmount {
	return r.collect(func(IngredientType) bool { return true })
}

// BaseIngredients returns the flour and water requirements
func (r Recipe) BaseIngredients() []IngredientAmount {
	return r.collect(IngredientType.IsBase)
}

// AdditionalIngredients returns the discrete ingredients added when the
// base dough is finished
func (r Recipe) AdditionalIngredients() []IngredientAmount {
	return r.collect(IngredientType.IsDiscrete)
}

func (r Recipe) collect(keep func(IngredientType) bool) []IngredientAmount {
	kinds := make([]IngredientType, 0, len(r.amounts))
	for kind := range r.amounts {
		if keep(kind) {
			kinds = append(kinds, kind)
		}
	}
	SortIngredientTypes(kinds)
	out := make([]IngredientAmount, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, IngredientAmount{Kind: kind, Amount: r.amounts[kind]})
	}
	return out
}

// Product names of the default catalog
const (
	ProductKaisersemmel = "Kaisersemmel"
	ProductBauernbrot   = "Bauernbrot"
	ProductMarmorkuchen = "Marmorkuchen"
	ProductFladenbrot   = "Fladenbrot"
	ProductCroissant    = "Croissant"
)

// Catalog holds the known recipes keyed by product name, remembering the
// order they were declared in
type Catalog struct {
	recipes map[string]Recipe
	order   []string
}

// NewCatalog creates a catalog from recipes in declaration order
func NewCatalog(recipes ...Recipe) (*Catalog, error) {
	c := &Catalog{recipes: make(map[string]Recipe, len(recipes))}
	for _, r := range recipes {
		if _, exists := c.recipes[r.ProductName]; exists {
			return nil, fmt.Errorf("duplicate recipe for %s", r.ProductName)
		}
		c.recipes[r.ProductName] = r
		c.order = append(c.order, r.ProductName)
	}
	return c, nil
}

// DefaultCatalog returns the five products the bakery sells
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		mustRecipe(ProductKaisersemmel, map[IngredientType]int{
			IngredientFlour: 300, IngredientWater: 250, IngredientBakingMixSpicy: 2,
		}),
		mustRecipe(ProductBauernbrot, map[IngredientType]int{
			IngredientFlour: 400, IngredientWater: 350, IngredientBakingMixSpicy: 1, IngredientEggs: 2,
		}),
		mustRecipe(ProductMarmorkuchen, map[IngredientType]int{
			IngredientFlour: 250, IngredientWater: 150, IngredientBakingMixSweet: 3, IngredientEggs: 4,
		}),
		mustRecipe(ProductFladenbrot, map[IngredientType]int{
			IngredientFlour: 200, IngredientWater: 200, IngredientBakingMixSweet: 1, IngredientBakingMixSpicy: 1,
		}),
		mustRecipe(ProductCroissant, map[IngredientType]int{
			IngredientFlour: 150, IngredientWater: 100, IngredientBakingMixSweet: 2, IngredientEggs: 2,
		}),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func mustRecipe(name string, amounts map[IngredientType]int) Recipe {
	r, err := NewRecipe(name, amounts)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the recipe for a product name
func (c *Catalog) Lookup(productName string) (Recipe, bool) {
	r, ok := c.recipes[productName]
	return r, ok
}

// Recipes returns all recipes in declaration order
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.recipes[name])
	}
	return out
}

// ProductNames returns the product names in declaration order
func (c *Catalog) ProductNames() []string {
	return append([]string(nil), c.order...)
}
