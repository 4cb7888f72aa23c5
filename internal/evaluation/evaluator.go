package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"robotbakery/internal/logger"
	"robotbakery/internal/models"

	"github.com/tmc/langchaingo/llms"
)

// Evaluator seeds bakery runs from named scenarios and reports on them.
// It optionally asks a language model for a short written summary of the
// shift.
type Evaluator struct {
	scenarios map[string]*Scenario
	store     Store
	board     RobotBoard
	model     llms.Model
	log       *logger.Logger

	mu     sync.RWMutex
	seeded string
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithModel enables shift narratives
func WithModel(model llms.Model) Option {
	return func(e *Evaluator) { e.model = model }
}

// WithLogger sets the evaluator logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// NewEvaluator creates an evaluator with the built-in scenarios
func NewEvaluator(store Store, board RobotBoard, opts ...Option) *Evaluator {
	e := &Evaluator{
		scenarios: make(map[string]*Scenario),
		store:     store,
		board:     board,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loadScenarios()
	return e
}

func (e *Evaluator) loadScenarios() {
	e.scenarios["normal_day"] = &Scenario{
		ID:          "normal_day",
		Name:        "Normal Day",
		Description: "Enough stock for a steady day across every product.",
		FlourPacks:  12,
		Ingredients: map[models.IngredientType]int{
			models.IngredientEggs:           30,
			models.IngredientBakingMixSweet: 20,
			models.IngredientBakingMixSpicy: 20,
		},
	}

	e.scenarios["busy_morning"] = &Scenario{
		ID:          "busy_morning",
		Name:        "Busy Morning",
		Description: "A large delivery ahead of the morning rush.",
		FlourPacks:  40,
		Ingredients: map[models.IngredientType]int{
			models.IngredientEggs:           100,
			models.IngredientBakingMixSweet: 60,
			models.IngredientBakingMixSpicy: 60,
		},
	}

	e.scenarios["low_flour"] = &Scenario{
		ID:          "low_flour",
		Name:        "Low Flour",
		Description: "Plenty of additions but a single pack of flour.",
		FlourPacks:  1,
		Ingredients: map[models.IngredientType]int{
			models.IngredientEggs:           20,
			models.IngredientBakingMixSweet: 20,
			models.IngredientBakingMixSpicy: 20,
		},
	}

	e.scenarios["no_eggs"] = &Scenario{
		ID:          "no_eggs",
		Name:        "No Eggs",
		Description: "Only products without eggs can be made.",
		FlourPacks:  10,
		Ingredients: map[models.IngredientType]int{
			models.IngredientBakingMixSweet: 20,
			models.IngredientBakingMixSpicy: 20,
		},
	}

	e.scenarios["empty"] = &Scenario{
		ID:          "empty",
		Name:        "Empty Storage",
		Description: "Nothing is delivered; stock comes through the API.",
	}
}

// HasScenario checks if a scenario exists
func (e *Evaluator) HasScenario(id string) bool {
	_, exists := e.scenarios[id]
	return exists
}

// GetScenarios returns all available scenarios ordered by id
func (e *Evaluator) GetScenarios() []*Scenario {
	scenarios := make([]*Scenario, 0, len(e.scenarios))
	for _, s := range e.scenarios {
		scenarios = append(scenarios, s)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios
}

// Seed delivers the starting stock of a scenario into storage
func (e *Evaluator) Seed(ctx context.Context, scenarioID string) error {
	scenario, exists := e.scenarios[scenarioID]
	if !exists {
		return fmt.Errorf("scenario not found: %s", scenarioID)
	}

	if scenario.FlourPacks > 0 {
		if err := e.store.AddFlourPacks(ctx, nil, scenario.FlourPacks); err != nil {
			return fmt.Errorf("seed %s: %w", scenarioID, err)
		}
	}
	for _, kind := range models.IngredientTypes() {
		count := scenario.Ingredients[kind]
		if count <= 0 {
			continue
		}
		if err := e.store.AddIngredients(ctx, nil, kind, count); err != nil {
			return fmt.Errorf("seed %s: %w", scenarioID, err)
		}
	}

	e.mu.Lock()
	e.seeded = scenarioID
	e.mu.Unlock()
	e.log.Info("seeded scenario %s: %d flour packs, %v", scenarioID, scenario.FlourPacks, scenario.Ingredients)
	return nil
}

// Report builds a shift report from the current bakery state
func (e *Evaluator) Report(ctx context.Context) (*ShiftReport, error) {
	stock, err := e.store.ReadIngredientStock(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	packs, err := e.store.CountPacks(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	counter, err := e.store.ReadCounterStock(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	products, err := e.store.ListProducts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	e.mu.RLock()
	seeded := e.seeded
	e.mu.RUnlock()

	report := &ShiftReport{
		GeneratedAt:     time.Now(),
		Scenario:        seeded,
		Ingredients:     stock,
		FlourPacks:      packs,
		Counter:         counter,
		ProductsByState: CountByState(products),
		Production:      Summarize(products),
	}
	if e.board != nil {
		report.Robots = e.board.Robots()
	}
	return report, nil
}
