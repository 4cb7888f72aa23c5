// Package api serves the bakery dashboard: stock and product queries,
// supply deliveries, robot status, shift reports and a websocket stream
// of committed store changes.
package api

import (
	"context"
	"net/http"

	"robotbakery/internal/evaluation"
	"robotbakery/internal/events"
	"robotbakery/internal/logger"
	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"
	"robotbakery/internal/txn"

	"github.com/gin-gonic/gin"
)

// Store is the part of the shared store the dashboard reads and supplies
type Store interface {
	ReadIngredientStock(ctx context.Context, tx txn.Tx) (models.IngredientStock, error)
	ReadCounterStock(ctx context.Context, tx txn.Tx) (models.CounterStock, error)
	ReadBaseDoughsInStorage(ctx context.Context, tx txn.Tx) ([]*models.Product, error)
	ListProducts(ctx context.Context, state models.ProductState) ([]*models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	AddIngredients(ctx context.Context, tx txn.Tx, kind models.IngredientType, count int) error
	AddFlourPacks(ctx context.Context, tx txn.Tx, count int) error
}

// Reporter builds shift reports
type Reporter interface {
	GetScenarios() []*evaluation.Scenario
	Report(ctx context.Context) (*evaluation.ShiftReport, error)
	HasModel() bool
	Narrate(ctx context.Context, report *evaluation.ShiftReport) (string, error)
}

// Board is the robot status board and its free-form shift metrics
type Board interface {
	Robots() []monitoring.RobotStatus
	GetMetrics() map[string]interface{}
	GetMetric(name string) (interface{}, bool)
	Reset()
}

// Options wires the dashboard to the rest of the bakery
type Options struct {
	Store     Store
	Reporter  Reporter
	Board     Board
	Hub       *events.Hub
	Metrics   *monitoring.Metrics
	JWTSecret string
	Logger    *logger.Logger
}

// BakeryAPI represents the dashboard HTTP handler
type BakeryAPI struct {
	Router    *gin.Engine
	store     Store
	reporter  Reporter
	board     Board
	hub       *events.Hub
	metrics   *monitoring.Metrics
	jwtSecret string
	log       *logger.Logger
}

// NewBakeryAPI creates the router and registers every route
func NewBakeryAPI(opts Options) *BakeryAPI {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	a := &BakeryAPI{
		Router:    router,
		store:     opts.Store,
		reporter:  opts.Reporter,
		board:     opts.Board,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		jwtSecret: opts.JWTSecret,
		log:       opts.Logger,
	}
	if a.log == nil {
		a.log = logger.Discard()
	}

	a.setupRoutes()
	return a
}

// setupRoutes configures all API endpoints
func (a *BakeryAPI) setupRoutes() {
	a.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "robot bakery is running"})
	})
	if a.hub != nil {
		a.Router.GET("/ws", a.handleWebSocket)
	}
	if a.metrics != nil {
		a.Router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	v1 := a.Router.Group("/api/v1")
	{
		// Stock
		v1.GET("/stock/ingredients", a.GetIngredientStock)
		v1.GET("/stock/counter", a.GetCounterStock)
		v1.GET("/storage/doughs", a.GetStoredDoughs)

		// Products
		v1.GET("/products", a.ListProducts)
		v1.GET("/products/:id", a.GetProduct)

		// Robots and reports
		v1.GET("/robots", a.GetRobots)
		v1.GET("/scenarios", a.GetScenarios)
		v1.GET("/report", a.GetReport)
		v1.GET("/stats", a.GetStats)
		v1.GET("/stats/:name", a.GetStat)

		// Deliveries
		supply := v1.Group("/storage")
		if a.jwtSecret != "" {
			supply.Use(AuthMiddleware(a.jwtSecret))
		}
		supply.POST("/ingredients", a.DeliverIngredients)
		supply.POST("/packs", a.DeliverPacks)

		shift := v1.Group("/shift")
		if a.jwtSecret != "" {
			shift.Use(AuthMiddleware(a.jwtSecret))
		}
		shift.POST("/reset", a.ResetShift)
	}
}
