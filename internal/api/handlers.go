package api

import (
	"errors"
	"net/http"
	"strconv"

	"robotbakery/internal/evaluation"
	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// Largest deliveries accepted in one request
const (
	MaxIngredientDelivery = 1000
	MaxPackDelivery       = 100
)

// IngredientDelivery is the body of an ingredient delivery
type IngredientDelivery struct {
	Kind  models.IngredientType `json:"kind" binding:"required"`
	Count int                   `json:"count" binding:"required,gt=0,lte=1000"`
}

// PackDelivery is the body of a flour pack delivery
type PackDelivery struct {
	Count int `json:"count" binding:"required,gt=0,lte=100"`
}

// Stock handlers

func (a *BakeryAPI) GetIngredientStock(c *gin.Context) {
	stock, err := a.store.ReadIngredientStock(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (a *BakeryAPI) GetCounterStock(c *gin.Context) {
	stock, err := a.store.ReadCounterStock(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (a *BakeryAPI) GetStoredDoughs(c *gin.Context) {
	doughs, err := a.store.ReadBaseDoughsInStorage(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doughs)
}

// Product handlers

func (a *BakeryAPI) ListProducts(c *gin.Context) {
	state := models.ProductState(c.Query("state"))
	if state != "" && !state.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state " + string(state)})
		return
	}

	products, err := a.store.ListProducts(c.Request.Context(), state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (a *BakeryAPI) GetProduct(c *gin.Context) {
	product, err := a.store.GetProduct(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, product)
}

// Robot and report handlers

func (a *BakeryAPI) GetRobots(c *gin.Context) {
	robots := []monitoring.RobotStatus{}
	if a.board != nil {
		robots = append(robots, a.board.Robots()...)
	}
	c.JSON(http.StatusOK, robots)
}

func (a *BakeryAPI) GetStats(c *gin.Context) {
	if a.board == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, a.board.GetMetrics())
}

func (a *BakeryAPI) GetStat(c *gin.Context) {
	name := c.Param("name")
	if a.board == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metric " + name})
		return
	}
	value, ok := a.board.GetMetric(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metric " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": value})
}

// ResetShift clears the board counters, e.g. at the start of a new shift
func (a *BakeryAPI) ResetShift(c *gin.Context) {
	if a.board != nil {
		a.board.Reset()
	}
	a.log.Info("shift counters reset by %s", c.GetString("subject"))
	c.Status(http.StatusNoContent)
}

func (a *BakeryAPI) GetScenarios(c *gin.Context) {
	scenarios := []*evaluation.Scenario{}
	if a.reporter != nil {
		scenarios = a.reporter.GetScenarios()
	}
	c.JSON(http.StatusOK, scenarios)
}

func (a *BakeryAPI) GetReport(c *gin.Context) {
	if a.reporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reports are not available"})
		return
	}

	narrative, _ := strconv.ParseBool(c.DefaultQuery("narrative", "false"))
	if narrative && !a.reporter.HasModel() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": evaluation.ErrNoModel.Error()})
		return
	}

	ctx := c.Request.Context()
	report, err := a.reporter.Report(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if narrative {
		text, err := a.reporter.Narrate(ctx, report)
		if err != nil {
			a.log.Warn("shift narrative failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		report.Narrative = text
	}
	c.JSON(http.StatusOK, report)
}

// Delivery handlers

func (a *BakeryAPI) DeliverIngredients(c *gin.Context) {
	var req IngredientDelivery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Kind.IsValid() || !req.Kind.IsDiscrete() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot deliver " + string(req.Kind) + " as single units"})
		return
	}

	ctx := c.Request.Context()
	if err := a.store.AddIngredients(ctx, nil, req.Kind, req.Count); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.log.Info("delivered %d %s", req.Count, req.Kind)
	a.respondStock(c)
}

func (a *BakeryAPI) DeliverPacks(c *gin.Context) {
	var req PackDelivery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.store.AddFlourPacks(c.Request.Context(), nil, req.Count); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.log.Info("delivered %d flour packs", req.Count)
	a.respondStock(c)
}

func (a *BakeryAPI) respondStock(c *gin.Context) {
	stock, err := a.store.ReadIngredientStock(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, stock)
}
