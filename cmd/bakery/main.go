package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"robotbakery/internal/api"
	"robotbakery/internal/config"
	"robotbakery/internal/database"
	"robotbakery/internal/evaluation"
	"robotbakery/internal/events"
	"robotbakery/internal/logger"
	"robotbakery/internal/models"
	"robotbakery/internal/monitoring"
	"robotbakery/internal/robots"
	"robotbakery/internal/storage"
	"robotbakery/internal/txn"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	scenario    = flag.String("scenario", "", "Stock scenario to seed, overrides the config file")
	addr        = flag.String("addr", "", "API server address, overrides the config file")
	metricsAddr = flag.String("metrics-addr", "", "Metrics server address, overrides the config file")
	logLevel    = flag.String("log-level", "", "off, normal or verbose, overrides the config file")
	issueToken  = flag.String("issue-token", "", "Print a supplier token for the given subject and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *issueToken != "" {
		if cfg.Server.JWTSecret == "" {
			log.Fatalf("server.jwt_secret is not set")
		}
		token, err := api.IssueToken(cfg.Server.JWTSecret, *issueToken, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	root := logger.New(level, os.Stderr)
	if level < logger.LevelVerbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		LogMode:         cfg.Database.LogMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	catalog := models.DefaultCatalog()
	for name := range cfg.Bakery.Targets {
		if _, ok := catalog.Lookup(name); !ok {
			log.Fatalf("bakery.targets: unknown product %s", name)
		}
	}

	hub := events.NewHub()
	store := storage.New(db, catalog, hub)
	if err := store.EnsureWaterPipe(ctx); err != nil {
		log.Fatalf("Failed to install water pipe: %v", err)
	}

	monitor := monitoring.NewMonitor()
	metrics := monitoring.NewMetrics()

	// Initialize evaluator and seed stock
	evalOpts := []evaluation.Option{evaluation.WithLogger(root.With("evaluation"))}
	if model, err := evaluation.NewModel(cfg.Report); err == nil {
		evalOpts = append(evalOpts, evaluation.WithModel(model))
	} else if !errors.Is(err, evaluation.ErrNoModel) {
		root.Warn("shift narratives disabled: %v", err)
	}
	evaluator := evaluation.NewEvaluator(store, monitor, evalOpts...)
	if cfg.Bakery.Scenario != "" {
		if err := evaluator.Seed(ctx, cfg.Bakery.Scenario); err != nil {
			log.Fatalf("Failed to seed stock: %v", err)
		}
	}

	// Start robots
	engine := txn.NewManager(store)
	var wg sync.WaitGroup
	for _, robot := range buildRobots(cfg, store, engine, catalog, root, monitor, metrics) {
		wg.Add(1)
		go func(r *robots.Robot) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				root.Error("robot %s stopped: %v", r.ID, err)
			}
		}(robot)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		recordStock(ctx, store, catalog, monitor, metrics, cfg.Bakery.StockInterval, root.With("stock"))
	}()

	// Start metrics server
	metricsServer := newMetricsServer(cfg.Server.MetricsAddr, metrics)
	go func() {
		root.Info("starting metrics server on %s", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			root.Error("metrics server error: %v", err)
		}
	}()

	// Start API server
	bakeryAPI := api.NewBakeryAPI(api.Options{
		Store:     store,
		Reporter:  evaluator,
		Board:     monitor,
		Hub:       hub,
		Metrics:   metrics,
		JWTSecret: cfg.Server.JWTSecret,
		Logger:    root.With("api"),
	})
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: bakeryAPI.Router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		root.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			root.Error("API server shutdown error: %v", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			root.Error("metrics server shutdown error: %v", err)
		}
	}()

	root.Info("starting API server on %s", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}

	// Robots finish their current iteration before the store closes
	wg.Wait()
	root.Info("all robots stopped")
}

func applyFlags(cfg *config.Config) {
	if *scenario != "" {
		cfg.Bakery.Scenario = *scenario
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
}

func buildRobots(cfg config.Config, store *storage.Store, engine *txn.Manager, catalog *models.Catalog,
	root *logger.Logger, monitor *monitoring.Monitor, metrics *monitoring.Metrics) []*robots.Robot {

	opts := func(role robots.Role) []robots.Option {
		return []robots.Option{
			robots.WithPollInterval(cfg.Bakery.PollInterval),
			robots.WithLogger(root.With(string(role))),
			robots.WithMonitor(monitor),
			robots.WithMetrics(metrics),
		}
	}

	var chooserOpts []robots.ChooserOption
	if cfg.Bakery.StockProducts {
		chooserOpts = append(chooserOpts, robots.WithStockProducts())
	}
	chooser := robots.NewChooser(catalog, cfg.Bakery.MaxCapacity, cfg.Bakery.Targets, chooserOpts...)
	timings := robots.KneadTimings{
		WaterTimePer500: cfg.Bakery.WaterTimePer500,
		MixMin:          cfg.Bakery.MixMin,
		MixMax:          cfg.Bakery.MixMax,
	}

	var out []*robots.Robot
	for i := 1; i <= cfg.Robots.Knead; i++ {
		id := fmt.Sprintf("knead-%d", i)
		wf := robots.NewKneadWorkflow(id, store, engine, chooser, timings, nil)
		out = append(out, robots.NewRobot(id, wf, engine, opts(robots.RoleKnead)...))
	}
	for i := 1; i <= cfg.Robots.Bake; i++ {
		id := fmt.Sprintf("bake-%d", i)
		wf := robots.NewBakeWorkflow(id, store, catalog, cfg.Bakery.MaxCapacity, cfg.Bakery.BakeDuration, nil)
		out = append(out, robots.NewRobot(id, wf, engine, opts(robots.RoleBake)...))
	}
	for i := 1; i <= cfg.Robots.Customer; i++ {
		id := "customer-" + uuid.NewString()[:8]
		wf := robots.NewCustomerWorkflow(id, store)
		out = append(out, robots.NewRobot(id, wf, engine, opts(robots.RoleCustomer)...))
	}
	return out
}

// recordStock refreshes the stock gauges and the dashboard stats until ctx
// is cancelled
func recordStock(ctx context.Context, store *storage.Store, catalog *models.Catalog, monitor *monitoring.Monitor,
	metrics *monitoring.Metrics, every time.Duration, l *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		stock, err := store.ReadIngredientStock(ctx, nil)
		if err == nil {
			metrics.RecordIngredientStock(stock)
			monitor.RecordMetric("ingredient_stock", stock)
		} else {
			l.Warn("read ingredient stock: %v", err)
		}
		counter, err := store.ReadCounterStock(ctx, nil)
		if err == nil {
			metrics.RecordCounterStock(catalog, counter)
			monitor.RecordMetric("counter_stock", counter)
		} else {
			l.Warn("read counter stock: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newMetricsServer(addr string, metrics *monitoring.Metrics) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &http.Server{
		Addr:    addr,
		Handler: metricsRouter,
	}
}
