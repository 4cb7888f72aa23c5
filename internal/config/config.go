// Package config loads the bakery configuration from a YAML file, with
// defaults for everything and a few environment overrides for secrets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"robotbakery/internal/logger"
	"robotbakery/internal/models"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file
const (
	EnvJWTSecret   = "BAKERY_JWT_SECRET"
	EnvDatabaseDSN = "BAKERY_DATABASE_DSN"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvAzureKey    = "AZURE_OPENAI_API_KEY"
)

// Narrative providers
const (
	ProviderOpenAI = "openai"
	ProviderGitHub = "github"
	ProviderAzure  = "azure"
)

// sqliteBusyTimeout is how long go-sqlite3 waits for a lock when the DSN
// does not say
const sqliteBusyTimeout = 5 * time.Second

// DatabaseConfig selects and tunes the shared store
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	LogMode         bool          `yaml:"log_mode"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig configures the dashboard API and metrics listener
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	JWTSecret   string `yaml:"jwt_secret"`
}

// BakeryConfig holds production rules and simulated durations.
// StockProducts lets knead robots make complete products for product
// storage when the counter needs nothing they can make.
type BakeryConfig struct {
	Scenario        string         `yaml:"scenario"`
	MaxCapacity     int            `yaml:"max_capacity"`
	Targets         map[string]int `yaml:"targets"`
	WaterTimePer500 time.Duration  `yaml:"water_time_per_500"`
	MixMin          time.Duration  `yaml:"mix_min"`
	MixMax          time.Duration  `yaml:"mix_max"`
	BakeDuration    time.Duration  `yaml:"bake_duration"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	StockInterval   time.Duration  `yaml:"stock_interval"`
	StockProducts   bool           `yaml:"stock_products"`
}

// RobotsConfig is the number of robots started per role
type RobotsConfig struct {
	Knead    int `yaml:"knead"`
	Bake     int `yaml:"bake"`
	Customer int `yaml:"customer"`
}

// ReportConfig configures the optional shift narrative. Endpoint and
// Deployment are only used by the azure provider.
type ReportConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
}

// Config models config.yaml
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Bakery   BakeryConfig   `yaml:"bakery"`
	Robots   RobotsConfig   `yaml:"robots"`
	Report   ReportConfig   `yaml:"report"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		LogLevel: "normal",
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "bakery.db?_busy_timeout=30000&_journal_mode=WAL&_txlock=immediate",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Bakery: BakeryConfig{
			Scenario:        "normal_day",
			MaxCapacity:     10,
			WaterTimePer500: 2 * time.Second,
			MixMin:          time.Second,
			MixMax:          3 * time.Second,
			BakeDuration:    3 * time.Second,
			PollInterval:    time.Second,
			StockInterval:   5 * time.Second,
		},
		Robots: RobotsConfig{Knead: 2, Bake: 1, Customer: 1},
		Report: ReportConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
	}
}

// Parse decodes a YAML payload on top of the defaults and validates it
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path, applies environment overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var data []byte
	if strings.TrimSpace(path) != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides secrets and the DSN from the environment
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvJWTSecret); v != "" {
		c.Server.JWTSecret = v
	}
	if v := getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	keyEnv := EnvOpenAIKey
	switch c.Report.Provider {
	case ProviderGitHub:
		keyEnv = EnvGitHubToken
	case ProviderAzure:
		keyEnv = EnvAzureKey
	}
	if v := getenv(keyEnv); v != "" {
		c.Report.APIKey = v
	}
}

// Validate checks the configuration for values the bakery cannot run with
func (c Config) Validate() error {
	var problems []string

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	} else if c.Database.Driver == "sqlite3" && !isMemoryDSN(c.Database.DSN) {
		busy, err := BusyTimeout(c.Database.DSN)
		if err != nil {
			problems = append(problems, err.Error())
		} else if longest := c.LongestIteration(); busy < longest {
			problems = append(problems, fmt.Sprintf(
				"database.dsn: _busy_timeout %s is shorter than the longest robot iteration %s", busy, longest))
		}
	}
	if c.Bakery.MaxCapacity <= 0 {
		problems = append(problems, "bakery.max_capacity must be positive")
	}
	for name, target := range c.Bakery.Targets {
		if target < 0 {
			problems = append(problems, fmt.Sprintf("bakery.targets.%s must not be negative", name))
		}
	}
	if c.Bakery.MixMin < 0 || c.Bakery.MixMax < c.Bakery.MixMin {
		problems = append(problems, "bakery.mix_min must be between 0 and bakery.mix_max")
	}
	if c.Bakery.WaterTimePer500 < 0 || c.Bakery.BakeDuration < 0 || c.Bakery.PollInterval < 0 {
		problems = append(problems, "bakery durations must not be negative")
	}
	switch c.Report.Provider {
	case ProviderOpenAI, ProviderGitHub:
	case ProviderAzure:
		if c.Report.APIKey != "" && (c.Report.Endpoint == "" || c.Report.Deployment == "") {
			problems = append(problems, "report.endpoint and report.deployment are required for azure")
		}
	default:
		problems = append(problems, fmt.Sprintf("report.provider %q is not supported", c.Report.Provider))
	}
	if c.Robots.Knead < 0 || c.Robots.Bake < 0 || c.Robots.Customer < 0 {
		problems = append(problems, "robot counts must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LongestIteration is the longest a single robot iteration keeps its
// transaction open with the configured timings. SQLite admits one writer
// at a time, so every other writer may wait this long for the lock.
func (c Config) LongestIteration() time.Duration {
	water := 0
	for _, r := range models.DefaultCatalog().Recipes() {
		if n := r.Amount(models.IngredientWater); n > water {
			water = n
		}
	}
	// a counter product is mixed twice: base dough and final dough
	knead := time.Duration(float64(c.Bakery.WaterTimePer500)*float64(water)/500) + 2*c.Bakery.MixMax
	if c.Bakery.BakeDuration > knead {
		return c.Bakery.BakeDuration
	}
	return knead
}

// BusyTimeout returns the lock wait of a sqlite3 DSN
func BusyTimeout(dsn string) (time.Duration, error) {
	i := strings.IndexByte(dsn, '?')
	if i < 0 {
		return sqliteBusyTimeout, nil
	}
	query, err := url.ParseQuery(dsn[i+1:])
	if err != nil {
		return 0, fmt.Errorf("database.dsn: %w", err)
	}
	for _, key := range []string{"_busy_timeout", "_timeout"} {
		if v := query.Get(key); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil || ms < 0 {
				return 0, fmt.Errorf("database.dsn: invalid %s %q", key, v)
			}
			return time.Duration(ms) * time.Millisecond, nil
		}
	}
	return sqliteBusyTimeout, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
