// Package ops loads and validates the strategy's JSON configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"main/internal/quote"
	"main/internal/risk"
	"main/pkg/conn"
)

const (
	defaultWindowOpen        = "09:30"
	defaultWindowClose       = "15:58"
	defaultLatticeSteps      = 200
	defaultVolatilitySpan    = 20
	defaultCorrelationWindow = 30
	defaultQueueCapacity     = 1024
	defaultSnapshotDir       = "snapshots"
	defaultStartingCash      = 100_000
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Tickers           []string       `json:"tickers"`
	HedgeTicker       string         `json:"hedgeTicker"`
	Window            WindowConfig   `json:"window"`
	Risk              *risk.Limit    `json:"risk"`
	RiskFreeRate      float64        `json:"riskFreeRate"`
	DividendYield     float64        `json:"dividendYield"`
	LatticeSteps      int            `json:"latticeSteps"`
	VolatilitySpan    int            `json:"volatilitySpan"`
	CorrelationWindow int            `json:"correlationWindow"`
	EquityIncrements  float64        `json:"equityIncrements"`
	MinCorrelation    float64        `json:"minCorrelation"`
	StartingCash      float64        `json:"startingCash"`
	Live              bool           `json:"live"`
	SnapshotDir       string         `json:"snapshotDir"`
	QueueCapacity     int            `json:"queueCapacity"`
	Postgres          PostgresConfig `json:"postgres"`
	Pyroscope         string         `json:"pyroscope"`
}

// WindowConfig holds the quoting window bounds as HH:MM strings.
type WindowConfig struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// PostgresConfig holds the optional bar store connection. An empty
// database disables persistence entirely.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Tickers           []string
	HedgeTicker       string
	Window            quote.Window
	Risk              risk.Limit
	RiskFreeRate      float64
	DividendYield     float64
	LatticeSteps      int
	VolatilitySpan    int
	CorrelationWindow int
	EquityIncrements  float64
	MinCorrelation    float64
	StartingCash      float64
	Live              bool
	SnapshotDir       string
	QueueCapacity     int
	Postgres          *conn.Option
	Pyroscope         string
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Tickers) == 0 {
		return Loaded{}, fmt.Errorf("tickers is empty")
	}
	for _, ticker := range cfg.Tickers {
		if ticker == "" {
			return Loaded{}, fmt.Errorf("tickers contains an empty entry")
		}
	}

	open := cfg.Window.Open
	if open == "" {
		open = defaultWindowOpen
	}
	closeAt := cfg.Window.Close
	if closeAt == "" {
		closeAt = defaultWindowClose
	}
	window, err := quote.NewWindow(open, closeAt)
	if err != nil {
		return Loaded{}, fmt.Errorf("invalid window: %w", err)
	}

	limit := risk.DefaultLimit()
	if cfg.Risk != nil {
		limit = *cfg.Risk
		if limit.MaxPositions <= 0 {
			return Loaded{}, fmt.Errorf("risk.maxPositions must be > 0")
		}
		if limit.MaxNotional <= 0 {
			return Loaded{}, fmt.Errorf("risk.maxNotional must be > 0")
		}
	}

	if cfg.RiskFreeRate < 0 {
		return Loaded{}, fmt.Errorf("riskFreeRate must be >= 0")
	}
	if cfg.DividendYield < 0 {
		return Loaded{}, fmt.Errorf("dividendYield must be >= 0")
	}
	if cfg.EquityIncrements < 0 {
		return Loaded{}, fmt.Errorf("equityIncrements must be >= 0")
	}
	if cfg.MinCorrelation < 0 || cfg.MinCorrelation > 1 {
		return Loaded{}, fmt.Errorf("minCorrelation must be within [0, 1]")
	}

	steps := cfg.LatticeSteps
	if steps == 0 {
		steps = defaultLatticeSteps
	}
	if steps < 0 {
		return Loaded{}, fmt.Errorf("latticeSteps must be > 0")
	}

	volSpan := cfg.VolatilitySpan
	if volSpan == 0 {
		volSpan = defaultVolatilitySpan
	}
	if volSpan < 2 {
		return Loaded{}, fmt.Errorf("volatilitySpan must be >= 2")
	}

	corrWindow := cfg.CorrelationWindow
	if corrWindow == 0 {
		corrWindow = defaultCorrelationWindow
	}
	if corrWindow < 2 {
		return Loaded{}, fmt.Errorf("correlationWindow must be >= 2")
	}

	queueCapacity := cfg.QueueCapacity
	if queueCapacity == 0 {
		queueCapacity = defaultQueueCapacity
	}
	if queueCapacity < 0 {
		return Loaded{}, fmt.Errorf("queueCapacity must be > 0")
	}

	snapshotDir := cfg.SnapshotDir
	if snapshotDir == "" {
		snapshotDir = defaultSnapshotDir
	}

	startingCash := cfg.StartingCash
	if startingCash == 0 {
		startingCash = defaultStartingCash
	}
	if startingCash < 0 {
		return Loaded{}, fmt.Errorf("startingCash must be > 0")
	}

	var pg *conn.Option
	if cfg.Postgres.Database != "" {
		pg = &conn.Option{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}
	}

	return Loaded{
		Tickers:           cfg.Tickers,
		HedgeTicker:       cfg.HedgeTicker,
		Window:            window,
		Risk:              limit,
		RiskFreeRate:      cfg.RiskFreeRate,
		DividendYield:     cfg.DividendYield,
		LatticeSteps:      steps,
		VolatilitySpan:    volSpan,
		CorrelationWindow: corrWindow,
		EquityIncrements:  cfg.EquityIncrements,
		MinCorrelation:    cfg.MinCorrelation,
		StartingCash:      startingCash,
		Live:              cfg.Live,
		SnapshotDir:       snapshotDir,
		QueueCapacity:     queueCapacity,
		Postgres:          pg,
		Pyroscope:         cfg.Pyroscope,
	}, nil
}
