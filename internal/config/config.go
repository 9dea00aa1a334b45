package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	State      StateConfig      `yaml:"state"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Universe   UniverseConfig   `yaml:"universe"`
	Window     WindowConfig     `yaml:"window"`
	Selection  SelectionConfig  `yaml:"selection"`
	Signal     SignalConfig     `yaml:"signal"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path" default:"data/pci-pair-trader.db"`
	// Resume restores the stopped pair windows of the previous run.
	Resume bool `yaml:"resume"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000" validate:"gt=0,lte=65535"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	PricesTable      string        `yaml:"prices_table" default:"stock_data"`
	UniverseTable    string        `yaml:"universe_table" default:"stock_constituents"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"8"`
	QueriesPerSecond float64       `yaml:"queries_per_second" default:"20" validate:"gte=0"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema" default:"public"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size" default:"256"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address" default:"127.0.0.1:9001"`
	Path    string `yaml:"path" default:"/metrics"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// UniverseConfig restricts which instruments are pulled from the price source.
type UniverseConfig struct {
	Groups    []string `yaml:"groups"`
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
}

type WindowConfig struct {
	FormationMonths int  `yaml:"formation_months" default:"48" validate:"gt=0"`
	TradingMonths   int  `yaml:"trading_months" default:"6" validate:"gt=0"`
	MinObservations int  `yaml:"min_observations" default:"252" validate:"gte=2"`
	Rolling         bool `yaml:"rolling"`
}

type SelectionConfig struct {
	Fraction float64 `yaml:"selection_fraction" default:"0.05" validate:"gt=0,lte=1"`
	MinR2MR  float64 `yaml:"min_r2_mr" default:"0.5" validate:"gte=0,lte=1"`
	MinRho   float64 `yaml:"min_rho" default:"0.5" validate:"gte=0,lt=1"`
	Workers  int     `yaml:"workers" validate:"gte=0"`
}

type SignalConfig struct {
	TauOpen          float64 `yaml:"tau_open" default:"1.0" validate:"gt=0"`
	TauClose         float64 `yaml:"tau_close" default:"-0.5"`
	RollingStdWindow int     `yaml:"rolling_std_window" default:"63" validate:"gt=1"`
	StopLossFraction float64 `yaml:"stop_loss_fraction" default:"0.9" validate:"gt=0,lt=1"`
	InitialValue     float64 `yaml:"initial_value" default:"1.0" validate:"gt=0"`
}

const dateLayout = "2006-01-02"

var structValidator = validator.New()

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	// File values, zeros included, override the tag defaults.
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a configuration populated only with defaults, for callers that
// drive the pipeline without a config file.
func Default() *Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Timescale.QueueSize <= 0 {
		cfg.Timescale.QueueSize = 256
	}
	for i, group := range cfg.Universe.Groups {
		cfg.Universe.Groups[i] = strings.TrimSpace(group)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PCI_CLICKHOUSE_PASSWORD")); v != "" {
		cfg.ClickHouse.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("PCI_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PCI_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("PCI_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Signal.TauClose >= cfg.Signal.TauOpen {
		return errors.New("signal.tau_close must be below signal.tau_open")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	start, err := cfg.Universe.Start()
	if err != nil {
		return fmt.Errorf("universe.start_date: %w", err)
	}
	end, err := cfg.Universe.End()
	if err != nil {
		return fmt.Errorf("universe.end_date: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return errors.New("universe.end_date must be after universe.start_date")
	}
	return nil
}

// Start returns the parsed start date, zero when unset.
func (u UniverseConfig) Start() (time.Time, error) {
	return parseDate(u.StartDate)
}

// End returns the parsed end date, zero when unset.
func (u UniverseConfig) End() (time.Time, error) {
	return parseDate(u.EndDate)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, raw, time.UTC)
}
