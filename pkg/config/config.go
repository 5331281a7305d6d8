// Package config loads resolver settings from .env, config.yaml and
// RESOLVER_* environment variables, and builds the global logger.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lineitem_engine/pkg/core/reconcile"
)

// Config is the full resolver configuration.
type Config struct {
	Log       LogConfig            `mapstructure:"log"`
	Rules     RulesConfig          `mapstructure:"rules"`
	Reconcile reconcile.Tolerances `mapstructure:"reconcile"`
	Debt      DebtConfig           `mapstructure:"debt"`
	Batch     BatchConfig          `mapstructure:"batch"`
	Store     StoreConfig          `mapstructure:"store"`
	LLM       LLMConfig            `mapstructure:"llm"`
	EDGAR     EDGARConfig          `mapstructure:"edgar"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RulesConfig points at an optional rule-table override. Empty uses the
// embedded table.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// DebtConfig configures debt triangulation.
type DebtConfig struct {
	AssumedRate float64 `mapstructure:"assumed_rate"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// StoreConfig configures report persistence.
type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	Dir         string `mapstructure:"dir"`
}

// LLMConfig configures the label-matching fallback.
type LLMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// EDGARConfig configures the SEC company-facts client.
type EDGARConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TickersURL string `mapstructure:"tickers_url"`
	UserAgent  string `mapstructure:"user_agent"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	tol := reconcile.DefaultTolerances()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("rules.path", "")
	v.SetDefault("reconcile.balance_sheet_pct", tol.BalanceSheetPct)
	v.SetDefault("reconcile.cash_flow_abs", tol.CashFlowAbs)
	v.SetDefault("reconcile.net_income_pct", tol.NetIncomePct)
	v.SetDefault("reconcile.net_income_floor", tol.NetIncomeFloor)
	v.SetDefault("debt.assumed_rate", 0.06)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.dir", ".cache/resolver/reports")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("edgar.base_url", "https://data.sec.gov")
	v.SetDefault("edgar.tickers_url", "https://www.sec.gov/files/company_tickers.json")
	v.SetDefault("edgar.user_agent", "LineItemEngine/1.0 (contact@example.com)")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Batch.Concurrency < 1:
		return eris.Errorf("config: batch.concurrency must be >= 1, got %d", c.Batch.Concurrency)
	case c.Debt.AssumedRate <= 0:
		return eris.Errorf("config: debt.assumed_rate must be > 0, got %g", c.Debt.AssumedRate)
	case c.Reconcile.BalanceSheetPct <= 0 || c.Reconcile.CashFlowAbs <= 0 ||
		c.Reconcile.NetIncomePct <= 0 || c.Reconcile.NetIncomeFloor <= 0:
		return eris.New("config: reconcile tolerances must be > 0")
	case c.LLM.Enabled && c.LLM.APIKey == "":
		return eris.New("config: llm.enabled requires llm.api_key or GEMINI_API_KEY")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
