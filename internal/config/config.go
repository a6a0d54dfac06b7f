package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/guotingchao/DeltaTransactionSystem/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs monitoring cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// SourceConfig points at the bulk price snapshot feed.
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SyncConfig tunes the reconcile apply phase.
type SyncConfig struct {
	UpdateBatchSize int `mapstructure:"update_batch_size"`
	UpdateWorkers   int `mapstructure:"update_workers"`
}

// AnalysisConfig tunes the rolling-window analyzer.
type AnalysisConfig struct {
	Window  time.Duration `mapstructure:"window"`
	TopSize int           `mapstructure:"top_size"`
}

// AlertingConfig defines report thresholds and routing.
// 未配置 webhook_url 时告警静默关闭，监控照常入库。
type AlertingConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	MentionName    string        `mapstructure:"mention_name"`
	ThresholdPct   float64       `mapstructure:"threshold_pct"`
	FeeRate        float64       `mapstructure:"fee_rate"`
	VolatilityTop  int           `mapstructure:"volatility_top"`
	MessageBytes   int           `mapstructure:"message_bytes"`
	MessageDelay   time.Duration `mapstructure:"message_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Timezone       string        `mapstructure:"timezone"`
}

// RetentionConfig bounds stored price history.
type RetentionConfig struct {
	Days      int           `mapstructure:"days"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DELTAWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "deltawatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64656c74))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("source.url", "https://raw.githubusercontent.com/orzice/DeltaForcePrice/master/price.json")
	v.SetDefault("source.request_timeout", "30s")
	v.SetDefault("source.user_agent", "deltawatcher/1.0")

	v.SetDefault("sync.update_batch_size", 50)
	v.SetDefault("sync.update_workers", 8)

	v.SetDefault("analysis.window", "24h")
	v.SetDefault("analysis.top_size", 5)

	v.SetDefault("alerting.threshold_pct", 20.0)
	v.SetDefault("alerting.fee_rate", 0.15)
	v.SetDefault("alerting.volatility_top", 10)
	v.SetDefault("alerting.message_bytes", 4096)
	v.SetDefault("alerting.message_delay", "500ms")
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.timezone", "Asia/Shanghai")

	v.SetDefault("retention.days", 7)
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.batch_size", 10000)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Sync.UpdateBatchSize <= 0 {
		return fmt.Errorf("sync.update_batch_size must be greater than zero")
	}
	if c.Sync.UpdateWorkers <= 0 {
		return fmt.Errorf("sync.update_workers must be greater than zero")
	}
	if c.Analysis.Window <= 0 {
		return fmt.Errorf("analysis.window must be greater than zero")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.FeeRate < 0 || c.Alerting.FeeRate >= 1 {
		return fmt.Errorf("alerting.fee_rate 必须位于 [0,1) 区间")
	}
	if c.Alerting.MessageBytes <= 0 {
		return fmt.Errorf("alerting.message_bytes must be greater than zero")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be greater than zero")
	}
	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("retention.batch_size must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
