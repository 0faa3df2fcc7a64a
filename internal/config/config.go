package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/risk"
	"github.com/sells-group/churn-risk/internal/trainer"
)

// Config holds the full application configuration.
type Config struct {
	Split  SplitConfig       `yaml:"split" mapstructure:"split"`
	Model  trainer.Config    `yaml:"model" mapstructure:"model"`
	Policy risk.Policy       `yaml:"policy" mapstructure:"policy"`
	Batch  risk.BatchOptions `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig      `yaml:"server" mapstructure:"server"`
	Log    LogConfig         `yaml:"log" mapstructure:"log"`
}

// SplitConfig configures the train/test split.
type SplitConfig struct {
	TrainFraction float64 `yaml:"train_fraction" mapstructure:"train_fraction"`
}

// ServerConfig configures the scoring API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestTimeoutS int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHURN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	m := trainer.DefaultConfig()
	p := risk.DefaultPolicy()
	b := risk.DefaultBatchOptions()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("split.train_fraction", dataset.DefaultTrainFraction)

	v.SetDefault("model.hidden_units", m.HiddenUnits)
	v.SetDefault("model.dropout", m.Dropout)
	v.SetDefault("model.activation", m.Activation)
	v.SetDefault("model.l2", m.L2)
	v.SetDefault("model.l2_layers", m.L2Layers)
	v.SetDefault("model.batch_norm", m.BatchNorm)
	v.SetDefault("model.learning_rate", m.LearningRate)
	v.SetDefault("model.epochs", m.Epochs)
	v.SetDefault("model.batch_size", m.BatchSize)
	v.SetDefault("model.validation_split", m.ValidationSplit)
	v.SetDefault("model.seed", m.Seed)
	v.SetDefault("model.log_every", m.LogEvery)

	v.SetDefault("policy.high_threshold", p.HighThreshold)
	v.SetDefault("policy.medium_threshold", p.MediumThreshold)
	v.SetDefault("policy.lifetime_months", p.LifetimeMonths)
	v.SetDefault("policy.retention_cost_months", p.RetentionCostMonths)
	v.SetDefault("policy.retention_success_rate", p.RetentionSuccessRate)
	v.SetDefault("policy.new_customer_tenure", p.NewCustomerTenure)
	v.SetDefault("policy.premium_charge", p.PremiumCharge)
	v.SetDefault("policy.decision_threshold", p.DecisionThreshold)

	v.SetDefault("batch.concurrency", b.Concurrency)
	v.SetDefault("batch.chunk_size", b.ChunkSize)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.request_timeout_secs", 60)
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "summary":
		return nil
	case "train", "predict", "batch", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Split.TrainFraction <= 0 || c.Split.TrainFraction >= 1 {
		errs = append(errs, "split.train_fraction must be between 0 and 1")
	}
	if err := trainer.ValidateConfig(c.Model); err != nil {
		errs = append(errs, err.Error())
	}
	if err := risk.ValidatePolicy(c.Policy); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, "batch.concurrency must be between 1 and 64")
	}
	if c.Batch.ChunkSize < 1 {
		errs = append(errs, "batch.chunk_size must be > 0")
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port must be > 0 and <= 65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
