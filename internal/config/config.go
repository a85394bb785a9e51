package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaEvidenceTopic string   `mapstructure:"KAFKA_EVIDENCE_TOPIC"`
	KafkaGroupID       string   `mapstructure:"KAFKA_GROUP_ID"`
	DocumentBucket     string   `mapstructure:"DOCUMENT_BUCKET"`
	NotifyQueueName    string   `mapstructure:"NOTIFY_QUEUE_NAME"`
	NotifyFrom         string   `mapstructure:"NOTIFY_FROM"`

	OverdueSweepInterval  time.Duration `mapstructure:"OVERDUE_SWEEP_INTERVAL"`
	RebalanceInterval     time.Duration `mapstructure:"REBALANCE_INTERVAL"`
	ReassessSweepInterval time.Duration `mapstructure:"REASSESS_SWEEP_INTERVAL"`
	SweepConcurrency      int           `mapstructure:"SWEEP_CONCURRENCY"`

	Allocation Allocation `mapstructure:",squash"`
}

// Allocation holds the coordinator-matching tunables.
type Allocation struct {
	BaseScore             float64 `mapstructure:"ALLOCATION_BASE_SCORE"`
	PriorityUrgent        float64 `mapstructure:"ALLOCATION_PRIORITY_URGENT"`
	PriorityHigh          float64 `mapstructure:"ALLOCATION_PRIORITY_HIGH"`
	PriorityMedium        float64 `mapstructure:"ALLOCATION_PRIORITY_MEDIUM"`
	PriorityLow           float64 `mapstructure:"ALLOCATION_PRIORITY_LOW"`
	SpecializationBonus   float64 `mapstructure:"ALLOCATION_SPECIALIZATION_BONUS"`
	CompanyBonus          float64 `mapstructure:"ALLOCATION_COMPANY_BONUS"`
	MaxCaseload           int     `mapstructure:"ALLOCATION_MAX_CASELOAD"`
	BalanceWeight         float64 `mapstructure:"ALLOCATION_BALANCE_WEIGHT"`
	ResponseWeight        float64 `mapstructure:"ALLOCATION_RESPONSE_WEIGHT"`
	ResponseCeilingDays   float64 `mapstructure:"ALLOCATION_RESPONSE_CEILING_DAYS"`
	AvailabilityThreshold float64 `mapstructure:"ALLOCATION_AVAILABILITY_THRESHOLD"`
	RebalanceSpread       int     `mapstructure:"REBALANCE_SPREAD_THRESHOLD"`
	RebalanceMaxMoves     int     `mapstructure:"REBALANCE_MAX_MOVES"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"KAFKA_BROKERS", "KAFKA_EVIDENCE_TOPIC", "KAFKA_GROUP_ID",
	"DOCUMENT_BUCKET", "NOTIFY_QUEUE_NAME", "NOTIFY_FROM",
	"OVERDUE_SWEEP_INTERVAL", "REBALANCE_INTERVAL", "REASSESS_SWEEP_INTERVAL", "SWEEP_CONCURRENCY",
	"ALLOCATION_BASE_SCORE", "ALLOCATION_PRIORITY_URGENT", "ALLOCATION_PRIORITY_HIGH",
	"ALLOCATION_PRIORITY_MEDIUM", "ALLOCATION_PRIORITY_LOW", "ALLOCATION_SPECIALIZATION_BONUS",
	"ALLOCATION_COMPANY_BONUS", "ALLOCATION_MAX_CASELOAD", "ALLOCATION_BALANCE_WEIGHT",
	"ALLOCATION_RESPONSE_WEIGHT", "ALLOCATION_RESPONSE_CEILING_DAYS",
	"ALLOCATION_AVAILABILITY_THRESHOLD", "REBALANCE_SPREAD_THRESHOLD", "REBALANCE_MAX_MOVES",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("KAFKA_EVIDENCE_TOPIC", "case-evidence")
	v.SetDefault("KAFKA_GROUP_ID", "caseengine")
	v.SetDefault("NOTIFY_FROM", "compliance@caseengine.local")
	v.SetDefault("OVERDUE_SWEEP_INTERVAL", "1h")
	v.SetDefault("REBALANCE_INTERVAL", "6h")
	v.SetDefault("REASSESS_SWEEP_INTERVAL", "30m")
	v.SetDefault("SWEEP_CONCURRENCY", 8)
	for k, val := range allocationDefaults {
		v.SetDefault(k, val)
	}

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
	}

	return cfg, nil
}

var allocationDefaults = map[string]interface{}{
	"ALLOCATION_BASE_SCORE":             50,
	"ALLOCATION_PRIORITY_URGENT":        20,
	"ALLOCATION_PRIORITY_HIGH":          15,
	"ALLOCATION_PRIORITY_MEDIUM":        10,
	"ALLOCATION_PRIORITY_LOW":           5,
	"ALLOCATION_SPECIALIZATION_BONUS":   25,
	"ALLOCATION_COMPANY_BONUS":          10,
	"ALLOCATION_MAX_CASELOAD":           20,
	"ALLOCATION_BALANCE_WEIGHT":         0.6,
	"ALLOCATION_RESPONSE_WEIGHT":        0.4,
	"ALLOCATION_RESPONSE_CEILING_DAYS":  30,
	"ALLOCATION_AVAILABILITY_THRESHOLD": 0.5,
	"REBALANCE_SPREAD_THRESHOLD":        5,
	"REBALANCE_MAX_MOVES":               50,
}

// splitList handles comma-separated env values that viper leaves as a single
// element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// KafkaEnabled reports whether the evidence consumer should start.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaEvidenceTopic != ""
}

// Validate checks that the configuration is safe to run. Outside development
// real JWT verification must be configured, and the allocation weights must
// describe a sensible scoring function.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set outside development (current ENV=%q)", c.Env)
		}
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY must be set outside development (current ENV=%q)", c.Env)
		}
	}

	a := c.Allocation
	if a.BalanceWeight < 0 || a.BalanceWeight > 1 {
		return fmt.Errorf("ALLOCATION_BALANCE_WEIGHT must be within [0,1], got %v", a.BalanceWeight)
	}
	if a.ResponseWeight < 0 || a.ResponseWeight > 1 {
		return fmt.Errorf("ALLOCATION_RESPONSE_WEIGHT must be within [0,1], got %v", a.ResponseWeight)
	}
	if a.MaxCaseload <= 0 {
		return fmt.Errorf("ALLOCATION_MAX_CASELOAD must be positive, got %d", a.MaxCaseload)
	}
	if a.AvailabilityThreshold < 0 || a.AvailabilityThreshold > 1 {
		return fmt.Errorf("ALLOCATION_AVAILABILITY_THRESHOLD must be within [0,1], got %v", a.AvailabilityThreshold)
	}
	if a.RebalanceSpread < 0 {
		return fmt.Errorf("REBALANCE_SPREAD_THRESHOLD must not be negative, got %d", a.RebalanceSpread)
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive, got %d", c.SweepConcurrency)
	}
	return nil
}
