package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Event delivery modes
const (
	DeliveryAsync = "async"
	DeliverySync  = "sync"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Events       EventsConfig       `mapstructure:"events"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Seed         SeedConfig         `mapstructure:"seed"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// MigrationsDir overrides the migrations compiled into the binary
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// EventsConfig selects how the dispatcher delivers events
type EventsConfig struct {
	Delivery string `mapstructure:"delivery"`
}

// ApprovalConfig holds approval engine switches
type ApprovalConfig struct {
	EnforceAssignment bool `mapstructure:"enforce_assignment"`
}

// RegistrationConfig names the workflows gating agents and members
type RegistrationConfig struct {
	AgentWorkflowCode     string        `mapstructure:"agent_workflow_code"`
	MemberWorkflowCode    string        `mapstructure:"member_workflow_code"`
	DefaultMemberFeeCents int64         `mapstructure:"default_member_fee_cents"`
	InvitationTTL         time.Duration `mapstructure:"invitation_ttl"`
}

// LedgerConfig names the accounts a registration fee is posted against
type LedgerConfig struct {
	ReceivableAccount string `mapstructure:"receivable_account"`
	FeeIncomeAccount  string `mapstructure:"fee_income_account"`
}

// RedisConfig configures the event stream relay
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// LarkConfig configures approver notifications
type LarkConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	AppID         string            `mapstructure:"app_id"`
	AppSecret     string            `mapstructure:"app_secret"`
	ReceiveIDType string            `mapstructure:"receive_id_type"`
	BaseURL       string            `mapstructure:"base_url"`
	RoleChats     map[string]string `mapstructure:"role_chats"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"`
}

// SeedConfig configures start-up seeding
type SeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is applied to the environment first when present.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/membership.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("events.delivery", DeliveryAsync)
	v.SetDefault("approval.enforce_assignment", true)

	// Registration defaults
	v.SetDefault("registration.agent_workflow_code", "agent_registration")
	v.SetDefault("registration.member_workflow_code", "member_registration")
	v.SetDefault("registration.default_member_fee_cents", 0)
	v.SetDefault("registration.invitation_ttl", 7*24*time.Hour)

	v.SetDefault("ledger.receivable_account", "1100")
	v.SetDefault("ledger.fee_income_account", "4100")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.stream", "membership:events")
	v.SetDefault("redis.max_len", 100000)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "user_id")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "membership-approvals")

	v.SetDefault("seed.enabled", false)
	v.SetDefault("seed.file", "configs/seed.yaml")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	for key, env := range map[string]string{
		"lark.app_id":     "LARK_APP_ID",
		"lark.app_secret": "LARK_APP_SECRET",
		"redis.password":  "REDIS_PASSWORD",
		"database.path":   "DATABASE_PATH",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Events.Delivery {
	case DeliveryAsync, DeliverySync:
	default:
		return fmt.Errorf("events.delivery must be %q or %q, got %q", DeliveryAsync, DeliverySync, c.Events.Delivery)
	}

	if c.Registration.AgentWorkflowCode == "" {
		return fmt.Errorf("registration.agent_workflow_code is required")
	}
	if c.Registration.MemberWorkflowCode == "" {
		return fmt.Errorf("registration.member_workflow_code is required")
	}
	if c.Registration.DefaultMemberFeeCents < 0 {
		return fmt.Errorf("registration.default_member_fee_cents cannot be negative")
	}
	if c.Registration.InvitationTTL <= 0 {
		return fmt.Errorf("registration.invitation_ttl must be positive")
	}

	if c.Ledger.ReceivableAccount == "" || c.Ledger.FeeIncomeAccount == "" {
		return fmt.Errorf("ledger.receivable_account and ledger.fee_income_account are required")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.Stream == "" {
			return fmt.Errorf("redis.stream is required when redis is enabled")
		}
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	if c.Seed.Enabled && c.Seed.File == "" {
		return fmt.Errorf("seed.file is required when seeding is enabled")
	}

	return nil
}
