package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/bizcore/bizcore/internal/types"
	"github.com/bizcore/bizcore/internal/validator"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Sequence   SequenceConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `validate:"required"`
	Port                   int    `validate:"required"`
	User                   string `validate:"required"`
	Password               string
	DBName                 string `validate:"required"`
	SSLMode                string `validate:"required"`
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
	// StatementTimeout bounds every statement issued inside a tenant scope.
	// A stuck row lock surfaces as a transient error instead of hanging the call.
	StatementTimeout time.Duration
}

// AuthConfig holds the static role and permission tables. They are loaded
// once at process start and treated as immutable for the process lifetime.
type AuthConfig struct {
	// RolePermissions maps a role to the permissions it grants
	RolePermissions map[string][]string `mapstructure:"role_permissions"`
	// RoleHierarchy maps a role to its hierarchy level; higher outranks lower
	RoleHierarchy map[string]int `mapstructure:"role_hierarchy"`
	// SequenceResetRole is the minimum role allowed to reset a sequence counter
	SequenceResetRole string `mapstructure:"sequence_reset_role"`
}

type SequenceConfig struct {
	// MaxContentionRetries bounds the allocation retry loop on lock contention
	MaxContentionRetries int `mapstructure:"max_contention_retries"`
	// DefinitionCacheTTL is how long read-only sequence definitions may be
	// served from cache. Counters are never cached.
	DefinitionCacheTTL time.Duration `mapstructure:"definition_cache_ttl"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bizcore")

	v.SetEnvPrefix("BIZCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "bizcore")
	v.SetDefault("postgres.dbname", "bizcore")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxopenconns", 10)
	v.SetDefault("postgres.maxidleconns", 5)
	v.SetDefault("postgres.connmaxlifetimeminutes", 30)
	v.SetDefault("postgres.statementtimeout", "5s")
	v.SetDefault("auth.sequence_reset_role", string(types.RoleAdmin))
	v.SetDefault("sequence.max_contention_retries", 5)
	v.SetDefault("sequence.definition_cache_ttl", "5m")
}

func (c *Configuration) Validate() error {
	return validator.GetValidator().Struct(c)
}

// GetDSN builds the lib/pq connection string
func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Module provides the configuration to the fx application
func Module() fx.Option {
	return fx.Provide(NewConfig)
}

// GetDefaultConfig returns a configuration suitable for tests and local
// scripts without reading any file.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			User:             "bizcore",
			DBName:           "bizcore",
			SSLMode:          "disable",
			StatementTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			RolePermissions: map[string][]string{
				string(types.RoleOwner): {
					string(types.PermissionSequenceRead),
					string(types.PermissionSequenceAllocate),
					string(types.PermissionSequenceManage),
					string(types.PermissionSequenceReset),
					string(types.PermissionAuditRead),
				},
				string(types.RoleAdmin): {
					string(types.PermissionSequenceRead),
					string(types.PermissionSequenceAllocate),
					string(types.PermissionSequenceManage),
					string(types.PermissionSequenceReset),
					string(types.PermissionAuditRead),
				},
				string(types.RoleMember): {
					string(types.PermissionSequenceRead),
					string(types.PermissionSequenceAllocate),
				},
				string(types.RoleViewer): {
					string(types.PermissionSequenceRead),
				},
			},
			RoleHierarchy: map[string]int{
				string(types.RoleOwner):  100,
				string(types.RoleAdmin):  80,
				string(types.RoleMember): 50,
				string(types.RoleViewer): 10,
			},
			SequenceResetRole: string(types.RoleAdmin),
		},
		Sequence: SequenceConfig{
			MaxContentionRetries: 5,
			DefinitionCacheTTL:   5 * time.Minute,
		},
	}
}
