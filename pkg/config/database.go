// pkg/config/database.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string // Default: PIAAC
	Role          string
	Authenticator gosnowflake.AuthType
	Schema        string // Default: PUBLIC

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeout
	QueryTimeout time.Duration

	// Rows per page when extracting; 0 reads in one query
	BatchSize int
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	DSN      string // when set, overrides the discrete fields below
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// authenticators maps SNOWFLAKE_AUTHENTICATOR values to driver auth types
var authenticators = map[string]gosnowflake.AuthType{
	"snowflake":             gosnowflake.AuthTypeSnowflake,
	"oauth":                 gosnowflake.AuthTypeOAuth,
	"externalbrowser":       gosnowflake.AuthTypeExternalBrowser,
	"username_password_mfa": gosnowflake.AuthTypeUsernamePasswordMFA,
	"jwt":                   gosnowflake.AuthTypeJwt,
	"token":                 gosnowflake.AuthTypeTokenAccessor,
	"okta":                  gosnowflake.AuthTypeOkta,
}

// requireEnv returns the values of keys in order, failing on the first unset one
func requireEnv(keys ...string) ([]string, error) {
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = os.Getenv(key)
		if values[i] == "" {
			return nil, fmt.Errorf("%s environment variable is required", key)
		}
	}
	return values, nil
}

// LoadSnowflakeConfig reads the warehouse credentials used by snowflake input
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	required, err := requireEnv("SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE")
	if err != nil {
		return nil, err
	}

	auth, ok := authenticators[strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))]
	if !ok {
		auth = gosnowflake.AuthTypeSnowflake
	}

	return &SnowflakeConfig{
		User:          required[0],
		Password:      required[1],
		Account:       required[2],
		Warehouse:     required[3],
		Database:      getEnv("SNOWFLAKE_DATABASE", "PIAAC"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: auth,
		Schema:        getEnv("SNOWFLAKE_SCHEMA", "PUBLIC"),

		MaxOpenConns:    getEnvAsInt("SNOWFLAKE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("SNOWFLAKE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: seconds("SNOWFLAKE_CONN_MAX_LIFETIME_SECONDS", 600),
		ConnMaxIdleTime: seconds("SNOWFLAKE_CONN_MAX_IDLE_TIME_SECONDS", 300),
		QueryTimeout:    seconds("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300),
		BatchSize:       getEnvAsInt("SNOWFLAKE_BATCH_SIZE", 0),
	}, nil
}

// LoadPostgresConfig assembles a sink connection from the POSTGRES_* variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	required, err := requireEnv("POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")
	if err != nil {
		return nil, err
	}

	cfg := postgresPoolConfig()
	cfg.Host = getEnv("POSTGRES_HOST", "localhost")
	cfg.Port = getEnvAsInt("POSTGRES_PORT", 5432)
	cfg.User = required[0]
	cfg.Password = required[1]
	cfg.Database = required[2]
	cfg.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")
	return cfg, nil
}

// PostgresConfigFromDSN wraps a ready-made connection string with the pool
// settings from the environment
func PostgresConfigFromDSN(dsn string) *PostgresConfig {
	cfg := postgresPoolConfig()
	cfg.DSN = dsn
	return cfg
}

func postgresPoolConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime:  seconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800),
		ConnMaxIdleTime:  seconds("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600),
		StatementTimeout: seconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300),
	}
}

func seconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&authenticator=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Account,
		c.Database,
		c.Schema,
		c.Warehouse,
		c.Authenticator,
	)

	if c.Role != "" {
		dsn += "&role=" + c.Role
	}

	return dsn
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
