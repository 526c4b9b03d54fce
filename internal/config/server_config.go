package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EchoServer configures the HTTP layer.
type EchoServer struct {
	Debug                          bool
	ListenAddress                  string
	HideInternalServerErrorDetails bool
	EnableCORSMiddleware           bool
	EnableLoggerMiddleware         bool
	EnableRecoverMiddleware        bool
	EnableRequestIDMiddleware      bool
	EnableTrailingSlashMiddleware  bool
}

// LoggerServer configures zerolog and the request logger middleware.
type LoggerServer struct {
	Level              zerolog.Level
	RequestLevel       zerolog.Level
	LogRequestBody     bool
	LogRequestHeader   bool
	LogRequestQuery    bool
	LogResponseBody    bool
	LogResponseHeader  bool
	PrettyPrintConsole bool
}

// Database configures the optional audit database. When Enabled is false the
// server runs without a database and batch auditing is disabled.
type Database struct {
	Enabled          bool
	Host             string
	Port             int
	Username         string
	Password         string `json:"-"` // sensitive
	Database         string
	AdditionalParams map[string]string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ConnectionString generates a connection string to be passed to sql.Open.
func (c Database) ConnectionString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s password=%s dbname=%s", c.Host, c.Port, c.Username, c.Password, c.Database)

	for param, value := range c.AdditionalParams {
		fmt.Fprintf(&b, " %s=%s", param, value)
	}

	return b.String()
}

// Relayer configures the relaying identity and the signing domain the service
// verifies typed-data signatures against. SeedDemoLedger populates the
// in-memory ledger with demo tokens, a pool and a funded well-known dev
// account so a fresh server can execute batches end to end.
type Relayer struct {
	ChainID        int64
	Address        string
	VaultAddress   string
	DomainName     string
	DomainVersion  string
	SeedDemoLedger bool
}

// Metrics configures the Prometheus endpoint on the management group.
type Metrics struct {
	Enabled bool
	Path    string
}

type Server struct {
	Database Database
	Echo     EchoServer
	Logger   LoggerServer
	Relayer  Relayer
	Metrics  Metrics
}

var loadEnvOnce sync.Once

// DefaultServiceConfigFromEnv returns the server config as parsed from the
// environment. A .env.local file is merged into the environment on first use.
func DefaultServiceConfigFromEnv() Server {
	loadEnvOnce.Do(func() {
		_ = gotenv.Load(".env.local")
	})

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SERVER_ECHO_DEBUG", false)
	v.SetDefault("SERVER_ECHO_LISTEN_ADDRESS", ":8080")
	v.SetDefault("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERROR_DETAILS", true)
	v.SetDefault("SERVER_ECHO_ENABLE_CORS_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_REQUEST_ID_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_TRAILING_SLASH_MIDDLEWARE", true)

	v.SetDefault("SERVER_LOGGER_LEVEL", "debug")
	v.SetDefault("SERVER_LOGGER_REQUEST_LEVEL", "debug")
	v.SetDefault("SERVER_LOGGER_LOG_REQUEST_BODY", false)
	v.SetDefault("SERVER_LOGGER_LOG_REQUEST_HEADER", false)
	v.SetDefault("SERVER_LOGGER_LOG_REQUEST_QUERY", false)
	v.SetDefault("SERVER_LOGGER_LOG_RESPONSE_BODY", false)
	v.SetDefault("SERVER_LOGGER_LOG_RESPONSE_HEADER", false)
	v.SetDefault("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false)

	v.SetDefault("SERVER_DB_ENABLED", false)
	v.SetDefault("SERVER_DB_HOST", "postgres")
	v.SetDefault("SERVER_DB_PORT", 5432)
	v.SetDefault("SERVER_DB_USER", "dbuser")
	v.SetDefault("SERVER_DB_PASSWORD", "")
	v.SetDefault("SERVER_DB_DBNAME", "vault_relayer")
	v.SetDefault("SERVER_DB_ADDITIONAL_PARAMS", "sslmode=disable")
	v.SetDefault("SERVER_DB_MAX_OPEN_CONNS", 30)
	v.SetDefault("SERVER_DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SERVER_DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("SERVER_RELAYER_CHAIN_ID", 1)
	v.SetDefault("SERVER_RELAYER_ADDRESS", "0x0000000000000000000000000000000000000000")
	v.SetDefault("SERVER_RELAYER_VAULT_ADDRESS", "0x0000000000000000000000000000000000000000")
	v.SetDefault("SERVER_RELAYER_DOMAIN_NAME", "VaultRelayer")
	v.SetDefault("SERVER_RELAYER_DOMAIN_VERSION", "1")
	v.SetDefault("SERVER_RELAYER_SEED_DEMO_LEDGER", true)

	v.SetDefault("SERVER_METRICS_ENABLED", true)
	v.SetDefault("SERVER_METRICS_PATH", "/-/metrics")

	return Server{
		Database: Database{
			Enabled:          v.GetBool("SERVER_DB_ENABLED"),
			Host:             v.GetString("SERVER_DB_HOST"),
			Port:             v.GetInt("SERVER_DB_PORT"),
			Username:         v.GetString("SERVER_DB_USER"),
			Password:         v.GetString("SERVER_DB_PASSWORD"),
			Database:         v.GetString("SERVER_DB_DBNAME"),
			AdditionalParams: parseAdditionalParams(v.GetString("SERVER_DB_ADDITIONAL_PARAMS")),
			MaxOpenConns:     v.GetInt("SERVER_DB_MAX_OPEN_CONNS"),
			MaxIdleConns:     v.GetInt("SERVER_DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime:  v.GetDuration("SERVER_DB_CONN_MAX_LIFETIME"),
		},
		Echo: EchoServer{
			Debug:                          v.GetBool("SERVER_ECHO_DEBUG"),
			ListenAddress:                  v.GetString("SERVER_ECHO_LISTEN_ADDRESS"),
			HideInternalServerErrorDetails: v.GetBool("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERROR_DETAILS"),
			EnableCORSMiddleware:           v.GetBool("SERVER_ECHO_ENABLE_CORS_MIDDLEWARE"),
			EnableLoggerMiddleware:         v.GetBool("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE"),
			EnableRecoverMiddleware:        v.GetBool("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE"),
			EnableRequestIDMiddleware:      v.GetBool("SERVER_ECHO_ENABLE_REQUEST_ID_MIDDLEWARE"),
			EnableTrailingSlashMiddleware:  v.GetBool("SERVER_ECHO_ENABLE_TRAILING_SLASH_MIDDLEWARE"),
		},
		Logger: LoggerServer{
			Level:              levelFromString(v.GetString("SERVER_LOGGER_LEVEL")),
			RequestLevel:       levelFromString(v.GetString("SERVER_LOGGER_REQUEST_LEVEL")),
			LogRequestBody:     v.GetBool("SERVER_LOGGER_LOG_REQUEST_BODY"),
			LogRequestHeader:   v.GetBool("SERVER_LOGGER_LOG_REQUEST_HEADER"),
			LogRequestQuery:    v.GetBool("SERVER_LOGGER_LOG_REQUEST_QUERY"),
			LogResponseBody:    v.GetBool("SERVER_LOGGER_LOG_RESPONSE_BODY"),
			LogResponseHeader:  v.GetBool("SERVER_LOGGER_LOG_RESPONSE_HEADER"),
			PrettyPrintConsole: v.GetBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE"),
		},
		Relayer: Relayer{
			ChainID:        v.GetInt64("SERVER_RELAYER_CHAIN_ID"),
			Address:        v.GetString("SERVER_RELAYER_ADDRESS"),
			VaultAddress:   v.GetString("SERVER_RELAYER_VAULT_ADDRESS"),
			DomainName:     v.GetString("SERVER_RELAYER_DOMAIN_NAME"),
			DomainVersion:  v.GetString("SERVER_RELAYER_DOMAIN_VERSION"),
			SeedDemoLedger: v.GetBool("SERVER_RELAYER_SEED_DEMO_LEDGER"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("SERVER_METRICS_ENABLED"),
			Path:    v.GetString("SERVER_METRICS_PATH"),
		},
	}
}

func levelFromString(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.DebugLevel
	}

	return l
}

// parseAdditionalParams parses "k1=v1 k2=v2" into a map.
func parseAdditionalParams(params string) map[string]string {
	res := map[string]string{}

	for _, pair := range strings.Fields(params) {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		res[k] = v
	}

	return res
}
