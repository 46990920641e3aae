package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	API       APIConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Mock      MockServerConfig
}

type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL, default=http://localhost:3000"`
	Timeout time.Duration `env:"API_TIMEOUT,  default=30s"`
}

type StorageConfig struct {
	Backend       string `env:"STORAGE_BACKEND, default=memory"`
	EncryptionKey string `env:"ENCRYPTION_KEY,  default=default-key"`
	Obfuscate     bool   `env:"STORAGE_OBFUSCATE, default=true"`
	FilePath      string `env:"STORAGE_FILE,    default=.authclient/session.json"`
	Namespace     string `env:"STORAGE_NAMESPACE, default=authclient"`

	Redis    RedisConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	DB       int    `env:"REDIS_DB,   default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=authclient"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL, default=postgres://localhost:5432/authclient"`
}

type TelemetryConfig struct {
	ServiceName  string `env:"OTEL_SERVICE_NAME, default=authclient"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool   `env:"OTEL_EXPORTER_OTLP_INSECURE, default=false"`
}

// MockServerConfig configures cmd/mock-auth-api.
type MockServerConfig struct {
	Port            string        `env:"MOCK_PORT,              default=3000"`
	JWTSecret       string        `env:"MOCK_JWT_SECRET,        default=dev-secret"`
	Issuer          string        `env:"MOCK_JWT_ISSUER,        default=mock-auth-api"`
	AccessTokenTTL  time.Duration `env:"MOCK_ACCESS_TOKEN_TTL,  default=15m"`
	RefreshTokenTTL time.Duration `env:"MOCK_REFRESH_TOKEN_TTL, default=168h"`
	UserStore       string        `env:"MOCK_USER_STORE,        default=memory"`
	TokenStore      string        `env:"MOCK_TOKEN_STORE,       default=memory"`
	GoogleClientID  string        `env:"MOCK_GOOGLE_CLIENT_ID"`
	GraphURL        string        `env:"MOCK_MS_GRAPH_URL,      default=https://graph.microsoft.com/v1.0/me"`
	Workers         int           `env:"MOCK_NOTIFY_WORKERS,    default=4"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom reads configuration through lookuper; tests pass a MapLookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if cfg.API.Timeout <= 0 {
		return nil, fmt.Errorf("API_TIMEOUT must be positive, got %s", cfg.API.Timeout)
	}
	switch cfg.Storage.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendMongo, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
	return &cfg, nil
}
