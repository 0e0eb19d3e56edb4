package cmd

import (
	"os"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/passthrough"
	"github.com/icecave/sniroute/registry"
	"github.com/icecave/sniroute/resolver"
)

// Config holds configuration values for commands.
type Config struct {
	Port                 string
	ControlPort          string
	ConfigStreamAddress  string
	RelaySocket          string
	FallbackAddress      string
	RoutingMode          string
	ProxyProtocolVersion int64
	UploadTimeout        time.Duration
	MaxDocumentSize      int64
	HandshakeTimeout     time.Duration
	DialTimeout          time.Duration
	MaxConnections       int64
	Redis                redisConfig
	BootstrapFile        string
	BootstrapObject      objectConfig
	LogLevel             string
	LogFormat            string
	CheckTimeout         time.Duration
}

// objectConfig locates a bootstrap file in an S3-compatible object store.
type objectConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	Object    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type redisConfig struct {
	Address  string
	Password string
	Prefix   string
}

// GetConfigFromEnvironment creates Config object based on the shell environment.
func GetConfigFromEnvironment() *Config {
	return &Config{
		Port:                 env("PORT", "8443"),
		ControlPort:          env("CONTROL_PORT", "10246"),
		ConfigStreamAddress:  env("CONFIG_STREAM_ADDR", ""),
		RelaySocket:          env("RELAY_SOCKET", resolver.DefaultRelayAddress),
		FallbackAddress:      env("FALLBACK_ADDRESS", resolver.DefaultFallbackAddress),
		RoutingMode:          env("ROUTING_MODE", string(passthrough.ModeBackend)),
		ProxyProtocolVersion: envInt("PROXY_PROTOCOL_VERSION", 1),
		UploadTimeout:        envDuration("UPLOAD_TIMEOUT", ingest.DefaultTimeout),
		MaxDocumentSize:      envBytes("MAX_DOCUMENT_SIZE", ingest.DefaultMaxSize),
		HandshakeTimeout:     envDuration("HANDSHAKE_TIMEOUT", passthrough.DefaultHandshakeTimeout),
		DialTimeout:          envDuration("DIAL_TIMEOUT", passthrough.DefaultDialTimeout),
		MaxConnections:       envInt("MAX_CONNECTIONS", 0),
		Redis: redisConfig{
			Address:  env("REDIS_ADDR", ""),
			Password: env("REDIS_PASSWORD", ""),
			Prefix:   env("REDIS_PREFIX", registry.DefaultRedisPrefix),
		},
		BootstrapFile: env("BOOTSTRAP_FILE", ""),
		BootstrapObject: objectConfig{
			Endpoint:  env("BOOTSTRAP_S3_ENDPOINT", ""),
			Region:    env("BOOTSTRAP_S3_REGION", "us-east-1"),
			Bucket:    env("BOOTSTRAP_S3_BUCKET", "sniroute"),
			Object:    env("BOOTSTRAP_S3_OBJECT", "routes.yaml"),
			AccessKey: env("BOOTSTRAP_S3_ACCESS_KEY", ""),
			SecretKey: env("BOOTSTRAP_S3_SECRET_KEY", ""),
			UseSSL:    envBool("BOOTSTRAP_S3_SSL", true),
		},
		LogLevel:     env("LOG_LEVEL", "info"),
		LogFormat:    env("LOG_FORMAT", "text"),
		CheckTimeout: envDuration("CHECK_TIMEOUT", 500*time.Millisecond),
	}
}

func env(key string, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return def
}

func envInt(key string, def int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		i, _ := strconv.ParseInt(value, 10, 64)
		return i
	}

	return def
}

func envBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, _ := strconv.ParseBool(value)
		return b
	}

	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return def
		}
		return d
	}

	return def
}

// envBytes reads a size such as "16MiB" or "500kB".
func envBytes(key string, def int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		n, err := humanize.ParseBytes(value)
		if err != nil {
			return def
		}
		return int64(n)
	}

	return def
}
