package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	// Mongo holds the MongoDB connection configuration.
	Mongo MongoConfig `mapstructure:",squash"`

	// Redis holds the Redis cache configuration.
	Redis RedisConfig `mapstructure:",squash"`

	// Auth holds the JWT authentication configuration.
	Auth AuthConfig `mapstructure:",squash"`

	// Hub holds the realtime notification hub configuration.
	Hub HubConfig `mapstructure:",squash"`

	// Outbox holds the outbox dispatcher configuration.
	Outbox OutboxConfig `mapstructure:",squash"`

	// Carriers holds the carrier refresh configuration.
	Carriers CarrierConfig `mapstructure:",squash"`

	// Proxy holds the upstream proxy used by the carrier scrapers.
	Proxy ProxyConfig `mapstructure:",squash"`
}

// MongoConfig holds MongoDB connection details.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string `mapstructure:"MONGO_URI" default:"mongodb://localhost:27017"`
	// Database is the database name used by the service.
	Database string `mapstructure:"MONGO_DATABASE" default:"storefront"`
	// MinPoolSize is the minimum number of pooled connections.
	MinPoolSize uint64 `mapstructure:"MONGO_MIN_POOL_SIZE" default:"2"`
	// MaxPoolSize is the maximum number of pooled connections.
	MaxPoolSize uint64 `mapstructure:"MONGO_MAX_POOL_SIZE" default:"20"`
	// TimeoutSeconds bounds connect and per-operation time.
	TimeoutSeconds int `mapstructure:"MONGO_TIMEOUT_SECONDS" default:"10"`
}

// RedisConfig holds the Redis cache connection details.
type RedisConfig struct {
	// URL is the Redis connection string (redis://[:password@]host[:port][/db]).
	URL string `mapstructure:"REDIS_URL" default:"redis://localhost:6379"`
	// SnapshotTTLSeconds is the TTL for cached tracking snapshots.
	SnapshotTTLSeconds int `mapstructure:"REDIS_SNAPSHOT_TTL_SECONDS" default:"30"`
}

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `mapstructure:"JWT_SECRET" required:"true"`
	// TokenTTLMinutes is the lifetime of issued tokens.
	TokenTTLMinutes int `mapstructure:"JWT_TTL_MINUTES" default:"720"`
}

// HubConfig tunes the websocket notification hub.
type HubConfig struct {
	// PingIntervalSeconds is how often the server pings idle sockets.
	PingIntervalSeconds int `mapstructure:"HUB_PING_INTERVAL_SECONDS" default:"25"`
	// WriteTimeoutSeconds bounds a single frame write to a client.
	WriteTimeoutSeconds int `mapstructure:"HUB_WRITE_TIMEOUT_SECONDS" default:"10"`
}

// OutboxConfig tunes the outbox dispatcher loop.
type OutboxConfig struct {
	// PollIntervalMillis is the dispatcher polling period.
	PollIntervalMillis int `mapstructure:"OUTBOX_POLL_INTERVAL_MS" default:"500"`
	// BatchSize is the maximum records claimed per poll.
	BatchSize int `mapstructure:"OUTBOX_BATCH_SIZE" default:"100"`
	// RetentionHours is how long published records are kept before cleanup.
	RetentionHours int `mapstructure:"OUTBOX_RETENTION_HOURS" default:"168"`
}

// CarrierConfig tunes the background carrier refresh.
type CarrierConfig struct {
	// RefreshEnabled toggles the background carrier poller.
	RefreshEnabled bool `mapstructure:"CARRIER_REFRESH_ENABLED" default:"false"`
	// RefreshIntervalMinutes is the polling period for shipped orders.
	RefreshIntervalMinutes int `mapstructure:"CARRIER_REFRESH_INTERVAL_MINUTES" default:"30"`
	// InterrapidisimoURL is the tracking page used by the scraping adapter.
	InterrapidisimoURL string `mapstructure:"CARRIER_INTERRAPIDISIMO_URL" default:"https://interrapidisimo.com/sigue-tu-envio/"`
	// InterrapidisimoAPIURL is the JSON API tried before falling back to
	// the browser.
	InterrapidisimoAPIURL string `mapstructure:"CARRIER_INTERRAPIDISIMO_API_URL" default:"https://apiv2.interrapidisimo.co/api/Rastreo/ObtenerRastreoGuiasClientePost"`
}

// ProxyConfig holds the optional upstream proxy for carrier scraping.
type ProxyConfig struct {
	// Enabled toggles use of the upstream proxy.
	Enabled bool `mapstructure:"PROXY_ENABLED" default:"false"`
	// Hostname is the upstream proxy host.
	Hostname string `mapstructure:"PROXY_HOSTNAME"`
	// Port is the upstream proxy port.
	Port int `mapstructure:"PROXY_PORT"`
	// Username authenticates against the upstream proxy.
	Username string `mapstructure:"PROXY_USERNAME"`
	// Password authenticates against the upstream proxy.
	Password string `mapstructure:"PROXY_PASSWORD"`
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
