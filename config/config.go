package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	SinkLog       = "log"
	SinkHTTP      = "http"
	SinkCassandra = "cassandra"
)

type Config struct {
	Address       string
	JaegerAddress string

	StoreDriver string
	OpTimeout   time.Duration
	TxTimeout   time.Duration

	MongoURI      string
	MongoDatabase string
	SQLitePath    string

	RedisAddr   string
	CategoryTTL time.Duration

	AuthSecret string
	AuthIssuer string

	NotificationSink  string
	NotificationsURL  string
	CassandraHosts    []string
	CassandraKeyspace string

	FeedMaxPageSize int
	ShutdownTimeout time.Duration
}

// GetConfig reads taskhub.yaml when present, then the environment.
func GetConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("taskhub")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskhub")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Load(v)
}

// Load builds the configuration from v after applying defaults and
// environment bindings.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Address:           v.GetString("http.address"),
		JaegerAddress:     v.GetString("jaeger.address"),
		StoreDriver:       v.GetString("store.driver"),
		OpTimeout:         v.GetDuration("store.op_timeout"),
		TxTimeout:         v.GetDuration("store.tx_timeout"),
		MongoURI:          v.GetString("mongo.uri"),
		MongoDatabase:     v.GetString("mongo.database"),
		SQLitePath:        v.GetString("sqlite.path"),
		RedisAddr:         v.GetString("redis.addr"),
		CategoryTTL:       v.GetDuration("redis.category_ttl"),
		AuthSecret:        v.GetString("auth.secret"),
		AuthIssuer:        v.GetString("auth.issuer"),
		NotificationSink:  v.GetString("notifications.sink"),
		NotificationsURL:  v.GetString("notifications.url"),
		CassandraHosts:    splitList(v.GetStringSlice("cassandra.hosts")),
		CassandraKeyspace: v.GetString("cassandra.keyspace"),
		FeedMaxPageSize:   v.GetInt("feed.max_page_size"),
		ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.address", ":8000")
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.op_timeout", 5*time.Second)
	v.SetDefault("store.tx_timeout", 5*time.Second)
	v.SetDefault("mongo.database", "taskhub")
	v.SetDefault("sqlite.path", "taskhub.db")
	v.SetDefault("redis.category_ttl", 5*time.Minute)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("notifications.sink", SinkLog)
	v.SetDefault("cassandra.hosts", []string{"cassandra-db"})
	v.SetDefault("cassandra.keyspace", "notifications")
	v.SetDefault("feed.max_page_size", 50)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("TASKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// names shared with the rest of the deployment
	for key, env := range map[string]string{
		"mongo.uri":      "MONGO_DB_URI",
		"jaeger.address": "JAEGER_ADDRESS",
		"auth.secret":    "SECRET_KEY_AUTH",
	} {
		if err := v.BindEnv(key, "TASKHUB_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("mongo.uri (MONGO_DB_URI) is required for the mongo store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.NotificationSink {
	case SinkLog:
	case SinkHTTP:
		if c.NotificationsURL == "" {
			return errors.New("notifications.url is required for the http sink")
		}
	case SinkCassandra:
		if len(c.CassandraHosts) == 0 {
			return errors.New("cassandra.hosts is required for the cassandra sink")
		}
	default:
		return fmt.Errorf("unknown notification sink %q", c.NotificationSink)
	}

	if c.OpTimeout <= 0 || c.TxTimeout <= 0 {
		return errors.New("store timeouts must be positive")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
