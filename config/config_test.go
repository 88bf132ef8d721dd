package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGO_DB_URI", "mongodb://mongo:27017")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Address)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.MongoURI)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, SinkLog, cfg.NotificationSink)
	assert.Equal(t, []string{"cassandra-db"}, cfg.CassandraHosts)
	assert.Equal(t, 50, cfg.FeedMaxPageSize)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TASKHUB_STORE_DRIVER", "sqlite")
	t.Setenv("TASKHUB_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("TASKHUB_STORE_TX_TIMEOUT", "2s")
	t.Setenv("SECRET_KEY_AUTH", "s3cret")
	t.Setenv("JAEGER_ADDRESS", "http://jaeger:14268/api/traces")
	t.Setenv("TASKHUB_NOTIFICATIONS_SINK", "cassandra")
	t.Setenv("TASKHUB_CASSANDRA_HOSTS", "c1, c2")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.Equal(t, "s3cret", cfg.AuthSecret)
	assert.Equal(t, "http://jaeger:14268/api/traces", cfg.JaegerAddress)
	assert.Equal(t, []string{"c1", "c2"}, cfg.CassandraHosts)
}

func TestLoad_File(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
store:
  driver: sqlite
sqlite:
  path: data/taskhub.db
notifications:
  sink: http
  url: http://notifications-service:8000/notifications
`)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "data/taskhub.db", cfg.SQLitePath)
	assert.Equal(t, SinkHTTP, cfg.NotificationSink)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: DriverSQLite, SQLitePath: "x.db", NotificationSink: SinkLog, OpTimeout: time.Second, TxTimeout: time.Second}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"mongo without uri":  func(c *Config) { c.StoreDriver = DriverMongo },
		"unknown driver":     func(c *Config) { c.StoreDriver = "postgres" },
		"http without url":   func(c *Config) { c.NotificationSink = SinkHTTP },
		"unknown sink":       func(c *Config) { c.NotificationSink = "pigeon" },
		"zero tx timeout":    func(c *Config) { c.TxTimeout = 0 },
		"cassandra no hosts": func(c *Config) { c.NotificationSink = SinkCassandra },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
