package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, 30, cfg.Business.OrderTimeoutMinutes)
	require.Equal(t, "0 3 * * *", cfg.Jobs.ShippedAutoCompleteCron)
	require.True(t, cfg.Gateway.MockApprove)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  host: db
  port: 5432
  user: pay
  password: secret
  database: contentpay
kafka:
  brokers: [k1:9092, k2:9092]
business:
  order_timeout_minutes: 15
`), 0o644))
	t.Setenv("CONTENTPAY_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 15, cfg.Business.OrderTimeoutMinutes)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "host=db port=5432 user=pay password=secret dbname=contentpay sslmode=disable TimeZone=UTC", cfg.Database.DSN())

	cfg.Database.Driver = "mysql"
	require.Equal(t, "pay:secret@tcp(db:5432)/contentpay?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.DSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
