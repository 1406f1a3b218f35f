package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "missing")
	require.NoError(t, err)

	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, "gorm", cfg.Messages.Driver)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "memory", cfg.PubSub.Driver)
	assert.Equal(t, 24*time.Hour, cfg.DeepLink.TokenTTL)
	assert.Equal(t, int64(8192), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, "messaging-service", cfg.Log.ServiceName)
	assert.Equal(t, "none", cfg.Avatars.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Avatars.URLTTL)
	assert.Equal(t, "us-east-1", cfg.Avatars.S3.Region)
}

func TestLoadFile_Overrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
messages:
  driver: cassandra
cassandra:
  hosts: ["c1:9042", "c2:9042"]
cache:
  driver: redis
  ttl: 5s
deeplink:
  token_store: redis
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, err := LoadFile(file)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "cassandra", cfg.Messages.Driver)
	assert.Equal(t, []string{"c1:9042", "c2:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis", cfg.DeepLink.TokenStore)
}

func TestLoad_CassandraHostsEnv(t *testing.T) {
	t.Setenv("CASSANDRA_HOSTS", "a:9042, b:9042")

	cfg, err := Load(t.TempDir(), "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9042", "b:9042"}, cfg.Cassandra.Hosts)
}
