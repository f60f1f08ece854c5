package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	cfg, err := Load("testdata/cellbridge.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/etc/cellbridge/rules.yaml", cfg.Rules.Path)
	assert.False(t, cfg.Rules.Watch)
	assert.Equal(t, 250*time.Millisecond, cfg.Rules.Debounce)

	assert.Equal(t, "events", cfg.Producer.Name)
	assert.Equal(t, "kafka", cfg.Producer.ConnectorName)
	assert.Equal(t, 5*time.Second, cfg.Producer.ConnectTimeout)
	assert.Equal(t, []any{"kafka-0:9092", "kafka-1:9092"}, cfg.Producer.Config["brokers"])

	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, "127.0.0.1:9000", cfg.Ingest.ListenAddr)
	assert.Equal(t, int64(8<<20), cfg.Ingest.MaxBodyBytes)
	assert.True(t, cfg.Ingest.TLS.Enabled)
	assert.Equal(t, "tls/tls.crt", cfg.Ingest.TLS.CertFile)
	assert.Equal(t, []string{"ingest.internal"}, cfg.Ingest.TLS.Hosts)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CELLBRIDGE_CODEC", "proto")
	t.Setenv("CELLBRIDGE_INGEST_LISTENADDR", ":7000")
	t.Setenv("CELLBRIDGE_INGEST_TLS_HOSTS", "a.example,b.example")
	t.Setenv("CELLBRIDGE_INGEST_SUBMITTIMEOUT", "5s")

	cfg, err := Load("testdata/cellbridge.yaml")
	require.NoError(t, err)
	assert.Equal(t, "proto", cfg.Codec)
	assert.Equal(t, ":7000", cfg.Ingest.ListenAddr)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Ingest.TLS.Hosts)
	assert.Equal(t, 5*time.Second, cfg.Ingest.SubmitTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rules.xml", cfg.Rules.Path)
	assert.True(t, cfg.Rules.Watch)
	assert.Equal(t, "debug", cfg.Producer.ConnectorName)
	assert.Equal(t, "proto", cfg.Codec)
	assert.Equal(t, ":8080", cfg.Ingest.ListenAddr)
}
