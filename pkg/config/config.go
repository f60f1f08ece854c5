package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/cellbridge/pkg/config.Version=..."
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Rules    RulesConfig   `mapstructure:"rules"`
	Producer pipeline.Peer `mapstructure:"producer"`
	Codec    string        `mapstructure:"codec"`
	Ingest   IngestConfig  `mapstructure:"ingest"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	LogLevel string        `mapstructure:"logLevel"`
}

type RulesConfig struct {
	// Path of the rule document. The format follows the extension (xml, yaml, json, toml).
	Path string `mapstructure:"path"`
	// Format overrides the format derived from Path.
	Format string `mapstructure:"format"`
	// Watch reloads the rules when the file changes.
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type IngestConfig struct {
	ListenAddr   string `mapstructure:"listenAddr"`
	MaxBodyBytes int64  `mapstructure:"maxBodyBytes"`
	// SubmitTimeout bounds a single batch including the acknowledgement barrier.
	SubmitTimeout time.Duration `mapstructure:"submitTimeout"`
	TLS           TLSConfig     `mapstructure:"tls"`
}

// TLSConfig enables HTTPS on the ingest server. A self-signed certificate for
// Hosts is generated when CertFile or KeyFile does not exist.
type TLSConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	CertFile string   `mapstructure:"certFile"`
	KeyFile  string   `mapstructure:"keyFile"`
	Hosts    []string `mapstructure:"hosts"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules.path", "rules.xml")
	v.SetDefault("rules.watch", true)
	v.SetDefault("rules.debounce", 250*time.Millisecond)
	v.SetDefault("producer.name", "default")
	v.SetDefault("producer.connector", pipeline.ProducerDebug)
	v.SetDefault("producer.connectTimeout", 30*time.Second)
	v.SetDefault("codec", "proto")
	v.SetDefault("ingest.listenAddr", ":8080")
	v.SetDefault("ingest.maxBodyBytes", 8<<20)
	v.SetDefault("ingest.submitTimeout", 30*time.Second)
	v.SetDefault("ingest.tls.certFile", "tls/tls.crt")
	v.SetDefault("ingest.tls.keyFile", "tls/tls.key")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logLevel", "info")
}

// Load reads config from file or environment. Environment variables use the
// CELLBRIDGE prefix with dots replaced by underscores, eg CELLBRIDGE_INGEST_LISTENADDR.
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith is Load on a caller provided viper instance, eg one with bound flags.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cellbridge")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CELLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	// Comma separated strings from the environment decode into slices, eg
	// CELLBRIDGE_INGEST_TLS_HOSTS=a.example,b.example
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
