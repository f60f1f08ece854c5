package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSaramaConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)

	conf, err := cfg.ToSaramaConfig()
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForAll, conf.Producer.RequiredAcks)
	assert.True(t, conf.Producer.Return.Successes)
	assert.True(t, conf.Producer.Return.Errors)
	assert.Equal(t, 3, conf.Producer.Retry.Max)
	assert.Equal(t, "cellbridge", conf.ClientID)
	assert.False(t, conf.Net.SASL.Enable)
	assert.NoError(t, conf.Validate())
}

func TestToSaramaConfigSASL(t *testing.T) {
	tests := []struct {
		algorithm string
		mechanism sarama.SASLMechanism
		scram     bool
	}{
		{"sha512", sarama.SASLTypeSCRAMSHA512, true},
		{"sha256", sarama.SASLTypeSCRAMSHA256, true},
		{"plain", sarama.SASLTypePlaintext, false},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			cfg := Config{SASL: &SASL{Enable: true, Username: "u", Password: "p", Algorithm: tt.algorithm}}
			cfg.setDefaults()
			conf, err := cfg.ToSaramaConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.mechanism, conf.Net.SASL.Mechanism)
			if tt.scram {
				require.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc)
				assert.IsType(t, &XDGSCRAMClient{}, conf.Net.SASL.SCRAMClientGeneratorFunc())
			}
		})
	}

	cfg := Config{SASL: &SASL{Enable: true, Algorithm: "md5"}}
	cfg.setDefaults()
	_, err := cfg.ToSaramaConfig()
	assert.Error(t, err)
}

func TestToSaramaConfigIdempotent(t *testing.T) {
	cfg := Config{Idempotent: true}
	cfg.setDefaults()
	conf, err := cfg.ToSaramaConfig()
	require.NoError(t, err)
	assert.True(t, conf.Producer.Idempotent)
	assert.Equal(t, 1, conf.Net.MaxOpenRequests)
	assert.NoError(t, conf.Validate())
}

func TestToSaramaConfigErrors(t *testing.T) {
	cfg := Config{Version: "not-a-version"}
	_, err := cfg.ToSaramaConfig()
	assert.Error(t, err)

	cfg = Config{TLS: TLS{Enable: true, CAFile: "testdata/missing-ca.pem"}}
	cfg.setDefaults()
	_, err = cfg.ToSaramaConfig()
	assert.Error(t, err)
}

func TestXDGSCRAMClientBegin(t *testing.T) {
	c := &XDGSCRAMClient{HashGeneratorFcn: SHA256}
	require.NoError(t, c.Begin("user", "pencil", ""))
	first, err := c.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, c.Done())
}
