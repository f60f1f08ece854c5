package mqtt

import (
	"cmp"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// TLSOptions holds TLS configuration that can be marshaled from JSON/YAML
type TLSOptions struct {
	InsecureSkipVerify bool   `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
	ServerName         string `json:"serverName,omitempty" yaml:"serverName,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CACert             string `json:"caCert,omitempty" yaml:"caCert,omitempty"`
	ClientCert         string `json:"clientCert,omitempty" yaml:"clientCert,omitempty"`
	ClientKey          string `json:"clientKey,omitempty" yaml:"clientKey,omitempty"`
}

// Config is the MQTT producer configuration
type Config struct {
	Servers []string `json:"servers"`
	// TopicPrefix is prepended to each topic, separated by a slash.
	TopicPrefix string      `json:"topicPrefix"`
	ClientID    string      `json:"clientID"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TLS         *TLSOptions `json:"tls,omitempty"`
	// QoS must be 1 or 2, the dispatcher needs a broker acknowledgement.
	QoS            byte  `json:"qos,omitempty"`
	Retained       bool  `json:"retained,omitempty"`
	KeepAlive      int64 `json:"keepAlive,omitempty"`      // seconds
	ConnectTimeout int64 `json:"connectTimeout,omitempty"` // seconds
	WriteTimeout   int64 `json:"writeTimeout,omitempty"`   // seconds
	CleanSession   *bool `json:"cleanSession,omitempty"`
	// Order keeps messages in publish order, at the cost of throughput.
	Order bool `json:"order,omitempty"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{cmp.Or(os.Getenv("CELLBRIDGE_MQTT_BROKER"), "tcp://127.0.0.1:1883")}
	}
	c.Username = cmp.Or(c.Username, os.Getenv("CELLBRIDGE_MQTT_USERNAME"))
	c.Password = cmp.Or(c.Password, os.Getenv("CELLBRIDGE_MQTT_PASSWORD"))
	c.ClientID = cmp.Or(c.ClientID, fmt.Sprintf("cellbridge-%s", uuid.NewString()[:8]))
	if c.QoS == 0 {
		c.QoS = 1
	}
}

func toPahoOptions(c *Config) (*mqtt.ClientOptions, error) {
	if c.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", c.QoS)
	}

	pahoOpts := mqtt.NewClientOptions()
	for _, server := range c.Servers {
		pahoOpts.AddBroker(server)
	}

	pahoOpts.SetClientID(c.ClientID)
	if c.Username != "" {
		pahoOpts.SetUsername(c.Username)
	}
	if c.Password != "" {
		pahoOpts.SetPassword(c.Password)
	}
	if c.TLS != nil {
		tlsConfig, err := createTLSConfig(c.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		pahoOpts.SetTLSConfig(tlsConfig)
	}
	if c.KeepAlive > 0 {
		pahoOpts.SetKeepAlive(time.Duration(c.KeepAlive) * time.Second)
	}
	if c.ConnectTimeout > 0 {
		pahoOpts.SetConnectTimeout(time.Duration(c.ConnectTimeout) * time.Second)
	}
	if c.WriteTimeout > 0 {
		pahoOpts.SetWriteTimeout(time.Duration(c.WriteTimeout) * time.Second)
	}
	if c.CleanSession != nil {
		pahoOpts.SetCleanSession(*c.CleanSession)
	}

	pahoOpts.SetOrderMatters(c.Order)
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetConnectRetry(true)

	return pahoOpts, nil
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	// Load CA certificate
	if tlsOpts.CAFile != "" || tlsOpts.CACert != "" {
		caCertPool := x509.NewCertPool()

		var caCert []byte
		var err error

		if tlsOpts.CAFile != "" {
			caCert, err = os.ReadFile(tlsOpts.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
		} else {
			caCert = []byte(tlsOpts.CACert)
		}

		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}

		config.RootCAs = caCertPool
	}

	// Load client certificate and key
	if (tlsOpts.CertFile != "" && tlsOpts.KeyFile != "") ||
		(tlsOpts.ClientCert != "" && tlsOpts.ClientKey != "") {

		var cert tls.Certificate
		var err error

		if tlsOpts.CertFile != "" && tlsOpts.KeyFile != "" {
			cert, err = tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
		} else {
			cert, err = tls.X509KeyPair([]byte(tlsOpts.ClientCert), []byte(tlsOpts.ClientKey))
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
