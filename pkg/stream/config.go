package stream

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

type Config struct {
	KafkaVersion string
	Brokers      []string
	*TLSConfig
}

type TLSConfig struct {
	CertFile, KeyFile, CaFile string
}

func saramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	sc.Version = sarama.V1_0_0_0
	if c.KafkaVersion != "" {
		v, err := sarama.ParseKafkaVersion(c.KafkaVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid Kafka version %q", c.KafkaVersion)
		}

		sc.Version = v
	}

	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Timeout = 10 * time.Second
	// alerts with cutouts exceed the default limit
	sc.Producer.MaxMessageBytes = 4 << 20

	if c.TLSConfig != nil {
		tlsConfig, err := c.TLSConfig.Load()
		if err != nil {
			return nil, err
		}

		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tlsConfig
	}

	return sc, nil
}

// Load builds a client TLS configuration from the certificate, key and CA
// files.
func (c TLSConfig) Load() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load client certificate")
	}

	caCert, err := os.ReadFile(c.CaFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read CA certificate")
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.Errorf("no certificates found in %s", c.CaFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
