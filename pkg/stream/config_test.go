package stream

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCertificate writes a self-signed certificate and its key to dir.
func writeCertificate(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "alertpacket"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "client.crt")
	keyFile = filepath.Join(dir, "client.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestTLSConfigLoad(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCertificate(t, dir)
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	config, err := TLSConfig{CertFile: certFile, KeyFile: keyFile, CaFile: certFile}.Load()
	require.NoError(t, err)
	assert.Len(t, config.Certificates, 1)
	assert.NotNil(t, config.RootCAs)

	for name, c := range map[string]TLSConfig{
		"missing certificate": {CertFile: filepath.Join(dir, "missing"), KeyFile: keyFile, CaFile: certFile},
		"missing CA":          {CertFile: certFile, KeyFile: keyFile, CaFile: filepath.Join(dir, "missing")},
		"CA without PEM":      {CertFile: certFile, KeyFile: keyFile, CaFile: garbage},
	} {
		_, err := c.Load()
		assert.Error(t, err, name)
	}
}

func TestSaramaConfig(t *testing.T) {
	sc, err := saramaConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, sarama.V1_0_0_0, sc.Version)
	assert.True(t, sc.Producer.Return.Successes)
	assert.False(t, sc.Net.TLS.Enable)

	sc, err = saramaConfig(Config{KafkaVersion: "2.8.0"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_8_0_0, sc.Version)

	_, err = saramaConfig(Config{KafkaVersion: "latest"})
	assert.Error(t, err)

	certFile, keyFile := writeCertificate(t, t.TempDir())
	sc, err = saramaConfig(Config{TLSConfig: &TLSConfig{CertFile: certFile, KeyFile: keyFile, CaFile: certFile}})
	require.NoError(t, err)
	assert.True(t, sc.Net.TLS.Enable)
	require.NotNil(t, sc.Net.TLS.Config)
}
