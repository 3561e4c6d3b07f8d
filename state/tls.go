package state

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds client certificate paths for the remote stores.
type TLSConfig struct {
	// Enabled turns TLS on. The remaining fields are ignored when false.
	Enabled bool `yaml:"enabled"`

	// CertFile and KeyFile are the PEM client certificate and key. Both are
	// optional; without them the connection is TLS without a client
	// certificate.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// CAFile is the PEM bundle used to verify the server. Empty uses the
	// system pool.
	CAFile string `yaml:"ca_file"`
}

// ClientConfig builds a tls.Config, or returns nil when TLS is disabled.
func (c *TLSConfig) ClientConfig() (*tls.Config, error) {
	if c == nil || !c.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.CertFile != "" || c.KeyFile != "" {
		if c.CertFile == "" || c.KeyFile == "" {
			return nil, fmt.Errorf("TLS cert file and key file must be set together")
		}
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caData, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
