package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// LoadTLSConfig builds the client TLS configuration from the node's certificate material.
//
// The CA bundle pins the broker's trust root; when absent the system pool is
// used. The client certificate and key must be given together and are
// presented for mutual TLS, which is how cloud IoT brokers authenticate things.
//
// Parameters:
//   - cfg: MQTT configuration (TLS section and broker host)
//
// Returns:
//   - *tls.Config: Ready for paho's SetTLSConfig
//   - error: ErrInvalidTLS wrapping the cause when material is unreadable or malformed
func LoadTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: cfg.TLS.ServerName,
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = cfg.Broker.Host
	}

	caPEM, err := readPEM(cfg.TLS.CAPEM, cfg.TLS.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA: %w", ErrInvalidTLS, err)
	}
	if caPEM != nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w: CA bundle contains no certificates", ErrInvalidTLS)
		}
		tlsConfig.RootCAs = pool
	}

	certPEM, err := readPEM(cfg.TLS.CertPEM, cfg.TLS.CertFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading client certificate: %w", ErrInvalidTLS, err)
	}
	keyPEM, err := readPEM(cfg.TLS.KeyPEM, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading private key: %w", ErrInvalidTLS, err)
	}

	switch {
	case certPEM == nil && keyPEM == nil:
	case certPEM == nil || keyPEM == nil:
		return nil, fmt.Errorf("%w: client certificate and private key must be provided together", ErrInvalidTLS)
	default:
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTLS, err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	return tlsConfig, nil
}

// readPEM returns inline PEM if set, otherwise the file contents, otherwise nil.
func readPEM(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}
