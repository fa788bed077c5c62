package bus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
)

// newTLSConfig loads the broker CA bundle and, when both paths are present,
// the client certificate pair. A half-specified pair is logged and skipped so
// a misconfigured deployment still gets server-authenticated TLS.
func newTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle %s: %w", caPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("CA bundle %s contains no usable certificates", caPath)
	}

	cfg := &tls.Config{RootCAs: pool}

	switch {
	case certPath != "" && keyPath != "":
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case certPath != "" || keyPath != "":
		slog.Warn("mqtt client certificate/key not fully specified, proceeding without client auth")
	}

	return cfg, nil
}
