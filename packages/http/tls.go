package http

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/pkg/errors"
)

// TLSMaterial is PEM encoded mutual TLS material for one counterpart.
type TLSMaterial struct {
	ClientCert []byte
	ClientKey  []byte
	ServerCA   []byte
}

// Complete reports whether all three parts are present.
func (m *TLSMaterial) Complete() bool {
	return m != nil && len(m.ClientCert) > 0 && len(m.ClientKey) > 0 && len(m.ServerCA) > 0
}

// NewTLSConfig builds a client TLS config presenting the client
// certificate and trusting only the given CA.
func NewTLSConfig(m *TLSMaterial) (*tls.Config, error) {
	if !m.Complete() {
		return nil, errors.New("incomplete TLS material")
	}
	cert, err := tls.X509KeyPair(m.ClientCert, m.ClientKey)
	if err != nil {
		return nil, errors.Wrap(err, "loading client key pair")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(m.ServerCA) {
		return nil, errors.New("no certificates found in server CA")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
