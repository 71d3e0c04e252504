// Package cert provides the minimal self-signed TLS credentials the
// transport package needs to bring up a QUIC endpoint. Full certificate
// management -- CA hierarchies, key rotation, persistence -- is out of
// scope: this package covers exactly what a same-process QUIC listener
// needs, grounded on the shape of parl's own self-signed-certificate
// helper (github.com/haraldrudell/parl/parlca) but reduced further: one
// ed25519 key, one self-signed leaf, no CA, no persistence.
package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// ServerName is the TLS server name this module's peers present and
// expect.
const ServerName = "quicsend"

// SelfSigned generates a fresh ed25519 key and a self-signed leaf
// certificate valid for ServerName, suitable for a single QUIC listener's
// lifetime.
func SelfSigned() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cert: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cert: serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: ServerName},
		DNSNames:     []string{ServerName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cert: create certificate: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}

// ServerTLSConfig returns a tls.Config for a QUIC listener presenting a
// freshly generated self-signed certificate under the given ALPN.
func ServerTLSConfig(alpn string) (*tls.Config, error) {
	leaf, err := SelfSigned()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{leaf},
		NextProtos:   []string{alpn},
	}, nil
}

// ClientTLSConfig returns a tls.Config that accepts any certificate the
// peer presents. Strong cryptographic authentication of the remote peer's
// identity is explicitly not a goal here: this module protects
// confidentiality of bytes in transit, not the peer's identity. The
// rendezvous/hole-punch/ticket exchange is what establishes "this is the
// peer I intended to talk to", not the certificate.
func ClientTLSConfig(alpn string) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{alpn},
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("cert: peer presented no certificate")
			}
			_, err := x509.ParseCertificate(rawCerts[0])
			return err
		},
	}
}
