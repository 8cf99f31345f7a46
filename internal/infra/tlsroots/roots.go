package tlsroots

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCertsFound is returned when a PEM input holds no certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// Pool is a set of trusted certificates, such as the CAs that issue client
// identity certificates.
type Pool struct {
	certPool *x509.CertPool
	certs    []*x509.Certificate
}

// NewEmptyPool creates a pool without system roots.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// LoadPool creates a pool from PEM files and directories of them.
func LoadPool(paths ...string) (*Pool, error) {
	p := NewEmptyPool()
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: %w", err)
		}
		if fi.IsDir() {
			err = p.AddCertDir(path)
		} else {
			err = p.AddCertFile(path)
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddCertFile adds every certificate of a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// AddCertPEM adds the certificates of PEM data. Blocks of other types are
// skipped.
func (p *Pool) AddCertPEM(data []byte) error {
	certs, err := ParsePEM(data)
	if err != nil {
		return err
	}
	for _, c := range certs {
		p.AddCert(c)
	}
	return nil
}

// AddCert adds a certificate.
func (p *Pool) AddCert(cert *x509.Certificate) {
	p.certPool.AddCert(cert)
	p.certs = append(p.certs, cert)
}

// AddCertDir adds the .pem, .crt and .cer files of dir. A file that does not
// parse fails the whole directory.
func (p *Pool) AddCertDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pem", ".crt", ".cer":
			if err := p.AddCertFile(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// Len returns the number of certificates added.
func (p *Pool) Len() int {
	return len(p.certs)
}

// Certificates returns the certificates added, in order.
func (p *Pool) Certificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), p.certs...)
}

// ParsePEM parses every CERTIFICATE block of data.
func ParsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertsFound
	}
	return certs, nil
}

// Thumbprint returns the lowercase hex SHA-256 digest of the certificate's
// DER encoding. Identity mappings are keyed by it.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
