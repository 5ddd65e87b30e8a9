// Package certs loads the TLS material for the proxy server and for calls to
// an https prediction service.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrExpired is returned when a certificate is past its NotAfter.
var ErrExpired = errors.New("certificate expired")

// IsExpired checks if a certificate is expired at now.
func IsExpired(cert *x509.Certificate, now time.Time) bool {
	return cert.NotAfter.Before(now)
}

// ServerTLS loads a key pair for serving. An expired leaf is refused so the
// server fails at startup rather than on every handshake.
func ServerTLS(certFile, keyFile string, now time.Time) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}
	if IsExpired(leaf, now) {
		return nil, fmt.Errorf("%w: %s (not after %s)", ErrExpired, certFile, leaf.NotAfter.Format(time.RFC3339))
	}
	pair.Leaf = leaf
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadCertificates loads every .crt and .pem certificate under path, which may
// be a single file or a directory.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != path && !strings.HasSuffix(name, ".crt") && !strings.HasSuffix(name, ".pem") {
			return nil
		}
		certs, err := loadPEM(p)
		if err != nil {
			return err
		}
		out = append(out, certs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return out, nil
}

// loadPEM returns every CERTIFICATE block in the file.
func loadPEM(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to parse certificate PEM in %s", path)
	}
	return out, nil
}

// RootPool returns the system roots plus the certificates under path.
func RootPool(path string) (*x509.CertPool, error) {
	certs, err := LoadCertificates(path)
	if err != nil {
		return nil, err
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}
