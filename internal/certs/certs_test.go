package certs

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// writePair writes a self-signed cert valid until notAfter into dir.
func writePair(t *testing.T, dir, name string, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{"localhost"},
		NotBefore:    notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, name+".crt")
	keyFile = filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestServerTLS(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, "server", now.Add(30*24*time.Hour))

	cfg, err := ServerTLS(certFile, keyFile, now)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "server", cfg.Certificates[0].Leaf.Subject.CommonName)

	_, err = ServerTLS(certFile, keyFile, now.Add(60*24*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)

	_, err = ServerTLS(certFile, filepath.Join(dir, "missing.key"), now)
	assert.Error(t, err)
}

func TestLoadCertificates(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writePair(t, dir, "a", now.Add(time.Hour))
	writePair(t, dir, "b", now.Add(time.Hour))

	all, err := LoadCertificates(dir)
	require.NoError(t, err)
	assert.Len(t, all, 2, "key files are skipped")

	one, err := LoadCertificates(certFile)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = LoadCertificates(t.TempDir())
	assert.Error(t, err)
}

func TestRootPool(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writePair(t, dir, "ca", now.Add(time.Hour))

	pool, err := RootPool(certFile)
	require.NoError(t, err)
	assert.NotNil(t, pool)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = RootPool(bad)
	assert.Error(t, err)
}

func TestIsExpired(t *testing.T) {
	c := &x509.Certificate{NotAfter: now}
	assert.False(t, IsExpired(c, now.Add(-time.Second)))
	assert.True(t, IsExpired(c, now.Add(time.Second)))
}
