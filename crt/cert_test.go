package crt

import (
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateReusesFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	first, err := LoadOrCreate(certPath, keyPath, "bc1qexample", 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, first.Certificate)

	leaf, err := x509.ParseCertificate(first.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"bc1qexample"}, leaf.Subject.Organization)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), leaf.NotAfter, time.Minute)

	second, err := LoadOrCreate(certPath, keyPath, "ignored", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])
}
