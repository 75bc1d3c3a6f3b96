// Package tls builds the server TLS configuration for the HTTP API and the
// host bridge (wss://).
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/lazyrestore/internal/config"
)

const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

// parseVersion maps a version string to its crypto/tls constant. ok is false
// for empty or unknown values.
func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// versions resolves the accepted range. Browsers connecting over wss
// negotiate 1.3; 1.2 stays reachable when asked for.
func versions(c config.TLSConfig) (minVer, maxVer uint16) {
	minVer, maxVer = tls.VersionTLS12, tls.VersionTLS13
	if v, ok := parseVersion(c.MinVersion); ok {
		minVer = v
	}
	if v, ok := parseVersion(c.MaxVersion); ok {
		maxVer = v
	}
	return minVer, maxVer
}

// readWithin reads p, refusing paths that escape baseDir.
func readWithin(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	absFile, err := filepath.Abs(clean)
	if err != nil {
		return nil, err
	}
	if absFile != absBase && !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		return nil, errors.New("file path outside of certificate directory")
	}
	return os.ReadFile(clean)
}

// certLoader reloads the key pair on each handshake so renewed files are
// picked up without a restart.
func certLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := readWithin(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return &pair, nil
	}
}

// Setup returns the server TLS configuration, or nil when TLS is disabled.
// Explicit cert_file/key_file win over dir.
func Setup(c config.TLSConfig) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	certFile, keyFile := c.CertFile, c.KeyFile
	if certFile == "" || keyFile == "" {
		if c.Dir == "" {
			return nil, errors.New("tls enabled but neither cert_file/key_file nor dir is set")
		}
		certFile = filepath.Join(c.Dir, CertName)
		keyFile = filepath.Join(c.Dir, KeyName)
		if c.AutoGenerate && !exists(certFile, keyFile) {
			if err := generate(c); err != nil {
				return nil, fmt.Errorf("generate certificate: %w", err)
			}
		}
	}
	if !exists(certFile, keyFile) {
		return nil, fmt.Errorf("certificate %s or key %s not found", certFile, keyFile)
	}

	minVer, maxVer := versions(c)
	return &tls.Config{
		GetCertificate: certLoader(certFile, keyFile),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}, nil
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func generate(c config.TLSConfig) error {
	dnsNames := c.DNSNames
	if len(dnsNames) == 0 {
		dnsNames = []string{"localhost"}
	}
	ips := c.IPAddresses
	if len(ips) == 0 {
		ips = []string{"127.0.0.1", "::1"}
	}
	days := c.ValidDays
	if days <= 0 {
		days = 365
	}
	return GenerateSelfSigned(CertConfig{
		CommonName:   orDefault(c.CommonName, "localhost"),
		Organization: "lazyrestore",
		DNSNames:     dnsNames,
		IPAddresses:  ips,
		NotAfter:     time.Now().AddDate(0, 0, days),
		Dir:          c.Dir,
	})
}
