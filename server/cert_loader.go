package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultCertCheckInterval limits how often the certificate files are
// checked for changes.
const DefaultCertCheckInterval = time.Minute

// CertLoader serves a TLS certificate that is reloaded when the files on
// disk change, so renewed certificates are picked up without a restart.
type CertLoader struct {
	certFile      string
	keyFile       string
	logger        *slog.Logger
	checkInterval time.Duration

	mu        sync.RWMutex
	cert      *tls.Certificate
	certMod   time.Time
	keyMod    time.Time
	lastCheck time.Time
}

// CertLoaderOption configures a CertLoader.
type CertLoaderOption func(*CertLoader)

// WithCheckInterval sets the minimum time between checks of the files.
func WithCheckInterval(d time.Duration) CertLoaderOption {
	return func(l *CertLoader) {
		l.checkInterval = d
	}
}

// NewCertLoader loads the key pair and returns a CertLoader for it.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger, opts ...CertLoaderOption) (*CertLoader, error) {
	loader := &CertLoader{
		certFile:      certFile,
		keyFile:       keyFile,
		logger:        logger,
		checkInterval: DefaultCertCheckInterval,
	}
	for _, opt := range opts {
		opt(loader)
	}

	certStat, keyStat, err := loader.stat()
	if err != nil {
		return nil, err
	}
	if err := loader.reload(certStat.ModTime(), keyStat.ModTime()); err != nil {
		return nil, err
	}
	loader.lastCheck = time.Now()
	return loader, nil
}

// TLSConfig returns a server TLS config backed by the loader.
func (l *CertLoader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}
}

// GetCertificate is a callback for tls.Config.GetCertificate. Errors while
// checking or reloading keep the previous certificate in service.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if time.Since(l.lastCheck) < l.checkInterval {
		defer l.mu.RUnlock()
		return l.cert, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another handshake may have checked while we waited for the lock.
	if time.Since(l.lastCheck) < l.checkInterval {
		return l.cert, nil
	}
	l.lastCheck = time.Now()

	certStat, keyStat, err := l.stat()
	if err != nil {
		l.logger.Error("failed to stat certificate files", "error", err)
		return l.cert, nil
	}

	if !certStat.ModTime().Equal(l.certMod) || !keyStat.ModTime().Equal(l.keyMod) {
		if err := l.reload(certStat.ModTime(), keyStat.ModTime()); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

func (l *CertLoader) stat() (os.FileInfo, os.FileInfo, error) {
	certStat, err := os.Stat(l.certFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat cert file: %w", err)
	}
	keyStat, err := os.Stat(l.keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat key file: %w", err)
	}
	return certStat, keyStat, nil
}

func (l *CertLoader) reload(certMod, keyMod time.Time) error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.cert = &cert
	l.certMod = certMod
	l.keyMod = keyMod
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
