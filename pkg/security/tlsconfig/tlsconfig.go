// Package tlsconfig builds tls.Config values for the admin API from file
// based certificate material, with optional lazy reload for rotation.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"sync"
	"time"
)

// Options defines mTLS configuration inputs.
type Options struct {
	Enable             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
	ServerName         string
}

// certCacheTTL bounds how often a hot-reload config re-reads the key pair.
const certCacheTTL = 10 * time.Second

func loadCAPool(path string) (*x509.CertPool, error) {
	ca, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(ca)
	return pool, nil
}

// Server returns a tls.Config for servers if enabled, otherwise nil.
func (o Options) Server() (*tls.Config, error) {
	if !o.Enable {
		return nil, nil
	}
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, errors.New("tls: server cert/key required when TLS enabled")
	}
	cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
	if !o.Enable {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
	if o.ServerName != "" {
		cfg.ServerName = o.ServerName
	}
	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if o.CertFile != "" && o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// certLoader caches a key pair from disk with a short TTL so rotated files
// are picked up on the next handshake without a restart.
type certLoader struct {
	certFile string
	keyFile  string

	mu       sync.RWMutex
	cached   *tls.Certificate
	lastLoad time.Time
}

func (l *certLoader) load() (*tls.Certificate, error) {
	if l.certFile == "" || l.keyFile == "" {
		return nil, nil
	}
	l.mu.RLock()
	if l.cached != nil && time.Since(l.lastLoad) < certCacheTTL {
		c := *l.cached
		l.mu.RUnlock()
		return &c, nil
	}
	l.mu.RUnlock()
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cached = &cert
	l.lastLoad = time.Now()
	l.mu.Unlock()
	return &cert, nil
}

// ServerHotReload returns a server tls.Config that reloads the certificate
// from disk lazily on handshake, supporting manual rotation without a
// restart. The CA pool is loaded once.
func (o Options) ServerHotReload() (*tls.Config, error) {
	if !o.Enable {
		return nil, nil
	}
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, errors.New("tls: server cert/key required when TLS enabled")
	}
	cfg := &tls.Config{}
	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	loader := &certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
	cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return loader.load()
	}
	return cfg, nil
}

// ClientHotReload returns a client tls.Config that reloads the client
// certificate from disk on demand. CA roots are loaded once.
func (o Options) ClientHotReload() (*tls.Config, error) {
	if !o.Enable {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
	if o.ServerName != "" {
		cfg.ServerName = o.ServerName
	}
	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	loader := &certLoader{certFile: o.CertFile, keyFile: o.KeyFile}
	cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
		return loader.load()
	}
	return cfg, nil
}
