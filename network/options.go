package network

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"
)

type Option func(*HTTPTransport)

// WithTimeout bounds every request, connection included.
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) {
		t.timeout = timeout
	}
}

// WithCertificate presents cert to the authority and switches to https.
func WithCertificate(cert tls.Certificate) Option {
	return func(t *HTTPTransport) {
		if t.tlsConfig == nil {
			t.tlsConfig = &tls.Config{}
		}
		t.tlsConfig.Certificates = append(t.tlsConfig.Certificates, cert)
		t.client.Transport = &http.Transport{
			TLSClientConfig: t.tlsConfig,
		}
	}
}

// WithLimitedCAs only trusts authorities signed by certPool.
func WithLimitedCAs(certPool *x509.CertPool) Option {
	return func(t *HTTPTransport) {
		if t.tlsConfig == nil {
			t.tlsConfig = &tls.Config{}
		}
		t.tlsConfig.RootCAs = certPool
		t.client.Transport = &http.Transport{
			TLSClientConfig: t.tlsConfig,
		}
	}
}

// WithCompression snappy encodes request bodies.
func WithCompression() Option {
	return func(t *HTTPTransport) {
		t.compress = true
	}
}

// WithHTTPClient replaces the underlying client, for instance the one of an
// httptest.Server.
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = c
	}
}
