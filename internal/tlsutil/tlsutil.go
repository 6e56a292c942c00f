// Package tlsutil provides centralized TLS configuration for all outbound
// model-provider HTTP clients in agentroom.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件；可选出口代理（HTTP/HTTPS/SOCKS5）。
package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

func baseDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

// SecureTransport returns an http.Transport with TLS hardening and no proxy.
func SecureTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig:       DefaultTLSConfig(),
		DialContext:           baseDialer().DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ParseProxyURL validates an egress proxy URL.
// Supported schemes: http, https, socks5, socks5h.
func ParseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", raw)
	}
	return u, nil
}

// ProxyTransport returns a hardened transport that routes through proxyURL.
func ProxyTransport(proxyURL *url.URL) (*http.Transport, error) {
	tr := SecureTransport()
	switch proxyURL.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(proxyURL)
	default:
		d, err := proxy.FromURL(proxyURL, baseDialer())
		if err != nil {
			return nil, fmt.Errorf("build socks dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s does not support contexts", proxyURL.Redacted())
		}
		tr.DialContext = cd.DialContext
	}
	return tr, nil
}

// SecureHTTPClient returns an http.Client with TLS hardening.
// Drop-in replacement for &http.Client{Timeout: timeout}.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}

// NewHTTPClient returns a hardened client, routed through proxyURL when it is non-empty.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if strings.TrimSpace(proxyURL) == "" {
		return SecureHTTPClient(timeout), nil
	}
	u, err := ParseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	tr, err := ProxyTransport(u)
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: timeout, Transport: tr}, nil
}
