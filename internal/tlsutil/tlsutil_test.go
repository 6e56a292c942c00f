package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want %d", cfg.MinVersion, tls.VersionTLS12)
	}
	if len(cfg.CipherSuites) == 0 {
		t.Error("CipherSuites should not be empty")
	}
	// Verify all cipher suites are AEAD
	for _, cs := range cfg.CipherSuites {
		switch cs {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
			// OK, AEAD cipher suite
		default:
			t.Errorf("unexpected non-AEAD cipher suite: %d", cs)
		}
	}
}

func TestSecureTransport(t *testing.T) {
	tr := SecureTransport()
	if tr.TLSClientConfig == nil {
		t.Fatal("TLSClientConfig should not be nil")
	}
	if tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("Transport TLS MinVersion = %d, want %d",
			tr.TLSClientConfig.MinVersion, tls.VersionTLS12)
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("ForceAttemptHTTP2 should be true")
	}
}

func TestSecureHTTPClient(t *testing.T) {
	timeout := 15 * time.Second
	client := SecureHTTPClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
	if client.Transport == nil {
		t.Fatal("Transport should not be nil")
	}
}

func TestParseProxyURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"http://127.0.0.1:7890", false},
		{"https://proxy.example.com", false},
		{"socks5://127.0.0.1:1080", false},
		{"socks5h://user:pw@127.0.0.1:1080", false},
		{"ftp://127.0.0.1", true},
		{"http://", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		_, err := ParseProxyURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProxyURL(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestNewHTTPClient_NoProxy(t *testing.T) {
	client, err := NewHTTPClient(5*time.Second, "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("expected *http.Transport")
	}
	if tr.Proxy != nil {
		t.Error("Proxy should be nil without a proxy url")
	}
}

func TestNewHTTPClient_HTTPProxy(t *testing.T) {
	client, err := NewHTTPClient(5*time.Second, "http://127.0.0.1:7890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.Proxy == nil {
		t.Fatal("Proxy should be set")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/models", nil)
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.Host != "127.0.0.1:7890" {
		t.Errorf("proxy for request = %v, %v", u, err)
	}
	if tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Error("proxied transport must keep TLS hardening")
	}
}

func TestNewHTTPClient_SocksProxy(t *testing.T) {
	client, err := NewHTTPClient(5*time.Second, "socks5://127.0.0.1:1080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.Proxy != nil {
		t.Error("socks proxies dial directly, Proxy should be nil")
	}
	if tr.DialContext == nil {
		t.Error("DialContext should be set")
	}
}

func TestNewHTTPClient_BadProxy(t *testing.T) {
	if _, err := NewHTTPClient(time.Second, "gopher://x"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
