package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewMediaURLGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はhttptestサーバー（127.0.0.1）への送信が遮断されることをテストする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewMediaURLGuard().NewSafeClient(5 * time.Second)
	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected request to loopback to be blocked")
	}
}

func TestValidateMediaURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"cloudinary secure url", "https://res.cloudinary.com/demo/image/upload/v1/cover.jpg", false},
		{"public ip", "https://93.184.216.34/a.mp3", false},
		{"empty", "", true},
		{"http scheme", "http://res.cloudinary.com/demo/a.jpg", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"data uri", "data:image/png;base64,AAAA", true},
		{"no host", "https:///path", true},
		{"private ip", "https://10.0.0.5/a.jpg", true},
		{"loopback", "https://127.0.0.1/a.jpg", true},
		{"metadata ip", "https://169.254.169.254/latest", true},
		{"ipv6 loopback", "https://[::1]/a.jpg", true},
		{"localhost", "https://localhost/a.jpg", true},
		{"localhost subdomain", "https://media.localhost/a.jpg", true},
		{"unparseable", "https://%zz", true},
	}

	guard := NewMediaURLGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateMediaURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMediaURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
