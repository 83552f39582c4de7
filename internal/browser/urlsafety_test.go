package browser

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func TestValidateURLSafety(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string // substring to look for in error
	}{
		// Public addresses (IP literals, no DNS needed)
		{"public https", "https://8.8.8.8", false, ""},
		{"public with port and path", "http://1.1.1.1:8080/squad/health", false, ""},

		// Blocked schemes
		{"file scheme", "file:///etc/passwd", true, "scheme"},
		{"ftp scheme", "ftp://example.com", true, "scheme"},
		{"javascript scheme", "javascript:alert(1)", true, "scheme"},
		{"data scheme", "data:text/html,<h1>hi</h1>", true, "scheme"},
		{"no scheme", "example.com", true, "scheme"},

		// Loopback
		{"127.0.0.1", "http://127.0.0.1", true, "loopback"},
		{"127.0.0.1 with port", "http://127.0.0.1:3000", true, "loopback"},
		{"127.x.x.x range", "http://127.255.255.255", true, "loopback"},
		{"ipv6 loopback", "http://[::1]", true, "loopback"},

		// Private networks
		{"10.x.x.x", "http://10.0.0.1", true, "private"},
		{"172.16.x.x", "http://172.16.0.1", true, "private"},
		{"192.168.x.x", "http://192.168.1.1", true, "private"},

		// Link-local and metadata
		{"link-local", "http://169.254.1.1", true, "link-local"},
		{"aws metadata", "http://169.254.169.254/latest/meta-data/", true, "link-local"},
		{"gcp metadata", "http://metadata.google.internal", true, "cloud metadata hostname"},

		{"0.0.0.0", "http://0.0.0.0", true, "unspecified"},
		{"empty host", "http:///path", true, "empty hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURLSafety(tt.url, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURLSafety(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateURLSafety(%q) error = %v, want error containing %q", tt.url, err, tt.errMsg)
			}
			var safety *URLSafetyError
			if tt.wantErr && !errors.As(err, &safety) {
				t.Errorf("error %T is not a *URLSafetyError", err)
			}
		})
	}
}

func TestValidateURLSafetyAllowPrivate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://127.0.0.1:8501", false},
		{"http://192.168.1.20/app", false},
		{"http://localhost:3000", false},
		{"file:///etc/passwd", true},
		{"http:///path", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURLSafety(tt.url, true)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURLSafety(%q, true) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		blocked bool
	}{
		{"google dns", "8.8.8.8", false},
		{"cloudflare dns", "1.1.1.1", false},
		{"loopback", "127.0.0.1", true},
		{"private 10.x", "10.0.0.1", true},
		{"private 172.16.x", "172.16.0.1", true},
		{"private 192.168.x", "192.168.0.1", true},
		{"link-local", "169.254.1.1", true},
		{"metadata", "169.254.169.254", true},
		{"multicast", "224.0.0.1", true},
		{"ipv4-mapped loopback", "::ffff:127.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}
			reason := isBlockedIP(ip)
			if blocked := reason != ""; blocked != tt.blocked {
				t.Errorf("isBlockedIP(%s) = %q (blocked=%v), want blocked=%v", tt.ip, reason, blocked, tt.blocked)
			}
		})
	}
}

func TestIsCloudMetadataHost(t *testing.T) {
	for host, want := range map[string]bool{
		"metadata.google.internal":     true,
		"METADATA.GOOGLE.INTERNAL":     true,
		"foo.kubernetes.default.svc":   true,
		"metadata":                     true,
		"squad.example.com":            false,
		"metadata-service.example.com": false,
	} {
		if got := isCloudMetadataHost(host); got != want {
			t.Errorf("isCloudMetadataHost(%q) = %v, want %v", host, got, want)
		}
	}
}
