package security

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"192.168.1.1", true},
		{"172.16.0.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("Failed to parse IP: %s", tt.ip)
			}
			if got := IsBlockedIP(ip); got != tt.blocked {
				t.Errorf("IsBlockedIP(%s) = %v, want %v", tt.ip, got, tt.blocked)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"example.com/favicon.ico", "https://example.com/favicon.ico", false},
		{"http://example.com/a.ico", "http://example.com/a.ico", false},
		{"localhost", "", true},
		{"http://127.0.0.1/x.ico", "", true},
		{"http://10.0.0.1", "", true},
		{"ftp://example.com", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := ParseTarget(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && u.String() != tt.want {
				t.Errorf("ParseTarget(%q) = %s, want %s", tt.input, u, tt.want)
			}
		})
	}
}

func TestValidatedDialContextRejectsBlockedLiteral(t *testing.T) {
	_, err := ValidatedDialContext(context.Background(), "tcp", "127.0.0.1:80")
	if !errors.Is(err, ErrBlockedIP) {
		t.Errorf("Expected ErrBlockedIP, got %v", err)
	}
}
