package utils

import (
	"encoding/base64"
	"errors"
	"testing"

	"OpenCargoRegistry/config"
)

func Test_RandomString_Lengths_EncodeRandomBytes(t *testing.T) {
	tests := []struct {
		bytes   int
		encoded int
	}{
		{0, 0},
		{10, 16},
		{16, 24},
		{32, 44},
	}
	for _, tt := range tests {
		result, err := RandomString(tt.bytes)
		if err != nil {
			t.Fatalf("%d: unexpected error: %v", tt.bytes, err)
		}
		if len(result) != tt.encoded {
			t.Errorf("%d: expected length %d, got %d", tt.bytes, tt.encoded, len(result))
		}
		decoded, err := base64.URLEncoding.DecodeString(result)
		if err != nil || len(decoded) != tt.bytes {
			t.Errorf("%d: expected %d url-safe encoded bytes, got %q", tt.bytes, tt.bytes, result)
		}
	}
}

func Test_RandomString_RepeatedCalls_Differ(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		result, err := RandomString(16)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[result] {
			t.Fatalf("expected unique strings, got %s twice", result)
		}
		seen[result] = true
	}
}

func Test_RandomString_NegativeLength_ReturnsError(t *testing.T) {
	if _, err := RandomString(-1); err == nil {
		t.Errorf("expected error, got nil")
	}
}

func Test_RandomString_BrokenGenerator_WrapsReadError(t *testing.T) {
	_, err := randomStringFromGenerator(10, &ErrorReadCloser{})
	if !errors.Is(err, ErrSimulatedRead) {
		t.Errorf("expected the read error to be wrapped, got %v", err)
	}
}

func Test_BaseUrl_Variants(t *testing.T) {
	tests := []struct {
		name   string
		config config.GeneralConfig
		want   string
	}{
		{"hostname and port", config.GeneralConfig{Hostname: "localhost", Port: 8080}, "http://localhost:8080"},
		{"default http port", config.GeneralConfig{Hostname: "localhost", Port: 80}, "http://localhost"},
		{"tls", config.GeneralConfig{Hostname: "localhost", Port: 8080, TlsEnabled: true}, "https://localhost:8080"},
		{"default https port", config.GeneralConfig{Hostname: "crates.local", Port: 443, TlsEnabled: true}, "https://crates.local"},
		{"address fallback", config.GeneralConfig{Addr: "127.0.0.1", Port: 3000}, "http://127.0.0.1:3000"},
		{"explicit url", config.GeneralConfig{URL: "https://crates.example.com/", Hostname: "localhost", Port: 3000}, "https://crates.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseUrl(tt.config); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
