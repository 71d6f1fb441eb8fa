package utils

import (
	"OpenCargoRegistry/config"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RandomString returns the URL-safe base64 encoding of length random bytes.
func RandomString(length int) (string, error) {
	return randomStringFromGenerator(length, rand.Reader)
}

func randomStringFromGenerator(length int, generator io.Reader) (string, error) {
	if length < 0 {
		return "", errors.New("length must not be negative")
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(generator, b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// BaseUrl returns the public base URL of the registry without a trailing slash.
// An explicitly configured url wins over the one derived from hostname and port.
func BaseUrl(c config.GeneralConfig) string {
	if c.URL != "" {
		return strings.TrimSuffix(c.URL, "/")
	}
	scheme := "http"
	defaultPort := 80
	if c.TlsEnabled {
		scheme = "https"
		defaultPort = 443
	}
	host := c.Hostname
	if host == "" {
		host = c.Addr
	}
	if c.Port == defaultPort || c.Port == 0 {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.Port)
}
