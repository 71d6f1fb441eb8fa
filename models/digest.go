package models

import "github.com/opencontainers/go-digest"

// Checksum returns the lowercase hex SHA-256 of data.
func Checksum(data []byte) string {
	return digest.SHA256.FromBytes(data).Encoded()
}
