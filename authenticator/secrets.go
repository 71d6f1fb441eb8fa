package authenticator

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/pbkdf2"

	"OpenCargoRegistry/utils"
)

const (
	// the password is first stretched with the email as salt, then with the
	// author's random salt
	prehashRounds  = 5_000
	passwordRounds = 100_000
	saltBytes      = 16
	tokenLength    = 32
)

// NewSalt returns a random hex encoded salt.
func NewSalt() (string, error) {
	data := make([]byte, saltBytes)
	if _, err := rand.Read(data); err != nil {
		return "", err
	}
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashPassword derives the stored form of a password with PBKDF2-HMAC-SHA512.
func HashPassword(email string, passwd string, salt string) (string, error) {
	decodedSalt, err := hex.DecodeString(salt)
	if err != nil {
		return "", err
	}
	prehash := pbkdf2.Key([]byte(passwd), []byte(email), prehashRounds, sha512.Size, sha512.New)
	hash := pbkdf2.Key(prehash, decodedSalt, passwordRounds, sha512.Size, sha512.New)
	return hex.EncodeToString(hash), nil
}

// VerifyPassword compares passwd against the stored hash in constant time.
func VerifyPassword(email string, passwd string, salt string, expected string) bool {
	hash, err := HashPassword(email, passwd, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expected)) == 1
}

// NewToken returns a fresh API token secret.
func NewToken() (string, error) {
	return utils.RandomString(tokenLength)
}

// HashToken is the form a token is stored and looked up in.
func HashToken(token string) string {
	return digest.SHA256.FromString(token).Encoded()
}
