package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// GenerateRandomString returns length random bytes hex-encoded.
func GenerateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be a positive integer")
	}
	buf := make([]byte, length)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", errRead
	}
	return hex.EncodeToString(buf), nil
}
