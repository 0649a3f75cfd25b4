package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// verificationTokenLen is the number of random bytes in a verification token.
const verificationTokenLen = 32

// NewVerificationToken returns a hex-encoded 32-byte random token.
func NewVerificationToken() (string, error) {
	b := make([]byte, verificationTokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto: generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
