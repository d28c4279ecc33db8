package provision

import (
	"crypto/rand"
	"math/big"
)

// otpAlphabet skips lookalike characters (0/O, 1/l/I) since guardians type
// this password once from an email.
const otpAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const otpLength = 12

// GenerateOneTimePassword returns a random initial password for a fresh or
// adopted identity. The guardian is pushed through the reset-link flow
// immediately, so the password's job is to exist, not to persist.
func GenerateOneTimePassword() (string, error) {
	buf := make([]byte, otpLength)
	alphabetLen := big.NewInt(int64(len(otpAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = otpAlphabet[n.Int64()]
	}
	return string(buf), nil
}
