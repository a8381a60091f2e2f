package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// TokenAlphabet leaves out 0/O and 1/I so tokens survive being read aloud or retyped.
const TokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateToken returns a random attendance token of the given length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("token length must be positive")
	}
	max := big.NewInt(int64(len(TokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = TokenAlphabet[n.Int64()]
	}
	return string(out), nil
}

// RandomInt returns a uniform value in [min, max].
func RandomInt(min, max int) (int, error) {
	if max < min {
		return 0, errors.New("invalid range")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return min + int(n.Int64()), nil
}
