package credentials

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// CodeAlphabet is the character set of registration codes
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of generated registration codes
const CodeLength = 10

// GenerateCode returns a random code of the given length drawn from CodeAlphabet
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("code length must be positive")
	}

	code := make([]byte, length)
	max := big.NewInt(int64(len(CodeAlphabet)))
	for i := range code {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[num.Int64()]
	}

	return string(code), nil
}

// IsWellFormed reports whether s could have been produced by GenerateCode(CodeLength)
func IsWellFormed(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
