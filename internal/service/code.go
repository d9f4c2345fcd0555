package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"bookswap/internal/models"
)

// NewCode draws a code of length n from the unambiguous alphabet.
func NewCode(n int) (string, error) {
	if n <= 0 {
		n = models.DefaultCodeLength
	}
	max := big.NewInt(int64(len(models.CodeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(models.CodeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// ValidCodeAlphabet reports whether every character of s, case-insensitively,
// belongs to the code alphabet.
func ValidCodeAlphabet(s string) bool {
	for _, r := range strings.ToUpper(s) {
		if !strings.ContainsRune(models.CodeAlphabet, r) {
			return false
		}
	}
	return true
}
