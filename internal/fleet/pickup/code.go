package pickup

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a pickup code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// CodeGenerator returns a fresh pickup code.
type CodeGenerator func() (string, error)

// GenerateCode draws a zero-padded 6-digit code from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate pickup code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
