package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet omits characters that are easily confused when typed from an email.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ConfirmationCodeLen is the length of activation, email-change and reset codes.
const ConfirmationCodeLen = 10

// GenConfirmationCode returns a random code drawn from codeAlphabet.
func GenConfirmationCode() (string, error) {
	b := make([]byte, ConfirmationCodeLen)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
