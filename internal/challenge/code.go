package challenge

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Code is a challenge code the member has to type back.
type Code string

const (
	// CodeLength is the fixed number of characters in a code.
	CodeLength = 8

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a fresh random code. Codes are drawn from crypto/rand:
// a guessable code defeats the whole verification flow.
func GenerateCode() Code {
	buf := make([]byte, 0, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is broken.
			panic(fmt.Sprintf("challenge: read random source: %v", err))
		}
		buf = append(buf, codeAlphabet[n.Int64()])
	}
	return Code(buf)
}
