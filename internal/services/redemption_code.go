package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/skip2/go-qrcode"
)

// codeAlphabet drops 0, O, 1 and I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const qrImageSize = 256

// generateRedemptionCode returns prefix followed by length random alphabet characters.
func generateRedemptionCode(prefix string, length int) (string, error) {
	code := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate redemption code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(code), nil
}

// RedemptionCodePattern matches codes minted with the given prefix and length.
func RedemptionCodePattern(prefix string, length int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s[%s]{%d}$`, regexp.QuoteMeta(prefix), codeAlphabet, length))
}

// renderCodeQR encodes a redemption code as a PNG QR image for in-store scanning.
func renderCodeQR(code string) ([]byte, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render redemption QR: %w", err)
	}
	return png, nil
}
