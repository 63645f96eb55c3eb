package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/pquerna/otp"
)

// DefaultCodeDigits is the length of generated one-time passcodes.
const DefaultCodeDigits = otp.DigitsSix

// GenerateNumericCode returns a zero-padded decimal code drawn uniformly from
// [0, 10^digits) using crypto/rand.
func GenerateNumericCode(digits otp.Digits) (string, error) {
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		return "", fmt.Errorf("cryptox: unsupported code length %d", digits.Length())
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits.Length())), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	// #nosec G115 - n < 10^8
	return digits.Format(int32(n.Int64())), nil
}
