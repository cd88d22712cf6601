package security

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// OTPGenerator produces numeric one-time codes from crypto/rand and opaque
// unique tokens from uuid.
type OTPGenerator struct{}

func NewOTPGenerator() *OTPGenerator {
	return &OTPGenerator{}
}

// GenerateOTP returns length uniformly random decimal digits. Leading zeros
// are kept: "012345" is a valid code.
func (g *OTPGenerator) GenerateOTP(length int) string {
	if length <= 0 {
		length = 6
	}
	digits := make([]byte, 0, length)
	buf := make([]byte, 16)
	for len(digits) < length {
		if _, err := rand.Read(buf); err != nil {
			// A code derived from anything but the system RNG would be
			// guessable, so there is no degraded mode.
			panic("otp: system random source unavailable: " + err.Error())
		}
		for _, v := range buf {
			// reject 250..255 so each digit stays uniform
			if v >= 250 {
				continue
			}
			digits = append(digits, '0'+v%10)
			if len(digits) == length {
				break
			}
		}
	}
	return string(digits)
}

// GenerateToken returns an opaque globally unique identifier.
func (g *OTPGenerator) GenerateToken() string {
	return uuid.NewString()
}
