package security

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// LicenseKeyAlphabet omits 0, O, 1 and I so keys survive being read aloud.
const LicenseKeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	licenseKeyGroups    = 4
	licenseKeyGroupSize = 4
	verificationDigits  = 6
	verificationSpace   = 1_000_000

	// CodeTTL is how long an issued verification code stays redeemable.
	CodeTTL = 10 * time.Minute
)

var licenseKeyRe = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}(-[A-HJ-NP-Z2-9]{4}){3}$`)

// rejection bound for mapping a uint32 uniformly onto [0, verificationSpace)
var verificationLimit = uint32((1 << 32) / verificationSpace * verificationSpace)

// Generator draws license keys and verification codes from a random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from r, or from crypto/rand when
// r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

var defaultGenerator = NewGenerator(nil)

// GenerateLicenseKey returns a key like "ABCD-EFGH-JKLM-NPQR". Uniqueness is
// the caller's concern.
func GenerateLicenseKey() (string, error) {
	return defaultGenerator.LicenseKey()
}

// GenerateVerificationCode returns a zero-padded six digit code.
func GenerateVerificationCode() (string, error) {
	return defaultGenerator.VerificationCode()
}

// CodeExpiration returns the expiry for a code issued at now.
func CodeExpiration(now time.Time) time.Time {
	return now.Add(CodeTTL)
}

// IsValidLicenseKeyFormat reports whether key has the grouped key shape.
func IsValidLicenseKeyFormat(key string) bool {
	return licenseKeyRe.MatchString(key)
}

// NormalizeLicenseKey upper-cases and trims user input.
func NormalizeLicenseKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func (g *Generator) LicenseKey() (string, error) {
	buf := make([]byte, licenseKeyGroups*licenseKeyGroupSize)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(len(buf) + licenseKeyGroups - 1)
	for i, v := range buf {
		if i > 0 && i%licenseKeyGroupSize == 0 {
			b.WriteByte('-')
		}
		// 256 is a multiple of the alphabet size so masking is unbiased.
		b.WriteByte(LicenseKeyAlphabet[int(v)%len(LicenseKeyAlphabet)])
	}
	return b.String(), nil
}

func (g *Generator) VerificationCode() (string, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(g.rand, buf[:]); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		n := binary.BigEndian.Uint32(buf[:])
		if n >= verificationLimit {
			continue
		}
		return fmt.Sprintf("%0*d", verificationDigits, n%verificationSpace), nil
	}
}
