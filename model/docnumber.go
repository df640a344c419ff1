package model

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DocumentNumberLength is the number of digits of a valid client document number.
const DocumentNumberLength = 11

// fallbackNameFragment is used when the client name has no usable letters.
const fallbackNameFragment = "CLIENTE"

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeDocumentNumber strips every non-digit character and requires
// exactly eleven digits to remain.
func NormalizeDocumentNumber(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if len(digits) != DocumentNumberLength {
		return "", &ValidationError{
			Field:   "cpf",
			Message: fmt.Sprintf("expected %d digits, got %d", DocumentNumberLength, len(digits)),
		}
	}
	return digits, nil
}

// NameFragment returns the first word of the client name, upper-cased, with
// accents folded and everything outside A-Z removed.
func NameFragment(clientName string) string {
	fields := strings.Fields(clientName)
	if len(fields) == 0 {
		return fallbackNameFragment
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, fields[0])
	if err != nil {
		folded = fields[0]
	}

	fragment := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r
		}
		return -1
	}, strings.ToUpper(folded))

	if fragment == "" {
		return fallbackNameFragment
	}
	return fragment
}

// GenerateCode builds the human-readable process code
// {NAME_FRAGMENT}_{LAST3_DIGITS}_{YYYY-MM-DD}_{4-CHAR_RANDOM}.
// The random suffix lowers the collision probability, it does not remove it.
func GenerateCode(clientName, documentNumber string, day time.Time, rng *rand.Rand) string {
	last3 := documentNumber
	if len(last3) > 3 {
		last3 = last3[len(last3)-3:]
	}

	suffix := make([]byte, 4)
	for i := range suffix {
		if rng != nil {
			suffix[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
		} else {
			suffix[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
	}

	return fmt.Sprintf("%s_%s_%s_%s", NameFragment(clientName), last3, day.Format("2006-01-02"), suffix)
}
