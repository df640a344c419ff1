// Package codec converts binary payloads to and from the data-URL style
// transport strings ("<header>,<base64>") exchanged with the web client.
package codec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PDFHeader is the header carried by every encoded document.
const PDFHeader = "data:application/pdf;base64"

// ErrInvalidEncoding is returned for payloads without a header or with a
// body that is not base64 even after normalization.
var ErrInvalidEncoding = errors.New("invalid encoding")

// Decode splits the transport string on its first comma, normalizes the
// remainder and decodes it.
func Decode(transport string) ([]byte, error) {
	_, payload, found := strings.Cut(transport, ",")
	if !found {
		return nil, fmt.Errorf("%w: missing header delimiter", ErrInvalidEncoding)
	}

	data, err := base64.StdEncoding.DecodeString(normalize(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return data, nil
}

// Header returns the part before the first comma, or "" when there is none.
func Header(transport string) string {
	header, _, found := strings.Cut(transport, ",")
	if !found {
		return ""
	}
	return header
}

// Encode produces a PDF transport string.
func Encode(data []byte) string {
	return EncodeWithHeader(PDFHeader, data)
}

// EncodeWithHeader produces a transport string with an arbitrary header,
// e.g. "data:image/png;base64".
func EncodeWithHeader(header string, data []byte) string {
	return header + "," + base64.StdEncoding.EncodeToString(data)
}

// Digest returns the SHA-256 of data as 64 lowercase hex characters.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize drops whitespace introduced in transit and pads to a 4-byte block.
func normalize(payload string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)

	if missing := len(cleaned) % 4; missing != 0 {
		cleaned += strings.Repeat("=", 4-missing)
	}
	return cleaned
}
