package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	payloads := [][]byte{
		{},
		{0x00},
		[]byte("%PDF-1.4"),
		bytes.Repeat([]byte{0xff, 0x00, 0x7f}, 1000),
	}
	for i := 0; i < 50; i++ {
		b := make([]byte, rng.Intn(4096))
		rng.Read(b)
		payloads = append(payloads, b)
	}

	for i, p := range payloads {
		encoded := Encode(p)
		if !strings.HasPrefix(encoded, PDFHeader+",") {
			t.Fatalf("Payload %d: missing header in %q", i, encoded[:min(len(encoded), 40)])
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Payload %d: decode failed: %v", i, err)
		}
		if !bytes.Equal(decoded, p) {
			t.Errorf("Payload %d: round trip mismatch", i)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	data := []byte("same input")
	if Encode(data) != Encode(data) {
		t.Error("Expected deterministic encoding")
	}
}

func TestDecodeToleratesTransportNoise(t *testing.T) {
	raw := []byte("imagem de evidencia com bytes suficientes")
	body := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name      string
		transport string
	}{
		{"newlines", "data:image/png;base64," + body[:10] + "\n" + body[10:20] + "\r\n" + body[20:]},
		{"spaces", "data:image/png;base64, " + body[:8] + " " + body[8:] + " "},
		{"missing padding", "data:image/png;base64," + strings.TrimRight(body, "=")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.transport)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Errorf("Expected %q, got %q", raw, got)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name      string
		transport string
	}{
		{"no header", base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"bad alphabet", "data:image/png;base64,@@@@"},
		{"impossible length", "data:image/png;base64,abcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.transport)
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("Expected ErrInvalidEncoding, got %v", err)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	if h := Header("data:image/jpeg;base64,AAAA"); h != "data:image/jpeg;base64" {
		t.Errorf("Unexpected header %q", h)
	}
	if h := Header("AAAA"); h != "" {
		t.Errorf("Expected empty header, got %q", h)
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("ressalva"))
	b := Digest([]byte("ressalva"))
	c := Digest([]byte("ressalvas"))

	if a != b {
		t.Error("Expected equal digests for equal input")
	}
	if a == c {
		t.Error("Expected different digests for different input")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	// sha256("")
	if Digest(nil) != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Unexpected digest of empty input: %s", Digest(nil))
	}
}
