package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}
	plain := []byte(`{"privateKey":"0x01"}`)
	aad := []byte("session-0xabc")

	blob, err := s.Seal(plain, aad)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Contains(blob, plain) {
		t.Fatal("sealed blob contains plaintext")
	}
	got, err := s.Open(blob, aad)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Open() = %q, want %q", got, plain)
	}
}

func TestSealIsRandomized(t *testing.T) {
	s, _ := NewSealer([]byte("k"))
	a, _ := s.Seal([]byte("x"), nil)
	b, _ := s.Seal([]byte("x"), nil)
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpenRejects(t *testing.T) {
	s, _ := NewSealer([]byte("secret"))
	other, _ := NewSealer([]byte("other"))
	blob, _ := s.Seal([]byte("payload"), []byte("session-0xabc"))

	tests := []struct {
		name   string
		sealer *Sealer
		blob   []byte
		aad    []byte
		want   error
	}{
		{"wrong account", s, blob, []byte("session-0xdef"), ErrOpenFailed},
		{"wrong key", other, blob, []byte("session-0xabc"), ErrOpenFailed},
		{"truncated", s, blob[:10], []byte("session-0xabc"), ErrShortBlob},
		{"flipped bit", s, flip(blob), []byte("session-0xabc"), ErrOpenFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.sealer.Open(tt.blob, tt.aad); !errors.Is(err, tt.want) {
				t.Errorf("Open() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewSealerEmptySecret(t *testing.T) {
	if _, err := NewSealer(nil); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("err = %v, want ErrEmptySecret", err)
	}
}

func flip(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[len(out)-1] ^= 0x01
	return out
}
