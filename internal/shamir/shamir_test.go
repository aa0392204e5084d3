package shamir

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestSplitCombineRoundTrip(t *testing.T) {
	secret := []byte("the vault master key material")
	shares, err := Split(secret, 5, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 shares, got %d", len(shares))
	}

	// Every 3-subset must reconstruct the secret.
	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			for k := j + 1; k < 5; k++ {
				subset := []Share{shares[i], shares[j], shares[k]}
				got, err := Combine(subset)
				if err != nil {
					t.Fatalf("combine subset (%d,%d,%d): %v", i, j, k, err)
				}
				if !bytes.Equal(got, secret) {
					t.Fatalf("subset (%d,%d,%d) reconstructed %q, want %q", i, j, k, got, secret)
				}
			}
		}
	}
}

func TestBelowThresholdDoesNotReconstruct(t *testing.T) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("rand: %v", err)
	}
	shares, err := Split(secret, 4, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	got, err := Combine(shares[:2])
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if bytes.Equal(got, secret) {
		t.Fatalf("two shares of a threshold-3 split reconstructed the secret")
	}
}

func TestSplitParameterValidation(t *testing.T) {
	secret := []byte("s3cret")
	cases := []struct {
		name             string
		parts, threshold int
	}{
		{"threshold below minimum", 5, 1},
		{"parts below threshold", 2, 3},
		{"parts above maximum", 256, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Split(secret, tc.parts, tc.threshold); err == nil {
				t.Fatalf("expected error for parts=%d threshold=%d", tc.parts, tc.threshold)
			}
		})
	}
	if _, err := Split(nil, 3, 2); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

// starvedReader serves a few reads of fixed bytes, then fails.
type starvedReader struct {
	reads int
	err   error
}

func (r *starvedReader) Read(p []byte) (int, error) {
	if r.reads <= 0 {
		return 0, r.err
	}
	r.reads--
	for i := range p {
		p[i] = 0xa5
	}
	return len(p), nil
}

func TestSplitRandomnessFailure(t *testing.T) {
	boom := errors.New("entropy source closed")
	shares, err := split(&starvedReader{reads: 3, err: boom}, []byte("top secret"), 4, 2)
	if shares != nil {
		t.Fatalf("expected no shares on sampling failure")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected sampling error, got %v", err)
	}
}

func TestCombineValidation(t *testing.T) {
	shares, err := Split([]byte("payload"), 3, 2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if _, err := Combine(shares[:1]); err != ErrTooFewShares {
		t.Fatalf("expected ErrTooFewShares, got %v", err)
	}

	dup := []Share{shares[0], {Index: shares[0].Index, Bytes: shares[1].Bytes}}
	if _, err := Combine(dup); err != ErrDuplicateIndex {
		t.Fatalf("expected ErrDuplicateIndex, got %v", err)
	}

	short := []Share{shares[0], {Index: shares[1].Index, Bytes: shares[1].Bytes[:3]}}
	if _, err := Combine(short); err != ErrLengthMismatch {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}

	bad := []Share{shares[0], {Index: 0, Bytes: shares[1].Bytes}}
	if _, err := Combine(bad); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestFieldArithmetic(t *testing.T) {
	for b := 1; b < 256; b++ {
		if got := mul(byte(b), inverse(byte(b))); got != 1 {
			t.Fatalf("b * b^-1 = %d for b=%d, want 1", got, b)
		}
	}
	if mul(0, 0xff) != 0 || mul(0xff, 0) != 0 {
		t.Fatalf("multiplication by zero must yield zero")
	}
	// Known AES field product: 0x53 * 0xca = 0x01.
	if got := mul(0x53, 0xca); got != 0x01 {
		t.Fatalf("0x53*0xca = %#x, want 0x01", got)
	}
}

func TestShareFingerprintStable(t *testing.T) {
	s := Share{Index: 2, Bytes: []byte{1, 2, 3}}
	if s.Fingerprint() != (Share{Index: 2, Bytes: []byte{1, 2, 3}}).Fingerprint() {
		t.Fatalf("fingerprint must be deterministic")
	}
	if s.Fingerprint() == (Share{Index: 3, Bytes: []byte{1, 2, 3}}).Fingerprint() {
		t.Fatalf("fingerprint must cover the index")
	}
}
