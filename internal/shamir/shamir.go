// Package shamir implements Shamir secret sharing over GF(2^8).
//
// A secret of L bytes is split into n shares by sampling, for every secret
// byte, a random polynomial of degree threshold-1 whose constant term is the
// secret byte. Share i holds the polynomial evaluations at x=i. Any threshold
// shares reconstruct the secret by Lagrange interpolation at x=0; fewer than
// threshold shares reveal nothing about it.
package shamir

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// MinThreshold is the smallest meaningful reconstruction quorum.
	MinThreshold = 2
	// MaxShares is bounded by the non-zero elements of GF(2^8).
	MaxShares = 255
)

var (
	// ErrTooFewShares indicates Combine was called below the threshold
	// implied by the share set.
	ErrTooFewShares = errors.New("shamir: not enough shares")
	// ErrDuplicateIndex indicates two shares claim the same x coordinate.
	ErrDuplicateIndex = errors.New("shamir: duplicate share index")
	// ErrLengthMismatch indicates shares of unequal byte length.
	ErrLengthMismatch = errors.New("shamir: share length mismatch")
)

// Share is one point set of the split: the x coordinate and one polynomial
// evaluation per secret byte.
type Share struct {
	Index int
	Bytes []byte
}

// Fingerprint returns a stable SHA-256 identifier for the share material,
// covering both coordinate and payload.
func (s Share) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte{byte(s.Index)})
	h.Write(s.Bytes)
	return hex.EncodeToString(h.Sum(nil))
}

// Split cuts secret into parts shares with the given reconstruction threshold.
// Share indexes run 1..parts; index 0 is never issued because it would carry
// the secret itself.
func Split(secret []byte, parts, threshold int) ([]Share, error) {
	return split(rand.Reader, secret, parts, threshold)
}

func split(random io.Reader, secret []byte, parts, threshold int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, errors.New("shamir: empty secret")
	}
	if threshold < MinThreshold {
		return nil, fmt.Errorf("shamir: threshold %d below minimum %d", threshold, MinThreshold)
	}
	if parts < threshold {
		return nil, fmt.Errorf("shamir: parts %d below threshold %d", parts, threshold)
	}
	if parts > MaxShares {
		return nil, fmt.Errorf("shamir: parts %d exceeds maximum %d", parts, MaxShares)
	}

	shares := make([]Share, parts)
	for i := range shares {
		shares[i] = Share{Index: i + 1, Bytes: make([]byte, len(secret))}
	}

	coeffs := make([]byte, threshold)
	for pos, b := range secret {
		coeffs[0] = b
		if _, err := io.ReadFull(random, coeffs[1:]); err != nil {
			zero(coeffs)
			for i := range shares {
				zero(shares[i].Bytes)
			}
			return nil, fmt.Errorf("shamir: sample coefficients: %w", err)
		}
		for i := range shares {
			shares[i].Bytes[pos] = eval(coeffs, byte(shares[i].Index))
		}
	}
	zero(coeffs)
	return shares, nil
}

// Combine reconstructs the secret from at least threshold shares. The caller
// is responsible for supplying enough shares; with fewer than the original
// threshold the interpolation yields bytes unrelated to the secret.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) < MinThreshold {
		return nil, ErrTooFewShares
	}
	length := len(shares[0].Bytes)
	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		if s.Index < 1 || s.Index > MaxShares {
			return nil, fmt.Errorf("shamir: share index %d out of range", s.Index)
		}
		if _, dup := seen[s.Index]; dup {
			return nil, ErrDuplicateIndex
		}
		seen[s.Index] = struct{}{}
		if len(s.Bytes) != length {
			return nil, ErrLengthMismatch
		}
	}

	secret := make([]byte, length)
	xs := make([]byte, len(shares))
	ys := make([]byte, len(shares))
	for i, s := range shares {
		xs[i] = byte(s.Index)
	}
	for pos := 0; pos < length; pos++ {
		for i, s := range shares {
			ys[i] = s.Bytes[pos]
		}
		secret[pos] = interpolateAtZero(xs, ys)
	}
	return secret, nil
}

// eval computes the polynomial with the given coefficients at x using
// Horner's method in GF(2^8).
func eval(coeffs []byte, x byte) byte {
	var out byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		out = mul(out, x) ^ coeffs[i]
	}
	return out
}

// interpolateAtZero evaluates the Lagrange interpolation polynomial through
// the points (xs[i], ys[i]) at x=0.
func interpolateAtZero(xs, ys []byte) byte {
	var out byte
	for i := range xs {
		basis := byte(1)
		for j := range xs {
			if i == j {
				continue
			}
			basis = mul(basis, div(xs[j], xs[j]^xs[i]))
		}
		out ^= mul(basis, ys[i])
	}
	return out
}

// mul multiplies in GF(2^8) with the AES reduction polynomial x^8+x^4+x^3+x+1.
func mul(a, b byte) byte {
	var p byte
	for b > 0 {
		if b&1 == 1 {
			p ^= a
		}
		carry := a & 0x80
		a <<= 1
		if carry != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return p
}

// div computes a/b in GF(2^8). Division by zero panics; callers guarantee
// distinct share indexes so denominators never vanish.
func div(a, b byte) byte {
	if b == 0 {
		panic("shamir: division by zero")
	}
	return mul(a, inverse(b))
}

// inverse computes the multiplicative inverse via b^254 (Fermat's little
// theorem for GF(2^8)).
func inverse(b byte) byte {
	out := byte(1)
	base := b
	for exp := 254; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			out = mul(out, base)
		}
		base = mul(base, base)
	}
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
