// Package polynomial implements polynomials over GF(2^8), used as the
// building block of this module's Shamir secret sharing engine.
package polynomial

import (
	"crypto/rand"

	"shard/internal/gf256"
)

// Polynomial is a polynomial over GF(2^8), stored as its coefficients with
// the constant term first.
type Polynomial struct {
	Coefficients []byte
}

// New builds a polynomial of the given degree with the provided constant
// term and cryptographically random higher-order coefficients.
func New(degree int, constant byte) (*Polynomial, error) {
	coeffs := make([]byte, degree+1)
	coeffs[0] = constant

	if degree > 0 {
		random := make([]byte, degree)
		if _, err := rand.Read(random); err != nil {
			return nil, err
		}
		copy(coeffs[1:], random)
	}

	return &Polynomial{Coefficients: coeffs}, nil
}

// Evaluate computes p(x) by summing each coefficient times the matching
// power of x.
func (p *Polynomial) Evaluate(x byte) byte {
	var result byte
	var term byte = 1

	for _, coeff := range p.Coefficients {
		result = gf256.Add(result, gf256.Mul(coeff, term))
		term = gf256.Mul(term, x)
	}

	return result
}

// Degree returns the polynomial's degree.
func (p *Polynomial) Degree() int {
	return len(p.Coefficients) - 1
}

// Bytes serializes the coefficients as a raw byte sequence, constant term
// first. There is no length prefix or type tag: the byte count is the
// coefficient count.
func (p *Polynomial) Bytes() []byte {
	out := make([]byte, len(p.Coefficients))
	copy(out, p.Coefficients)
	return out
}

// FromBytes reconstructs a Polynomial from a raw coefficient byte sequence
// produced by Bytes. FromBytes(p.Bytes()) always reproduces p.
func FromBytes(b []byte) *Polynomial {
	coeffs := make([]byte, len(b))
	copy(coeffs, b)
	return &Polynomial{Coefficients: coeffs}
}
