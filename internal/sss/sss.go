// Package sss implements Shamir's secret sharing over GF(2^8), including the
// proactive-refresh extension used to keep outstanding shares fresh without
// ever reconstructing or changing the underlying secret.
package sss

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"shard/internal/gf256"
	"shard/internal/polynomial"
)

// Share is one participant's point on each of the secret's per-byte
// polynomials: X is the shared evaluation coordinate, Y holds one evaluated
// byte per secret byte position.
type Share struct {
	X byte
	Y []byte
}

// RefreshKey is one zero-constant-term polynomial per secret byte position.
// Every provider holding a share of the same logical secret must apply the
// exact same RefreshKey instance for a given refresh round: regenerating it
// per recipient silently desynchronizes the shares and breaks Combine.
type RefreshKey []*polynomial.Polynomial

// Split divides secret into `shares` Shamir shares, any `threshold` of which
// reconstruct it. Returns InvalidParameters if threshold < 2, shares <
// threshold, or shares > 255.
func Split(secret []byte, threshold, shares int) (map[byte]Share, error) {
	if threshold < 2 {
		return nil, &InvalidParametersError{Reason: "threshold must be at least 2"}
	}
	if shares < threshold {
		return nil, &InvalidParametersError{Reason: "shares must be at least threshold"}
	}
	if shares > 255 {
		return nil, &InvalidParametersError{Reason: "shares must be at most 255"}
	}

	result := make(map[byte]Share, shares)
	for x := 1; x <= shares; x++ {
		result[byte(x)] = Share{X: byte(x), Y: make([]byte, len(secret))}
	}

	for i, b := range secret {
		poly, err := polynomial.New(threshold-1, b)
		if err != nil {
			return nil, fmt.Errorf("generating polynomial for byte %d: %w", i, err)
		}
		for x := 1; x <= shares; x++ {
			share := result[byte(x)]
			share.Y[i] = poly.Evaluate(byte(x))
			result[byte(x)] = share
		}
	}

	return result, nil
}

// Combine reconstructs the secret from the given shares via Lagrange
// interpolation at x=0. Fewer than the original threshold shares does NOT
// produce an error: it silently returns a value that differs from the real
// secret. This is documented, intentional behavior (see the module's design
// notes) rather than a bug — callers that care must track their own
// threshold out of band.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, &InvalidParametersError{Reason: "no shares provided"}
	}

	secretLen := len(shares[0].Y)
	secret := make([]byte, secretLen)

	for i := 0; i < secretLen; i++ {
		points := make([][2]byte, 0, len(shares))
		for _, s := range shares {
			if i < len(s.Y) {
				points = append(points, [2]byte{s.X, s.Y[i]})
			}
		}
		secret[i] = interpolate(points, 0)
	}

	return secret, nil
}

// interpolate evaluates the unique polynomial through points at x via
// Lagrange interpolation over GF(2^8).
func interpolate(points [][2]byte, x byte) byte {
	var value byte

	for i, pi := range points {
		weight := byte(1)
		for j, pj := range points {
			if i == j {
				continue
			}
			top := gf256.Add(x, pj[0])
			bottom := gf256.Add(pi[0], pj[0])
			weight = gf256.Mul(weight, gf256.Div(top, bottom))
		}
		value = gf256.Add(value, gf256.Mul(weight, pi[1]))
	}

	return value
}

// GenerateRefreshKey builds one zero-constant-term, degree-(threshold-1)
// polynomial per secret byte position. Applying the same RefreshKey to every
// share of a secret rerandomizes them without moving the reconstructible
// value.
func GenerateRefreshKey(threshold, secretLen int) (RefreshKey, error) {
	if threshold < 2 {
		return nil, &InvalidParametersError{Reason: "threshold must be at least 2"}
	}

	key := make(RefreshKey, secretLen)
	for i := 0; i < secretLen; i++ {
		poly, err := polynomial.New(threshold-1, 0)
		if err != nil {
			return nil, fmt.Errorf("generating refresh polynomial %d: %w", i, err)
		}
		key[i] = poly
	}

	return key, nil
}

// RefreshShare applies key to share, XOR-adding each refresh polynomial's
// evaluation at share.X into the corresponding Y byte. The X coordinate is
// unchanged; only Y moves.
func RefreshShare(share Share, key RefreshKey) (Share, error) {
	if len(share.Y) == 0 {
		return Share{}, &InvalidParametersError{Reason: "empty share"}
	}
	if len(share.Y) != len(key) {
		return Share{}, &InvalidParametersError{Reason: "share length and refresh key length mismatch"}
	}

	refreshed := Share{X: share.X, Y: make([]byte, len(share.Y))}
	for i, y := range share.Y {
		delta := key[i].Evaluate(share.X)
		refreshed.Y[i] = gf256.Add(y, delta)
	}

	return refreshed, nil
}

// RefreshShares applies the same RefreshKey instance to every share in the
// map, keyed by the owning peer. This is the only exported way to fan a
// refresh key out across multiple shares, which makes the
// one-key-per-round coordination invariant structurally hard to violate:
// there is no call site that can hand two peers different keys for the same
// round without the caller explicitly generating two keys and calling this
// twice.
func RefreshShares(shares map[peer.ID]Share, key RefreshKey) (map[peer.ID]Share, error) {
	refreshed := make(map[peer.ID]Share, len(shares))
	for id, share := range shares {
		r, err := RefreshShare(share, key)
		if err != nil {
			return nil, fmt.Errorf("refreshing share for peer %s: %w", id, err)
		}
		refreshed[id] = r
	}
	return refreshed, nil
}
