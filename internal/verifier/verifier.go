// Package verifier checks ECDSA signatures over secp256k1. It is pure and
// stateless: structurally invalid input is an invalid signature, never an
// error, so callers cannot confuse rejection with infrastructure failure.
package verifier

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// DigestSize is the only digest length the verifier accepts.
const DigestSize = 32

// ScalarSize is the fixed encoding length of the r and s components.
const ScalarSize = 32

// Verify reports whether (r, s) is a valid canonical ECDSA signature over
// digest for the 33-byte compressed public key. Off-curve keys, zero or
// overflowing scalars, high-S signatures and wrong-length digests all
// verify as false.
func Verify(pubKey, digest, r, s []byte) bool {
	if len(digest) != DigestSize || len(r) != ScalarSize || len(s) != ScalarSize {
		return false
	}
	pub, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	var rs, ss btcec.ModNScalar
	if overflow := rs.SetByteSlice(r); overflow {
		return false
	}
	if overflow := ss.SetByteSlice(s); overflow {
		return false
	}
	if rs.IsZero() || ss.IsZero() {
		return false
	}
	// Reject the malleable high-S representative outright, even though it
	// satisfies the raw verification equation.
	if ss.IsOverHalfOrder() {
		return false
	}
	return ecdsa.NewSignature(&rs, &ss).Verify(digest, pub)
}

// ValidPubKey reports whether b parses as a point on the curve.
func ValidPubKey(b []byte) bool {
	_, err := btcec.ParsePubKey(b)
	return err == nil
}
