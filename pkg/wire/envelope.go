// Package wire implements the shard's request/response container format,
// MTU budgeting, and the cookie/certificate/proof MAC constructions of
// §6. It sits above internal/codec (the byte-level encoder) and
// internal/mac (the CBC-MAC primitive), and is consumed by the read path
// to size its responses, by the prepare path to check transient-file
// cookies, and by the apply path for cookies and block write/erase
// capabilities.
package wire

import (
	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/internal/mac"
)

// ProtocolVersion is the only version this build accepts; a mismatch is
// a fatal, non-recoverable request per §7.
const ProtocolVersion uint32 = 1

// MinMTU and MaxMTU bound the effective MTU per §6: the wire minimum for
// IPv4-over-Ethernet, and a conservative jumbo-frame ceiling.
const (
	MinMTU = 1472
	MaxMTU = 8972
)

// EffectiveMTU clamps a caller-supplied MTU hint into [MinMTU, MaxMTU].
func EffectiveMTU(hint uint16) int {
	mtu := int(hint)
	if mtu < MinMTU {
		mtu = MinMTU
	}
	if mtu > MaxMTU {
		mtu = MaxMTU
	}
	return mtu
}

// Kind discriminates the body of a request or response envelope.
type Kind uint16

// Header is the fixed-size prefix of every request and response, per §6.
type Header struct {
	ProtocolVersion uint32
	RequestId       uint64
	Kind            Kind
}

// HeaderSize is the encoded size of Header: 4 + 8 + 2 bytes.
const HeaderSize = 4 + 8 + 2

func (h Header) Encode(w *codec.Writer) {
	w.PutUint32(h.ProtocolVersion)
	w.PutUint64(h.RequestId)
	w.PutUint16(uint16(h.Kind))
}

func DecodeHeader(r *codec.Reader) (Header, error) {
	var h Header
	var err error
	if h.ProtocolVersion, err = r.GetUint32(); err != nil {
		return h, err
	}
	if h.RequestId, err = r.GetUint64(); err != nil {
		return h, err
	}
	kind, err := r.GetUint16()
	if err != nil {
		return h, err
	}
	h.Kind = Kind(kind)
	return h, nil
}

// Sign appends an 8-byte CBC-MAC of body under key, implementing the
// "signed variants append an 8-byte CBC-MAC" clause of §6.
func Sign(key mac.Key, body []byte) []byte {
	tag := mac.Sum(key, body)
	return append(append([]byte{}, body...), tag[:]...)
}

// VerifySigned splits a signed message into its body and validates the
// trailing 8-byte tag under key.
func VerifySigned(key mac.Key, signed []byte) (body []byte, ok bool) {
	if len(signed) < mac.TagSize {
		return nil, false
	}
	body = signed[:len(signed)-mac.TagSize]
	var tag [mac.TagSize]byte
	copy(tag[:], signed[len(signed)-mac.TagSize:])
	return body, mac.Verify(key, body, tag)
}

// Budget tracks the remaining byte allowance for a paginated read-path
// response, per §4.1: "budget = mtu - envelope-static-size -
// response-static-size; iteration stops when the budget would go
// negative... any partially-filled trailing element is removed."
type Budget struct {
	remaining int
}

// NewBudget computes the initial budget for a response given the
// caller's MTU hint and the fixed overhead of the envelope plus this
// response kind's static fields.
func NewBudget(mtuHint uint16, staticOverhead int) *Budget {
	return &Budget{remaining: EffectiveMTU(mtuHint) - HeaderSize - staticOverhead}
}

// TryTake attempts to account for one more element of the given encoded
// size. It returns false, and leaves the budget unchanged, once taking
// the element would drive the remaining budget negative.
func (b *Budget) TryTake(size int) bool {
	if b.remaining-size < 0 {
		return false
	}
	b.remaining -= size
	return true
}

// Exhausted reports whether any further element would overflow, without
// knowing that element's size yet (used for the boundary case where the
// budget is already zero or negative before the first element).
func (b *Budget) Exhausted() bool { return b.remaining <= 0 }
