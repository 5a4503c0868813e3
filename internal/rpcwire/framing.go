package rpcwire

import "encoding/binary"

// TCP record marking per RFC 5531 Section 11. Each fragment is prefixed by
// a 4-byte big-endian header: the high bit marks the last fragment of the
// record, the remaining 31 bits give the fragment's byte length. UDP
// messages carry no such header — one datagram is one complete message.
const (
	LastFragmentBit uint32 = 0x80000000
	FragmentLenMask uint32 = 0x7FFFFFFF
	MaxFragmentLen  uint32 = FragmentLenMask
)

// EncodeLastFragment wraps payload in a single final fragment, the only
// shape this client ever sends (it never splits an outgoing call across
// multiple fragments).
func EncodeLastFragment(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[0:4], LastFragmentBit|uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// DecodeFragmentHeader splits a 4-byte record-marking header into its last
// flag and length fields.
func DecodeFragmentHeader(header [4]byte) (last bool, length uint32) {
	v := binary.BigEndian.Uint32(header[:])
	return v&LastFragmentBit != 0, v & FragmentLenMask
}
