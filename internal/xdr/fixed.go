package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DecodeInt64 decodes a 64-bit signed integer from XDR format.
func DecodeInt64(reader io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int64: %w", err)
	}
	return v, nil
}

// DecodeFixedOpaque reads exactly n bytes of opaque data with no length
// prefix, padded to a 4-byte boundary per RFC 4506 Section 4.9. Used for
// fixed-width fields such as verifiers, stateid "other" bytes, and cookie
// verifiers whose size is dictated by the protocol rather than the wire.
func DecodeFixedOpaque(reader io.Reader, n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read fixed opaque(%d): %w", n, err)
	}
	padding := (4 - (n % 4)) % 4
	if padding > 0 {
		var padBuf [3]byte
		if _, err := io.ReadFull(reader, padBuf[:padding]); err != nil {
			return nil, fmt.Errorf("skip fixed opaque padding: %w", err)
		}
	}
	return data, nil
}

// WriteFixedOpaque writes data with no length prefix, padded to a 4-byte
// boundary. The caller is responsible for ensuring len(data) matches the
// protocol-mandated width; WriteFixedOpaque does not truncate or zero-pad
// short data.
func WriteFixedOpaque(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write fixed opaque: %w", err)
	}
	padding := (4 - (len(data) % 4)) % 4
	if padding > 0 {
		var padBuf [3]byte
		if _, err := w.Write(padBuf[:padding]); err != nil {
			return fmt.Errorf("write fixed opaque padding: %w", err)
		}
	}
	return nil
}
