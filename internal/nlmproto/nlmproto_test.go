package nlmproto

import (
	"bytes"
	"testing"
)

func TestEncodeLock_NonEmpty(t *testing.T) {
	l := Lock{
		CallerName: "client.example.com",
		FH:         []byte{0x01, 0x02, 0x03, 0x04},
		OH:         []byte{0xAA, 0xBB},
		Svid:       42,
		Offset:     1024,
		Length:     4096,
	}

	buf := new(bytes.Buffer)
	if err := encodeLock(buf, l); err != nil {
		t.Fatalf("encode: %v", err)
	}

	// encodeLock has no matching decoder in this client (locks are only
	// ever sent, never received), so round-trip through decodeHolder's
	// sibling fields via a manual reader isn't applicable; instead verify
	// the encoding is non-empty.
	if buf.Len() == 0 {
		t.Fatal("expected non-empty encoding")
	}
}

func TestDecodeHolder_Roundtrip(t *testing.T) {
	buf := new(bytes.Buffer)
	h := Holder{
		Exclusive: true,
		Svid:      7,
		OH:        []byte{0x01, 0x02, 0x03},
		Offset:    100,
		Length:    200,
	}

	// Build the wire form by hand (mirrors the field order decodeHolder
	// expects, per encode.go's EncodeNLM4Holder grounding).
	writeBool(buf, h.Exclusive)
	writeInt32(buf, h.Svid)
	writeOpaque(buf, h.OH)
	writeUint64(buf, h.Offset)
	writeUint64(buf, h.Length)

	decoded, err := decodeHolder(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Exclusive != h.Exclusive {
		t.Errorf("exclusive: got %v, want %v", decoded.Exclusive, h.Exclusive)
	}
	if decoded.Svid != h.Svid {
		t.Errorf("svid: got %d, want %d", decoded.Svid, h.Svid)
	}
	if !bytes.Equal(decoded.OH, h.OH) {
		t.Errorf("oh: got %v, want %v", decoded.OH, h.OH)
	}
	if decoded.Offset != h.Offset {
		t.Errorf("offset: got %d, want %d", decoded.Offset, h.Offset)
	}
	if decoded.Length != h.Length {
		t.Errorf("length: got %d, want %d", decoded.Length, h.Length)
	}
}

func TestDecodeResult_Roundtrip(t *testing.T) {
	buf := new(bytes.Buffer)
	writeOpaque(buf, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	writeUint32(buf, Granted)

	res, err := decodeResult(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(res.Cookie, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("cookie: got %v", res.Cookie)
	}
	if res.Status != Granted {
		t.Errorf("status: got %d, want %d", res.Status, Granted)
	}
}

func TestDecodeResult_Truncated(t *testing.T) {
	_, err := decodeResult([]byte{0x00, 0x00, 0x00})
	if err == nil {
		t.Error("expected error for truncated result")
	}
}

func TestStatusString_KnownAndUnknown(t *testing.T) {
	if got := StatusString(Granted); got != "NLM4_GRANTED" {
		t.Errorf("got %q", got)
	}
	if got := StatusString(9999); got != "NLM4_UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

// --- small local XDR helpers mirroring the field layout encodeLock uses,
// kept test-local since the production encoder writes directly to the
// call buffer and never exposes a standalone per-field writer.

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		writeUint32(buf, 1)
	} else {
		writeUint32(buf, 0)
	}
}

func writeInt32(buf *bytes.Buffer, v int32) {
	writeUint32(buf, uint32(v))
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v >> 24))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	writeUint32(buf, uint32(v>>32))
	writeUint32(buf, uint32(v))
}

func writeOpaque(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}
