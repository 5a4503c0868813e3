package nfsv4

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeStateid4_Roundtrip(t *testing.T) {
	sid := &Stateid4{
		Seqid: 7,
		Other: [StateidOtherSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}

	buf := new(bytes.Buffer)
	EncodeStateid4(buf, sid)

	decoded, err := DecodeStateid4(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Seqid != sid.Seqid {
		t.Errorf("seqid: got %d, want %d", decoded.Seqid, sid.Seqid)
	}
	if decoded.Other != sid.Other {
		t.Errorf("other: got %v, want %v", decoded.Other, sid.Other)
	}
}

func TestStateid4_IsSpecial(t *testing.T) {
	if !AnonymousStateid.IsSpecial() {
		t.Error("anonymous stateid should be special")
	}

	allOnes := Stateid4{Seqid: 0xFFFFFFFF}
	for i := range allOnes.Other {
		allOnes.Other[i] = 0xFF
	}
	if !allOnes.IsSpecial() {
		t.Error("all-ones stateid should be special")
	}

	ordinary := Stateid4{Seqid: 1, Other: [StateidOtherSize]byte{1}}
	if ordinary.IsSpecial() {
		t.Error("ordinary stateid should not be special")
	}
}

func TestDecodeStateid4_Truncated(t *testing.T) {
	_, err := DecodeStateid4(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x01}))
	if err == nil {
		t.Error("expected error for truncated stateid")
	}
}
