package nfs3proto

import (
	"bytes"
	"testing"
)

func sampleFileAttr() *FileAttr {
	return &FileAttr{
		Type:   NF3REG,
		Mode:   0644,
		Nlink:  1,
		UID:    1000,
		GID:    1000,
		Size:   4096,
		Used:   4096,
		Rdev:   [2]uint32{0, 0},
		Fsid:   1,
		Fileid: 42,
		Atime:  TimeVal{Seconds: 1000, Nseconds: 1},
		Mtime:  TimeVal{Seconds: 2000, Nseconds: 2},
		Ctime:  TimeVal{Seconds: 3000, Nseconds: 3},
	}
}

func TestEncodeDecodeFileAttr_Roundtrip(t *testing.T) {
	attr := sampleFileAttr()

	buf := new(bytes.Buffer)
	if err := EncodeFileAttr(buf, attr); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeFileAttr(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *attr {
		t.Errorf("got %+v, want %+v", decoded, attr)
	}
}

func TestDecodePostOpAttr_Present(t *testing.T) {
	attr := sampleFileAttr()

	buf := new(bytes.Buffer)
	_ = writeUint32(buf, 1) // attributes_follow = TRUE
	if err := EncodeFileAttr(buf, attr); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodePostOpAttr(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *attr {
		t.Errorf("got %+v, want %+v", decoded, attr)
	}
}

func TestDecodePostOpAttr_Absent(t *testing.T) {
	buf := new(bytes.Buffer)
	_ = writeUint32(buf, 0) // attributes_follow = FALSE

	decoded, err := DecodePostOpAttr(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != nil {
		t.Errorf("expected nil attr, got %+v", decoded)
	}
}

func TestDecodeFileAttr_Truncated(t *testing.T) {
	_, err := DecodeFileAttr(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x01}))
	if err == nil {
		t.Error("expected error for truncated fattr3")
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) error {
	buf.WriteByte(byte(v >> 24))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
	return nil
}
