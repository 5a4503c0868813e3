package nsmproto

import (
	"bytes"
	"testing"

	"github.com/opennfsc/client/internal/xdr"
)

func TestEncodeMyID(t *testing.T) {
	id := MyID{
		MyName: "client.example.com",
		MyProg: 100024,
		MyVers: 1,
		MyProc: 6,
	}

	buf := new(bytes.Buffer)
	if err := encodeMyID(buf, id); err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	name, err := xdr.DecodeString(r)
	if err != nil {
		t.Fatalf("decode my_name: %v", err)
	}
	if name != id.MyName {
		t.Errorf("my_name: got %q, want %q", name, id.MyName)
	}
	prog, err := xdr.DecodeUint32(r)
	if err != nil || prog != id.MyProg {
		t.Errorf("my_prog: got %d, err %v", prog, err)
	}
	vers, err := xdr.DecodeUint32(r)
	if err != nil || vers != id.MyVers {
		t.Errorf("my_vers: got %d, err %v", vers, err)
	}
	proc, err := xdr.DecodeUint32(r)
	if err != nil || proc != id.MyProc {
		t.Errorf("my_proc: got %d, err %v", proc, err)
	}
}

func TestDecodeStatResult_Roundtrip(t *testing.T) {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, StatSucc)
	_ = xdr.WriteInt32(buf, 5)

	res, err := decodeStatResult(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Result != StatSucc {
		t.Errorf("result: got %d, want %d", res.Result, StatSucc)
	}
	if res.State != 5 {
		t.Errorf("state: got %d, want 5", res.State)
	}
}

func TestDecodeStatResult_Truncated(t *testing.T) {
	_, err := decodeStatResult([]byte{0x00, 0x00, 0x00, 0x01})
	if err == nil {
		t.Error("expected error for truncated reply")
	}
}
