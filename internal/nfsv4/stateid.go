package nfsv4

import (
	"bytes"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// StateidOtherSize is the size of a stateid4's opaque "other" field.
const StateidOtherSize = 12

// Stateid4 identifies a unit of locking state (an open, a byte-range
// lock, a delegation), per RFC 7530 Section 9.1.4.
type Stateid4 struct {
	Seqid uint32
	Other [StateidOtherSize]byte
}

// AnonymousStateid is the special all-zero stateid meaning "no lock
// state, evaluate as an ordinary access check" (RFC 7530 Section 9.1.4.3).
var AnonymousStateid = Stateid4{}

// IsSpecial reports whether s is the anonymous or READ-bypass special
// stateid, neither of which was ever returned by an OPEN this client made.
func (s Stateid4) IsSpecial() bool {
	if s.Seqid == 0 && s.Other == ([StateidOtherSize]byte{}) {
		return true
	}
	allOnes := [StateidOtherSize]byte{}
	for i := range allOnes {
		allOnes[i] = 0xFF
	}
	return s.Seqid == 0xFFFFFFFF && s.Other == allOnes
}

// DecodeStateid4 reads a stateid4 (seqid + 12-byte opaque "other").
func DecodeStateid4(r io.Reader) (*Stateid4, error) {
	seqid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	var other [StateidOtherSize]byte
	if _, err := io.ReadFull(r, other[:]); err != nil {
		return nil, err
	}
	return &Stateid4{Seqid: seqid, Other: other}, nil
}

// EncodeStateid4 writes a stateid4.
func EncodeStateid4(buf *bytes.Buffer, sid *Stateid4) {
	_ = xdr.WriteUint32(buf, sid.Seqid)
	buf.Write(sid.Other[:])
}

// NFS4Time is an nfstime4: signed seconds since the epoch plus nanoseconds.
type NFS4Time struct {
	Seconds  int64
	Nseconds uint32
}
