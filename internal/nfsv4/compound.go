package nfsv4

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// Program and version of the NFS service as seen over ONC-RPC. NFSv3 and
// NFSv4 share program number 100003; only the version differs.
const (
	Program = 100003
	Version = 4

	minorVersion = 0 // only NFSv4.0 is spoken by this package
)

// RawOp is one operation within a COMPOUND request or reply: an opcode
// paired with its still-encoded argument or result body. Decoding a
// specific operation's body is deferred to the caller that knows its shape.
type RawOp struct {
	OpCode uint32
	Data   []byte
}

// Builder accumulates the ordered operation list of a single COMPOUND4args
// call. Operations are appended with AddOp (pre-encoded) or one of the
// typed helpers in ops.go.
type Builder struct {
	tag []byte
	ops []RawOp
}

// NewBuilder starts a compound tagged for client-side correlation in
// server logs; the tag carries no protocol meaning.
func NewBuilder(tag string) *Builder {
	return &Builder{tag: []byte(tag)}
}

// AddOp appends an operation whose argument body has already been encoded.
func (b *Builder) AddOp(opcode uint32, args []byte) *Builder {
	b.ops = append(b.ops, RawOp{OpCode: opcode, Data: args})
	return b
}

// Len reports how many operations have been added so far.
func (b *Builder) Len() int {
	return len(b.ops)
}

// Encode serializes the accumulated operations into a COMPOUND4args body,
// per RFC 7530 Section 16.2.3:
//
//	utf8str_cs tag; uint32 minorversion; nfs_argop4 argarray<>;
func (b *Builder) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDROpaque(buf, b.tag); err != nil {
		return nil, fmt.Errorf("nfsv4: encode tag: %w", err)
	}
	if err := xdr.WriteUint32(buf, minorVersion); err != nil {
		return nil, fmt.Errorf("nfsv4: encode minorversion: %w", err)
	}
	if err := xdr.WriteUint32(buf, uint32(len(b.ops))); err != nil {
		return nil, fmt.Errorf("nfsv4: encode argarray length: %w", err)
	}
	for i, op := range b.ops {
		if err := xdr.WriteUint32(buf, op.OpCode); err != nil {
			return nil, fmt.Errorf("nfsv4: encode opcode %d: %w", i, err)
		}
		buf.Write(op.Data)
	}
	return buf.Bytes(), nil
}

// ReplyStream exposes the COMPOUND4res body as a sequential reader so a
// caller can decode each operation's result with the matching typed
// decoder from ops.go (per-op result shapes are decoder-specific, not
// length-prefixed on the wire).
type ReplyStream struct {
	r      io.Reader
	Status uint32
	Tag    []byte
	Count  uint32
}

// NewReplyStream parses the COMPOUND4res header and leaves the reader
// positioned at the first nfs_resop4 entry.
func NewReplyStream(body []byte) (*ReplyStream, error) {
	r := bytes.NewReader(body)
	status, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode compound status: %w", err)
	}
	tag, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode compound tag: %w", err)
	}
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode resarray length: %w", err)
	}
	return &ReplyStream{r: r, Status: status, Tag: tag, Count: count}, nil
}

// NextOp reads the next operation's opcode and status, leaving the reader
// positioned at the start of that operation's result body (if any).
func (s *ReplyStream) NextOp() (opcode, status uint32, err error) {
	opcode, err = xdr.DecodeUint32(s.r)
	if err != nil {
		return 0, 0, fmt.Errorf("nfsv4: decode result opcode: %w", err)
	}
	status, err = xdr.DecodeUint32(s.r)
	if err != nil {
		return 0, 0, fmt.Errorf("nfsv4: decode result status: %w", err)
	}
	return opcode, status, nil
}

// Reader exposes the underlying stream for a typed per-op decoder.
func (s *ReplyStream) Reader() io.Reader {
	return s.r
}
