package nfsv4

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// ============================================================================
// Filehandle operations
// ============================================================================

// PutFH adds a PUTFH operation (RFC 7530 Section 16.19) that sets the
// current filehandle to fh for every operation that follows in the
// compound.
func (b *Builder) PutFH(fh []byte) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteXDROpaque(buf, fh)
	return b.AddOp(OP_PUTFH, buf.Bytes())
}

// PutRootFH adds a PUTROOTFH operation (RFC 7530 Section 16.20), which has
// no arguments and sets the current filehandle to the server's root.
func (b *Builder) PutRootFH() *Builder {
	return b.AddOp(OP_PUTROOTFH, nil)
}

// GetFH adds a GETFH operation (RFC 7530 Section 16.7), which has no
// arguments and whose result carries the current filehandle.
func (b *Builder) GetFH() *Builder {
	return b.AddOp(OP_GETFH, nil)
}

// DecodeGetFHResult decodes a GETFH4resok body: a single opaque filehandle.
func DecodeGetFHResult(r io.Reader) ([]byte, error) {
	fh, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode getfh result: %w", err)
	}
	return fh, nil
}

// ============================================================================
// LOOKUP / GETATTR
// ============================================================================

// Lookup adds a LOOKUP operation (RFC 7530 Section 16.11): args are a
// single component4 (UTF-8 filename); the current filehandle becomes the
// named child on success.
func (b *Builder) Lookup(name string) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteXDRString(buf, name)
	return b.AddOp(OP_LOOKUP, buf.Bytes())
}

// GetAttr adds a GETATTR operation (RFC 7530 Section 16.9) requesting the
// attributes named by the bitmap4 mask.
func (b *Builder) GetAttr(mask []uint32) *Builder {
	buf := new(bytes.Buffer)
	_ = EncodeBitmap4(buf, mask)
	return b.AddOp(OP_GETATTR, buf.Bytes())
}

// GetAttrResult is the raw, still-undecoded fattr4 payload returned by
// GETATTR: the bitmap of attributes actually present followed by their
// opaque encoded values. Interpreting individual values is the job of the
// fattr4 value codec; this layer only separates the envelope from the
// COMPOUND reply stream.
type GetAttrResult struct {
	AttrMask []uint32
	AttrVals []byte
}

// DecodeGetAttrResult decodes a GETATTR4resok body (fattr4: bitmap4 +
// opaque attrvals).
func DecodeGetAttrResult(r io.Reader) (*GetAttrResult, error) {
	mask, err := DecodeBitmap4(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode getattr mask: %w", err)
	}
	vals, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode getattr vals: %w", err)
	}
	return &GetAttrResult{AttrMask: mask, AttrVals: vals}, nil
}

// ============================================================================
// OPEN / CLOSE
// ============================================================================

// OpenOwner identifies the open-owner for an OPEN call: a server-assigned
// clientid paired with a client-chosen opaque owner string unique to this
// (clientid, open-owner) combination.
type OpenOwner struct {
	ClientID uint64
	Owner    []byte
}

// Open adds an OPEN operation (RFC 7530 Section 16.16) with CLAIM_NULL
// semantics: open (and optionally create) name within the current
// filehandle (which must be the parent directory).
//
// createAttrs, when non-nil, is a pre-encoded fattr4 (bitmap4 + opaque
// attrvals) applied via UNCHECKED4 (create if absent, no error if
// present with matching attrs left unchecked).
func (b *Builder) Open(seqid, shareAccess, shareDeny uint32, owner OpenOwner, name string, create bool, createAttrs []byte) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, seqid)
	_ = xdr.WriteUint32(buf, shareAccess)
	_ = xdr.WriteUint32(buf, shareDeny)
	_ = xdr.WriteUint64(buf, owner.ClientID)
	_ = xdr.WriteXDROpaque(buf, owner.Owner)

	if create {
		_ = xdr.WriteUint32(buf, OPEN4_CREATE)
		_ = xdr.WriteUint32(buf, UNCHECKED4)
		buf.Write(createAttrs)
	} else {
		_ = xdr.WriteUint32(buf, OPEN4_NOCREATE)
	}

	_ = xdr.WriteUint32(buf, CLAIM_NULL)
	_ = xdr.WriteXDRString(buf, name)

	return b.AddOp(OP_OPEN, buf.Bytes())
}

// OpenResult is the decoded OPEN4resok: the granted stateid, change_info4,
// and rflags. The attrset is not kept, and a reply that grants a
// delegation is rejected by DecodeOpenResult.
type OpenResult struct {
	Stateid      Stateid4
	ChangeBefore uint64
	ChangeAfter  uint64
	Atomic       bool
	ResultFlags  uint32
}

// DecodeOpenResult decodes a whole OPEN4resok body, so the caller's next
// NextOp starts at the following operation: the stateid, change_info4, and
// rflags are returned, the attrset bitmap4 is read and discarded, and a
// delegation type other than OPEN_DELEGATE_NONE is returned as an error.
func DecodeOpenResult(r io.Reader) (*OpenResult, error) {
	stateid, err := DecodeStateid4(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open stateid: %w", err)
	}
	atomic, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open cinfo atomic: %w", err)
	}
	before, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open cinfo before: %w", err)
	}
	after, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open cinfo after: %w", err)
	}
	rflags, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open rflags: %w", err)
	}
	attrset, err := DecodeBitmap4(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open attrset: %w", err)
	}
	_ = attrset
	delegType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode open delegation type: %w", err)
	}
	if delegType != OPEN_DELEGATE_NONE {
		return nil, fmt.Errorf("nfsv4: open delegation type %d not supported by this client", delegType)
	}
	return &OpenResult{
		Stateid:      *stateid,
		ChangeBefore: before,
		ChangeAfter:  after,
		Atomic:       atomic,
		ResultFlags:  rflags,
	}, nil
}

// Close adds a CLOSE operation (RFC 7530 Section 16.3) releasing the open
// state identified by stateid.
func (b *Builder) Close(seqid uint32, stateid Stateid4) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, seqid)
	EncodeStateid4(buf, &stateid)
	return b.AddOp(OP_CLOSE, buf.Bytes())
}

// DecodeCloseResult decodes a CLOSE4res body: the zeroed stateid the
// server hands back once state is released.
func DecodeCloseResult(r io.Reader) (*Stateid4, error) {
	return DecodeStateid4(r)
}

// ============================================================================
// READ / WRITE
// ============================================================================

// Read adds a READ operation (RFC 7530 Section 16.23).
func (b *Builder) Read(stateid Stateid4, offset uint64, count uint32) *Builder {
	buf := new(bytes.Buffer)
	EncodeStateid4(buf, &stateid)
	_ = xdr.WriteUint64(buf, offset)
	_ = xdr.WriteUint32(buf, count)
	return b.AddOp(OP_READ, buf.Bytes())
}

// ReadResult is the decoded READ4resok.
type ReadResult struct {
	EOF  bool
	Data []byte
}

// DecodeReadResult decodes a READ4resok body: eof(bool) + data(opaque).
func DecodeReadResult(r io.Reader) (*ReadResult, error) {
	eof, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode read eof: %w", err)
	}
	data, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode read data: %w", err)
	}
	return &ReadResult{EOF: eof, Data: data}, nil
}

// Write adds a WRITE operation (RFC 7530 Section 16.34).
func (b *Builder) Write(stateid Stateid4, offset uint64, stable uint32, data []byte) *Builder {
	buf := new(bytes.Buffer)
	EncodeStateid4(buf, &stateid)
	_ = xdr.WriteUint64(buf, offset)
	_ = xdr.WriteUint32(buf, stable)
	_ = xdr.WriteXDROpaque(buf, data)
	return b.AddOp(OP_WRITE, buf.Bytes())
}

// WriteResult is the decoded WRITE4resok.
type WriteResult struct {
	Count    uint32
	Stable   uint32
	Verifier [8]byte
}

// DecodeWriteResult decodes a WRITE4resok body: count(uint32) +
// committed(stable_how) + writeverf4(opaque[8]).
func DecodeWriteResult(r io.Reader) (*WriteResult, error) {
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode write count: %w", err)
	}
	stable, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode write stable: %w", err)
	}
	var verf [8]byte
	if _, err := io.ReadFull(r, verf[:]); err != nil {
		return nil, fmt.Errorf("nfsv4: decode write verifier: %w", err)
	}
	return &WriteResult{Count: count, Stable: stable, Verifier: verf}, nil
}

// ============================================================================
// CREATE / REMOVE / RENAME
// ============================================================================

// Create adds a CREATE operation (RFC 7530 Section 16.4) for a non-regular
// object (directory, symlink, or special file); regular files are created
// through OPEN instead. objType selects the createtype4 discriminant;
// objData carries the type-specific payload (a linkdata string for
// NF4LNK, a specdata4 for NF4BLK/NF4CHR, or nothing otherwise).
func (b *Builder) Create(objType uint32, objData []byte, name string, attrs []byte) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, objType)
	buf.Write(objData)
	_ = xdr.WriteXDRString(buf, name)
	buf.Write(attrs)
	return b.AddOp(OP_CREATE, buf.Bytes())
}

// CreateResult is the decoded CREATE4resok change_info4.
type CreateResult struct {
	ChangeBefore uint64
	ChangeAfter  uint64
	Atomic       bool
}

// DecodeCreateResult decodes a CREATE4resok body: change_info4 followed by
// the attrset bitmap4, which this client doesn't act on.
func DecodeCreateResult(r io.Reader) (*CreateResult, error) {
	atomic, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode create cinfo atomic: %w", err)
	}
	before, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode create cinfo before: %w", err)
	}
	after, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode create cinfo after: %w", err)
	}
	if _, err := DecodeBitmap4(r); err != nil {
		return nil, fmt.Errorf("nfsv4: decode create attrset: %w", err)
	}
	return &CreateResult{ChangeBefore: before, ChangeAfter: after, Atomic: atomic}, nil
}

// Remove adds a REMOVE operation (RFC 7530 Section 16.24) deleting name
// from the current filehandle (the parent directory).
func (b *Builder) Remove(name string) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteXDRString(buf, name)
	return b.AddOp(OP_REMOVE, buf.Bytes())
}

// DecodeRemoveResult decodes a REMOVE4res change_info4 body.
func DecodeRemoveResult(r io.Reader) (*CreateResult, error) {
	atomic, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode remove cinfo atomic: %w", err)
	}
	before, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode remove cinfo before: %w", err)
	}
	after, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode remove cinfo after: %w", err)
	}
	return &CreateResult{ChangeBefore: before, ChangeAfter: after, Atomic: atomic}, nil
}

// Rename adds a RENAME operation (RFC 7530 Section 16.25). The saved
// filehandle (set by a prior SAVEFH) is the source directory; the current
// filehandle is the target directory.
func (b *Builder) Rename(oldName, newName string) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteXDRString(buf, oldName)
	_ = xdr.WriteXDRString(buf, newName)
	return b.AddOp(OP_RENAME, buf.Bytes())
}

// RenameResult is the decoded RENAME4resok: change_info4 for both the
// source and target directories.
type RenameResult struct {
	Source CreateResult
	Target CreateResult
}

// DecodeRenameResult decodes a RENAME4resok body: two back-to-back
// change_info4 structs (source directory, then target directory).
func DecodeRenameResult(r io.Reader) (*RenameResult, error) {
	decodeChangeInfo := func() (CreateResult, error) {
		atomic, err := xdr.DecodeBool(r)
		if err != nil {
			return CreateResult{}, err
		}
		before, err := xdr.DecodeUint64(r)
		if err != nil {
			return CreateResult{}, err
		}
		after, err := xdr.DecodeUint64(r)
		if err != nil {
			return CreateResult{}, err
		}
		return CreateResult{ChangeBefore: before, ChangeAfter: after, Atomic: atomic}, nil
	}
	source, err := decodeChangeInfo()
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode rename source cinfo: %w", err)
	}
	target, err := decodeChangeInfo()
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode rename target cinfo: %w", err)
	}
	return &RenameResult{Source: source, Target: target}, nil
}

// SaveFH adds a SAVEFH operation (RFC 7530 Section 16.29), copying the
// current filehandle to the saved filehandle slot.
func (b *Builder) SaveFH() *Builder {
	return b.AddOp(OP_SAVEFH, nil)
}

// RestoreFH adds a RESTOREFH operation (RFC 7530 Section 16.28), copying
// the saved filehandle back to the current filehandle slot.
func (b *Builder) RestoreFH() *Builder {
	return b.AddOp(OP_RESTOREFH, nil)
}

// ============================================================================
// Client-state lifecycle: SETCLIENTID / SETCLIENTID_CONFIRM / RENEW
// ============================================================================

// SetClientID adds a SETCLIENTID operation (RFC 7530 Section 16.33):
// establishes a client's identity with the server ahead of its first OPEN.
// callbackProg/callbackNetid/callbackAddr are sent as-is but, since this
// client never accepts callbacks, may legitimately be zero/empty.
func (b *Builder) SetClientID(verifier [8]byte, id []byte, callbackProg uint32, callbackNetid, callbackAddr string, callbackIdent uint32) *Builder {
	buf := new(bytes.Buffer)
	buf.Write(verifier[:])
	_ = xdr.WriteXDROpaque(buf, id)
	_ = xdr.WriteUint32(buf, callbackProg)
	_ = xdr.WriteXDRString(buf, callbackNetid)
	_ = xdr.WriteXDRString(buf, callbackAddr)
	_ = xdr.WriteUint32(buf, callbackIdent)
	return b.AddOp(OP_SETCLIENTID, buf.Bytes())
}

// SetClientIDResult is the decoded SETCLIENTID4resok.
type SetClientIDResult struct {
	ClientID  uint64
	Verifier  [8]byte
}

// DecodeSetClientIDResult decodes a SETCLIENTID4resok body: clientid
// (uint64) + verifier (opaque[8]), the confirming verifier to echo back
// in SETCLIENTID_CONFIRM.
func DecodeSetClientIDResult(r io.Reader) (*SetClientIDResult, error) {
	clientID, err := xdr.DecodeUint64(r)
	if err != nil {
		return nil, fmt.Errorf("nfsv4: decode setclientid clientid: %w", err)
	}
	var verf [8]byte
	if _, err := io.ReadFull(r, verf[:]); err != nil {
		return nil, fmt.Errorf("nfsv4: decode setclientid confirm verifier: %w", err)
	}
	return &SetClientIDResult{ClientID: clientID, Verifier: verf}, nil
}

// SetClientIDConfirm adds a SETCLIENTID_CONFIRM operation (RFC 7530
// Section 16.34) completing the handshake SetClientID started.
func (b *Builder) SetClientIDConfirm(clientID uint64, verifier [8]byte) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint64(buf, clientID)
	buf.Write(verifier[:])
	return b.AddOp(OP_SETCLIENTID_CONFIRM, buf.Bytes())
}

// Renew adds a RENEW operation (RFC 7530 Section 16.26), refreshing the
// server-side lease for clientID so its locks and opens don't expire.
func (b *Builder) Renew(clientID uint64) *Builder {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint64(buf, clientID)
	return b.AddOp(OP_RENEW, buf.Bytes())
}
