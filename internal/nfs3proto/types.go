// Package nfs3proto implements the client side of NFSv3 (RFC 1813): the
// procedure set a Connection Group drives once MOUNT has handed back a
// root filehandle.
package nfs3proto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// Program, version, and procedure numbers per RFC 1813 Section 3.3.
const (
	Program = 100003
	Version = 3

	ProcNull        = 0
	ProcGetAttr     = 1
	ProcSetAttr     = 2
	ProcLookup      = 3
	ProcAccess      = 4
	ProcReadlink    = 5
	ProcRead        = 6
	ProcWrite       = 7
	ProcCreate      = 8
	ProcMkdir       = 9
	ProcSymlink     = 10
	ProcMknod       = 11
	ProcRemove      = 12
	ProcRmdir       = 13
	ProcRename      = 14
	ProcLink        = 15
	ProcReaddir     = 16
	ProcReaddirplus = 17
	ProcFsstat      = 18
	ProcFsinfo      = 19
	ProcPathconf    = 20
	ProcCommit      = 21
)

// nfsstat3 values, per RFC 1813 Section 2.6. This constant set has no
// counterpart anywhere in the retrieval pack's handler code (the handlers
// reference types.NFS3OK etc. from a "types" package that was never
// checked in) and is authored fresh from the RFC text; see DESIGN.md.
const (
	NFS3OK             = 0
	NFS3ErrPerm        = 1
	NFS3ErrNoEnt       = 2
	NFS3ErrIO          = 5
	NFS3ErrNXIO        = 6
	NFS3ErrAcces       = 13
	NFS3ErrExist       = 17
	NFS3ErrXDev        = 18
	NFS3ErrNoDev       = 19
	NFS3ErrNotDir      = 20
	NFS3ErrIsDir       = 21
	NFS3ErrInval       = 22
	NFS3ErrFBig        = 27
	NFS3ErrNoSpc       = 28
	NFS3ErrROFS        = 30
	NFS3ErrMlink       = 31
	NFS3ErrNameTooLong = 63
	NFS3ErrNotEmpty    = 66
	NFS3ErrDquot       = 69
	NFS3ErrStale       = 70
	NFS3ErrRemote      = 71
	NFS3ErrBadHandle   = 10001
	NFS3ErrNotSync     = 10002
	NFS3ErrBadCookie   = 10003
	NFS3ErrNotSupp     = 10004
	NFS3ErrTooSmall    = 10005
	NFS3ErrServerFault = 10006
	NFS3ErrBadType     = 10007
	NFS3ErrJukebox     = 10008
)

// ftype3 values, per RFC 1813 Section 2.5.
const (
	NF3REG  = 1
	NF3DIR  = 2
	NF3BLK  = 3
	NF3CHR  = 4
	NF3LNK  = 5
	NF3SOCK = 6
	NF3FIFO = 7
)

// ACCESS3 permission bits, per RFC 1813 Section 3.3.4.
const (
	AccessRead    = 0x0001
	AccessLookup  = 0x0002
	AccessModify  = 0x0004
	AccessExtend  = 0x0008
	AccessDelete  = 0x0010
	AccessExecute = 0x0020
)

// stable_how values for WRITE, per RFC 1813 Section 3.3.7.
const (
	Unstable  = 0
	DataSync  = 1
	FileSync  = 2
)

// MaxFileHandleSize bounds a decoded filehandle to the RFC 1813 limit.
const MaxFileHandleSize = 64

// TimeVal is an NFSv3 nfstime3 (seconds + nanoseconds since the epoch).
type TimeVal struct {
	Seconds  uint32
	Nseconds uint32
}

func decodeTimeVal(r io.Reader) (TimeVal, error) {
	sec, err := xdr.DecodeUint32(r)
	if err != nil {
		return TimeVal{}, err
	}
	nsec, err := xdr.DecodeUint32(r)
	if err != nil {
		return TimeVal{}, err
	}
	return TimeVal{Seconds: sec, Nseconds: nsec}, nil
}

func encodeTimeVal(buf *bytes.Buffer, t TimeVal) error {
	if err := xdr.WriteUint32(buf, t.Seconds); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, t.Nseconds)
}

// FileAttr is a decoded fattr3, per RFC 1813 Section 2.5.
type FileAttr struct {
	Type   uint32
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Used   uint64
	Rdev   [2]uint32
	Fsid   uint64
	Fileid uint64
	Atime  TimeVal
	Mtime  TimeVal
	Ctime  TimeVal
}

// DecodeFileAttr decodes a dense fattr3 struct (always present, no
// optional fields — unlike fattr4, fattr3 has no selector bitmap).
func DecodeFileAttr(r io.Reader) (*FileAttr, error) {
	a := &FileAttr{}
	var err error
	if a.Type, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 type: %w", err)
	}
	if a.Mode, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 mode: %w", err)
	}
	if a.Nlink, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 nlink: %w", err)
	}
	if a.UID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 uid: %w", err)
	}
	if a.GID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 gid: %w", err)
	}
	if a.Size, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 size: %w", err)
	}
	if a.Used, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 used: %w", err)
	}
	if a.Rdev[0], err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 rdev specdata1: %w", err)
	}
	if a.Rdev[1], err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 rdev specdata2: %w", err)
	}
	if a.Fsid, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 fsid: %w", err)
	}
	if a.Fileid, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 fileid: %w", err)
	}
	if a.Atime, err = decodeTimeVal(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 atime: %w", err)
	}
	if a.Mtime, err = decodeTimeVal(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 mtime: %w", err)
	}
	if a.Ctime, err = decodeTimeVal(r); err != nil {
		return nil, fmt.Errorf("nfs3proto: decode fattr3 ctime: %w", err)
	}
	return a, nil
}

// EncodeFileAttr encodes a dense fattr3 struct, used when constructing
// SETATTR's sattr3 guard verification is NOT this — SETATTR uses a
// different, sparse wire shape (see SetAttr in client.go); this helper exists for
// symmetry and tests that round-trip a FileAttr.
func EncodeFileAttr(buf *bytes.Buffer, a *FileAttr) error {
	fields := []uint32{a.Type, a.Mode, a.Nlink, a.UID, a.GID}
	for _, f := range fields {
		if err := xdr.WriteUint32(buf, f); err != nil {
			return err
		}
	}
	if err := xdr.WriteUint64(buf, a.Size); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, a.Used); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.Rdev[0]); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.Rdev[1]); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, a.Fsid); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, a.Fileid); err != nil {
		return err
	}
	for _, t := range []TimeVal{a.Atime, a.Mtime, a.Ctime} {
		if err := encodeTimeVal(buf, t); err != nil {
			return err
		}
	}
	return nil
}

// DecodePostOpAttr decodes a post_op_attr: a presence flag followed by an
// fattr3 if true.
func DecodePostOpAttr(r io.Reader) (*FileAttr, error) {
	present, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfs3proto: decode post_op_attr flag: %w", err)
	}
	if !present {
		return nil, nil
	}
	return DecodeFileAttr(r)
}

// WccAttr is the pre-operation subset of attributes used for weak cache
// consistency (wcc_attr), per RFC 1813 Section 2.6.
type WccAttr struct {
	Size  uint64
	Mtime TimeVal
	Ctime TimeVal
}

// WccData is the combined pre/post operation attributes (wcc_data)
// every mutating NFSv3 procedure returns for cache invalidation.
type WccData struct {
	Before *WccAttr
	After  *FileAttr
}

// DecodeWccData decodes a wcc_data: pre_op_attr followed by post_op_attr.
func DecodeWccData(r io.Reader) (*WccData, error) {
	wcc := &WccData{}

	beforePresent, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("nfs3proto: decode wcc pre_op_attr flag: %w", err)
	}
	if beforePresent {
		size, err := xdr.DecodeUint64(r)
		if err != nil {
			return nil, fmt.Errorf("nfs3proto: decode wcc pre size: %w", err)
		}
		mtime, err := decodeTimeVal(r)
		if err != nil {
			return nil, fmt.Errorf("nfs3proto: decode wcc pre mtime: %w", err)
		}
		ctime, err := decodeTimeVal(r)
		if err != nil {
			return nil, fmt.Errorf("nfs3proto: decode wcc pre ctime: %w", err)
		}
		wcc.Before = &WccAttr{Size: size, Mtime: mtime, Ctime: ctime}
	}

	wcc.After, err = DecodePostOpAttr(r)
	if err != nil {
		return nil, fmt.Errorf("nfs3proto: decode wcc post_op_attr: %w", err)
	}
	return wcc, nil
}

// decodeFileHandle decodes an opaque nfs_fh3, bounding it to the RFC 1813
// maximum so a malformed reply can't force an unbounded allocation.
func decodeFileHandle(r io.Reader) ([]byte, error) {
	fh, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, err
	}
	if len(fh) > MaxFileHandleSize {
		return nil, fmt.Errorf("nfs3proto: filehandle too large: %d bytes (max %d)", len(fh), MaxFileHandleSize)
	}
	return fh, nil
}
