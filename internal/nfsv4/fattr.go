package nfsv4

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// FATTR4_* bit positions, per RFC 7530 Section 5.8.
const (
	FATTR4_SUPPORTED_ATTRS = 0
	FATTR4_TYPE            = 1
	FATTR4_FH_EXPIRE_TYPE  = 2
	FATTR4_CHANGE          = 3
	FATTR4_SIZE            = 4
	FATTR4_LINK_SUPPORT    = 5
	FATTR4_SYMLINK_SUPPORT = 6
	FATTR4_NAMED_ATTR      = 7
	FATTR4_FSID            = 8
	FATTR4_UNIQUE_HANDLES  = 9
	FATTR4_LEASE_TIME      = 10
	FATTR4_RDATTR_ERROR    = 11
	FATTR4_ACL             = 12
	FATTR4_ACLSUPPORT      = 13
	FATTR4_FILEHANDLE      = 19
	FATTR4_FILEID          = 20
	FATTR4_MODE            = 33
	FATTR4_NUMLINKS        = 35
	FATTR4_OWNER           = 36
	FATTR4_OWNER_GROUP     = 37
	FATTR4_SPACE_USED      = 45
	FATTR4_TIME_ACCESS     = 47
	FATTR4_TIME_ACCESS_SET = 48
	FATTR4_TIME_MODIFY     = 53
	FATTR4_TIME_MODIFY_SET = 54

	FATTR4_MOUNTED_ON_FILEID = 55
)

// FileAttrs is a sparse, client-side view of a decoded fattr4: only the
// fields the server actually returned (per the reply's own bitmap) are
// populated, mirroring the protocol's own "ask for what you want, get
// only what's supported" model rather than forcing every caller to
// populate a dense struct.
type FileAttrs struct {
	Type       uint32
	Size       uint64
	Change     uint64
	FileID     uint64
	Mode       uint32
	NumLinks   uint32
	Owner      string
	OwnerGroup string
	SpaceUsed  uint64
	TimeAccess NFS4Time
	TimeModify NFS4Time

	present map[uint32]bool
}

// Has reports whether bit was present in the decoded attribute set.
func (a *FileAttrs) Has(bit uint32) bool {
	return a.present[bit]
}

// DecodeFileAttrs decodes an fattr4's opaque attrvals according to mask,
// the bitmap4 that accompanied it (GetAttrResult.AttrMask), populating
// only the subset of FATTR4_* attributes this client understands. An
// attribute cannot be skipped without knowing its encoded width, so any
// bit this decoder doesn't recognize aborts decoding — callers should request only the attributes handled
// here (see StandardAttrMask).
func DecodeFileAttrs(mask []uint32, vals []byte) (*FileAttrs, error) {
	r := bytes.NewReader(vals)
	attrs := &FileAttrs{present: make(map[uint32]bool)}

	maxBit := uint32(len(mask)) * 32
	for bit := uint32(0); bit < maxBit; bit++ {
		if !IsBitSet(mask, bit) {
			continue
		}
		switch bit {
		case FATTR4_SUPPORTED_ATTRS:
			if _, err := DecodeBitmap4(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode supported_attrs: %w", err)
			}
		case FATTR4_TYPE:
			v, err := xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode type: %w", err)
			}
			attrs.Type = v
		case FATTR4_FH_EXPIRE_TYPE:
			if _, err := xdr.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode fh_expire_type: %w", err)
			}
		case FATTR4_CHANGE:
			v, err := xdr.DecodeUint64(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode change: %w", err)
			}
			attrs.Change = v
		case FATTR4_SIZE:
			v, err := xdr.DecodeUint64(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode size: %w", err)
			}
			attrs.Size = v
		case FATTR4_LINK_SUPPORT, FATTR4_SYMLINK_SUPPORT, FATTR4_NAMED_ATTR, FATTR4_UNIQUE_HANDLES:
			if _, err := xdr.DecodeBool(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode bool attr %d: %w", bit, err)
			}
		case FATTR4_FSID:
			if _, err := xdr.DecodeUint64(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode fsid major: %w", err)
			}
			if _, err := xdr.DecodeUint64(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode fsid minor: %w", err)
			}
		case FATTR4_LEASE_TIME:
			if _, err := xdr.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode lease_time: %w", err)
			}
		case FATTR4_RDATTR_ERROR:
			if _, err := xdr.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode rdattr_error: %w", err)
			}
		case FATTR4_ACLSUPPORT:
			if _, err := xdr.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode aclsupport: %w", err)
			}
		case FATTR4_FILEHANDLE:
			if _, err := xdr.DecodeOpaque(r); err != nil {
				return nil, fmt.Errorf("nfsv4: decode filehandle attr: %w", err)
			}
		case FATTR4_FILEID, FATTR4_MOUNTED_ON_FILEID:
			v, err := xdr.DecodeUint64(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode fileid attr %d: %w", bit, err)
			}
			if bit == FATTR4_FILEID {
				attrs.FileID = v
			}
		case FATTR4_MODE:
			v, err := xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode mode: %w", err)
			}
			attrs.Mode = v
		case FATTR4_NUMLINKS:
			v, err := xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode numlinks: %w", err)
			}
			attrs.NumLinks = v
		case FATTR4_OWNER:
			v, err := xdr.DecodeString(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode owner: %w", err)
			}
			attrs.Owner = v
		case FATTR4_OWNER_GROUP:
			v, err := xdr.DecodeString(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode owner_group: %w", err)
			}
			attrs.OwnerGroup = v
		case FATTR4_SPACE_USED:
			v, err := xdr.DecodeUint64(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode space_used: %w", err)
			}
			attrs.SpaceUsed = v
		case FATTR4_TIME_ACCESS:
			t, err := decodeNFS4Time(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode time_access: %w", err)
			}
			attrs.TimeAccess = t
		case FATTR4_TIME_MODIFY:
			t, err := decodeNFS4Time(r)
			if err != nil {
				return nil, fmt.Errorf("nfsv4: decode time_modify: %w", err)
			}
			attrs.TimeModify = t
		default:
			return nil, fmt.Errorf("nfsv4: fattr4 bit %d not supported by this client's decoder", bit)
		}
		attrs.present[bit] = true
	}
	return attrs, nil
}

func decodeNFS4Time(r io.Reader) (NFS4Time, error) {
	seconds, err := xdr.DecodeInt64(r)
	if err != nil {
		return NFS4Time{}, err
	}
	nseconds, err := xdr.DecodeUint32(r)
	if err != nil {
		return NFS4Time{}, err
	}
	return NFS4Time{Seconds: seconds, Nseconds: nseconds}, nil
}

func encodeNFS4Time(buf *bytes.Buffer, t NFS4Time) {
	_ = xdr.WriteInt64(buf, t.Seconds)
	_ = xdr.WriteUint32(buf, t.Nseconds)
}

// StandardAttrMask is the bitmap4 this client requests on GETATTR calls:
// every attribute DecodeFileAttrs knows how to interpret.
func StandardAttrMask() []uint32 {
	var mask []uint32
	for _, bit := range []uint32{
		FATTR4_TYPE, FATTR4_CHANGE, FATTR4_SIZE, FATTR4_FILEID,
		FATTR4_MODE, FATTR4_NUMLINKS, FATTR4_OWNER, FATTR4_OWNER_GROUP,
		FATTR4_SPACE_USED, FATTR4_TIME_ACCESS, FATTR4_TIME_MODIFY,
	} {
		SetBit(&mask, bit)
	}
	return mask
}

// SetAttrs is the subset of fattr4 this client can set via OPEN's
// createattrs or a future SETATTR call: size (truncate), the POSIX mode
// bits, and the access and modify times.
type SetAttrs struct {
	Size    *uint64
	Mode    *uint32
	ATime   *NFS4Time
	MTime   *NFS4Time
}

// EncodeSetAttrs encodes a SetAttrs as an fattr4 (bitmap4 + opaque
// attrvals), suitable for OPEN's createattrs or a SETATTR call.
func EncodeSetAttrs(attrs SetAttrs) ([]byte, error) {
	var mask []uint32
	vals := new(bytes.Buffer)

	if attrs.Size != nil {
		SetBit(&mask, FATTR4_SIZE)
		if err := xdr.WriteUint64(vals, *attrs.Size); err != nil {
			return nil, fmt.Errorf("nfsv4: encode size attr: %w", err)
		}
	}
	if attrs.Mode != nil {
		SetBit(&mask, FATTR4_MODE)
		if err := xdr.WriteUint32(vals, *attrs.Mode); err != nil {
			return nil, fmt.Errorf("nfsv4: encode mode attr: %w", err)
		}
	}
	if attrs.ATime != nil {
		SetBit(&mask, FATTR4_TIME_ACCESS_SET)
		if err := xdr.WriteUint32(vals, 1); err != nil { // SET_TO_CLIENT_TIME4
			return nil, fmt.Errorf("nfsv4: encode atime discriminant: %w", err)
		}
		encodeNFS4Time(vals, *attrs.ATime)
	}
	if attrs.MTime != nil {
		SetBit(&mask, FATTR4_TIME_MODIFY_SET)
		if err := xdr.WriteUint32(vals, 1); err != nil {
			return nil, fmt.Errorf("nfsv4: encode mtime discriminant: %w", err)
		}
		encodeNFS4Time(vals, *attrs.MTime)
	}

	buf := new(bytes.Buffer)
	if err := EncodeBitmap4(buf, mask); err != nil {
		return nil, fmt.Errorf("nfsv4: encode setattrs mask: %w", err)
	}
	if err := xdr.WriteXDROpaque(buf, vals.Bytes()); err != nil {
		return nil, fmt.Errorf("nfsv4: encode setattrs vals: %w", err)
	}
	return buf.Bytes(), nil
}
