package rpcwire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/opennfsc/client/internal/xdr"
)

// Auth flavors per RFC 5531 Section 8.2.
const (
	AuthNull  uint32 = 0
	AuthUnix  uint32 = 1
	AuthShort uint32 = 2
	AuthDES   uint32 = 3
)

const (
	maxGIDs            = 16
	maxMachineNameSize = 255
)

// UnixAuth is the AUTH_UNIX (AUTH_SYS) credential structure per RFC 5531
// Section 9. This is the only auth flavor this client implements; RPCSEC_GSS
// and AUTH_DES are not supported.
type UnixAuth struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

// Encode writes the credential body (not wrapped in an opaque_auth length
// prefix) in XDR form: stamp, machine name, uid, gid, auxiliary gids.
func (a *UnixAuth) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteUint32(buf, a.Stamp); err != nil {
		return err
	}
	if err := xdr.WriteXDRString(buf, a.MachineName); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.UID); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.GID); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, uint32(len(a.GIDs))); err != nil {
		return err
	}
	for _, gid := range a.GIDs {
		if err := xdr.WriteUint32(buf, gid); err != nil {
			return err
		}
	}
	return nil
}

// String formats the credential for diagnostic logging.
func (a *UnixAuth) String() string {
	return fmt.Sprintf("UnixAuth{stamp=%d machine=%q uid=%d gid=%d gids=%v}",
		a.Stamp, a.MachineName, a.UID, a.GID, a.GIDs)
}

// ParseUnixAuth decodes an AUTH_UNIX credential body. The client does not
// receive credentials over the wire in normal operation, but a symmetric
// decoder is exercised when validating a locally-built credential or
// replaying a captured exchange in tests.
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("rpcwire: empty AUTH_UNIX body")
	}

	r := bytes.NewReader(body)

	stamp, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read stamp: %w", err)
	}

	nameLen, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read machine name length: %w", err)
	}
	if nameLen > maxMachineNameSize {
		return nil, fmt.Errorf("rpcwire: machine name too long: %d (max %d)", nameLen, maxMachineNameSize)
	}
	nameBytes := make([]byte, nameLen)
	if nameLen > 0 {
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, fmt.Errorf("rpcwire: read machine name: %w", err)
		}
	}
	padding := (4 - (nameLen % 4)) % 4
	for i := uint32(0); i < padding; i++ {
		if _, err := r.ReadByte(); err != nil {
			return nil, fmt.Errorf("rpcwire: read machine name padding: %w", err)
		}
	}

	uid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read uid: %w", err)
	}
	gid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read gid: %w", err)
	}

	numGIDs, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read gid count: %w", err)
	}
	if numGIDs > maxGIDs {
		return nil, fmt.Errorf("rpcwire: too many gids: %d (max %d)", numGIDs, maxGIDs)
	}
	gids := make([]uint32, numGIDs)
	for i := range gids {
		v, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("rpcwire: read gid[%d]: %w", i, err)
		}
		gids[i] = v
	}

	return &UnixAuth{
		Stamp:       stamp,
		MachineName: string(nameBytes),
		UID:         uid,
		GID:         gid,
		GIDs:        gids,
	}, nil
}

// opaqueAuth is the generic {flavor, body} pair wrapping any credential or
// verifier per RFC 5531 Section 8.1.
type opaqueAuth struct {
	Flavor uint32
	Body   []byte
}

func (o opaqueAuth) encode(buf *bytes.Buffer) error {
	if err := xdr.WriteUint32(buf, o.Flavor); err != nil {
		return err
	}
	return xdr.WriteXDROpaque(buf, o.Body)
}

func decodeOpaqueAuth(r *bytes.Reader) (opaqueAuth, error) {
	flavor, err := xdr.DecodeUint32(r)
	if err != nil {
		return opaqueAuth{}, fmt.Errorf("rpcwire: read auth flavor: %w", err)
	}
	body, err := xdr.DecodeOpaque(r)
	if err != nil {
		return opaqueAuth{}, fmt.Errorf("rpcwire: read auth body: %w", err)
	}
	return opaqueAuth{Flavor: flavor, Body: body}, nil
}

// NullAuth is the zero-length AUTH_NONE credential/verifier used for the
// call verifier and for calls that need no credentials (e.g. NULL procs).
func NullAuth() opaqueAuth {
	return opaqueAuth{Flavor: AuthNull, Body: nil}
}

// UnixCredential builds the opaque_auth wrapper for a UnixAuth credential.
func UnixCredential(a *UnixAuth) (opaqueAuth, error) {
	var buf bytes.Buffer
	if err := a.Encode(&buf); err != nil {
		return opaqueAuth{}, err
	}
	return opaqueAuth{Flavor: AuthUnix, Body: buf.Bytes()}, nil
}
