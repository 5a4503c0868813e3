package rpcwire

import (
	"bytes"

	"github.com/opennfsc/client/internal/xdr"
)

// RPCVersion is the only ONC-RPC version this library speaks, per RFC 5531.
const RPCVersion uint32 = 2

// Message types per RFC 5531 Section 8.
const (
	RPCCall  uint32 = 0
	RPCReply uint32 = 1
)

// CallHeader is the fixed portion of an RPC call, excluding the procedure
// arguments, per RFC 5531 Section 8.
type CallHeader struct {
	XID         uint32
	Program     uint32
	ProgVersion uint32
	Procedure   uint32
	Credential  *UnixAuth // nil encodes AUTH_NONE
}

// Encode writes the call header (through the verifier) into buf. The caller
// appends the XDR-encoded procedure arguments immediately after.
func (h *CallHeader) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteUint32(buf, h.XID); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, RPCCall); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, RPCVersion); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, h.Program); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, h.ProgVersion); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, h.Procedure); err != nil {
		return err
	}

	var cred opaqueAuth
	if h.Credential != nil {
		var err error
		cred, err = UnixCredential(h.Credential)
		if err != nil {
			return err
		}
	} else {
		cred = NullAuth()
	}
	if err := cred.encode(buf); err != nil {
		return err
	}

	// Call verifier: always AUTH_NONE for AUTH_UNIX clients (RFC 5531 §9).
	return NullAuth().encode(buf)
}
