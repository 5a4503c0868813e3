package rpcwire

import (
	"bytes"
	"fmt"

	"github.com/opennfsc/client/internal/xdr"
)

// Reply status per RFC 5531 Section 8.
const (
	RPCMsgAccepted uint32 = 0
	RPCMsgDenied   uint32 = 1
)

// Accept status per RFC 5531 Section 8.
const (
	RPCSuccess      uint32 = 0
	RPCProgUnavail  uint32 = 1
	RPCProgMismatch uint32 = 2
	RPCProcUnavail  uint32 = 3
	RPCGarbageArgs  uint32 = 4
	RPCSystemErr    uint32 = 5
)

// Reject status per RFC 5531 Section 8.
const (
	RPCMismatch  uint32 = 0
	RPCAuthError uint32 = 1
)

// Reply is a decoded RPC reply header. Results, when AcceptStatus ==
// RPCSuccess, is the remaining undecoded payload handed to the procedure's
// own result decoder.
type Reply struct {
	XID uint32

	ReplyState uint32 // RPCMsgAccepted or RPCMsgDenied

	// Populated when ReplyState == RPCMsgAccepted.
	AcceptStatus uint32
	MismatchLow  uint32 // valid when AcceptStatus == RPCProgMismatch
	MismatchHigh uint32

	// Populated when ReplyState == RPCMsgDenied.
	RejectStatus uint32
	RPCMismatchLow  uint32 // valid when RejectStatus == RPCMismatch
	RPCMismatchHigh uint32
	AuthStat        uint32 // valid when RejectStatus == RPCAuthError

	Results []byte // remaining bytes after the reply header, for RPCSuccess
}

// DecodeReply parses an RPC reply message (the portion after the fragment
// header, starting at the XID). body must contain the full message; any
// trailing bytes after the fixed reply fields are returned as Results.
func DecodeReply(body []byte) (*Reply, error) {
	r := bytes.NewReader(body)

	xid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read xid: %w", err)
	}
	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read msg type: %w", err)
	}
	if msgType != RPCReply {
		return nil, fmt.Errorf("rpcwire: expected REPLY (1), got msg_type %d", msgType)
	}

	reply := &Reply{XID: xid}

	reply.ReplyState, err = xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: read reply_stat: %w", err)
	}

	switch reply.ReplyState {
	case RPCMsgAccepted:
		if _, err := decodeOpaqueAuth(r); err != nil {
			return nil, fmt.Errorf("rpcwire: read verifier: %w", err)
		}
		reply.AcceptStatus, err = xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("rpcwire: read accept_stat: %w", err)
		}
		switch reply.AcceptStatus {
		case RPCProgMismatch:
			reply.MismatchLow, err = xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("rpcwire: read mismatch low: %w", err)
			}
			reply.MismatchHigh, err = xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("rpcwire: read mismatch high: %w", err)
			}
		case RPCSuccess:
			remaining := make([]byte, r.Len())
			if _, err := r.Read(remaining); err != nil && r.Len() > 0 {
				return nil, fmt.Errorf("rpcwire: read results: %w", err)
			}
			reply.Results = remaining
		}

	case RPCMsgDenied:
		reply.RejectStatus, err = xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("rpcwire: read reject_stat: %w", err)
		}
		switch reply.RejectStatus {
		case RPCMismatch:
			reply.RPCMismatchLow, err = xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("rpcwire: read rpc mismatch low: %w", err)
			}
			reply.RPCMismatchHigh, err = xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("rpcwire: read rpc mismatch high: %w", err)
			}
		case RPCAuthError:
			reply.AuthStat, err = xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("rpcwire: read auth_stat: %w", err)
			}
		default:
			return nil, fmt.Errorf("rpcwire: unknown reject_stat %d", reply.RejectStatus)
		}

	default:
		return nil, fmt.Errorf("rpcwire: unknown reply_stat %d", reply.ReplyState)
	}

	return reply, nil
}

// MakeProgMismatchReply builds a complete, TCP-record-marked PROG_MISMATCH
// reply message. The client never sends replies in normal operation; this
// exists so tests can synthesize a server response without a live server.
func MakeProgMismatchReply(xid, low, high uint32) ([]byte, error) {
	if low > high {
		return nil, fmt.Errorf("rpcwire: invalid version range: low (%d) > high (%d)", low, high)
	}

	var body bytes.Buffer
	if err := xdr.WriteUint32(&body, xid); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, RPCReply); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, RPCMsgAccepted); err != nil {
		return nil, err
	}
	if err := NullAuth().encode(&body); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, RPCProgMismatch); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, low); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, high); err != nil {
		return nil, err
	}

	return EncodeLastFragment(body.Bytes()), nil
}
