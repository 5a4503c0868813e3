// Package nlmproto implements the client side of the NLM v4 (Network Lock
// Manager) protocol: the byte-range locking calls a Connection Group
// issues once it holds an NFSv3 filehandle. NLM rides on its own RPC
// program (100021) alongside the MOUNT and NFS programs, discovered
// through the same port mapper.
package nlmproto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
	"github.com/opennfsc/client/internal/xdr"
)

// Program and version numbers per the Open Group NLM v4 specification.
const (
	Program = 100021
	Version = 4
)

// Synchronous NLM v4 procedure numbers. The _MSG/_RES async variants and
// the GRANTED callback direction are not implemented: see DESIGN.md.
const (
	ProcNull   = 0
	ProcTest   = 1
	ProcLock   = 2
	ProcCancel = 3
	ProcUnlock = 4
)

// nlm4_stat values, per the Open Group NLM v4 specification.
const (
	Granted       = 0
	Denied        = 1
	DeniedNoLocks = 2
	Blocked       = 3
	DeniedGrace   = 4
	Deadlock      = 5
	ROFS          = 6
	StaleFH       = 7
	FBig          = 8
	Failed        = 9
)

// StatusString returns a human-readable name for an nlm4_stat value.
func StatusString(status uint32) string {
	switch status {
	case Granted:
		return "NLM4_GRANTED"
	case Denied:
		return "NLM4_DENIED"
	case DeniedNoLocks:
		return "NLM4_DENIED_NOLOCKS"
	case Blocked:
		return "NLM4_BLOCKED"
	case DeniedGrace:
		return "NLM4_DENIED_GRACE_PERIOD"
	case Deadlock:
		return "NLM4_DEADLCK"
	case ROFS:
		return "NLM4_ROFS"
	case StaleFH:
		return "NLM4_STALE_FH"
	case FBig:
		return "NLM4_FBIG"
	case Failed:
		return "NLM4_FAILED"
	default:
		return "NLM4_UNKNOWN"
	}
}

// Lock is a nlm4_lock: the (file, owner, range) triple every NLM call
// operates on.
type Lock struct {
	CallerName string
	FH         []byte
	OH         []byte
	Svid       int32
	Offset     uint64
	Length     uint64
}

func encodeLock(buf *bytes.Buffer, l Lock) error {
	if err := xdr.WriteXDRString(buf, l.CallerName); err != nil {
		return fmt.Errorf("nlmproto: encode caller_name: %w", err)
	}
	if err := xdr.WriteXDROpaque(buf, l.FH); err != nil {
		return fmt.Errorf("nlmproto: encode fh: %w", err)
	}
	if err := xdr.WriteXDROpaque(buf, l.OH); err != nil {
		return fmt.Errorf("nlmproto: encode oh: %w", err)
	}
	if err := xdr.WriteInt32(buf, l.Svid); err != nil {
		return fmt.Errorf("nlmproto: encode svid: %w", err)
	}
	if err := xdr.WriteUint64(buf, l.Offset); err != nil {
		return fmt.Errorf("nlmproto: encode l_offset: %w", err)
	}
	if err := xdr.WriteUint64(buf, l.Length); err != nil {
		return fmt.Errorf("nlmproto: encode l_len: %w", err)
	}
	return nil
}

// Holder describes the owner of a conflicting lock, returned by TEST when
// the requested range is already held.
type Holder struct {
	Exclusive bool
	Svid      int32
	OH        []byte
	Offset    uint64
	Length    uint64
}

func decodeHolder(r *bytes.Reader) (*Holder, error) {
	h := &Holder{}
	var err error
	if h.Exclusive, err = xdr.DecodeBool(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode holder exclusive: %w", err)
	}
	if h.Svid, err = xdr.DecodeInt32(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode holder svid: %w", err)
	}
	if h.OH, err = xdr.DecodeOpaque(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode holder oh: %w", err)
	}
	if h.Offset, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode holder l_offset: %w", err)
	}
	if h.Length, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode holder l_len: %w", err)
	}
	return h, nil
}

// Client issues NLM calls over an already-connected rpcconn.Connection
// dialed to the NLM service's port, as resolved by the port mapper.
type Client struct {
	conn    *rpcconn.Connection
	timeout time.Duration
	auth    *rpcwire.UnixAuth
}

// NewClient wraps conn for NLM calls, authenticating with cred.
func NewClient(conn *rpcconn.Connection, timeout time.Duration, cred *rpcwire.UnixAuth) *Client {
	return &Client{conn: conn, timeout: timeout, auth: cred}
}

func (c *Client) call(ctx context.Context, proc uint32, args []byte) ([]byte, error) {
	xid := rpcwire.NextXID()
	header := rpcwire.CallHeader{
		XID:         xid,
		Program:     Program,
		ProgVersion: Version,
		Procedure:   proc,
		Credential:  c.auth,
	}
	buf := new(bytes.Buffer)
	if err := header.Encode(buf); err != nil {
		return nil, fmt.Errorf("nlmproto: encode call header: %w", err)
	}
	buf.Write(args)

	packet := buf.Bytes()
	if c.conn.Key().Transport == rpcconn.TCP {
		packet = rpcwire.EncodeLastFragment(packet)
	}

	reply, err := c.conn.SendAndWait(xid, packet, c.timeout, "nlm")
	if err != nil {
		return nil, err
	}
	if reply.AcceptStatus != rpcwire.RPCSuccess {
		return nil, fmt.Errorf("nlmproto: procedure %d rejected: accept_stat=%d", proc, reply.AcceptStatus)
	}
	return reply.Results, nil
}

// Null performs a connectivity check against the NLM service.
func (c *Client) Null(ctx context.Context) error {
	_, err := c.call(ctx, ProcNull, nil)
	return err
}

// TestResult is the decoded nlm4_testres.
type TestResult struct {
	Cookie []byte
	Status uint32
	Holder *Holder
}

// Test asks whether a lock could be acquired on the given range without
// actually acquiring it, used to implement F_GETLK-style queries.
func (c *Client) Test(ctx context.Context, cookie []byte, exclusive bool, lock Lock) (*TestResult, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDROpaque(buf, cookie); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, exclusive); err != nil {
		return nil, err
	}
	if err := encodeLock(buf, lock); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcTest, buf.Bytes())
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(reply)
	res := &TestResult{}
	if res.Cookie, err = xdr.DecodeOpaque(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode test cookie: %w", err)
	}
	if res.Status, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode test status: %w", err)
	}
	if res.Status == Denied {
		if res.Holder, err = decodeHolder(r); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Result is the decoded nlm4_res, the common reply shape for LOCK, CANCEL
// and UNLOCK.
type Result struct {
	Cookie []byte
	Status uint32
}

func decodeResult(reply []byte) (*Result, error) {
	r := bytes.NewReader(reply)
	res := &Result{}
	var err error
	if res.Cookie, err = xdr.DecodeOpaque(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode result cookie: %w", err)
	}
	if res.Status, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nlmproto: decode result status: %w", err)
	}
	return res, nil
}

// Lock acquires a byte-range lock. If block is true and the range
// conflicts with an existing lock, the synchronous LOCK procedure still
// returns promptly with NLM4_BLOCKED; this client does not implement the
// GRANTED callback direction, so a blocked request is reported to the
// caller rather than awaited — see DESIGN.md.
func (c *Client) Lock(ctx context.Context, cookie []byte, block, exclusive bool, lock Lock, reclaim bool, state int32) (*Result, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDROpaque(buf, cookie); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, block); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, exclusive); err != nil {
		return nil, err
	}
	if err := encodeLock(buf, lock); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, reclaim); err != nil {
		return nil, err
	}
	if err := xdr.WriteInt32(buf, state); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcLock, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeResult(reply)
}

// Cancel withdraws a pending blocked LOCK request. block and exclusive
// must match the values used in the original LOCK call.
func (c *Client) Cancel(ctx context.Context, cookie []byte, block, exclusive bool, lock Lock) (*Result, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDROpaque(buf, cookie); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, block); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(buf, exclusive); err != nil {
		return nil, err
	}
	if err := encodeLock(buf, lock); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcCancel, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeResult(reply)
}

// Unlock releases a previously acquired lock.
func (c *Client) Unlock(ctx context.Context, cookie []byte, lock Lock) (*Result, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDROpaque(buf, cookie); err != nil {
		return nil, err
	}
	if err := encodeLock(buf, lock); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcUnlock, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeResult(reply)
}
