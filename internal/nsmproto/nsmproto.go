// Package nsmproto implements the client side of NSM (Network Status
// Monitor), the crash-recovery companion to NLM: a client that holds locks
// on a server registers with the local statd via SM_MON so a server restart
// delivers SM_NOTIFY and the held locks can be reclaimed. The Connection
// Group in pkg/rpcgroup does not issue these calls itself.
package nsmproto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
	"github.com/opennfsc/client/internal/xdr"
)

// Program and version numbers per the Open Group NSM specification.
const (
	Program = 100024
	Version = 1
)

// NSM procedure numbers.
const (
	ProcNull     = 0
	ProcStat     = 1
	ProcMon      = 2
	ProcUnmon    = 3
	ProcUnmonAll = 4
)

// sm_res values.
const (
	StatSucc = 0
	StatFail = 1
)

// MyID carries the RPC callback coordinates the local statd uses to
// deliver SM_NOTIFY once the monitored host's state changes.
type MyID struct {
	MyName string
	MyProg uint32
	MyVers uint32
	MyProc uint32
}

func encodeMyID(buf *bytes.Buffer, id MyID) error {
	if err := xdr.WriteXDRString(buf, id.MyName); err != nil {
		return fmt.Errorf("nsmproto: encode my_name: %w", err)
	}
	if err := xdr.WriteUint32(buf, id.MyProg); err != nil {
		return fmt.Errorf("nsmproto: encode my_prog: %w", err)
	}
	if err := xdr.WriteUint32(buf, id.MyVers); err != nil {
		return fmt.Errorf("nsmproto: encode my_vers: %w", err)
	}
	if err := xdr.WriteUint32(buf, id.MyProc); err != nil {
		return fmt.Errorf("nsmproto: encode my_proc: %w", err)
	}
	return nil
}

// StatResult is the decoded sm_stat_res returned by both STAT and MON.
type StatResult struct {
	Result uint32
	State  int32
}

func decodeStatResult(reply []byte) (*StatResult, error) {
	r := bytes.NewReader(reply)
	res := &StatResult{}
	var err error
	if res.Result, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("nsmproto: decode res_stat: %w", err)
	}
	state, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("nsmproto: decode state: %w", err)
	}
	res.State = state
	return res, nil
}

// Client issues NSM calls over an already-connected rpcconn.Connection,
// normally dialed to the local statd rather than the remote server.
type Client struct {
	conn    *rpcconn.Connection
	timeout time.Duration
}

// NewClient wraps conn for NSM calls.
func NewClient(conn *rpcconn.Connection, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

func (c *Client) call(ctx context.Context, proc uint32, args []byte) ([]byte, error) {
	xid := rpcwire.NextXID()
	header := rpcwire.CallHeader{
		XID:         xid,
		Program:     Program,
		ProgVersion: Version,
		Procedure:   proc,
	}
	buf := new(bytes.Buffer)
	if err := header.Encode(buf); err != nil {
		return nil, fmt.Errorf("nsmproto: encode call header: %w", err)
	}
	buf.Write(args)

	packet := buf.Bytes()
	if c.conn.Key().Transport == rpcconn.TCP {
		packet = rpcwire.EncodeLastFragment(packet)
	}

	reply, err := c.conn.SendAndWait(xid, packet, c.timeout, "nsm")
	if err != nil {
		return nil, err
	}
	if reply.AcceptStatus != rpcwire.RPCSuccess {
		return nil, fmt.Errorf("nsmproto: procedure %d rejected: accept_stat=%d", proc, reply.AcceptStatus)
	}
	return reply.Results, nil
}

// Null performs a connectivity check against statd.
func (c *Client) Null(ctx context.Context) error {
	_, err := c.call(ctx, ProcNull, nil)
	return err
}

// Stat queries the current state counter of hostname without
// establishing monitoring.
func (c *Client) Stat(ctx context.Context, hostname string) (*StatResult, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDRString(buf, hostname); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcStat, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeStatResult(reply)
}

// Mon registers to be notified (via the RPC coordinates in callback) when
// hostname's state counter changes, storing priv opaquely for the server
// to echo back in the eventual SM_NOTIFY.
func (c *Client) Mon(ctx context.Context, hostname string, callback MyID, priv [16]byte) (*StatResult, error) {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDRString(buf, hostname); err != nil {
		return nil, err
	}
	if err := encodeMyID(buf, callback); err != nil {
		return nil, err
	}
	if err := xdr.WriteFixedOpaque(buf, priv[:]); err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, ProcMon, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeStatResult(reply)
}

// Unmon removes monitoring for a single host.
func (c *Client) Unmon(ctx context.Context, hostname string) error {
	buf := new(bytes.Buffer)
	if err := xdr.WriteXDRString(buf, hostname); err != nil {
		return err
	}
	_, err := c.call(ctx, ProcUnmon, buf.Bytes())
	return err
}

// UnmonAll removes monitoring for every host this client has registered,
// used during shutdown.
func (c *Client) UnmonAll(ctx context.Context, myID MyID) error {
	buf := new(bytes.Buffer)
	if err := encodeMyID(buf, myID); err != nil {
		return err
	}
	_, err := c.call(ctx, ProcUnmonAll, buf.Bytes())
	return err
}
