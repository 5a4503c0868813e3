// Package mountproto implements the client side of the MOUNT protocol
// (RFC 1813 Appendix I): the handshake that exchanges a directory path for
// the opaque root file handle NFS operations key off of.
package mountproto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
	"github.com/opennfsc/client/internal/xdr"
)

// Program and version per RFC 1813 Appendix I. Only MOUNT v3 is spoken; v1
// and v2 have no client component in this library.
const (
	Program = 100005
	Version = 3

	ProcNull    = 0
	ProcMnt     = 1
	ProcDump    = 2
	ProcUmnt    = 3
	ProcUmntAll = 4
	ProcExport  = 5
)

// Status codes returned by MNT, per RFC 1813 Appendix I.
const (
	MntOK            = 0
	MntErrPerm       = 1
	MntErrNoEnt      = 2
	MntErrIO         = 5
	MntErrAccess     = 13
	MntErrNotDir     = 20
	MntErrInval      = 22
	MntErrNameTooLong = 63
	MntErrNotSupp    = 10004
	MntErrServerFault = 10006
)

// MountResult is the decoded fhstatus3 union returned by MNT.
type MountResult struct {
	Status      uint32
	FileHandle  []byte
	AuthFlavors []uint32
}

// Export describes one entry of the EXPORT reply's export list.
type Export struct {
	Dir    string
	Groups []string
}

// Client issues MOUNT calls over an already-connected rpcconn.Connection.
type Client struct {
	conn    *rpcconn.Connection
	timeout time.Duration
	auth    *rpcwire.UnixAuth
}

// NewClient wraps conn for MOUNT calls, authenticating with cred (nil for
// AUTH_NONE).
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
		return nil, fmt.Errorf("mountproto: encode call header: %w", err)
	}
	buf.Write(args)

	packet := buf.Bytes()
	if c.conn.Key().Transport == rpcconn.TCP {
		packet = rpcwire.EncodeLastFragment(packet)
	}

	reply, err := c.conn.SendAndWait(xid, packet, c.timeout, "mount")
	if err != nil {
		return nil, err
	}
	if reply.AcceptStatus != rpcwire.RPCSuccess {
		return nil, fmt.Errorf("mountproto: procedure %d rejected: accept_stat=%d", proc, reply.AcceptStatus)
	}
	return reply.Results, nil
}

// Null performs a connectivity check against the MOUNT service.
func (c *Client) Null(ctx context.Context) error {
	_, err := c.call(ctx, ProcNull, nil)
	return err
}

// Mount requests the root file handle for dirPath, the client-side half of
// the handshake that precedes every NFS session.
//
// Wire format: args = dirpath (string, max 1024). Reply (fhstatus3):
// status(4) [+ handle(opaque, max 64) + auth flavors(uint32<>) if status==0].
func (c *Client) Mount(ctx context.Context, dirPath string) (*MountResult, error) {
	argBuf := new(bytes.Buffer)
	if err := xdr.WriteXDRString(argBuf, dirPath); err != nil {
		return nil, fmt.Errorf("mountproto: encode dirpath: %w", err)
	}

	reply, err := c.call(ctx, ProcMnt, argBuf.Bytes())
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(reply)
	status, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("mountproto: decode mnt status: %w", err)
	}
	result := &MountResult{Status: status}
	if status != MntOK {
		return result, nil
	}

	result.FileHandle, err = xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("mountproto: decode file handle: %w", err)
	}

	numFlavors, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("mountproto: decode auth flavor count: %w", err)
	}
	result.AuthFlavors = make([]uint32, numFlavors)
	for i := uint32(0); i < numFlavors; i++ {
		if result.AuthFlavors[i], err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("mountproto: decode auth flavor %d: %w", i, err)
		}
	}
	return result, nil
}

// Unmount tells the server the client is no longer using dirPath. The
// response is void; a successful call is simply the absence of an error.
func (c *Client) Unmount(ctx context.Context, dirPath string) error {
	argBuf := new(bytes.Buffer)
	if err := xdr.WriteXDRString(argBuf, dirPath); err != nil {
		return fmt.Errorf("mountproto: encode dirpath: %w", err)
	}
	_, err := c.call(ctx, ProcUmnt, argBuf.Bytes())
	return err
}

// UnmountAll removes every mount this client has registered with the
// server. Nothing in this module calls it; a Connection Group does not
// unmount on its own.
func (c *Client) UnmountAll(ctx context.Context) error {
	_, err := c.call(ctx, ProcUmntAll, nil)
	return err
}

// Exports retrieves the server's export list: the directories it is
// willing to serve and the client groups permitted to mount each.
//
// Wire format: a linked list of [disc=1][dir:string][groups][disc...]
// terminated by [disc=0], where groups is itself a linked list of
// [disc=1][name:string] entries terminated by [disc=0].
func (c *Client) Exports(ctx context.Context) ([]Export, error) {
	reply, err := c.call(ctx, ProcExport, nil)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(reply)
	var exports []Export
	for {
		disc, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("mountproto: decode export list discriminator: %w", err)
		}
		if disc == 0 {
			return exports, nil
		}
		dir, err := xdr.DecodeString(r)
		if err != nil {
			return nil, fmt.Errorf("mountproto: decode export dir: %w", err)
		}
		var groups []string
		for {
			groupDisc, err := xdr.DecodeUint32(r)
			if err != nil {
				return nil, fmt.Errorf("mountproto: decode group list discriminator: %w", err)
			}
			if groupDisc == 0 {
				break
			}
			group, err := xdr.DecodeString(r)
			if err != nil {
				return nil, fmt.Errorf("mountproto: decode group name: %w", err)
			}
			groups = append(groups, group)
		}
		exports = append(exports, Export{Dir: dir, Groups: groups})
	}
}
