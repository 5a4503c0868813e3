// Package portmap implements the client side of the RFC 1833 (née RFC 1057)
// Port Mapper protocol: the single GETPORT/DUMP exchange a Connection Group
// performs against port 111 of an NFS server before it can open the real
// NFS, MOUNT, NLM, or NSM connection.
package portmap

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
	"github.com/opennfsc/client/internal/xdr"
)

// Program, version and procedure numbers per RFC 1833 §3.
const (
	Program = 100000
	Version = 2

	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetport = 3
	ProcDump    = 4
	ProcCallit  = 5 // never called by this client: see DESIGN.md
)

// IPPROTO_* values as used in the mapping's Prot field.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// Mapping is a single (program, version, protocol) -> port registration, as
// returned in bulk by DUMP and supplied singly to GETPORT.
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// EncodeMapping encodes a mapping struct as GETPORT/SET/UNSET call arguments.
//
// Wire format: prog(4) + vers(4) + prot(4) + port(4), no padding needed since
// all fields are already 4-byte aligned.
func EncodeMapping(m *Mapping) []byte {
	buf := new(bytes.Buffer)
	_ = xdr.WriteUint32(buf, m.Prog)
	_ = xdr.WriteUint32(buf, m.Vers)
	_ = xdr.WriteUint32(buf, m.Prot)
	_ = xdr.WriteUint32(buf, m.Port)
	return buf.Bytes()
}

// decodeDumpList decodes the DUMP reply's XDR optional-data linked list:
// a run of [disc=1][mapping:16 bytes] entries terminated by [disc=0].
func decodeDumpList(data []byte) ([]Mapping, error) {
	var mappings []Mapping
	r := bytes.NewReader(data)
	for {
		disc, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("portmap: decode dump list discriminator: %w", err)
		}
		if disc == 0 {
			return mappings, nil
		}
		var m Mapping
		if m.Prog, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("portmap: decode dump entry prog: %w", err)
		}
		if m.Vers, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("portmap: decode dump entry vers: %w", err)
		}
		if m.Prot, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("portmap: decode dump entry prot: %w", err)
		}
		if m.Port, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("portmap: decode dump entry port: %w", err)
		}
		mappings = append(mappings, m)
	}
}

// decodeGetportReply decodes a GETPORT reply body: a single uint32 port,
// zero meaning "not registered".
func decodeGetportReply(data []byte) (uint32, error) {
	port, err := xdr.DecodeUint32(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("portmap: decode getport reply: %w", err)
	}
	return port, nil
}

// Client issues port-mapper calls over an already-connected rpcconn.Connection.
// Callers are expected to have dialed the server's port 111 first.
type Client struct {
	conn    *rpcconn.Connection
	timeout time.Duration
}

// NewClient wraps conn for port-mapper calls bounded by timeout.
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
		return nil, fmt.Errorf("portmap: encode call header: %w", err)
	}
	buf.Write(args)

	packet := buf.Bytes()
	if c.conn.Key().Transport == rpcconn.TCP {
		packet = rpcwire.EncodeLastFragment(packet)
	}

	reply, err := c.conn.SendAndWait(xid, packet, c.timeout, "portmap")
	if err != nil {
		return nil, err
	}
	if reply.AcceptStatus != rpcwire.RPCSuccess {
		return nil, fmt.Errorf("portmap: procedure %d rejected: accept_stat=%d", proc, reply.AcceptStatus)
	}
	return reply.Results, nil
}

// GetPort asks the server which port a given (program, version, protocol)
// triple is currently bound to. A returned port of 0 means "not registered".
func (c *Client) GetPort(ctx context.Context, prog, vers, prot uint32) (uint32, error) {
	args := EncodeMapping(&Mapping{Prog: prog, Vers: vers, Prot: prot})
	reply, err := c.call(ctx, ProcGetport, args)
	if err != nil {
		return 0, err
	}
	return decodeGetportReply(reply)
}

// Dump retrieves every mapping the server currently has registered, used to
// discover NFS/MOUNT/NLM/NSM ports in one round trip instead of four.
func (c *Client) Dump(ctx context.Context) ([]Mapping, error) {
	reply, err := c.call(ctx, ProcDump, nil)
	if err != nil {
		return nil, err
	}
	return decodeDumpList(reply)
}

// Null performs a connectivity check against the port mapper.
func (c *Client) Null(ctx context.Context) error {
	_, err := c.call(ctx, ProcNull, nil)
	return err
}
