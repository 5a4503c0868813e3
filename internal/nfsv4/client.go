package nfsv4

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
)

var tracer = otel.Tracer("github.com/opennfsc/client/internal/nfsv4")

// Client sends COMPOUND requests over an already-connected
// rpcconn.Connection dialed to the NFS service's (program 100003, version
// 4) port, as resolved by the port mapper.
type Client struct {
	conn    *rpcconn.Connection
	timeout time.Duration
	auth    *rpcwire.UnixAuth
}

// NewClient wraps conn for COMPOUND calls, authenticating with cred (nil
// for AUTH_NONE).
func NewClient(conn *rpcconn.Connection, timeout time.Duration, cred *rpcwire.UnixAuth) *Client {
	return &Client{conn: conn, timeout: timeout, auth: cred}
}

// Compound sends the operations accumulated in b as a single COMPOUND4args
// call and returns a ReplyStream positioned at the first result, ready for
// the caller to walk with NextOp/the typed Decode* helpers in ops.go.
//
// An RPC-layer failure (timeout, connection reset, malformed reply) comes
// back as a Go error; an NFS4ERR_* status from a well-formed reply is
// carried in the returned ReplyStream.Status instead and is not itself an
// error, since a partially-successful COMPOUND (status on the Nth
// operation) is the normal encoding of "the Nth operation failed".
func (c *Client) Compound(ctx context.Context, b *Builder) (*ReplyStream, error) {
	ctx, span := tracer.Start(ctx, "nfsv4.Compound", trace.WithAttributes(
		attribute.Int("nfsv4.op_count", b.Len()),
		attribute.String("nfsv4.tag", string(b.tag)),
	))
	defer span.End()

	stream, err := c.compound(ctx, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if stream.Status != 0 {
		span.SetAttributes(attribute.Int("nfsv4.status", int(stream.Status)))
	}
	return stream, nil
}

func (c *Client) compound(ctx context.Context, b *Builder) (*ReplyStream, error) {
	args, err := b.Encode()
	if err != nil {
		return nil, fmt.Errorf("nfsv4: encode compound args: %w", err)
	}

	xid := rpcwire.NextXID()
	header := rpcwire.CallHeader{
		XID:         xid,
		Program:     Program,
		ProgVersion: Version,
		Procedure:   procCompound,
		Credential:  c.auth,
	}
	buf := new(bytes.Buffer)
	if err := header.Encode(buf); err != nil {
		return nil, fmt.Errorf("nfsv4: encode call header: %w", err)
	}
	buf.Write(args)

	packet := buf.Bytes()
	if c.conn.Key().Transport == rpcconn.TCP {
		packet = rpcwire.EncodeLastFragment(packet)
	}

	reply, err := c.conn.SendAndWait(xid, packet, c.timeout, "nfs4")
	if err != nil {
		return nil, err
	}
	if reply.AcceptStatus != rpcwire.RPCSuccess {
		return nil, fmt.Errorf("nfsv4: compound rejected: accept_stat=%d", reply.AcceptStatus)
	}
	return NewReplyStream(reply.Results)
}

// procCompound is the sole NFSv4 procedure number: every operation is
// expressed as an entry in a COMPOUND4args call (RFC 7530 Section 15.2).
const procCompound = 1
