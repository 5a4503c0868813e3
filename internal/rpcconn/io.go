package rpcconn

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/opennfsc/client/internal/bytebuf"
	"github.com/opennfsc/client/internal/logger"
	"github.com/opennfsc/client/internal/rpcerrs"
	"github.com/opennfsc/client/internal/rpcwire"
)

const readScratchSize = 64 * 1024

// handleReadable is invoked by the reactor goroutine when epoll reports
// EPOLLIN. It drains the socket until EAGAIN,
// feeding bytes through the TCP record-marking state machine or, for UDP,
// treating each recv as one complete datagram.
func (c *Connection) handleReadable() {
	scratch := make([]byte, readScratchSize)
	for {
		n, err := unix.Read(c.fd, scratch)
		if n > 0 {
			if c.key.Transport == UDP {
				c.deliverMessage(scratch[:n])
			} else {
				c.feedFragments(scratch[:n])
			}
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			c.failAllPending(rpcerrs.Wrap(rpcerrs.CantRecv, "read", err))
			return
		}
		if n == 0 {
			// Peer closed the connection (TCP EOF).
			c.failAllPending(rpcerrs.New(rpcerrs.CantRecv, "peer closed connection"))
			return
		}
	}
}

// feedFragments advances the TCP record-marking state machine: NEED_HEADER
// while the 4-byte fragment header is incomplete, NEED_PAYLOAD while a
// fragment's declared length hasn't been fully consumed. A complete record
// (last fragment received) triggers dispatch.
func (c *Connection) feedFragments(data []byte) {
	for len(data) > 0 {
		if !c.frag.haveHeader {
			need := 4 - c.frag.headerFilled
			take := min(need, len(data))
			copy(c.frag.headerBuf[c.frag.headerFilled:], data[:take])
			c.frag.headerFilled += take
			data = data[take:]
			if c.frag.headerFilled < 4 {
				return // header itself split across reads; wait for more
			}
			last, length := rpcwire.DecodeFragmentHeader(c.frag.headerBuf)
			c.frag.haveHeader = true
			c.frag.last = last
			c.frag.remaining = length
			c.frag.headerFilled = 0
			if c.frag.msg == nil {
				c.frag.msg = bytebuf.New(int(length))
			}
			continue
		}

		take := min(int(c.frag.remaining), len(data))
		if take > 0 {
			c.frag.msg.Append(data[:take])
			c.frag.remaining -= uint32(take)
			data = data[take:]
		}
		if c.frag.remaining > 0 {
			return // fragment payload split across reads; wait for more
		}

		c.frag.haveHeader = false
		if c.frag.last {
			msg := c.frag.msg
			c.frag.msg = nil
			c.deliverMessage(msg.Bytes())
		}
		// else: loop to read the next fragment's header into the same msg
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// deliverMessage decodes a complete RPC reply message and hands it to the
// pending responder matching its XID. A reply with no matching entry is a
// late or duplicate arrival (e.g. a UDP retransmit) and is silently
// dropped rather than correlated out of order.
func (c *Connection) deliverMessage(msg []byte) {
	reply, err := rpcwire.DecodeReply(msg)
	if err != nil {
		logger.Warn("discarding unparseable RPC reply", "key", c.key.String(), "error", err)
		return
	}
	r := c.takePending(reply.XID)
	if r == nil {
		logger.Debug("no pending call for reply xid, discarding", "key", c.key.String(), "xid", reply.XID)
		return
	}
	r.deliver(reply, nil)
}

func (c *Connection) failAllPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*responder)
	c.mu.Unlock()
	for _, r := range pending {
		r.deliver(nil, cause)
	}
}

// handleWritable flushes as much of the send queue as the socket will
// accept. For a connection still completing a non-blocking connect, the
// first writable event instead checks SO_ERROR to resolve CONNECTING.
func (c *Connection) handleWritable() {
	c.mu.Lock()
	if c.state == Connecting {
		errno, serr := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if serr == nil && errno == 0 {
			c.state = Connected
		} else {
			c.state = Closed
			c.mu.Unlock()
			c.failAllPending(rpcerrs.New(rpcerrs.SystemError, "async connect failed"))
			return
		}
	}
	queue := c.sendQueue
	c.sendQueue = nil
	c.mu.Unlock()

	for i, packet := range queue {
		if err := c.writeFull(packet); err != nil {
			c.mu.Lock()
			c.sendQueue = append(queue[i:], c.sendQueue...)
			c.mu.Unlock()
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			c.failAllPending(rpcerrs.Wrap(rpcerrs.CantSend, "write", err))
			return
		}
	}

	// Queue drained: watch readability only until EnqueueSend re-arms EPOLLOUT.
	c.mu.Lock()
	if len(c.sendQueue) == 0 && c.fd >= 0 && c.manager != nil {
		ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(c.fd)}
		_ = unix.EpollCtl(c.manager.epfd, unix.EPOLL_CTL_MOD, c.fd, ev)
	}
	c.mu.Unlock()
}

func (c *Connection) writeFull(packet []byte) error {
	for len(packet) > 0 {
		n, err := unix.Write(c.fd, packet)
		if err != nil {
			return err
		}
		packet = packet[n:]
	}
	return nil
}
