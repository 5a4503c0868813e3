package rpcconn

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/opennfsc/client/internal/bytebuf"
	"github.com/opennfsc/client/internal/logger"
	"github.com/opennfsc/client/internal/rpcerrs"
	"github.com/opennfsc/client/internal/rpcwire"
	"github.com/opennfsc/client/pkg/metrics"
)

// State is the Connection's lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	socketBufferSize = 512 * 1024 // 512 KiB each direction, TCP only
	udpConcurrency   = 8
	tcpConcurrency   = 128
	reservedPortLow  = 1
	reservedPortHigh = 1023
)

var errCanceled = errors.New("rpcconn: send_and_wait canceled")

// Stats exposes read-only diagnostic counters, carried over from the
// original client's BasicConnection for operators debugging flaky servers.
type Stats struct {
	UDPRetries      uint64
	ConnectFailures uint64
}

// fragState tracks TCP record-marking reassembly. Each connection reads one
// logical RPC message at a time, which may be split across any number of
// record fragments and any number of readv-sized socket reads.
type fragState struct {
	headerBuf    [4]byte
	headerFilled int
	haveHeader   bool
	remaining    uint32 // bytes left in the current fragment
	last         bool   // whether the current fragment is the record's last
	msg          *bytebuf.Buffer
}

// Connection is one socket to one remote endpoint: a port-mapper, MOUNT,
// NFS, or NLM service. It owns fragment reassembly, the pending-XID table,
// the outbound send queue, and a concurrency gate bounding in-flight calls.
// All mutation happens either from the caller issuing SendAndWait or from
// the Connection Manager's single reactor goroutine; mu serializes the two.
type Connection struct {
	key          Key
	reservedPort bool

	mu    sync.Mutex
	state State
	fd    int

	manager *Manager

	sendQueue [][]byte // packets not yet fully written to the socket
	pending   map[uint32]*responder

	sem chan struct{} // concurrency gate: bounds in-flight calls per connection

	frag fragState // TCP reassembly state; unused for UDP

	stats Stats

	boundPort int // reserved local port, if any, released on Disconnect
}

// New creates a Connection in the Disconnected state. Connect must be
// called before any I/O.
func New(key Key, reservedPort bool) *Connection {
	capacity := tcpConcurrency
	if key.Transport == UDP {
		capacity = udpConcurrency
	}
	return &Connection{
		key:          key,
		reservedPort: reservedPort,
		fd:           -1,
		pending:      make(map[uint32]*responder),
		sem:          make(chan struct{}, capacity),
	}
}

func (c *Connection) Key() Key { return c.key }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Connect is idempotent: if already connected or connecting it returns
// immediately. Otherwise it creates a non-blocking socket (TCP or UDP,
// AF_INET or AF_INET6 per the key), sets FD_CLOEXEC, 512 KiB send/receive
// buffers for TCP, optionally binds a reserved (<1024) local port for
// MOUNT, and issues a non-blocking connect.
func (c *Connection) Connect(mgr *Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Connected || c.state == Connecting {
		return nil
	}

	domain := unix.AF_INET
	if c.key.IsIPv6() {
		domain = unix.AF_INET6
	}
	sockType := unix.SOCK_STREAM
	if c.key.Transport == UDP {
		sockType = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, sockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		c.stats.ConnectFailures++
		return rpcerrs.Wrap(rpcerrs.SystemError, "socket", err)
	}

	if c.key.Transport == TCP {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize)
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize)
	}

	if c.reservedPort {
		if err := bindReservedPort(fd, domain); err != nil {
			_ = unix.Close(fd)
			c.stats.ConnectFailures++
			return rpcerrs.Wrap(rpcerrs.SystemError, "bind reserved port", err)
		}
	}

	sa, err := sockaddrFor(c.key, domain)
	if err != nil {
		_ = unix.Close(fd)
		return rpcerrs.Wrap(rpcerrs.SystemError, "resolve address", err)
	}

	err = unix.Connect(fd, sa)
	switch {
	case err == nil:
		c.state = Connected
	case errors.Is(err, unix.EINPROGRESS):
		c.state = Connecting
	default:
		_ = unix.Close(fd)
		c.stats.ConnectFailures++
		return rpcerrs.Wrap(rpcerrs.SystemError, "connect", err)
	}

	c.fd = fd
	c.manager = mgr
	mgr.register(c)

	logger.Debug("connection dialing", "key", c.key.String(), "state", c.state.String())
	return nil
}

// bindReservedPort tries ports 1023 down to 1 until one binds, mirroring
// the original client's descending port-scan (clients racing for a low
// port all start from the top, so this converges quickly in practice).
func bindReservedPort(fd, domain int) error {
	for port := reservedPortHigh; port >= reservedPortLow; port-- {
		var sa unix.Sockaddr
		if domain == unix.AF_INET6 {
			sa = &unix.SockaddrInet6{Port: port}
		} else {
			sa = &unix.SockaddrInet4{Port: port}
		}
		if err := unix.Bind(fd, sa); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no reserved port available in [%d,%d]", reservedPortLow, reservedPortHigh)
}

func sockaddrFor(key Key, domain int) (unix.Sockaddr, error) {
	ip, err := resolveIP(key.Host, domain)
	if err != nil {
		return nil, err
	}
	if domain == unix.AF_INET6 {
		var addr [16]byte
		copy(addr[:], ip)
		return &unix.SockaddrInet6{Port: int(key.Port), Addr: addr}, nil
	}
	var addr [4]byte
	copy(addr[:], ip)
	return &unix.SockaddrInet4{Port: int(key.Port), Addr: addr}, nil
}

// Disconnect closes the socket and fails every still-pending call. Safe to
// call more than once.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked(rpcerrs.New(rpcerrs.CantRecv, "connection closed"))
}

func (c *Connection) disconnectLocked(cause error) error {
	if c.state == Closed || c.state == Disconnected {
		return nil
	}
	c.state = Closing
	if c.manager != nil {
		c.manager.unregister(c)
	}
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	for xid, r := range c.pending {
		r.deliver(nil, cause)
		delete(c.pending, xid)
	}
	c.state = Closed
	return nil
}

// EnqueueSend appends an already record-marked (TCP) or bare (UDP) packet
// to the send queue and arms the reactor for EPOLLOUT so the packet is
// flushed on the next writable event.
func (c *Connection) EnqueueSend(packet []byte) {
	c.mu.Lock()
	c.sendQueue = append(c.sendQueue, packet)
	fd := c.fd
	mgr := c.manager
	c.mu.Unlock()
	if mgr != nil && fd >= 0 {
		mgr.requestWritable(fd)
	}
}

// RegisterPending records a responder slot for xid so the reactor can
// deliver the matching reply when it arrives.
func (c *Connection) RegisterPending(xid uint32, r *responder) {
	c.mu.Lock()
	c.pending[xid] = r
	c.mu.Unlock()
}

func (c *Connection) takePending(xid uint32) *responder {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.pending[xid]
	delete(c.pending, xid)
	return r
}

// Acquire blocks until a concurrency-gate slot is free or ctx-equivalent
// deadline elapses, bounding in-flight calls to 8 (UDP) or 128 (TCP).
func (c *Connection) Acquire(deadline time.Time) error {
	if deadline.IsZero() {
		c.sem <- struct{}{}
		return nil
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return rpcerrs.New(rpcerrs.Timeout, "acquire concurrency slot")
	}
}

func (c *Connection) Release() { <-c.sem }

// SendAndWait writes packet (already XID-tagged and, for TCP, record
// marked), blocks until the matching reply arrives or timeout elapses, and
// returns the decoded reply. This is the blocking synchronous facade over
// the asynchronous reactor described in the design notes: the caller's
// goroutine parks on a channel while the single reactor thread does all
// socket I/O for every connection. program labels the calls-in-flight
// gauge and latency histogram this call reports to (e.g. "nfs3", "mount").
func (c *Connection) SendAndWait(xid uint32, packet []byte, timeout time.Duration, program string) (*rpcwire.Reply, error) {
	done := metrics.CallStarted(c.key.Host, c.key.Transport.String(), program)
	defer done()

	deadline := time.Now().Add(timeout)
	if err := c.Acquire(deadline); err != nil {
		return nil, err
	}
	defer c.Release()

	r := newResponder()
	c.RegisterPending(xid, r)
	c.EnqueueSend(packet)

	cancel := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(cancel) })
	defer timer.Stop()

	reply, err := r.wait(cancel)
	if err != nil {
		c.takePending(xid) // drop the slot; a late reply is simply discarded
		if errors.Is(err, errCanceled) {
			return nil, rpcerrs.Wrap(rpcerrs.Timeout, "send_and_wait", err)
		}
		return nil, err // delivered failure (CantRecv, CantSend, SystemError)
	}
	return reply, nil
}
