package rpcconn

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/opennfsc/client/internal/logger"
)

// Manager is the single-reactor-thread Connection Manager: one goroutine
// multiplexes readiness across every registered Connection's socket via
// epoll, so no matter how many servers a ConnectionGroup talks to, exactly
// one OS thread blocks in epoll_wait.
type Manager struct {
	epfd int

	controlR, controlW int // self-pipe: wakes epoll_wait for control ops

	mu   sync.Mutex
	byFD map[int]*Connection

	stopped chan struct{}
}

// NewManager creates a Manager and starts its reactor goroutine, which runs
// until it is torn down explicitly via Stop: the reactor thread is a long-lived resource, not something
// recreated per call.
func NewManager() (*Manager, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("rpcconn: epoll_create1: %w", err)
	}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("rpcconn: control pipe: %w", err)
	}

	m := &Manager{
		epfd:      epfd,
		controlR:  fds[0],
		controlW:  fds[1],
		byFD:      make(map[int]*Connection),
		stopped:   make(chan struct{}),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, m.controlR, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(m.controlR),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, fmt.Errorf("rpcconn: epoll_ctl control pipe: %w", err)
	}

	go m.loop()
	return m, nil
}

// register adds conn's fd to the epoll set, watching for both readability
// and (until the send queue drains) writability.
func (m *Manager) register(c *Connection) {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(c.fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, c.fd, ev); err != nil {
		logger.Warn("epoll_ctl add failed", "fd", c.fd, "error", err)
		return
	}
	m.mu.Lock()
	m.byFD[c.fd] = c
	m.mu.Unlock()
}

func (m *Manager) unregister(c *Connection) {
	if c.fd < 0 {
		return
	}
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	m.mu.Lock()
	delete(m.byFD, c.fd)
	m.mu.Unlock()
}

// requestWritable re-arms EPOLLOUT on fd so a newly queued packet gets
// flushed promptly instead of waiting for the next unrelated readiness
// event. It is safe to call from any goroutine; epoll_ctl itself is
// thread-safe across fds already in the set.
func (m *Manager) requestWritable(fd int) {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	m.wake()
}

// wake writes a single byte to the control pipe so a blocked epoll_wait
// returns immediately to process a just-enqueued write.
func (m *Manager) wake() {
	var b [1]byte
	_, _ = unix.Write(m.controlW, b[:])
}

// Stop tears down the reactor goroutine and closes the epoll fd and
// control pipe. Connections must be disconnected separately.
func (m *Manager) Stop() {
	close(m.stopped)
	m.wake()
}

const maxEpollEvents = 64

func (m *Manager) loop() {
	defer func() {
		_ = unix.Close(m.epfd)
		_ = unix.Close(m.controlR)
		_ = unix.Close(m.controlW)
	}()

	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		select {
		case <-m.stopped:
			return
		default:
		}

		n, err := unix.EpollWait(m.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Error("epoll_wait failed", "error", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == m.controlR {
				m.drainControlPipe()
				continue
			}
			m.mu.Lock()
			conn := m.byFD[fd]
			m.mu.Unlock()
			if conn == nil {
				continue
			}
			if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				conn.handleReadable()
			}
			if events[i].Events&unix.EPOLLOUT != 0 {
				conn.handleWritable()
			}
		}
	}
}

func (m *Manager) drainControlPipe() {
	var buf [64]byte
	for {
		_, err := unix.Read(m.controlR, buf[:])
		if err != nil {
			return
		}
	}
}
