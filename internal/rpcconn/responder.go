package rpcconn

import "github.com/opennfsc/client/internal/rpcwire"

// responder is the rendezvous point between the reactor goroutine, which
// delivers a reply as soon as it finishes reassembling one off the wire,
// and the caller blocked in send_and_wait. It is a single-shot signal: the
// channel is written to at most once, then the slot is discarded.
type responder struct {
	done chan responderResult
}

type responderResult struct {
	reply *rpcwire.Reply
	err   error
}

func newResponder() *responder {
	return &responder{done: make(chan responderResult, 1)}
}

// deliver hands a completed reply (or a terminal error) to the waiting
// caller. Safe to call from the reactor goroutine exactly once per XID.
func (r *responder) deliver(reply *rpcwire.Reply, err error) {
	r.done <- responderResult{reply: reply, err: err}
}

// wait blocks the caller until deliver is called or the cancel channel
// fires (timeout, connection teardown).
func (r *responder) wait(cancel <-chan struct{}) (*rpcwire.Reply, error) {
	select {
	case res := <-r.done:
		return res.reply, res.err
	case <-cancel:
		return nil, errCanceled
	}
}
