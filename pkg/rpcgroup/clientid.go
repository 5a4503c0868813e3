package rpcgroup

import (
	"context"
	"fmt"
	"time"

	"github.com/opennfsc/client/internal/logger"
	"github.com/opennfsc/client/internal/nfsv4"
	"github.com/opennfsc/client/internal/rpcwire"
)

// EstablishClientID performs the SETCLIENTID/SETCLIENTID_CONFIRM handshake
// (RFC 7530 Sections 16.33-16.34). No other NFSv4 traffic is meaningful
// until this completes, since every subsequent OPEN references the
// confirmed client ID.
func (g *ConnectionGroup) EstablishClientID(ctx context.Context, cred *rpcwire.UnixAuth) error {
	client := g.NFS4Client(cred)
	if client == nil {
		return fmt.Errorf("rpcgroup: establish client id: no NFS connection")
	}

	g.client.fileOpMu.Lock()
	defer g.client.fileOpMu.Unlock()

	id := []byte(g.client.Name)
	b := nfsv4.NewBuilder("setclientid").SetClientID(g.client.Verifier, id, 0, "", "", 0)
	stream, err := client.Compound(ctx, b)
	if err != nil {
		return fmt.Errorf("rpcgroup: setclientid: %w", err)
	}
	opcode, status, err := stream.NextOp()
	if err != nil {
		return fmt.Errorf("rpcgroup: setclientid reply: %w", err)
	}
	if status != 0 {
		return fmt.Errorf("rpcgroup: setclientid failed: opcode=%d status=%d", opcode, status)
	}
	result, err := nfsv4.DecodeSetClientIDResult(stream.Reader())
	if err != nil {
		return err
	}

	confirm := nfsv4.NewBuilder("setclientid_confirm").SetClientIDConfirm(result.ClientID, result.Verifier)
	stream, err = client.Compound(ctx, confirm)
	if err != nil {
		return fmt.Errorf("rpcgroup: setclientid_confirm: %w", err)
	}
	opcode, status, err = stream.NextOp()
	if err != nil {
		return fmt.Errorf("rpcgroup: setclientid_confirm reply: %w", err)
	}
	if status != 0 {
		return fmt.Errorf("rpcgroup: setclientid_confirm failed: opcode=%d status=%d", opcode, status)
	}

	g.client.ClientID = result.ClientID
	g.client.ConfirmedVerifier = result.Verifier
	g.client.Confirmed = true
	return nil
}

// StartRenewLoop launches a background RENEW ticker at interval (or
// DefaultLeaseInterval if zero), keeping the client's lease alive between
// actual OPEN/READ/WRITE traffic. Call StopRenewLoop to stop it.
func (g *ConnectionGroup) StartRenewLoop(cred *rpcwire.UnixAuth, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultLeaseInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	if g.renewCancel != nil {
		g.mu.Unlock()
		cancel()
		return
	}
	g.renewCancel = cancel
	g.renewDone = make(chan struct{})
	done := g.renewDone
	g.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := g.renew(ctx, cred); err != nil {
					logger.Warn("rpcgroup: renew failed", "group", g.debugID, "server", g.key.Server, "error", err)
				}
			}
		}
	}()
}

// StopRenewLoop stops a renew loop previously started by StartRenewLoop,
// blocking until the background goroutine has exited.
func (g *ConnectionGroup) StopRenewLoop() {
	g.mu.Lock()
	cancel := g.renewCancel
	done := g.renewDone
	g.renewCancel = nil
	g.renewDone = nil
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (g *ConnectionGroup) renew(ctx context.Context, cred *rpcwire.UnixAuth) error {
	client := g.NFS4Client(cred)
	if client == nil {
		return fmt.Errorf("no NFS connection")
	}

	g.client.fileOpMu.Lock()
	defer g.client.fileOpMu.Unlock()

	if !g.client.Confirmed {
		return fmt.Errorf("client id not confirmed")
	}
	b := nfsv4.NewBuilder("renew").Renew(g.client.ClientID)
	stream, err := client.Compound(ctx, b)
	if err != nil {
		return err
	}
	opcode, status, err := stream.NextOp()
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("opcode=%d status=%d", opcode, status)
	}
	return nil
}

// NextFileOpSeqid returns the next seqid for an OPEN/CLOSE-style
// operation. Callers must hold the file-op lock (via WithFileOpLock) for
// the entire compound that consumes it, per the seqid-monotonicity
// requirement.
func (g *ConnectionGroup) NextFileOpSeqid() uint32 {
	g.client.fileOpSeqid++
	return g.client.fileOpSeqid
}

// NextLockSeqid returns the next seqid for the named lock owner, used by
// LOCK/LOCKU compounds.
func (g *ConnectionGroup) NextLockSeqid(owner string) uint32 {
	g.client.lockSeqidMu.Lock()
	defer g.client.lockSeqidMu.Unlock()
	g.client.lockSeqid[owner]++
	return g.client.lockSeqid[owner]
}

// WithFileOpLock runs fn with the group's file-op lock held. Every
// compound that carries a seqid-bearing operation (OPEN, CLOSE, LOCK,
// LOCKU) must be built and sent from inside this critical section: the
// lock spans the full RPC round trip so seqid allocation and advancement
// observe the server's response in order, not just the local increment.
func (g *ConnectionGroup) WithFileOpLock(fn func() error) error {
	g.client.fileOpMu.Lock()
	defer g.client.fileOpMu.Unlock()
	return fn()
}

// ClientID returns the confirmed NFSv4 client ID, or 0 if
// EstablishClientID has not yet succeeded.
func (g *ConnectionGroup) ClientID() uint64 {
	return g.client.ClientID
}
