// Package rpcgroup implements the ConnectionGroup: the per-server bundle
// of Connections (port mapper, MOUNT, NFS, NLM) plus the NFSv4 client
// identity state, created once per (server, transport, NFS version) and
// looked up from a process-wide registry.
package rpcgroup

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opennfsc/client/internal/logger"
	"github.com/opennfsc/client/internal/mountproto"
	"github.com/opennfsc/client/internal/nfs3proto"
	"github.com/opennfsc/client/internal/nfsv4"
	"github.com/opennfsc/client/internal/nlmproto"
	"github.com/opennfsc/client/internal/portmap"
	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/internal/rpcwire"
)

// NFSVersion selects which NFS major version a ConnectionGroup speaks.
// The two versions differ enough in discovery (port mapper vs. the
// well-known port 2049) and state (NFSv4 client IDs) that a group commits
// to one for its whole lifetime.
type NFSVersion int

const (
	NFSv3 NFSVersion = iota
	NFSv4
)

func (v NFSVersion) String() string {
	if v == NFSv4 {
		return "nfsv4"
	}
	return "nfsv3"
}

// Service names one of the RPC programs a ConnectionGroup may hold a
// Connection for.
type Service int

const (
	ServicePortmap Service = iota
	ServiceMount
	ServiceNFS
	ServiceNLM
)

// PortmapPort, NFS4Port are the well-known ports this package dials
// without going through the port mapper.
const (
	PortmapPort = 111
	NFS4Port    = 2049
)

// DefaultTimeout bounds every RPC call issued through a ConnectionGroup
// unless a caller overrides it.
const DefaultTimeout = 30 * time.Second

// DefaultLeaseInterval is the NFSv4 RENEW cadence used absent a
// server-negotiated lease time.
const DefaultLeaseInterval = 12 * time.Second

// Key identifies one ConnectionGroup: a server address, the transport
// this group communicates over, and the NFS version it was created for.
type Key struct {
	Server     string
	Transport  rpcconn.Transport
	NFSVersion NFSVersion
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Server, k.Transport, k.NFSVersion)
}

// registry is the process-wide, lock-protected map of active groups.
var registry = struct {
	mu     sync.Mutex
	groups map[Key]*ConnectionGroup
}{groups: make(map[Key]*ConnectionGroup)}

// Get looks up or lazily creates the ConnectionGroup for key. Creation
// spawns no I/O: EnsureConnection drives all dialing and discovery.
func Get(mgr *rpcconn.Manager, key Key) *ConnectionGroup {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if g, ok := registry.groups[key]; ok {
		return g
	}
	g := newGroup(mgr, key)
	registry.groups[key] = g
	return g
}

// ClientState holds the NFSv4 client identity a group establishes once
// via SETCLIENTID/SETCLIENTID_CONFIRM and reuses for every subsequent
// compound.
type ClientState struct {
	Verifier          [8]byte
	ConfirmedVerifier [8]byte
	Name              string
	ClientID          uint64
	Confirmed         bool

	// fileOpMu is the "file-op lock" (spec §4.6/§5): it serialises every
	// compound that carries a seqid-bearing operation (OPEN/CLOSE), since
	// advancing the seqid must observe the server's response before the
	// next caller can read it.
	fileOpMu    sync.Mutex
	fileOpSeqid uint32

	// lockSeqidMu guards per-owner lock seqids used by LOCK/LOCKU.
	lockSeqidMu sync.Mutex
	lockSeqid   map[string]uint32
}

// ConnectionGroup bundles the Connections and protocol clients needed to
// talk to one NFS server, plus (for NFSv4) the client-identity state RFC
// 7530 requires every caller to share.
type ConnectionGroup struct {
	key     Key
	manager *rpcconn.Manager

	// debugID distinguishes this group's log lines from any other group
	// talking to the same server concurrently (e.g. one NFSv3 and one
	// NFSv4 group against the same host), since Key.String() alone would
	// be identical for repeated Get/EnsureConnection cycles after a prior
	// group was torn down.
	debugID string

	mu    sync.Mutex
	conns map[Service]*rpcconn.Connection

	client ClientState

	renewCancel context.CancelFunc
	renewDone   chan struct{}
}

func newGroup(mgr *rpcconn.Manager, key Key) *ConnectionGroup {
	g := &ConnectionGroup{
		key:     key,
		manager: mgr,
		conns:   make(map[Service]*rpcconn.Connection),
		debugID: uuid.NewString(),
	}
	g.client.Name = fmt.Sprintf("fma_%d", os.Getpid())
	_, _ = rand.Read(g.client.Verifier[:])
	g.client.lockSeqid = make(map[string]uint32)
	return g
}

// Key reports the identity this group was created under.
func (g *ConnectionGroup) Key() Key { return g.key }

// DebugID returns the group's unique identifier, included in log lines so
// concurrent groups against the same server can be told apart.
func (g *ConnectionGroup) DebugID() string { return g.debugID }

func (g *ConnectionGroup) connectionLocked(svc Service, port uint16, reservedPort bool) (*rpcconn.Connection, error) {
	transport := g.key.Transport
	if g.key.NFSVersion == NFSv4 {
		transport = rpcconn.TCP // NFSv4 always uses its single TCP connection
	}
	key := rpcconn.Key{Host: g.key.Server, Port: port, Transport: transport}
	if existing, ok := g.conns[svc]; ok {
		if existing.Key() == key && existing.State() != rpcconn.Closed {
			return existing, nil
		}
		_ = existing.Disconnect()
		delete(g.conns, svc)
	}
	conn := rpcconn.New(key, reservedPort)
	if err := conn.Connect(g.manager); err != nil {
		return nil, fmt.Errorf("rpcgroup: connect %s (%s): %w", svcName(svc), key.String(), err)
	}
	g.conns[svc] = conn
	return conn, nil
}

func svcName(s Service) string {
	switch s {
	case ServicePortmap:
		return "portmap"
	case ServiceMount:
		return "mount"
	case ServiceNFS:
		return "nfs"
	case ServiceNLM:
		return "nlm"
	default:
		return "unknown"
	}
}

// Connection returns the already-established Connection for svc, or nil
// if EnsureConnection has not been called or the discovered port was 0.
func (g *ConnectionGroup) Connection(svc Service) *rpcconn.Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[svc]
}

// EnsureConnection drives discovery and dialing per spec §4.5: for
// NFSv4, a single TCP connection on the well-known port 2049; for NFSv3,
// a port-mapper round trip followed by (re)creating MOUNT/NFS/NLM
// connections on the ports DUMP reported.
//
// The port-mapper connection is never routed back through
// EnsureConnection itself, avoiding a mutual-recursion hazard: a naive
// implementation that always funnels discovery through EnsureConnection
// would try to discover the port mapper's own port via the port mapper.
func (g *ConnectionGroup) EnsureConnection(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.key.NFSVersion == NFSv4 {
		_, err := g.connectionLocked(ServiceNFS, NFS4Port, false)
		return err
	}
	return g.ensureV3Locked(ctx)
}

func (g *ConnectionGroup) ensureV3Locked(ctx context.Context) error {
	pmapConn, err := g.connectionLocked(ServicePortmap, PortmapPort, false)
	if err != nil {
		return err
	}
	pmapClient := portmap.NewClient(pmapConn, DefaultTimeout)
	mappings, err := pmapClient.Dump(ctx)
	if err != nil {
		return fmt.Errorf("rpcgroup: portmap dump: %w", err)
	}

	wantProto := uint32(portmap.ProtoUDP)
	if g.key.Transport == rpcconn.TCP {
		wantProto = portmap.ProtoTCP
	}
	ports := make(map[[2]uint32]uint32, len(mappings))
	for _, m := range mappings {
		if m.Prot != wantProto {
			continue
		}
		ports[[2]uint32{m.Prog, m.Vers}] = m.Port
	}

	targets := []struct {
		svc        Service
		prog, vers uint32
		reserved   bool
	}{
		{ServiceMount, mountproto.Program, mountproto.Version, true},
		{ServiceNFS, nfs3proto.Program, nfs3proto.Version, false},
		{ServiceNLM, nlmproto.Program, nlmproto.Version, false},
	}
	for _, t := range targets {
		port := ports[[2]uint32{t.prog, t.vers}]
		if port == 0 {
			logger.Warn("rpcgroup: port mapper has no mapping, skipping connection",
				"group", g.debugID, "service", svcName(t.svc), "program", t.prog, "version", t.vers, "server", g.key.Server)
			continue
		}
		if _, err := g.connectionLocked(t.svc, uint16(port), t.reserved); err != nil {
			return err
		}
	}
	return nil
}

// AuthCredential builds the AUTH_UNIX credential used on every protocol
// call this group makes, given the caller's effective uid/gid.
func AuthCredential(machineName string, uid, gid uint32) *rpcwire.UnixAuth {
	return &rpcwire.UnixAuth{MachineName: machineName, UID: uid, GID: gid}
}

// MountClient returns a mountproto.Client over this group's MOUNT
// connection, or nil if EnsureConnection hasn't established one.
func (g *ConnectionGroup) MountClient(cred *rpcwire.UnixAuth) *mountproto.Client {
	conn := g.Connection(ServiceMount)
	if conn == nil {
		return nil
	}
	return mountproto.NewClient(conn, DefaultTimeout, cred)
}

// NFS3Client returns an nfs3proto.Client over this group's NFS
// connection, or nil if EnsureConnection hasn't established one.
func (g *ConnectionGroup) NFS3Client(cred *rpcwire.UnixAuth) *nfs3proto.Client {
	conn := g.Connection(ServiceNFS)
	if conn == nil {
		return nil
	}
	return nfs3proto.NewClient(conn, DefaultTimeout, cred)
}

// NLMClient returns an nlmproto.Client over this group's NLM connection,
// or nil if EnsureConnection hasn't established one.
func (g *ConnectionGroup) NLMClient(cred *rpcwire.UnixAuth) *nlmproto.Client {
	conn := g.Connection(ServiceNLM)
	if conn == nil {
		return nil
	}
	return nlmproto.NewClient(conn, DefaultTimeout, cred)
}

// NFS4Client returns an nfsv4.Client over this group's NFS connection, or
// nil if EnsureConnection hasn't established one.
func (g *ConnectionGroup) NFS4Client(cred *rpcwire.UnixAuth) *nfsv4.Client {
	conn := g.Connection(ServiceNFS)
	if conn == nil {
		return nil
	}
	return nfsv4.NewClient(conn, DefaultTimeout, cred)
}
