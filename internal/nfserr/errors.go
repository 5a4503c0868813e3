// Package nfserr carries protocol-level failures: an RPC call that
// completed successfully at the transport layer but whose embedded status
// code reports a filesystem-level error (NFS3ERR_NOENT, NFS4ERR_STALE, an
// NLM denial, a MOUNT failure). Contrast with package rpcerrs, which covers
// failures in the RPC exchange itself.
package nfserr

import "fmt"

// Taxonomy identifies which wire protocol's status space a Status belongs
// to, since the numeric ranges overlap across protocols.
type Taxonomy string

const (
	V3    Taxonomy = "nfs3"
	V4    Taxonomy = "nfs4"
	NLM   Taxonomy = "nlm"
	Mount Taxonomy = "mount"
)

// Error wraps a non-OK status code returned by a remote procedure.
type Error struct {
	Taxonomy Taxonomy
	Status   uint32
	Message  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s status %d: %s", e.Taxonomy, e.Status, e.Message)
	}
	return fmt.Sprintf("%s status %d", e.Taxonomy, e.Status)
}

// New builds a protocol-layer Error.
func New(tax Taxonomy, status uint32, message string) *Error {
	return &Error{Taxonomy: tax, Status: status, Message: message}
}

// IsStatus reports whether err is an *Error carrying exactly this taxonomy
// and status, a common check after a failed compound or procedure call.
func IsStatus(err error, tax Taxonomy, status uint32) bool {
	e, ok := err.(*Error)
	return ok && e.Taxonomy == tax && e.Status == status
}
