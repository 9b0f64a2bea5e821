package domain

import "fmt"

type clientRefKind uint8

const (
	refByID clientRefKind = iota + 1
	refByUsername
	refByLedger
)

// ClientRef names a participant by exactly one of: numeric client id,
// username, or ledger id. Build it with ClientByID, ClientByUsername or
// ClientByLedger.
type ClientRef struct {
	kind     clientRefKind
	id       uint64
	username string
}

// ClientByID refers to a client by its numeric id.
func ClientByID(id uint64) ClientRef {
	return ClientRef{kind: refByID, id: id}
}

// ClientByUsername refers to a client by its unique username.
func ClientByUsername(username string) ClientRef {
	return ClientRef{kind: refByUsername, username: username}
}

// ClientByLedger refers to a client directly by its ledger.
func ClientByLedger(id LedgerID) ClientRef {
	return ClientRef{kind: refByLedger, id: uint64(id)}
}

// ID returns the numeric id for id and ledger references.
func (r ClientRef) ID() (uint64, bool) {
	return r.id, r.kind == refByID || r.kind == refByLedger
}

// Username returns the username for username references.
func (r ClientRef) Username() (string, bool) {
	return r.username, r.kind == refByUsername
}

func (r ClientRef) String() string {
	switch r.kind {
	case refByID:
		return fmt.Sprintf("client#%d", r.id)
	case refByUsername:
		return "@" + r.username
	case refByLedger:
		return fmt.Sprintf("ledger#%d", r.id)
	}
	return "client(?)"
}
