package room

import (
	"strings"

	"github.com/google/uuid"

	"github.com/parley-p2p/parley/internal/protocol"
)

// Outbox is a member's outbound message channel. Send enqueues an envelope
// for delivery and reports false when the connection can no longer accept
// messages (closed or backed up); the caller treats that the same as a slow
// consumer and does not retry.
type Outbox interface {
	Send(env protocol.ServerEnvelope) bool
}

// Member is one live client connection. The identifier is assigned at
// connection time, is unique per live connection, and is never reused for a
// different underlying connection (a reconnect mints a fresh one).
type Member struct {
	ID   string
	Name string
	Out  Outbox
}

func NewMember(out Outbox) *Member {
	return &Member{
		ID:   uuid.NewString(),
		Name: AnonName(),
		Out:  out,
	}
}

// SetName installs a user-supplied display name, falling back to the
// generated anonymous tag when the input is blank. The Directory calls this
// while admitting the member, before any other connection can see it; once a
// member is in a room its Name never changes.
func (m *Member) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if len(name) > protocol.MaxNameLength {
		name = name[:protocol.MaxNameLength]
	}
	m.Name = name
}

// Info returns the member's wire-visible identity.
func (m *Member) Info() protocol.PeerInfo {
	return protocol.PeerInfo{ID: m.ID, Name: m.Name}
}

// AnonName generates an anonymous display tag such as "anon-1a2b3c4d".
func AnonName() string {
	return "anon-" + uuid.NewString()[:8]
}
