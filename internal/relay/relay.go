// Package relay routes signaling envelopes to room members. It interprets
// only the addressing fields; signal payloads pass through untouched.
package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/parley-p2p/parley/internal/metrics"
	"github.com/parley-p2p/parley/internal/protocol"
	"github.com/parley-p2p/parley/internal/room"
)

type Relay struct {
	dir *room.Directory
	log *slog.Logger
	m   *metrics.Metrics
}

func New(dir *room.Directory, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{dir: dir, log: logger, m: m}
}

// Unicast delivers an opaque signal payload to one member of the room. An
// unknown target is an expected race (the peer may have just left), so the
// message is dropped silently and only counted.
func (r *Relay) Unicast(roomID string, from *room.Member, toID string, data json.RawMessage) bool {
	target, ok := r.dir.Lookup(roomID, toID)
	if !ok {
		r.m.Inc(metrics.DropReasonUnknownPeer)
		r.log.Debug("dropping signal for unknown peer", "room", roomID, "to", toID)
		return false
	}
	if !target.Out.Send(protocol.RelayedSignal(from.ID, from.Name, data)) {
		r.m.Inc(metrics.DropReasonSlowReader)
		return false
	}
	r.m.Inc(metrics.SignalsRelayed)
	return true
}

// Broadcast delivers env to every current member of the room except exceptID.
func (r *Relay) Broadcast(roomID, exceptID string, env protocol.ServerEnvelope) {
	r.Fanout(r.dir.Members(roomID, exceptID), env)
}

// Fanout delivers env to exactly the given membership snapshot. Join/leave
// notifications use this so each event reaches each affected member exactly
// once, even while the directory keeps mutating underneath.
func (r *Relay) Fanout(members []*room.Member, env protocol.ServerEnvelope) {
	for _, m := range members {
		if !m.Out.Send(env) {
			r.m.Inc(metrics.DropReasonSlowReader)
		}
	}
}
