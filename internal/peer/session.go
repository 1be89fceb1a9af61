package peer

import (
	"log/slog"

	"github.com/parley-p2p/parley/internal/protocol"
)

// CallState is the per-peer lifecycle of the media/call aspect, distinct from
// room membership.
type CallState int

const (
	// StateIdle: no negotiation attempted on the current instance.
	StateIdle CallState = iota
	// StateNegotiating: description exchange in flight.
	StateNegotiating
	// StateInCall: inbound media observed.
	StateInCall
	// StateCallLeft: the peer ended the call but remains in the room.
	StateCallLeft
	// StateClosed: the negotiation instance was torn down. Terminal for that
	// instance only; a fresh instance returns the session to StateIdle.
	StateClosed
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateInCall:
		return "in-call"
	case StateCallLeft:
		return "call-left"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one remote room member: its identity, the optional live
// negotiation instance, the data channel, and call state. Sessions are
// created lazily when a peer is announced or first referenced by a signal,
// and destroyed only when the member leaves the room. All access happens on
// the engine's control loop.
type Session struct {
	ID   string
	Name string

	// Confirmed marks peers the user has opted to include in calls.
	Confirmed bool

	conn           Conn
	dc             DataChannel
	state          CallState
	remoteSet      bool
	pending        []protocol.CandidateInit
	tracksAttached bool
}

func (s *Session) State() CallState { return s.state }

// ensureConn lazily creates the negotiation instance. Candidates buffered
// before the instance existed are kept; they belong to the negotiation that
// is about to start.
func (s *Session) ensureConn(factory ConnFactory, sink EventSink) error {
	if s.conn != nil {
		return nil
	}
	conn, err := factory(s.ID, sink)
	if err != nil {
		return err
	}
	s.conn = conn
	s.state = StateIdle
	s.remoteSet = false
	s.tracksAttached = false
	return nil
}

// commitRemote commits a remote description and flushes candidates that
// arrived ahead of it, preserving their arrival order. A candidate that fails
// to apply is logged and skipped; the rest still apply.
func (s *Session) commitRemote(desc protocol.SessionDescription, log *slog.Logger) error {
	if err := s.conn.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.remoteSet = true
	for _, cand := range s.pending {
		if err := s.conn.AddICECandidate(cand); err != nil {
			log.Warn("apply buffered candidate", "peer", s.ID, "err", err)
		}
	}
	s.pending = nil
	return nil
}

// addCandidate applies a remote candidate, or buffers it until a remote
// description has been committed on the current instance.
func (s *Session) addCandidate(cand protocol.CandidateInit, log *slog.Logger) {
	if s.conn == nil || !s.remoteSet {
		s.pending = append(s.pending, cand)
		return
	}
	if err := s.conn.AddICECandidate(cand); err != nil {
		log.Warn("apply candidate", "peer", s.ID, "err", err)
	}
}

// closeConn tears down the live negotiation instance, leaving the session in
// place for future re-negotiation.
func (s *Session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.dc = nil
	s.state = StateClosed
	s.remoteSet = false
	s.pending = nil
	s.tracksAttached = false
}
