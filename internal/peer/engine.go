// Package peer drives connection negotiation with every remote member of a
// room: one Session per peer, an Engine that runs the offer/answer/candidate
// protocol over an opaque Conn primitive, and call orchestration on top.
//
// The engine is a single control loop. Signaling envelopes, platform
// notifications, and user commands all arrive as events on one channel, so
// the session table is only ever touched from one goroutine and no locking
// is needed.
package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/parley-p2p/parley/internal/protocol"
)

// ErrEngineStopped reports that a command was issued after the engine's loop
// exited.
var ErrEngineStopped = errors.New("peer: engine stopped")

// Signaler is the outbound half of the signaling channel: it relays an opaque
// negotiation payload to one remote member.
type Signaler interface {
	Signal(to string, data protocol.SignalData) error
}

// Config assembles an Engine's collaborators. Signaler and Factory are
// required; Media may be nil when the client offers no media capability (data
// channels still work, StartCall reports ErrMediaUnavailable). The callbacks
// are optional and are invoked from the engine loop, so they must not block.
type Config struct {
	Signaler Signaler
	Factory  ConnFactory
	Media    MediaSource
	Logger   *slog.Logger

	// OnChat fires for each inbound data-channel message.
	OnChat func(peerID, name, text string)
	// OnRemoteMedia fires when a peer's inbound media starts.
	OnRemoteMedia func(peerID, kind string)
	// OnRemoteMediaRemoved fires when a peer's media association is removed
	// (call left, connection failure, teardown).
	OnRemoteMediaRemoved func(peerID string)
	// OnPeerGone fires when a peer leaves the room and its session is
	// destroyed.
	OnPeerGone func(peerID string)
}

type Engine struct {
	log     *slog.Logger
	sig     Signaler
	factory ConnFactory
	media   MediaSource

	onChat               func(peerID, name, text string)
	onRemoteMedia        func(peerID, kind string)
	onRemoteMediaRemoved func(peerID string)
	onPeerGone           func(peerID string)

	// Everything below is owned by the Run loop.
	localID  string
	sessions map[string]*Session
	tracks   []LocalTrack

	events   chan event
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		log:                  logger,
		sig:                  cfg.Signaler,
		factory:              cfg.Factory,
		media:                cfg.Media,
		onChat:               cfg.OnChat,
		onRemoteMedia:        cfg.OnRemoteMedia,
		onRemoteMediaRemoved: cfg.OnRemoteMediaRemoved,
		onPeerGone:           cfg.OnPeerGone,
		sessions:             make(map[string]*Session),
		events:               make(chan event, 128),
		stopped:              make(chan struct{}),
	}
}

// event is the closed set of inputs consumed by the control loop.
type event interface{ isEvent() }

type evtJoined struct {
	id    string
	peers []protocol.PeerInfo
}

type evtNewPeer struct{ id, name string }

type evtPeerLeft struct{ id string }

type evtSignal struct {
	from, name string
	data       protocol.SignalData
}

type evtLocalCandidate struct {
	remoteID string
	cand     protocol.CandidateInit
}

type evtRemoteMedia struct{ remoteID, kind string }

type evtDataChannelOpen struct {
	remoteID string
	dc       DataChannel
}

type evtDataChannelText struct{ remoteID, text string }

type evtConnClosed struct{ remoteID string }

type evtCommand struct{ fn func() }

func (evtJoined) isEvent()          {}
func (evtNewPeer) isEvent()         {}
func (evtPeerLeft) isEvent()        {}
func (evtSignal) isEvent()          {}
func (evtLocalCandidate) isEvent()  {}
func (evtRemoteMedia) isEvent()     {}
func (evtDataChannelOpen) isEvent() {}
func (evtDataChannelText) isEvent() {}
func (evtConnClosed) isEvent()      {}
func (evtCommand) isEvent()         {}

// Run consumes events until ctx is cancelled, then tears down every live
// negotiation instance and releases local media before returning.
func (e *Engine) Run(ctx context.Context) {
	defer e.stopOnce.Do(func() { close(e.stopped) })
	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

// HandleEnvelope feeds one server envelope into the engine. It decodes signal
// payloads at the boundary; anything malformed is logged and dropped without
// touching session state.
func (e *Engine) HandleEnvelope(env protocol.ServerEnvelope) {
	switch env.Type {
	case protocol.TypeJoined:
		e.enqueue(evtJoined{id: env.ID, peers: env.Peers})
	case protocol.TypeNewPeer:
		e.enqueue(evtNewPeer{id: env.ID, name: env.Name})
	case protocol.TypePeerLeft:
		e.enqueue(evtPeerLeft{id: env.ID})
	case protocol.TypeSignal:
		data, err := protocol.ParseSignalData(env.Data)
		if err != nil {
			e.log.Debug("discarding malformed signal payload", "from", env.From, "err", err)
			return
		}
		e.enqueue(evtSignal{from: env.From, name: env.Name, data: data})
	default:
		// room-error and unknown kinds are the caller's concern.
	}
}

func (e *Engine) enqueue(ev event) {
	select {
	case e.events <- ev:
	case <-e.stopped:
	}
}

// EventSink implementation: platform callbacks funnel into the loop.

func (e *Engine) LocalCandidate(remoteID string, cand protocol.CandidateInit) {
	e.enqueue(evtLocalCandidate{remoteID: remoteID, cand: cand})
}

func (e *Engine) RemoteMedia(remoteID, kind string) {
	e.enqueue(evtRemoteMedia{remoteID: remoteID, kind: kind})
}

func (e *Engine) DataChannelOpen(remoteID string, dc DataChannel) {
	e.enqueue(evtDataChannelOpen{remoteID: remoteID, dc: dc})
}

func (e *Engine) DataChannelText(remoteID, text string) {
	e.enqueue(evtDataChannelText{remoteID: remoteID, text: text})
}

func (e *Engine) ConnClosed(remoteID string) {
	e.enqueue(evtConnClosed{remoteID: remoteID})
}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case evtJoined:
		e.localID = ev.id
		for _, p := range ev.peers {
			s := e.ensureSession(p.ID, p.Name)
			e.maybeInitiate(s)
		}
	case evtNewPeer:
		s := e.ensureSession(ev.id, ev.name)
		e.maybeInitiate(s)
	case evtPeerLeft:
		e.handlePeerLeft(ev.id)
	case evtSignal:
		e.handleSignal(ev)
	case evtLocalCandidate:
		cand := ev.cand
		if err := e.sig.Signal(ev.remoteID, protocol.SignalData{Candidate: &cand}); err != nil {
			e.log.Warn("send candidate", "peer", ev.remoteID, "err", err)
		}
	case evtRemoteMedia:
		if s, ok := e.sessions[ev.remoteID]; ok && s.conn != nil {
			s.state = StateInCall
			if e.onRemoteMedia != nil {
				e.onRemoteMedia(s.ID, ev.kind)
			}
		}
	case evtDataChannelOpen:
		if s, ok := e.sessions[ev.remoteID]; ok && s.conn != nil {
			s.dc = ev.dc
		}
	case evtDataChannelText:
		if s, ok := e.sessions[ev.remoteID]; ok && e.onChat != nil {
			e.onChat(s.ID, s.Name, ev.text)
		}
	case evtConnClosed:
		e.handleConnClosed(ev.remoteID)
	case evtCommand:
		ev.fn()
	}
}

// ensureSession lazily creates the Session the first time a peer is announced
// or referenced by a signaling message.
func (e *Engine) ensureSession(id, name string) *Session {
	if s, ok := e.sessions[id]; ok {
		if name != "" {
			s.Name = name
		}
		return s
	}
	s := &Session{ID: id, Name: name, state: StateIdle}
	e.sessions[id] = s
	return s
}

// maybeInitiate applies the deterministic-initiator rule for automatic
// negotiation: the side with the strictly smaller identifier creates the data
// channel and the first offer, so a pair never produces competing offers no
// matter the arrival order of join events.
func (e *Engine) maybeInitiate(s *Session) {
	if e.localID == "" || e.localID >= s.ID {
		return
	}
	if s.conn != nil {
		return
	}
	if err := s.ensureConn(e.factory, e); err != nil {
		e.log.Warn("create negotiation instance", "peer", s.ID, "err", err)
		return
	}
	dc, err := s.conn.CreateDataChannel("chat")
	if err != nil {
		e.log.Warn("create data channel", "peer", s.ID, "err", err)
	} else {
		s.dc = dc
	}
	e.sendOffer(s)
}

// sendOffer runs the initiator step: create and commit a local offer, then
// relay it. A failure is logged and abandoned; the session keeps its prior
// state so the user can retry.
func (e *Engine) sendOffer(s *Session) {
	desc, err := s.conn.CreateOffer()
	if err != nil {
		e.log.Warn("create offer", "peer", s.ID, "err", err)
		return
	}
	if err := e.sig.Signal(s.ID, protocol.SignalData{SDP: &desc}); err != nil {
		e.log.Warn("send offer", "peer", s.ID, "err", err)
		return
	}
	if s.state == StateIdle || s.state == StateCallLeft {
		s.state = StateNegotiating
	}
}

func (e *Engine) handleSignal(ev evtSignal) {
	s := e.ensureSession(ev.from, ev.name)

	switch {
	case ev.data.CallLeft:
		// The peer ended the call but stays in the room: drop the media
		// association, keep the negotiation instance.
		if e.onRemoteMediaRemoved != nil {
			e.onRemoteMediaRemoved(s.ID)
		}
		s.state = StateCallLeft

	case ev.data.SDP != nil:
		if err := s.ensureConn(e.factory, e); err != nil {
			e.log.Warn("create negotiation instance", "peer", s.ID, "err", err)
			return
		}
		switch ev.data.SDP.Type {
		case "offer":
			// Attach local tracks before answering so the answer reflects
			// what will actually be sent.
			e.attachTracks(s)
			if err := s.commitRemote(*ev.data.SDP, e.log); err != nil {
				e.log.Warn("apply remote offer", "peer", s.ID, "err", err)
				return
			}
			if s.state == StateIdle || s.state == StateCallLeft {
				s.state = StateNegotiating
			}
			answer, err := s.conn.CreateAnswer()
			if err != nil {
				e.log.Warn("create answer", "peer", s.ID, "err", err)
				return
			}
			if err := e.sig.Signal(s.ID, protocol.SignalData{SDP: &answer}); err != nil {
				e.log.Warn("send answer", "peer", s.ID, "err", err)
			}
		case "answer":
			if err := s.commitRemote(*ev.data.SDP, e.log); err != nil {
				e.log.Warn("apply remote answer", "peer", s.ID, "err", err)
			}
		default:
			e.log.Debug("ignoring unknown sdp type", "peer", s.ID, "type", ev.data.SDP.Type)
		}

	case ev.data.Candidate != nil:
		s.addCandidate(*ev.data.Candidate, e.log)
	}
}

func (e *Engine) handlePeerLeft(id string) {
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	if e.onRemoteMediaRemoved != nil && s.state == StateInCall {
		e.onRemoteMediaRemoved(s.ID)
	}
	s.closeConn()
	delete(e.sessions, id)
	if e.onPeerGone != nil {
		e.onPeerGone(id)
	}
}

// handleConnClosed reacts to a fatal/disconnected negotiation instance: the
// media association is dropped and the handle cleared, but the session
// persists so a fresh call attempt can re-negotiate.
func (e *Engine) handleConnClosed(id string) {
	s, ok := e.sessions[id]
	if !ok || s.conn == nil {
		return
	}
	if e.onRemoteMediaRemoved != nil && s.state == StateInCall {
		e.onRemoteMediaRemoved(s.ID)
	}
	s.closeConn()
	e.log.Debug("negotiation instance closed", "peer", id)
}

// attachTracks adds acquired local tracks to the session's instance, once.
func (e *Engine) attachTracks(s *Session) {
	if len(e.tracks) == 0 || s.tracksAttached || s.conn == nil {
		return
	}
	for _, t := range e.tracks {
		if err := s.conn.AddTrack(t); err != nil {
			e.log.Warn("attach local track", "peer", s.ID, "kind", t.Kind(), "err", err)
		}
	}
	s.tracksAttached = true
}

func (e *Engine) teardown() {
	for id, s := range e.sessions {
		s.closeConn()
		delete(e.sessions, id)
	}
	if e.tracks != nil && e.media != nil {
		e.media.Release()
	}
	e.tracks = nil
}
