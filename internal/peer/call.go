package peer

import (
	"errors"
	"fmt"

	"github.com/parley-p2p/parley/internal/protocol"
)

// ErrPeerUnknown reports that Confirm could not match any known peer.
var ErrPeerUnknown = errors.New("peer: no such peer")

// PeerSnapshot is a read-only view of one session for display purposes.
type PeerSnapshot struct {
	ID        string
	Name      string
	Confirmed bool
	State     CallState
}

// do runs fn on the engine loop and waits for it to complete, so controller
// operations observe and mutate the session table with the same
// single-writer discipline as every other event.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.events <- evtCommand{fn: func() {
		defer close(done)
		fn()
	}}:
	case <-e.stopped:
		return ErrEngineStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// Confirm marks a peer as included in future calls. The query matches by
// identifier first, then by display name; the first name match wins.
func (e *Engine) Confirm(query string) error {
	var err error
	if doErr := e.do(func() { err = e.confirm(query) }); doErr != nil {
		return doErr
	}
	return err
}

func (e *Engine) confirm(query string) error {
	if s, ok := e.sessions[query]; ok {
		s.Confirmed = true
		return nil
	}
	for _, s := range e.sessions {
		if s.Name == query {
			s.Confirmed = true
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrPeerUnknown, query)
}

// StartCall acquires the local media capability and triggers (re)negotiation
// with every confirmed peer, attaching local tracks so the resulting offers
// carry them. Without a usable media source it fails with
// ErrMediaUnavailable and changes nothing.
func (e *Engine) StartCall() error {
	var err error
	if doErr := e.do(func() { err = e.startCall() }); doErr != nil {
		return doErr
	}
	return err
}

func (e *Engine) startCall() error {
	if e.media == nil {
		return ErrMediaUnavailable
	}
	if e.tracks == nil {
		tracks, err := e.media.Acquire()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
		}
		e.tracks = tracks
	}

	for _, s := range e.sessions {
		if !s.Confirmed {
			continue
		}
		if err := s.ensureConn(e.factory, e); err != nil {
			e.log.Warn("create negotiation instance", "peer", s.ID, "err", err)
			continue
		}
		e.attachTracks(s)
		e.sendOffer(s)
	}
	return nil
}

// EndCall notifies every confirmed peer that this participant left the call,
// closes their negotiation instances while retaining the sessions, and
// releases the local media capability. Room membership is untouched.
func (e *Engine) EndCall() error {
	return e.do(e.endCall)
}

func (e *Engine) endCall() {
	for _, s := range e.sessions {
		if !s.Confirmed {
			continue
		}
		if err := e.sig.Signal(s.ID, protocol.SignalData{CallLeft: true}); err != nil {
			e.log.Warn("send call-left", "peer", s.ID, "err", err)
		}
		if e.onRemoteMediaRemoved != nil && s.state == StateInCall {
			e.onRemoteMediaRemoved(s.ID)
		}
		if s.conn != nil {
			s.closeConn()
		}
	}
	if e.tracks != nil {
		e.media.Release()
		e.tracks = nil
	}
}

// SendChat fans a text message out to every confirmed peer whose data
// channel is open.
func (e *Engine) SendChat(text string) error {
	return e.do(func() {
		for _, s := range e.sessions {
			if !s.Confirmed || s.dc == nil || !s.dc.Ready() {
				continue
			}
			if err := s.dc.SendText(text); err != nil {
				e.log.Warn("send chat", "peer", s.ID, "err", err)
			}
		}
	})
}

// LocalID reports the identifier the server assigned on join, empty until
// the joined envelope has been processed.
func (e *Engine) LocalID() (string, error) {
	var id string
	if err := e.do(func() { id = e.localID }); err != nil {
		return "", err
	}
	return id, nil
}

// Peers returns a snapshot of all known sessions.
func (e *Engine) Peers() ([]PeerSnapshot, error) {
	var out []PeerSnapshot
	err := e.do(func() {
		out = make([]PeerSnapshot, 0, len(e.sessions))
		for _, s := range e.sessions {
			out = append(out, PeerSnapshot{
				ID:        s.ID,
				Name:      s.Name,
				Confirmed: s.Confirmed,
				State:     s.state,
			})
		}
	})
	return out, err
}
