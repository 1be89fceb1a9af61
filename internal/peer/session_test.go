package peer

import (
	"fmt"
	"testing"

	"github.com/parley-p2p/parley/internal/protocol"
)

type nopSink struct{}

func (nopSink) LocalCandidate(string, protocol.CandidateInit) {}
func (nopSink) RemoteMedia(string, string)                    {}
func (nopSink) DataChannelOpen(string, DataChannel)           {}
func (nopSink) DataChannelText(string, string)                {}
func (nopSink) ConnClosed(string)                             {}

func TestCallStateString(t *testing.T) {
	states := map[CallState]string{
		StateIdle:        "idle",
		StateNegotiating: "negotiating",
		StateInCall:      "in-call",
		StateCallLeft:    "call-left",
		StateClosed:      "closed",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestEnsureConnKeepsEarlyCandidates(t *testing.T) {
	s := &Session{ID: "zzz"}
	log := discardLogger()

	// A candidate can arrive before any instance exists.
	s.addCandidate(protocol.CandidateInit{Candidate: "candidate:0"}, log)

	factory := newFakeFactory()
	if err := s.ensureConn(factory.create, nopSink{}); err != nil {
		t.Fatalf("ensureConn: %v", err)
	}
	if len(s.pending) != 1 {
		t.Fatalf("pending = %d, want 1 (buffer cleared by ensureConn)", len(s.pending))
	}

	if err := s.commitRemote(protocol.SessionDescription{Type: "offer", SDP: "v=0"}, log); err != nil {
		t.Fatalf("commitRemote: %v", err)
	}
	snap := factory.conn("zzz").snapshot()
	if len(snap.cands) != 1 || snap.cands[0].Candidate != "candidate:0" {
		t.Fatalf("applied candidates = %+v", snap.cands)
	}
	if len(s.pending) != 0 {
		t.Fatal("buffer not drained after commit")
	}
}

func TestCommitRemoteFlushOrder(t *testing.T) {
	s := &Session{ID: "zzz"}
	log := discardLogger()
	factory := newFakeFactory()
	if err := s.ensureConn(factory.create, nopSink{}); err != nil {
		t.Fatalf("ensureConn: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.addCandidate(protocol.CandidateInit{Candidate: fmt.Sprintf("candidate:%d", i)}, log)
	}
	if err := s.commitRemote(protocol.SessionDescription{Type: "answer", SDP: "v=0"}, log); err != nil {
		t.Fatalf("commitRemote: %v", err)
	}

	snap := factory.conn("zzz").snapshot()
	if len(snap.cands) != 5 {
		t.Fatalf("applied %d candidates, want 5", len(snap.cands))
	}
	for i, c := range snap.cands {
		if want := fmt.Sprintf("candidate:%d", i); c.Candidate != want {
			t.Fatalf("candidate %d = %q, want %q", i, c.Candidate, want)
		}
	}

	// Later candidates skip the buffer.
	s.addCandidate(protocol.CandidateInit{Candidate: "candidate:5"}, log)
	if len(s.pending) != 0 {
		t.Fatal("candidate buffered after the remote description was committed")
	}
	if got := len(factory.conn("zzz").snapshot().cands); got != 6 {
		t.Fatalf("applied %d candidates, want 6", got)
	}
}

func TestCloseConnResetsInstanceState(t *testing.T) {
	s := &Session{ID: "zzz", state: StateInCall}
	log := discardLogger()
	factory := newFakeFactory()
	if err := s.ensureConn(factory.create, nopSink{}); err != nil {
		t.Fatalf("ensureConn: %v", err)
	}
	if err := s.commitRemote(protocol.SessionDescription{Type: "offer", SDP: "v=0"}, log); err != nil {
		t.Fatalf("commitRemote: %v", err)
	}
	s.addCandidate(protocol.CandidateInit{Candidate: "candidate:0"}, log)

	s.closeConn()

	if !factory.conn("zzz").snapshot().closed {
		t.Fatal("instance not closed")
	}
	if s.conn != nil || s.dc != nil {
		t.Fatal("handles not cleared")
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}

	// A new instance starts clean: candidates buffer again until the next
	// remote description.
	if err := s.ensureConn(factory.create, nopSink{}); err != nil {
		t.Fatalf("ensureConn: %v", err)
	}
	s.addCandidate(protocol.CandidateInit{Candidate: "candidate:1"}, log)
	if len(s.pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(s.pending))
	}
	if got := len(factory.conn("zzz").snapshot().cands); got != 0 {
		t.Fatalf("fresh instance already has %d candidates", got)
	}
}
