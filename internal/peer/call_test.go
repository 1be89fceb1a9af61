package peer

import (
	"errors"
	"testing"

	"github.com/parley-p2p/parley/internal/protocol"
)

func TestStartCallWithoutMedia(t *testing.T) {
	e := startEngine(t, Config{Signaler: &fakeSignaler{}, Factory: newFakeFactory().create})

	if err := e.StartCall(); !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("got %v, want ErrMediaUnavailable", err)
	}
}

func TestStartCallMediaAcquireFails(t *testing.T) {
	media := &fakeMedia{err: errors.New("device busy")}
	e := startEngine(t, Config{Signaler: &fakeSignaler{}, Factory: newFakeFactory().create, Media: media})

	if err := e.StartCall(); !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("got %v, want ErrMediaUnavailable", err)
	}
}

func TestStartCallOffersToConfirmedOnly(t *testing.T) {
	sig := &fakeSignaler{}
	factory := newFakeFactory()
	media := &fakeMedia{tracks: []LocalTrack{fakeTrack{kind: "audio"}}}
	e := startEngine(t, Config{Signaler: sig, Factory: factory.create, Media: media})

	// A high local id keeps automatic initiation out of the picture.
	e.HandleEnvelope(joinedEnvelope("zzz",
		protocol.PeerInfo{ID: "aaa", Name: "ann"},
		protocol.PeerInfo{ID: "bbb", Name: "ben"},
	))
	syncEngine(t, e)

	if err := e.Confirm("aaa"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := e.StartCall(); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	offers := sig.signalsTo("aaa")
	if len(offers) != 1 || offers[0].data.SDP == nil || offers[0].data.SDP.Type != "offer" {
		t.Fatalf("signals to aaa = %+v, want one offer", offers)
	}
	snap := factory.conn("aaa").snapshot()
	if len(snap.tracks) != 1 || snap.tracks[0].Kind() != "audio" {
		t.Fatalf("tracks on aaa's instance = %+v", snap.tracks)
	}

	if got := sig.signalsTo("bbb"); len(got) != 0 {
		t.Fatalf("unconfirmed peer received %+v", got)
	}
	if factory.count("bbb") != 0 {
		t.Fatal("instance created for unconfirmed peer")
	}
}

func TestStartCallRenegotiatesExistingInstance(t *testing.T) {
	sig := &fakeSignaler{}
	factory := newFakeFactory()
	media := &fakeMedia{tracks: []LocalTrack{fakeTrack{kind: "audio"}}}
	e := startEngine(t, Config{Signaler: sig, Factory: factory.create, Media: media})

	// The low local id initiates automatically on join.
	e.HandleEnvelope(joinedEnvelope("aaa", protocol.PeerInfo{ID: "zzz", Name: "zed"}))
	syncEngine(t, e)

	if err := e.Confirm("zzz"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := e.StartCall(); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	if factory.count("zzz") != 1 {
		t.Fatalf("instances = %d, want the original to be reused", factory.count("zzz"))
	}
	snap := factory.conn("zzz").snapshot()
	if snap.offers != 2 {
		t.Fatalf("offers = %d, want 2 (join-time plus call)", snap.offers)
	}
	if len(snap.tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(snap.tracks))
	}
}

func TestEndCall(t *testing.T) {
	sig := &fakeSignaler{}
	factory := newFakeFactory()
	media := &fakeMedia{tracks: []LocalTrack{fakeTrack{kind: "audio"}}}
	e := startEngine(t, Config{Signaler: sig, Factory: factory.create, Media: media})

	e.HandleEnvelope(joinedEnvelope("zzz", protocol.PeerInfo{ID: "aaa", Name: "ann"}))
	syncEngine(t, e)

	if err := e.Confirm("aaa"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := e.StartCall(); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := e.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	var callLefts int
	for _, s := range sig.signalsTo("aaa") {
		if s.data.CallLeft {
			callLefts++
		}
	}
	if callLefts != 1 {
		t.Fatalf("sent %d call-left notices, want 1", callLefts)
	}
	if !factory.conn("aaa").snapshot().closed {
		t.Fatal("instance still open after EndCall")
	}
	if media.releases() != 1 {
		t.Fatalf("media released %d times, want 1", media.releases())
	}

	// The session survives for later calls; only the instance is gone.
	if got := peerState(t, e, "aaa"); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestConfirmByIDAndName(t *testing.T) {
	e := startEngine(t, Config{Signaler: &fakeSignaler{}, Factory: newFakeFactory().create})

	e.HandleEnvelope(joinedEnvelope("zzz",
		protocol.PeerInfo{ID: "aaa", Name: "ann"},
		protocol.PeerInfo{ID: "bbb", Name: "ben"},
	))
	syncEngine(t, e)

	if err := e.Confirm("aaa"); err != nil {
		t.Fatalf("confirm by id: %v", err)
	}
	if err := e.Confirm("ben"); err != nil {
		t.Fatalf("confirm by name: %v", err)
	}
	if err := e.Confirm("nobody"); !errors.Is(err, ErrPeerUnknown) {
		t.Fatalf("got %v, want ErrPeerUnknown", err)
	}

	peers, err := e.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	for _, p := range peers {
		if !p.Confirmed {
			t.Fatalf("peer %s not confirmed", p.ID)
		}
	}
}

func TestSendChatReachesReadyConfirmedPeers(t *testing.T) {
	sig := &fakeSignaler{}
	factory := newFakeFactory()
	e := startEngine(t, Config{Signaler: sig, Factory: factory.create})

	// Low local id: data channels get created for both peers on join.
	e.HandleEnvelope(joinedEnvelope("aaa",
		protocol.PeerInfo{ID: "mmm", Name: "mia"},
		protocol.PeerInfo{ID: "zzz", Name: "zed"},
	))
	syncEngine(t, e)

	ready := factory.conn("mmm").dc
	ready.mu.Lock()
	ready.ready = true
	ready.mu.Unlock()

	notReady := factory.conn("zzz").dc

	if err := e.Confirm("mmm"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := e.Confirm("zzz"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := e.SendChat("hello"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	if got := ready.texts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("ready channel got %v", got)
	}
	if got := notReady.texts(); len(got) != 0 {
		t.Fatalf("unopened channel got %v", got)
	}
}

func TestLocalID(t *testing.T) {
	e := startEngine(t, Config{Signaler: &fakeSignaler{}, Factory: newFakeFactory().create})

	id, err := e.LocalID()
	if err != nil {
		t.Fatalf("LocalID: %v", err)
	}
	if id != "" {
		t.Fatalf("id before join = %q, want empty", id)
	}

	e.HandleEnvelope(joinedEnvelope("self-id"))
	id, err = e.LocalID()
	if err != nil {
		t.Fatalf("LocalID: %v", err)
	}
	if id != "self-id" {
		t.Fatalf("id = %q, want self-id", id)
	}
}
