package relay

import (
	"encoding/json"
	"testing"

	"github.com/parley-p2p/parley/internal/metrics"
	"github.com/parley-p2p/parley/internal/protocol"
	"github.com/parley-p2p/parley/internal/room"
)

type recordingOutbox struct {
	sent []protocol.ServerEnvelope
	fail bool
}

func (o *recordingOutbox) Send(env protocol.ServerEnvelope) bool {
	if o.fail {
		return false
	}
	o.sent = append(o.sent, env)
	return true
}

func addMember(t *testing.T, d *room.Directory, roomID, name string, create bool) (*room.Member, *recordingOutbox) {
	t.Helper()
	out := &recordingOutbox{}
	m := room.NewMember(out)
	var err error
	if create {
		err = d.CreateRoom(roomID, m, name)
	} else {
		_, err = d.JoinRoom(roomID, m, name)
	}
	if err != nil {
		t.Fatalf("add member %s: %v", name, err)
	}
	return m, out
}

func TestUnicastDeliversOpaquePayload(t *testing.T) {
	d := room.NewDirectory()
	m := metrics.New()
	r := New(d, nil, m)

	from, _ := addMember(t, d, "standup", "mia", true)
	to, toOut := addMember(t, d, "standup", "ben", false)

	data := json.RawMessage(`{"callLeft":true}`)
	if !r.Unicast("standup", from, to.ID, data) {
		t.Fatal("Unicast reported failure")
	}

	if len(toOut.sent) != 1 {
		t.Fatalf("target received %d envelopes, want 1", len(toOut.sent))
	}
	env := toOut.sent[0]
	if env.Type != protocol.TypeSignal {
		t.Fatalf("type = %q, want signal", env.Type)
	}
	if env.From != from.ID || env.Name != "mia" {
		t.Fatalf("sender identity = (%q, %q), want (%q, mia)", env.From, env.Name, from.ID)
	}
	if string(env.Data) != string(data) {
		t.Fatalf("payload altered: %s", env.Data)
	}
	if got := m.Get(metrics.SignalsRelayed); got != 1 {
		t.Fatalf("SignalsRelayed = %d, want 1", got)
	}
}

func TestUnicastUnknownPeerDropped(t *testing.T) {
	d := room.NewDirectory()
	m := metrics.New()
	r := New(d, nil, m)

	from, _ := addMember(t, d, "standup", "mia", true)

	if r.Unicast("standup", from, "no-such-member", json.RawMessage(`{}`)) {
		t.Fatal("Unicast to unknown peer reported success")
	}
	if got := m.Get(metrics.DropReasonUnknownPeer); got != 1 {
		t.Fatalf("unknown peer drops = %d, want 1", got)
	}
	if got := m.Get(metrics.SignalsRelayed); got != 0 {
		t.Fatalf("SignalsRelayed = %d, want 0", got)
	}
}

func TestUnicastSlowReaderCounted(t *testing.T) {
	d := room.NewDirectory()
	m := metrics.New()
	r := New(d, nil, m)

	from, _ := addMember(t, d, "standup", "mia", true)
	to, toOut := addMember(t, d, "standup", "ben", false)
	toOut.fail = true

	if r.Unicast("standup", from, to.ID, json.RawMessage(`{}`)) {
		t.Fatal("Unicast to a backed-up member reported success")
	}
	if got := m.Get(metrics.DropReasonSlowReader); got != 1 {
		t.Fatalf("slow reader drops = %d, want 1", got)
	}
}

func TestFanoutDeliversToSnapshotOnly(t *testing.T) {
	d := room.NewDirectory()
	r := New(d, nil, metrics.New())

	_, aOut := addMember(t, d, "standup", "mia", true)
	b, bOut := addMember(t, d, "standup", "ben", false)

	// Snapshot taken before a third member arrives.
	snapshot := d.Members("standup", "")
	addMember(t, d, "standup", "zoe", false)

	env := protocol.PeerLeft(b.ID)
	r.Fanout(snapshot, env)

	if len(aOut.sent) != 1 || len(bOut.sent) != 1 {
		t.Fatalf("snapshot members got %d/%d envelopes, want 1/1", len(aOut.sent), len(bOut.sent))
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	d := room.NewDirectory()
	r := New(d, nil, metrics.New())

	a, aOut := addMember(t, d, "standup", "mia", true)
	_, bOut := addMember(t, d, "standup", "ben", false)
	_, cOut := addMember(t, d, "standup", "zoe", false)

	r.Broadcast("standup", a.ID, protocol.NewPeer(a.ID, a.Name))

	if len(aOut.sent) != 0 {
		t.Fatal("broadcast reached the excluded member")
	}
	if len(bOut.sent) != 1 || len(cOut.sent) != 1 {
		t.Fatalf("other members got %d/%d envelopes, want 1/1", len(bOut.sent), len(cOut.sent))
	}
}
