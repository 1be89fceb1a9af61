package peer

import (
	"errors"

	"github.com/parley-p2p/parley/internal/protocol"
)

// ErrMediaUnavailable reports that the local media capability could not be
// acquired; call start is aborted and the error surfaces to the user.
var ErrMediaUnavailable = errors.New("peer: local media unavailable")

// Conn is one negotiation instance: the platform primitive that performs
// description/candidate exchange to establish a direct media/data path with a
// single remote peer. Its internal transport, congestion control, and
// encryption are the platform's business; the engine only drives the
// operations below. A Conn is single-use: once closed, a fresh one is
// created for any further negotiation with the same peer.
type Conn interface {
	// CreateOffer creates a local offer and commits it as the local
	// description before returning it.
	CreateOffer() (protocol.SessionDescription, error)

	// CreateAnswer creates and commits a local answer. A remote offer must
	// already be committed.
	CreateAnswer() (protocol.SessionDescription, error)

	// SetRemoteDescription commits the remote side's offer or answer.
	SetRemoteDescription(desc protocol.SessionDescription) error

	// AddICECandidate applies a remote network candidate. Callers must only
	// invoke it after a remote description has been committed.
	AddICECandidate(cand protocol.CandidateInit) error

	// CreateDataChannel opens an ordered, reliable data channel. The channel
	// becomes usable once the sink reports it open.
	CreateDataChannel(label string) (DataChannel, error)

	// AddTrack attaches a local media track for the next negotiation round.
	AddTrack(track LocalTrack) error

	Close() error
}

// DataChannel is the bidirectional text channel riding a Conn.
type DataChannel interface {
	Label() string
	// Ready reports whether the channel is open for sending.
	Ready() bool
	SendText(text string) error
	Close() error
}

// LocalTrack is an opaque handle to a local media track ("audio" or "video").
// Platform adapters type-assert to their concrete representation.
type LocalTrack interface {
	Kind() string
}

// EventSink receives the platform's asynchronous notifications for a Conn.
// Implementations must be safe to call from platform goroutines; the engine
// funnels every call into its single control loop.
type EventSink interface {
	// LocalCandidate fires for each locally discovered network candidate.
	LocalCandidate(remoteID string, cand protocol.CandidateInit)

	// RemoteMedia fires when inbound media is first observed on a track.
	RemoteMedia(remoteID, kind string)

	// DataChannelOpen fires when a data channel (locally created or remotely
	// announced) becomes usable.
	DataChannelOpen(remoteID string, dc DataChannel)

	// DataChannelText fires for each inbound text message.
	DataChannelText(remoteID, text string)

	// ConnClosed fires when the negotiation instance fails or disconnects
	// fatally.
	ConnClosed(remoteID string)
}

// ConnFactory creates a fresh negotiation instance for the given remote peer,
// delivering its platform events through sink.
type ConnFactory func(remoteID string, sink EventSink) (Conn, error)

// MediaSource is the local capture capability. Acquire may be called again
// after Release; implementations decide whether that re-opens devices.
// Acquiring less than was asked for (e.g. audio-only when video capture is
// denied) is success; only a fully failed acquisition is an error.
type MediaSource interface {
	Acquire() ([]LocalTrack, error)
	Release()
}
