package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/parley-p2p/parley/internal/protocol"
)

// PionConfig configures the default pion/webrtc-backed ConnFactory.
type PionConfig struct {
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger
}

// NewPionFactory builds a ConnFactory backed by pion/webrtc. All instances
// share one API (media engine with default codecs, setting engine with
// slog-bridged logging); each call mints a fresh PeerConnection wired to the
// engine's event sink.
func NewPionFactory(cfg PionConfig) (ConnFactory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{
		LoggerFactory: pionLoggerFactory{base: logger},
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))

	return func(remoteID string, sink EventSink) (Conn, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
		if err != nil {
			return nil, err
		}
		c := &pionConn{pc: pc, remoteID: remoteID, sink: sink}

		pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
			if cand == nil {
				return
			}
			sink.LocalCandidate(remoteID, protocol.CandidateFromPion(cand.ToJSON()))
		})
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			sink.RemoteMedia(remoteID, track.Kind().String())
		})
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			c.wireDataChannel(dc)
		})
		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
				sink.ConnClosed(remoteID)
			}
		})

		return c, nil
	}, nil
}

type pionConn struct {
	pc       *webrtc.PeerConnection
	remoteID string
	sink     EventSink
}

func (c *pionConn) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SDPFromPion(*c.pc.LocalDescription()), nil
}

func (c *pionConn) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SDPFromPion(*c.pc.LocalDescription()), nil
}

func (c *pionConn) SetRemoteDescription(desc protocol.SessionDescription) error {
	pionDesc, err := desc.ToPion()
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(pionDesc)
}

func (c *pionConn) AddICECandidate(cand protocol.CandidateInit) error {
	return c.pc.AddICECandidate(cand.ToPion())
}

func (c *pionConn) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return c.wireDataChannel(dc), nil
}

func (c *pionConn) wireDataChannel(dc *webrtc.DataChannel) DataChannel {
	w := &pionDataChannel{dc: dc}
	dc.OnOpen(func() {
		c.sink.DataChannelOpen(c.remoteID, w)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		c.sink.DataChannelText(c.remoteID, string(msg.Data))
	})
	return w
}

func (c *pionConn) AddTrack(track LocalTrack) error {
	pt, ok := track.(pionTrack)
	if !ok {
		return fmt.Errorf("unsupported track type %T", track)
	}
	_, err := c.pc.AddTrack(pt.t)
	return err
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string { return d.dc.Label() }

func (d *pionDataChannel) Ready() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *pionDataChannel) SendText(text string) error { return d.dc.SendText(text) }

func (d *pionDataChannel) Close() error { return d.dc.Close() }

type pionTrack struct {
	t webrtc.TrackLocal
}

func (p pionTrack) Kind() string { return p.t.Kind().String() }

// WrapTrack adapts a pion local track to the engine's opaque LocalTrack.
func WrapTrack(t webrtc.TrackLocal) LocalTrack { return pionTrack{t: t} }
