package peer

import (
	"github.com/pion/webrtc/v4"
)

// StaticSource is a MediaSource serving a fixed set of tracks. Useful when the
// tracks are built up front, and in tests.
type StaticSource struct {
	Tracks []LocalTrack
	Err    error
}

func (s *StaticSource) Acquire() ([]LocalTrack, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Tracks, nil
}

func (s *StaticSource) Release() {}

// NewSyntheticAudio returns a MediaSource that produces a single Opus audio
// track with no sample writer attached. The track negotiates like a real
// capture track, so peers complete the media handshake even on hosts without
// capture devices.
func NewSyntheticAudio() MediaSource {
	return &syntheticAudio{}
}

type syntheticAudio struct {
	track *webrtc.TrackLocalStaticSample
}

func (s *syntheticAudio) Acquire() ([]LocalTrack, error) {
	if s.track == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio",
			"parley",
		)
		if err != nil {
			return nil, err
		}
		s.track = track
	}
	return []LocalTrack{WrapTrack(s.track)}, nil
}

func (s *syntheticAudio) Release() {
	s.track = nil
}
