package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// SessionDescription is a JSON-friendly SDP offer/answer. The server relays
// it opaquely; only clients convert to and from the pion representation.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// CandidateInit mirrors the trickle ICE candidate shape browsers produce.
type CandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) CandidateInit {
	return CandidateInit{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c CandidateInit) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// SignalData is the negotiation payload carried inside a signal frame.
// Exactly one of the three fields is set per frame: an SDP description, an
// ICE candidate, or the call-left notice.
type SignalData struct {
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *CandidateInit      `json:"candidate,omitempty"`
	CallLeft  bool                `json:"callLeft,omitempty"`
}

// ParseSignalData decodes the opaque payload on the receiving client.
// Decoding is deliberately lenient about unknown fields (the payload crosses
// implementations), but the exactly-one-kind rule is enforced.
func ParseSignalData(data []byte) (SignalData, error) {
	var sd SignalData
	if err := json.Unmarshal(data, &sd); err != nil {
		return SignalData{}, err
	}
	if err := sd.Validate(); err != nil {
		return SignalData{}, err
	}
	return sd, nil
}

func (sd SignalData) Validate() error {
	n := 0
	if sd.SDP != nil {
		if sd.SDP.SDP == "" {
			return fmt.Errorf("protocol: signal sdp missing description")
		}
		n++
	}
	if sd.Candidate != nil {
		if sd.Candidate.Candidate == "" {
			return fmt.Errorf("protocol: signal candidate missing candidate line")
		}
		n++
	}
	if sd.CallLeft {
		n++
	}
	if n != 1 {
		return fmt.Errorf("protocol: signal payload must carry exactly one of sdp/candidate/callLeft, got %d", n)
	}
	return nil
}
