// Package webrtc implements peer links over pion data channels.
package webrtc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/vanish/internal/config"
	"github.com/BioHazard786/vanish/internal/logging"
	"github.com/BioHazard786/vanish/internal/transfer"
	"github.com/BioHazard786/vanish/internal/utils"
)

// ChannelLabel names the single chat data channel.
const ChannelLabel = "chat"

// Events are the callbacks a Link reports to its owner. Any may be nil.
type Events struct {
	OnCandidate func(candidate json.RawMessage)
	OnOpen      func()
	OnClose     func()
	OnMessage   func(data []byte)
	OnFailed    func(err error)
}

// Dialer creates Links with a shared ICE configuration.
type Dialer struct {
	api    *pion.API
	config pion.Configuration
	log    *slog.Logger
}

// NewDialer builds the ICE configuration from cfg. When TURN is configured
// and either ForceTURN is set or the host looks like it is behind a VPN or
// CGNAT, only relay candidates are used.
func NewDialer(cfg *config.Client, logger *slog.Logger) *Dialer {
	return newDialer(cfg, logger, nil)
}

func newDialer(cfg *config.Client, logger *slog.Logger, tune func(*pion.SettingEngine)) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}
	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceTURN || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	se := pion.SettingEngine{}
	se.LoggerFactory = logging.NewPionFactory(logger)
	if tune != nil {
		tune(&se)
	}

	return &Dialer{
		api: pion.NewAPI(pion.WithSettingEngine(se)),
		config: pion.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
		log: logger.With("component", "webrtc"),
	}
}

// Dial prepares a Link to peerID. No network traffic happens until
// CreateOffer or AcceptOffer is called.
func (d *Dialer) Dial(peerID string, ev Events) (*Link, error) {
	pc, err := d.api.NewPeerConnection(d.config)
	if err != nil {
		return nil, transfer.NewPeerError("create peer connection", peerID, err)
	}

	l := &Link{
		peer:   peerID,
		pc:     pc,
		events: ev,
		log:    d.log.With("peer", peerID),
	}
	l.setupHandlers()
	return l, nil
}

// Link is one peer connection carrying one ordered, reliable data channel.
type Link struct {
	peer   string
	pc     *pion.PeerConnection
	events Events
	log    *slog.Logger

	mu        sync.Mutex
	dc        *pion.DataChannel
	remoteSet bool
	pending   []pion.ICECandidateInit

	closeOnce sync.Once
}

func (l *Link) setupHandlers() {
	l.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || l.events.OnCandidate == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			l.log.Warn("Failed to encode ICE candidate", "error", err)
			return
		}
		l.events.OnCandidate(b)
	})

	l.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		l.log.Debug("Peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			if l.events.OnFailed != nil {
				l.events.OnFailed(transfer.WrapError("ice", transfer.ErrChannelNegotiation, l.peer))
			}
			l.notifyClosed()
		case pion.PeerConnectionStateClosed:
			l.notifyClosed()
		}
	})

	// Responder side: the remote end creates the channel.
	l.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			l.log.Debug("Ignoring unexpected data channel", "label", dc.Label())
			return
		}
		l.attach(dc)
	})
}

func (l *Link) attach(dc *pion.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(transfer.HighWaterMark / 2)
	dc.OnOpen(func() {
		l.log.Debug("Data channel open")
		if l.events.OnOpen != nil {
			l.events.OnOpen()
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if l.events.OnMessage != nil {
			l.events.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		l.log.Debug("Data channel closed")
		l.notifyClosed()
	})
	dc.OnError(func(err error) {
		l.log.Debug("Data channel error", "error", err)
	})
}

func (l *Link) notifyClosed() {
	l.closeOnce.Do(func() {
		if l.events.OnClose != nil {
			l.events.OnClose()
		}
	})
}

// CreateOffer opens the chat channel and returns the local offer as
// {"type","sdp"} JSON.
func (l *Link) CreateOffer() (json.RawMessage, error) {
	ordered := true
	dc, err := l.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, transfer.NewPeerError("create data channel", l.peer, err)
	}
	l.attach(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, transfer.NewPeerError("create offer", l.peer, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, transfer.NewPeerError("set local description", l.peer, err)
	}
	return json.Marshal(l.pc.LocalDescription())
}

// AcceptOffer applies a remote offer and returns the local answer.
func (l *Link) AcceptOffer(raw json.RawMessage) (json.RawMessage, error) {
	desc, err := parseDescription(raw, pion.SDPTypeOffer)
	if err != nil {
		return nil, transfer.NewPeerError("parse offer", l.peer, err)
	}
	if err := l.setRemote(desc); err != nil {
		return nil, err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, transfer.NewPeerError("create answer", l.peer, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, transfer.NewPeerError("set local description", l.peer, err)
	}
	return json.Marshal(l.pc.LocalDescription())
}

// AcceptAnswer applies the remote answer to our offer.
func (l *Link) AcceptAnswer(raw json.RawMessage) error {
	desc, err := parseDescription(raw, pion.SDPTypeAnswer)
	if err != nil {
		return transfer.NewPeerError("parse answer", l.peer, err)
	}
	return l.setRemote(desc)
}

// AddCandidate applies a remote ICE candidate, buffering it until the
// remote description is known.
func (l *Link) AddCandidate(raw json.RawMessage) error {
	var c pion.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return transfer.NewPeerError("parse ICE candidate", l.peer, fmt.Errorf("%w: %v", transfer.ErrMalformedPayload, err))
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(c); err != nil {
		return transfer.NewPeerError("add ICE candidate", l.peer, err)
	}
	return nil
}

func (l *Link) setRemote(desc pion.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return transfer.NewPeerError("set remote description", l.peer, err)
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Debug("Dropping buffered ICE candidate", "error", err)
		}
	}
	return nil
}

// Send writes one message to the data channel.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil {
		return transfer.WrapError("send", transfer.ErrChannelNotOpen, l.peer)
	}
	switch dc.ReadyState() {
	case pion.DataChannelStateOpen:
	case pion.DataChannelStateClosing, pion.DataChannelStateClosed:
		return transfer.WrapError("send", transfer.ErrChannelClosed, l.peer)
	default:
		return transfer.WrapError("send", transfer.ErrChannelNotOpen, l.peer)
	}
	if err := dc.Send(data); err != nil {
		return transfer.NewPeerError("send", l.peer, err)
	}
	return nil
}

// Writable reports whether the channel is open and not backed up.
func (l *Link) Writable() bool {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	return dc != nil &&
		dc.ReadyState() == pion.DataChannelStateOpen &&
		dc.BufferedAmount() < transfer.HighWaterMark
}

// Close tears the peer connection down. It is safe to call more than once.
func (l *Link) Close() error {
	err := l.pc.Close()
	l.notifyClosed()
	if err != nil {
		return transfer.NewPeerError("close", l.peer, err)
	}
	return nil
}

func parseDescription(raw json.RawMessage, want pion.SDPType) (pion.SessionDescription, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("%w: %v", transfer.ErrMalformedPayload, err)
	}
	if desc.Type != want || desc.SDP == "" {
		return desc, fmt.Errorf("%w: expected %s description", transfer.ErrMalformedPayload, want)
	}
	return desc, nil
}
