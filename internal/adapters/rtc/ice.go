// Package rtc hands WebRTC ICE configuration to clients. Media itself flows
// peer to peer; the server only relays the signaling that sets it up.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/config"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// FromConfig builds the configuration advertised to callers. An empty list
// falls back to DefaultWebRTCConfig.
func FromConfig(servers []config.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		return DefaultWebRTCConfig()
	}
	out := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(servers))}
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out
}

// Validate rejects a configuration pion cannot build a peer connection from,
// e.g. a malformed stun/turn URL or a turn server without credentials.
func Validate(cfg webrtc.Configuration) error {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("invalid ice configuration: %w", err)
	}
	if err := pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Msg("close probe peer connection")
	}
	return nil
}

// ClientConfig is the body of GET /api/rtc/config, shaped like the
// RTCConfiguration dictionary browsers accept.
type ClientConfig struct {
	ICEServers []ClientICEServer `json:"iceServers"`
}

type ClientICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func ClientView(cfg webrtc.Configuration) ClientConfig {
	out := ClientConfig{ICEServers: make([]ClientICEServer, 0, len(cfg.ICEServers))}
	for _, s := range cfg.ICEServers {
		cs := ClientICEServer{URLs: s.URLs, Username: s.Username}
		if cred, ok := s.Credential.(string); ok {
			cs.Credential = cred
		}
		out.ICEServers = append(out.ICEServers, cs)
	}
	return out
}
