package l2tp

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/protocol"
)

// Session states (spec.md §4.4: "Session state: Idle -> WaitConnect
// (sent ICRP) -> Established -> SendCDN -> Terminated"), the LNS-side
// mirror of Tunnel's states driven by ICRQ/ICCN/CDN instead of
// SCCRQ/SCCCN/StopCCN.
const (
	SessionIdle        = "idle"
	SessionWaitConnect = "waitconnect"
	SessionEstablished = "established"
	SessionSendCDN     = "sendcdn"
	SessionTerminated  = "terminated"
)

// Session is a single L2TPv2 call within a Tunnel.
type Session struct {
	logger log.Logger
	fsm    fsm

	Tunnel *Tunnel

	LocalSessionID uint16
	PeerSessionID  uint16
	CallSerialNum  uint32

	// ProxyAuthName/ProxyAuthType/ProxyAuthResponse record the LAC's
	// proxy authentication AVPs carried in ICCN, when present (RFC2661
	// §4.4.5).
	ProxyAuthName     string
	ProxyAuthType     uint16
	ProxyAuthResponse []byte
	ProxyAuthID       uint16

	// ResultCode/ErrorCode/ErrorMessage record the codes passed to
	// Terminate, which the control socket's session-terminate handler
	// calls (original's bbl_ctrl_l2tp_session_terminate). Nothing in
	// this module sets the Disconnect* fields.
	ResultCode          protocol.L2TPResultCode
	ErrorCode           uint16
	ErrorMessage        string
	DisconnectCode      int
	DisconnectProtocol  int
	DisconnectDirection int
	DisconnectMessage   string

	// csurqSessionIDs holds the session-id list from a received CSURQ
	// for the duration of handling it only: CSURQ asks the LNS to
	// resend CDNs for a set of sessions it believes have gone away, so
	// the ids are call-stack-scoped to ProcessCSURQ and are never
	// retained on the tunnel or session (unlike the teacher's LAC code,
	// which has no CSURQ handling at all since a LAC never receives it).
	csurqSessionIDs []uint16
}

// NewSession constructs a session in the idle state, ready to receive
// an ICRQ from the peer.
func NewSession(logger log.Logger, t *Tunnel) *Session {
	s := &Session{logger: logger, Tunnel: t}
	s.fsm = fsm{
		current: SessionIdle,
		table: []eventDesc{
			{from: SessionIdle, events: []string{"icrq"}, cb: s.onICRQ, to: SessionWaitConnect},
			{from: SessionIdle, events: []string{"tunnel_closed"}, cb: s.onCDN, to: SessionTerminated},
			{from: SessionWaitConnect, events: []string{"iccn"}, cb: s.onICCN, to: SessionEstablished},
			{from: SessionWaitConnect, events: []string{"cdn", "tunnel_closed"}, cb: s.onCDN, to: SessionTerminated},
			{from: SessionEstablished, events: []string{"cdn", "tunnel_closed"}, cb: s.onCDN, to: SessionTerminated},
			{from: SessionEstablished, events: []string{"close"}, cb: s.sendCDN, to: SessionSendCDN},
			{from: SessionWaitConnect, events: []string{"close"}, cb: s.sendCDN, to: SessionSendCDN},
			{from: SessionSendCDN, events: []string{"cdn_acked"}, to: SessionTerminated},
		},
	}
	return s
}

// State returns the session's current FSM state.
func (s *Session) State() string { return s.fsm.current }

// HandleEvent drives the session FSM.
func (s *Session) HandleEvent(e string, args ...interface{}) error {
	return s.fsm.handleEvent(e, args...)
}

func (s *Session) onICRQ(args ...interface{}) {
	level.Info(s.logger).Log("message", "icrq received, sending icrp", "session_id", s.LocalSessionID)
}

func (s *Session) onICCN(args ...interface{}) {
	level.Info(s.logger).Log("message", "iccn received, session established", "session_id", s.LocalSessionID)
}

func (s *Session) onCDN(args ...interface{}) {
	level.Info(s.logger).Log("message", "session terminated", "session_id", s.LocalSessionID)
}

func (s *Session) sendCDN(args ...interface{}) {
	level.Info(s.logger).Log("message", "sending cdn", "session_id", s.LocalSessionID)
}

// RecordProxyAuth stores the proxy authentication fields carried in an
// ICCN's Proxy Authen AVPs (RFC2661 §4.4.5). The response may be an
// opaque CHAP digest or an ASCII PAP password depending on
// ProxyAuthType.
func (s *Session) RecordProxyAuth(name string, authType uint16, id uint16, response []byte) {
	s.ProxyAuthName = name
	s.ProxyAuthType = authType
	s.ProxyAuthID = id
	s.ProxyAuthResponse = response
}

// BuildICRP constructs the Incoming-Call-Reply sent in response to a
// peer's ICRQ (RFC2661 §5.4).
func (s *Session) BuildICRP() *protocol.L2TPMessage {
	ns, nr := s.Tunnel.SequenceNumbers()
	return &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: s.Tunnel.PeerTunnelID, SessionID: s.PeerSessionID, Ns: ns, Nr: nr},
		AVPs: []protocol.L2TPAVP{
			protocol.NewMessageTypeAVP(protocol.L2TPMsgICRP),
			protocol.NewUint16AVP(protocol.L2TPAVPSessionID, s.LocalSessionID),
		},
	}
}

// BuildCDN constructs a Call-Disconnect-Notify with the given result
// and error codes (RFC2661 §5.11).
func (s *Session) BuildCDN(result protocol.L2TPResultCode, errCode uint16, errMsg string) *protocol.L2TPMessage {
	ns, nr := s.Tunnel.SequenceNumbers()
	return &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: s.Tunnel.PeerTunnelID, SessionID: s.PeerSessionID, Ns: ns, Nr: nr},
		AVPs: []protocol.L2TPAVP{
			protocol.NewMessageTypeAVP(protocol.L2TPMsgCDN),
			protocol.NewUint16AVP(protocol.L2TPAVPSessionID, s.LocalSessionID),
			protocol.NewResultCodeAVP(result, errCode, errMsg),
		},
	}
}

// Terminate drives the session toward SendCDN with the given result,
// error and disconnect metadata, and sends the CDN immediately
// (original's bbl_ctrl_l2tp_session_terminate).
func (s *Session) Terminate(result protocol.L2TPResultCode, errCode uint16, errMsg string) error {
	s.ResultCode = result
	s.ErrorCode = errCode
	s.ErrorMessage = errMsg
	if err := s.HandleEvent("close"); err != nil {
		return err
	}
	return s.Tunnel.SendReliable(s.BuildCDN(result, errCode, errMsg))
}

// ProcessCSURQ handles a received Call-Status-Update-Request: the peer
// lists the session ids it wants a fresh CDN for, scoped to this one
// call. Sessions not owned by this tunnel are silently skipped; the id
// list itself is discarded once handling completes (see
// csurqSessionIDs doc comment).
func (t *Tunnel) ProcessCSURQ(msg *protocol.L2TPMessage) []*protocol.L2TPMessage {
	var ids []uint16
	for _, a := range msg.AVPs {
		if a.Type == protocol.L2TPAVPSessionID {
			if v, err := a.Uint16Value(); err == nil {
				ids = append(ids, v)
			}
		}
	}

	var replies []*protocol.L2TPMessage
	for _, id := range ids {
		sess, ok := t.Sessions[id]
		if !ok {
			continue
		}
		sess.csurqSessionIDs = ids
		replies = append(replies, sess.BuildCDN(L2TPResultClearConnection, 0, ""))
		sess.csurqSessionIDs = nil
	}
	return replies
}

// L2TPResultClearConnection mirrors protocol.L2TPResultClearConnection
// for readability at call sites within this package.
const L2TPResultClearConnection = protocol.L2TPResultClearConnection
