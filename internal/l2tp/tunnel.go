package l2tp

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

// Tunnel states (spec.md §4.4: "Tunnel state: Idle -> WaitCtlReply
// (sent SCCRP) -> Established -> SendStopCCN -> Terminated"). This is
// RFC2661 §7.2.1's tunnel FSM inverted from the teacher's LAC
// perspective (which sends SCCRQ and awaits SCCRP) to the LNS
// perspective (which receives SCCRQ and sends SCCRP).
const (
	TunnelIdle          = "idle"
	TunnelWaitCtlReply  = "waitctlreply"
	TunnelEstablished   = "established"
	TunnelSendStopCCN   = "sendstopccn"
	TunnelTerminated    = "terminated"
)

// Tunnel is an L2TPv2 control connection in the LNS role.
type Tunnel struct {
	logger log.Logger
	fsm    fsm

	mu sync.Mutex

	LocalTunnelID uint16
	PeerTunnelID  uint16
	HostName      string
	PeerHostName  string

	slowStart  *slowStartState
	windowSize uint16
	maxRetries uint

	pending map[uint16]*pendingMessage // keyed by Ns of the outbound message

	Sessions map[uint16]*Session

	ProxyAuthName string
	ProxyAuthResp []byte

	helloTimer *timer.Handle
	timers     *timer.Root

	Send func(msg *protocol.L2TPMessage) error

	// ResultCode/ErrorCode/ErrorMessage record the codes passed to
	// Terminate, which the control socket's tunnel-terminate handler
	// calls and which builds the StopCCN from them (spec.md §4.7,
	// original's bbl_ctrl_l2tp_tunnel_terminate).
	ResultCode   protocol.L2TPResultCode
	ErrorCode    uint16
	ErrorMessage string

	Stats TunnelStats
}

// TunnelStats counts control and data plane activity on a tunnel, for
// the control socket's l2tp-tunnels list handler (original's
// bbl_ctrl_l2tp_tunnels JSON fields control-packets-rx/tx(-dup/-ooo/
// -retry) and data-packets-rx/tx).
type TunnelStats struct {
	ControlTx, ControlRx         uint64
	ControlDup, ControlOOO       uint64
	ControlRetry                 uint64
	DataTx, DataRx               uint64
}

// NewTunnel constructs a tunnel in the idle state, ready to receive an
// SCCRQ from the peer.
func NewTunnel(logger log.Logger, timers *timer.Root, windowSize uint16, maxRetries uint) *Tunnel {
	t := &Tunnel{
		logger:     logger,
		windowSize: windowSize,
		maxRetries: maxRetries,
		slowStart:  newSlowStartState(windowSize),
		pending:    make(map[uint16]*pendingMessage),
		Sessions:   make(map[uint16]*Session),
		timers:     timers,
	}
	t.fsm = fsm{
		current: TunnelIdle,
		table: []eventDesc{
			{from: TunnelIdle, events: []string{"sccrq"}, cb: t.onSCCRQ, to: TunnelWaitCtlReply},
			{from: TunnelWaitCtlReply, events: []string{"scccn"}, cb: t.onSCCCN, to: TunnelEstablished},
			{from: TunnelWaitCtlReply, events: []string{"stopccn"}, cb: t.onStopCCN, to: TunnelTerminated},
			{from: TunnelEstablished, events: []string{"stopccn"}, cb: t.onStopCCN, to: TunnelTerminated},
			{from: TunnelEstablished, events: []string{"close"}, cb: t.sendStopCCN, to: TunnelSendStopCCN},
			{from: TunnelWaitCtlReply, events: []string{"close"}, cb: t.sendStopCCN, to: TunnelSendStopCCN},
			{from: TunnelSendStopCCN, events: []string{"stopccn_acked"}, to: TunnelTerminated},
		},
	}
	return t
}

// State returns the tunnel's current FSM state.
func (t *Tunnel) State() string { return t.fsm.current }

// HandleEvent drives the tunnel FSM.
func (t *Tunnel) HandleEvent(e string, args ...interface{}) error {
	return t.fsm.handleEvent(e, args...)
}

func (t *Tunnel) onSCCRQ(args ...interface{}) {
	level.Info(t.logger).Log("message", "sccrq received, sending sccrp")
}

func (t *Tunnel) onSCCCN(args ...interface{}) {
	level.Info(t.logger).Log("message", "scccn received, tunnel established")
}

func (t *Tunnel) onStopCCN(args ...interface{}) {
	level.Info(t.logger).Log("message", "stopccn received, tunnel terminated")
	for _, s := range t.Sessions {
		s.HandleEvent("tunnel_closed")
	}
}

func (t *Tunnel) sendStopCCN(args ...interface{}) {
	level.Info(t.logger).Log("message", "sending stopccn")
}

// SequenceNumbers exposes the transport sequence numbers for building the
// next outbound message header.
func (t *Tunnel) SequenceNumbers() (ns, nr uint16) {
	return t.slowStart.getSequenceNumbers()
}

// BuildSCCRP constructs the Start-Control-Connection-Reply sent in
// response to a peer's SCCRQ (RFC2661 §5.1).
func (t *Tunnel) BuildSCCRP() *protocol.L2TPMessage {
	ns, nr := t.SequenceNumbers()
	return &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: t.PeerTunnelID, Ns: ns, Nr: nr},
		AVPs: []protocol.L2TPAVP{
			protocol.NewMessageTypeAVP(protocol.L2TPMsgSCCRP),
			protocol.NewUint16AVP(protocol.L2TPAVPProtocolVersion, 0x0100),
			protocol.NewStringAVP(protocol.L2TPAVPHostName, true, t.HostName),
			protocol.NewUint16AVP(protocol.L2TPAVPTunnelID, t.LocalTunnelID),
			protocol.NewUint16AVP(protocol.L2TPAVPRxWindowSize, t.windowSize),
		},
	}
}

// BuildStopCCN constructs a StopCCN with the given result/error codes
// (spec.md §4.4: "after max retries the tunnel transitions to
// Terminated with result_code, error_code, optional error_message").
func (t *Tunnel) BuildStopCCN(result protocol.L2TPResultCode, errCode uint16, errMsg string) *protocol.L2TPMessage {
	ns, nr := t.SequenceNumbers()
	return &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: t.PeerTunnelID, Ns: ns, Nr: nr},
		AVPs: []protocol.L2TPAVP{
			protocol.NewMessageTypeAVP(protocol.L2TPMsgStopCCN),
			protocol.NewUint16AVP(protocol.L2TPAVPTunnelID, t.LocalTunnelID),
			protocol.NewResultCodeAVP(result, errCode, errMsg),
		},
	}
}

// BuildZLB constructs a zero-length-body acknowledgement.
func (t *Tunnel) BuildZLB() *protocol.L2TPMessage {
	ns, nr := t.SequenceNumbers()
	return &protocol.L2TPMessage{Header: protocol.L2TPHeader{TunnelID: t.PeerTunnelID, Ns: ns, Nr: nr}}
}

// BuildHello constructs a Hello keepalive (spec.md §4.4: "On an idle
// established tunnel a Hello is sent at a configured interval").
func (t *Tunnel) BuildHello() *protocol.L2TPMessage {
	ns, nr := t.SequenceNumbers()
	return &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: t.PeerTunnelID, Ns: ns, Nr: nr},
		AVPs:   []protocol.L2TPAVP{protocol.NewMessageTypeAVP(protocol.L2TPMsgHello)},
	}
}

// ReceiveMessage applies the reliable-transport rules to an inbound
// message: duplicate/stale detection, in-order delivery, and implicit
// ack, via the peer's Nr, of every pending message whose Ns precedes
// it (spec.md §4.4).
func (t *Tunnel) ReceiveMessage(msg *protocol.L2TPMessage) (deliver bool, duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slowStart.msgIsStale(msg) {
		t.Stats.ControlDup++
		return false, true
	}
	if !t.slowStart.msgIsInSequence(msg) {
		// out of order: buffering up to window is the caller's
		// responsibility (counted in Stats.ControlOOO, which the
		// control socket reports as control-packets-rx-ooo).
		t.Stats.ControlOOO++
		return false, false
	}
	t.Stats.ControlRx++
	t.slowStart.incrementNr()

	for ns, p := range t.pending {
		if seqCompare(msg.Header.Nr, ns) > 0 {
			delete(t.pending, ns)
			t.slowStart.onAck(t.windowSize)
			_ = p
		}
	}
	return true, false
}

// SendReliable transmits msg and tracks it for retransmission until
// acked, honoring the slow-start congestion window (spec.md §4.4).
func (t *Tunnel) SendReliable(msg *protocol.L2TPMessage) error {
	t.mu.Lock()
	if !t.slowStart.canSend() {
		t.mu.Unlock()
		return fmt.Errorf("tunnel %d: transmit window full", t.LocalTunnelID)
	}
	ns := msg.Header.Ns
	t.slowStart.onSend()
	t.slowStart.incrementNs()
	t.pending[ns] = &pendingMessage{msg: msg, maxRetries: t.maxRetries}
	t.mu.Unlock()

	if t.Send == nil {
		return fmt.Errorf("tunnel %d: no transmit function configured", t.LocalTunnelID)
	}
	t.Stats.ControlTx++
	return t.Send(msg)
}

// Terminate drives the tunnel toward SendStopCCN with the given result
// code, error code and optional message, and sends the StopCCN
// immediately (original's bbl_ctrl_l2tp_tunnel_terminate: "update
// state to SEND_STOPCCN, stage result/error codes, send StopCCN").
func (t *Tunnel) Terminate(result protocol.L2TPResultCode, errCode uint16, errMsg string) error {
	t.ResultCode = result
	t.ErrorCode = errCode
	t.ErrorMessage = errMsg
	if err := t.HandleEvent("close"); err != nil {
		return err
	}
	return t.SendReliable(t.BuildStopCCN(result, errCode, errMsg))
}

// BuildCSURQ constructs a Call-Status-Update-Request asking the peer
// to report the status of the given session ids (original's
// bbl_ctrl_l2tp_csurq: "csurq_requests is sent as a list of Session ID
// AVPs in a single CSURQ message").
func (t *Tunnel) BuildCSURQ(sessionIDs []uint16) *protocol.L2TPMessage {
	ns, nr := t.SequenceNumbers()
	msg := &protocol.L2TPMessage{
		Header: protocol.L2TPHeader{TunnelID: t.PeerTunnelID, Ns: ns, Nr: nr},
		AVPs:   []protocol.L2TPAVP{protocol.NewMessageTypeAVP(protocol.L2TPMsgCSURQ)},
	}
	for _, id := range sessionIDs {
		msg.AVPs = append(msg.AVPs, protocol.NewUint16AVP(protocol.L2TPAVPSessionID, id))
	}
	return msg
}

// SendCSURQ sends a CSURQ for the given session ids, refusing unless
// the tunnel is established (original requires BBL_L2TP_TUNNEL_ESTABLISHED).
func (t *Tunnel) SendCSURQ(sessionIDs []uint16) error {
	if t.State() != TunnelEstablished {
		return fmt.Errorf("tunnel %d: not established", t.LocalTunnelID)
	}
	return t.SendReliable(t.BuildCSURQ(sessionIDs))
}

// RetryInterval returns the exponential-backoff delay for the Nth
// retry of a pending message (RFC2661 §5.8, "exponential increasing
// intervals").
func RetryInterval(base time.Duration, retry uint) time.Duration {
	d := base
	for i := uint(0); i < retry; i++ {
		d *= 2
	}
	return d
}
