// Package a10nsp implements the A10NSP terminator: a fake aggregation
// network peer that answers a PPPoE/PPP session from the *network*
// side (rather than emulating the subscriber) so that a loop/mirror
// port can be tested end to end, per spec.md §2 row F and
// original_source/src/bbl_a10nsp.c.
package a10nsp

import (
	"net"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/iface"
	"github.com/domthera/bngblaster/internal/protocol"
)

// Fixed addresses the terminator negotiates over IPCP (Open Question
// decision #2): the peer-visible remote address offered on Nak, the
// terminator's own local address proposed in its own ConfReq, and the
// two DNS servers it fills in when the peer's request carried the
// corresponding option. original_source's A10NSP_IP_REMOTE/
// L2TP_IPCP_IP_REMOTE/L2TP_IPCP_IP_LOCAL/L2TP_IPCP_DNS1/DNS2 macros are
// not present in the filtered source tree, so these are chosen
// RFC5737 TEST-NET-1 addresses rather than invented production IPs.
var (
	IPCPAcceptableAddress = net.IPv4(192, 0, 2, 1).To4()
	IPCPRemoteAddress     = net.IPv4(192, 0, 2, 2).To4()
	IPCPLocalAddress      = net.IPv4(192, 0, 2, 3).To4()
	IPCPDNS1              = net.IPv4(192, 0, 2, 53).To4()
	IPCPDNS2              = net.IPv4(192, 0, 2, 54).To4()
)

const (
	pppoeServiceName = "a10nsp"
	pppoeACName      = "bngblaster-a10nsp"
	papReplyMessage  = "Welcome"
)

// remoteSession tracks the per-PPPoE-session state the terminator must
// remember between PADI/PADR and later LCP/IPCP/IP6CP exchanges:
// access-line circuit/remote IDs taken from the PADR, and whether
// each NCP has already sent its own ConfReq (original's handlers fire
// it once per ConfReq-Request it receives, never keep separate FSM
// state — this mirrors that: a terminator, not a client, so the only
// state worth keeping is "have we already proposed our side").
type remoteSession struct {
	sessionID uint16
	peerMAC   [6]byte
	localMAC  [6]byte

	circuitID string
	remoteID  string

	lcpReqSent   bool
	ipcpReqSent  bool
	ip6cpReqSent bool

	PacketsTx uint64
	PacketsRx uint64
}

// Terminator owns one network-side port and every PPPoE session
// answered on it.
type Terminator struct {
	logger log.Logger

	// Transmit sends an already-encoded Ethernet frame out the
	// terminator's network-side port. Normally iface.Port.Send; a
	// field rather than a direct *iface.Port dependency so tests can
	// observe frames without opening a real raw socket.
	Transmit func(frame []byte) iface.SendResult

	mu       sync.Mutex
	sessions map[uint16]*remoteSession
	nextID   uint16
}

// NewTerminator constructs a terminator bound to an already-opened
// network-side interface port.
func NewTerminator(logger log.Logger, port *iface.Port) *Terminator {
	return &Terminator{
		logger:   logger,
		Transmit: port.Send,
		sessions: make(map[uint16]*remoteSession),
		nextID:   1,
	}
}

// HandleFrame dispatches a decoded Ethernet frame received on the
// terminator's port (wired as the iface.Dispatcher).
func (t *Terminator) HandleFrame(eth *protocol.EthHeader, payload []byte) {
	switch eth.Type {
	case protocol.EtherTypePPPoEDiscovery:
		t.handleDiscovery(eth, payload)
	case protocol.EtherTypePPPoESession:
		t.handleSession(eth, payload)
	}
}

func (t *Terminator) handleDiscovery(eth *protocol.EthHeader, payload []byte) {
	var src, dst [6]byte
	copy(src[:], eth.Src)
	copy(dst[:], eth.Dst)

	pkt, err := protocol.DecodePPPoEDiscovery(src, dst, payload)
	if err != nil {
		level.Debug(t.logger).Log("message", "discard malformed pppoe discovery", "error", err)
		return
	}

	switch pkt.Code {
	case protocol.PPPoECodePADI:
		t.onPADI(pkt)
	case protocol.PPPoECodePADR:
		t.onPADR(pkt)
	}
}

// onPADI replies PADO with the Service-Name and AC-Name tags and the
// PADI's Host-Uniq echoed back (bbl_a10nsp.c bbl_a10nsp_pppoed_handler,
// PADI case). Circuit/remote IDs in a PADI Vendor-Specific tag are
// parsed but neither kept nor echoed in the PADO.
func (t *Terminator) onPADI(pkt *protocol.PPPoEPacket) {
	t.mu.Lock()
	rs := &remoteSession{peerMAC: pkt.SrcHWAddr, localMAC: pkt.DstHWAddr}
	if vs, err := pkt.GetTag(protocol.PPPoETagTypeVendorSpecific); err == nil {
		if subopts, err := protocol.ParseVendorSpecificTag(vs); err == nil {
			for _, s := range subopts {
				switch s.Type {
				case protocol.BBFSubOptAgentCircuitID:
					rs.circuitID = string(s.Data)
				case protocol.BBFSubOptAgentRemoteID:
					rs.remoteID = string(s.Data)
				}
			}
		}
	}
	t.mu.Unlock()

	reply := &protocol.PPPoEPacket{
		SrcHWAddr: pkt.DstHWAddr,
		DstHWAddr: pkt.SrcHWAddr,
		Code:      protocol.PPPoECodePADO,
		SessionID: 0,
	}
	reply.AddTag(protocol.PPPoETagTypeServiceName, []byte(pppoeServiceName))
	reply.AddTag(protocol.PPPoETagTypeACName, []byte(pppoeACName))
	if tag, err := pkt.GetTag(protocol.PPPoETagTypeHostUniq); err == nil {
		reply.AddTag(protocol.PPPoETagTypeHostUniq, tag.Data)
	}
	t.send(reply)
	_ = rs
}

// onPADR assigns a session ID and replies PADS (bbl_a10nsp_pppoed_handler,
// PADR case).
func (t *Terminator) onPADR(pkt *protocol.PPPoEPacket) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	rs := &remoteSession{sessionID: id, peerMAC: pkt.SrcHWAddr, localMAC: pkt.DstHWAddr}
	if vs, err := pkt.GetTag(protocol.PPPoETagTypeVendorSpecific); err == nil {
		if subopts, err := protocol.ParseVendorSpecificTag(vs); err == nil {
			for _, s := range subopts {
				switch s.Type {
				case protocol.BBFSubOptAgentCircuitID:
					rs.circuitID = string(s.Data)
				case protocol.BBFSubOptAgentRemoteID:
					rs.remoteID = string(s.Data)
				}
			}
		}
	}
	t.sessions[id] = rs
	t.mu.Unlock()

	reply := &protocol.PPPoEPacket{
		SrcHWAddr: pkt.DstHWAddr,
		DstHWAddr: pkt.SrcHWAddr,
		Code:      protocol.PPPoECodePADS,
		SessionID: id,
	}
	reply.AddTag(protocol.PPPoETagTypeServiceName, []byte(pppoeServiceName))
	reply.AddTag(protocol.PPPoETagTypeACName, []byte(pppoeACName))
	t.send(reply)
}

func (t *Terminator) send(pkt *protocol.PPPoEPacket) {
	frame, err := protocol.EncodePPPoEDiscovery(pkt)
	if err != nil {
		level.Error(t.logger).Log("message", "encode pppoe discovery failed", "error", err)
		return
	}
	if res := t.Transmit(frame); res != iface.SendOK {
		level.Warn(t.logger).Log("message", "send failed", "result", res.String())
	}
}

func (t *Terminator) handleSession(eth *protocol.EthHeader, payload []byte) {
	var src, dst [6]byte
	copy(src[:], eth.Src)
	copy(dst[:], eth.Dst)

	frame, err := protocol.DecodePPPoESession(src, dst, payload)
	if err != nil {
		level.Debug(t.logger).Log("message", "discard malformed pppoe session", "error", err)
		return
	}

	t.mu.Lock()
	rs, ok := t.sessions[frame.SessionID]
	t.mu.Unlock()
	if !ok {
		return
	}

	proto, body, err := protocol.DecodePPPHeader(frame.Payload)
	if err != nil {
		return
	}

	switch proto {
	case protocol.PPPProtoLCP:
		t.handleLCP(rs, frame, body)
	case protocol.PPPProtoPAP:
		t.handlePAP(rs, frame, body)
	case protocol.PPPProtoIPCP:
		t.handleIPCP(rs, frame, body)
	case protocol.PPPProtoIP6CP:
		t.handleIP6CP(rs, frame, body)
	}
}

func (t *Terminator) sendPPP(rs *remoteSession, proto protocol.PPPProtocol, body []byte) {
	out := make([]byte, 2+len(body))
	out[0] = byte(proto >> 8)
	out[1] = byte(proto)
	copy(out[2:], body)
	frame := &protocol.PPPoESessionFrame{
		SrcHWAddr: rs.localMAC,
		DstHWAddr: rs.peerMAC,
		SessionID: rs.sessionID,
		Payload:   out,
	}
	wire, err := protocol.EncodePPPoESession(frame)
	if err != nil {
		level.Error(t.logger).Log("message", "encode pppoe session failed", "error", err)
		return
	}
	if res := t.Transmit(wire); res == iface.SendOK {
		rs.PacketsTx++
	} else {
		level.Warn(t.logger).Log("message", "send failed", "result", res.String())
	}
}

// handleLCP mirrors bbl_a10nsp_lcp_handler: ack any ConfReq, then
// immediately propose our own ConfReq requesting PAP authentication;
// reflect Echo-Request as Echo-Reply and Terminate-Request as
// Terminate-Ack.
func (t *Terminator) handleLCP(rs *remoteSession, frame *protocol.PPPoESessionFrame, body []byte) {
	cp, err := protocol.DecodeControlPacket(protocol.PPPProtoLCP, body)
	if err != nil {
		return
	}
	switch cp.Code {
	case protocol.CodeConfigureRequest:
		ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoLCP, Code: protocol.CodeConfigureAck, ID: cp.ID, Options: cp.Options}
		if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
			t.sendPPP(rs, protocol.PPPProtoLCP, encoded)
		}
		if !rs.lcpReqSent {
			rs.lcpReqSent = true
			authOpt := make([]byte, 2)
			authOpt[0] = byte(protocol.AuthProtocolPAP >> 8)
			authOpt[1] = byte(protocol.AuthProtocolPAP)
			req := &protocol.ControlPacket{
				Protocol: protocol.PPPProtoLCP,
				Code:     protocol.CodeConfigureRequest,
				ID:       1,
				Options:  []protocol.Option{{Type: protocol.LCPOptAuth, Data: authOpt}},
			}
			if encoded, err := protocol.EncodeControlPacket(req); err == nil {
				t.sendPPP(rs, protocol.PPPProtoLCP, encoded)
			}
		}
	case protocol.CodeEchoRequest:
		reply := &protocol.ControlPacket{Protocol: protocol.PPPProtoLCP, Code: protocol.CodeEchoReply, ID: cp.ID, Data: cp.Data}
		if encoded, err := protocol.EncodeControlPacket(reply); err == nil {
			t.sendPPP(rs, protocol.PPPProtoLCP, encoded)
		}
	case protocol.CodeTerminateRequest:
		ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoLCP, Code: protocol.CodeTerminateAck, ID: cp.ID}
		if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
			t.sendPPP(rs, protocol.PPPProtoLCP, encoded)
		}
	}
}

// handlePAP always acknowledges, mirroring the original's unconditional
// Ack (bbl_a10nsp_pap_handler) and this emulator's client-side PAP
// handler (internal/session's Open Question decision #1): the
// terminator is exercising PPP/NCP negotiation, not enforcing auth.
func (t *Terminator) handlePAP(rs *remoteSession, frame *protocol.PPPoESessionFrame, body []byte) {
	req, err := protocol.DecodePAP(body)
	if err != nil || req.Code != protocol.PAPCodeAuthenticateRequest {
		return
	}
	resp := &protocol.PAPPacket{Code: protocol.PAPCodeAuthenticateAck, ID: req.ID, Message: papReplyMessage}
	encoded, err := protocol.EncodePAP(resp)
	if err != nil {
		return
	}
	t.sendPPP(rs, protocol.PPPProtoPAP, encoded)
}

// handleIPCP implements the documented quirk (Open Question decision
// #2, bbl_a10nsp_ipcp_handler): Ack only if the peer already proposed
// IPCPAcceptableAddress; otherwise Nak with IPCPRemoteAddress
// *regardless* of whether the peer's request carried option_address,
// matching the original's observed behavior, plus IPCPDNS1/IPCPDNS2
// for each DNS option the request carried. Then, on the first ConfReq
// only, propose the terminator's own address.
func (t *Terminator) handleIPCP(rs *remoteSession, frame *protocol.PPPoESessionFrame, body []byte) {
	cp, err := protocol.DecodeControlPacket(protocol.PPPProtoIPCP, body)
	if err != nil {
		return
	}
	switch cp.Code {
	case protocol.CodeConfigureRequest:
		addrOpt, hasAddr := protocol.FindOption(cp.Options, protocol.IPCPOptAddress)
		if hasAddr && len(addrOpt.Data) == 4 && net.IP(addrOpt.Data).Equal(IPCPAcceptableAddress) {
			ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoIPCP, Code: protocol.CodeConfigureAck, ID: cp.ID, Options: cp.Options}
			if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
				t.sendPPP(rs, protocol.PPPProtoIPCP, encoded)
			}
		} else {
			var opts []protocol.Option
			opts = append(opts, protocol.Option{Type: protocol.IPCPOptAddress, Data: append([]byte{}, IPCPRemoteAddress...)})
			if _, hasDNS1 := protocol.FindOption(cp.Options, protocol.IPCPOptDNS1); hasDNS1 {
				opts = append(opts, protocol.Option{Type: protocol.IPCPOptDNS1, Data: append([]byte{}, IPCPDNS1...)})
			}
			if _, hasDNS2 := protocol.FindOption(cp.Options, protocol.IPCPOptDNS2); hasDNS2 {
				opts = append(opts, protocol.Option{Type: protocol.IPCPOptDNS2, Data: append([]byte{}, IPCPDNS2...)})
			}
			nak := &protocol.ControlPacket{Protocol: protocol.PPPProtoIPCP, Code: protocol.CodeConfigureNak, ID: cp.ID, Options: opts}
			if encoded, err := protocol.EncodeControlPacket(nak); err == nil {
				t.sendPPP(rs, protocol.PPPProtoIPCP, encoded)
			}
		}
		if !rs.ipcpReqSent {
			rs.ipcpReqSent = true
			req := &protocol.ControlPacket{
				Protocol: protocol.PPPProtoIPCP,
				Code:     protocol.CodeConfigureRequest,
				ID:       1,
				Options:  []protocol.Option{{Type: protocol.IPCPOptAddress, Data: append([]byte{}, IPCPLocalAddress...)}},
			}
			if encoded, err := protocol.EncodeControlPacket(req); err == nil {
				t.sendPPP(rs, protocol.PPPProtoIPCP, encoded)
			}
		}
	case protocol.CodeTerminateRequest:
		ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoIPCP, Code: protocol.CodeTerminateAck, ID: cp.ID}
		if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
			t.sendPPP(rs, protocol.PPPProtoIPCP, encoded)
		}
	}
}

// handleIP6CP always acks, then proposes its own interface identifier
// on the first ConfReq (bbl_a10nsp_ip6cp_handler).
func (t *Terminator) handleIP6CP(rs *remoteSession, frame *protocol.PPPoESessionFrame, body []byte) {
	cp, err := protocol.DecodeControlPacket(protocol.PPPProtoIP6CP, body)
	if err != nil {
		return
	}
	switch cp.Code {
	case protocol.CodeConfigureRequest:
		ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoIP6CP, Code: protocol.CodeConfigureAck, ID: cp.ID, Options: cp.Options}
		if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
			t.sendPPP(rs, protocol.PPPProtoIP6CP, encoded)
		}
		if !rs.ip6cpReqSent {
			rs.ip6cpReqSent = true
			req := &protocol.ControlPacket{
				Protocol: protocol.PPPProtoIP6CP,
				Code:     protocol.CodeConfigureRequest,
				ID:       1,
				Options:  []protocol.Option{{Type: protocol.IP6CPOptInterfaceIdentifier, Data: make([]byte, 8)}},
			}
			if encoded, err := protocol.EncodeControlPacket(req); err == nil {
				t.sendPPP(rs, protocol.PPPProtoIP6CP, encoded)
			}
		}
	case protocol.CodeTerminateRequest:
		ack := &protocol.ControlPacket{Protocol: protocol.PPPProtoIP6CP, Code: protocol.CodeTerminateAck, ID: cp.ID}
		if encoded, err := protocol.EncodeControlPacket(ack); err == nil {
			t.sendPPP(rs, protocol.PPPProtoIP6CP, encoded)
		}
	}
}

// SessionCount returns the number of sessions currently tracked,
// mainly for control-socket status reporting.
func (t *Terminator) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
