package session

import (
	"net"

	"github.com/domthera/bngblaster/internal/protocol"
)

// IPCP/IP6CP reuse the same Closed/ReqSent/AckRcvd/AckSent/Opened
// shape as LCP (RFC1661 §5.1's state machine is shared across NCPs).
const (
	NCPClosed  = "Closed"
	NCPReqSent = "ReqSent"
	NCPAckRcvd = "AckRcvd"
	NCPAckSent = "AckSent"
	NCPOpened  = "Opened"
)

const (
	ncpEvUp    = "up"
	ncpEvReqRx = "req_rx"
	ncpEvAckRx = "ack_rx"
	ncpEvNakRx = "nak_rx"
	ncpEvRejRx = "rej_rx"
)

var ncpTable = []EventDesc{
	{From: NCPClosed, To: NCPReqSent, Events: []string{ncpEvUp}},
	{From: NCPReqSent, To: NCPAckSent, Events: []string{ncpEvReqRx}},
	{From: NCPReqSent, To: NCPAckRcvd, Events: []string{ncpEvAckRx}},
	{From: NCPReqSent, To: NCPReqSent, Events: []string{ncpEvNakRx, ncpEvRejRx}},
	{From: NCPAckRcvd, To: NCPOpened, Events: []string{ncpEvReqRx}},
	{From: NCPAckSent, To: NCPOpened, Events: []string{ncpEvAckRx}},
}

// IPCPMachine negotiates the session's IPv4 address and DNS servers
// (spec.md §4.3: "On peer ConfReq, Ack acceptable address options; Nak
// with proposed values when the peer's are unacceptable").
type IPCPMachine struct {
	FSM FSM

	PeerAddress net.IP // address offered to the peer (server role)
	DNS1, DNS2  net.IP

	ReqID uint8
}

// NewIPCPMachine returns an IPCP sub-state-machine in the Closed state.
func NewIPCPMachine() *IPCPMachine {
	return &IPCPMachine{FSM: FSM{Current: NCPClosed, Table: ncpTable}}
}

// EvaluateConfReq decides Ack/Nak/Reject for a peer IPCP Configure-
// Request. The address option is Nak'd with PeerAddress if the peer's
// proposal doesn't match (or requests 0.0.0.0); a DNS option is Nak'd
// with the configured server address, or rejected when that server is
// not configured; unknown options are rejected.
func (m *IPCPMachine) EvaluateConfReq(req *protocol.ControlPacket) (code protocol.LCPCode, opts []protocol.Option) {
	code = protocol.CodeConfigureAck
	nak := func() {
		if code != protocol.CodeConfigureReject {
			if code == protocol.CodeConfigureAck {
				opts = nil
			}
			code = protocol.CodeConfigureNak
		}
	}
	reject := func(o protocol.Option) {
		if code != protocol.CodeConfigureReject {
			opts = nil
			code = protocol.CodeConfigureReject
		}
		opts = append(opts, o)
	}

	for _, o := range req.Options {
		switch o.Type {
		case protocol.LCPOptionType(protocol.IPCPOptAddress):
			if len(o.Data) == 4 && net.IP(o.Data).Equal(m.PeerAddress) {
				if code == protocol.CodeConfigureAck {
					opts = append(opts, o)
				}
			} else {
				nak()
				opts = append(opts, protocol.Option{Type: o.Type, Data: m.PeerAddress.To4()})
			}
		case protocol.LCPOptionType(protocol.IPCPOptDNS1):
			if m.DNS1 != nil {
				nak()
				opts = append(opts, protocol.Option{Type: o.Type, Data: m.DNS1.To4()})
			} else {
				reject(o)
			}
		case protocol.LCPOptionType(protocol.IPCPOptDNS2):
			if m.DNS2 != nil {
				nak()
				opts = append(opts, protocol.Option{Type: o.Type, Data: m.DNS2.To4()})
			} else {
				reject(o)
			}
		default:
			reject(o)
		}
	}
	return code, opts
}

// BuildConfReq constructs the local Configure-Request (empty — this
// emulator doesn't request an address of its own, it only assigns one
// to the peer as a simulated BNG would).
func (m *IPCPMachine) BuildConfReq() *protocol.ControlPacket {
	m.ReqID++
	return &protocol.ControlPacket{Protocol: protocol.PPPProtoIPCP, Code: protocol.CodeConfigureRequest, ID: m.ReqID}
}

// IP6CPMachine negotiates the session's IPv6 interface identifier
// (spec.md §4.3).
type IP6CPMachine struct {
	FSM FSM

	InterfaceID [8]byte
	ReqID       uint8
}

// NewIP6CPMachine returns an IP6CP sub-state-machine in the Closed state.
func NewIP6CPMachine() *IP6CPMachine {
	return &IP6CPMachine{FSM: FSM{Current: NCPClosed, Table: ncpTable}}
}

// EvaluateConfReq accepts any interface identifier the peer proposes
// (IP6CP has no "assign an address" semantics — RA/SLAAC does that).
func (m *IP6CPMachine) EvaluateConfReq(req *protocol.ControlPacket) (code protocol.LCPCode, opts []protocol.Option) {
	code = protocol.CodeConfigureAck
	for _, o := range req.Options {
		if o.Type == protocol.LCPOptionType(protocol.IP6CPOptInterfaceIdentifier) {
			opts = append(opts, o)
		} else {
			if code != protocol.CodeConfigureReject {
				opts = nil
				code = protocol.CodeConfigureReject
			}
			opts = append(opts, o)
		}
	}
	return code, opts
}

// BuildConfReq constructs the local Configure-Request carrying this
// session's interface identifier.
func (m *IP6CPMachine) BuildConfReq() *protocol.ControlPacket {
	m.ReqID++
	return &protocol.ControlPacket{
		Protocol: protocol.PPPProtoIP6CP,
		Code:     protocol.CodeConfigureRequest,
		ID:       m.ReqID,
		Options: []protocol.Option{
			{Type: protocol.LCPOptionType(protocol.IP6CPOptInterfaceIdentifier), Data: m.InterfaceID[:]},
		},
	}
}
