package session

import (
	"encoding/binary"

	"github.com/domthera/bngblaster/internal/protocol"
)

// LCP states (RFC1661 §4.1, narrowed to the subset this emulator's
// always-open-on-our-side negotiation actually visits).
const (
	LCPClosed   = "Closed"
	LCPReqSent  = "ReqSent"
	LCPAckRcvd  = "AckRcvd"
	LCPAckSent  = "AckSent"
	LCPOpened   = "Opened"
	LCPTerminate = "Terminate"
)

const (
	lcpEvUp      = "up"
	lcpEvReqRx   = "req_rx"
	lcpEvAckRx   = "ack_rx"
	lcpEvNakRx   = "nak_rx"
	lcpEvRejRx   = "rej_rx"
	lcpEvTimeout = "timeout"
	lcpEvClose   = "close"
)

var lcpTable = []EventDesc{
	{From: LCPClosed, To: LCPReqSent, Events: []string{lcpEvUp}},
	{From: LCPReqSent, To: LCPAckSent, Events: []string{lcpEvReqRx}},
	{From: LCPReqSent, To: LCPAckRcvd, Events: []string{lcpEvAckRx}},
	{From: LCPReqSent, To: LCPReqSent, Events: []string{lcpEvNakRx, lcpEvRejRx}},
	{From: LCPAckRcvd, To: LCPOpened, Events: []string{lcpEvReqRx}},
	{From: LCPAckSent, To: LCPOpened, Events: []string{lcpEvAckRx}},
	{From: LCPOpened, To: LCPAckSent, Events: []string{lcpEvReqRx}},
	{From: LCPReqSent, To: LCPTerminate, Events: []string{lcpEvTimeout, lcpEvClose}},
	{From: LCPOpened, To: LCPTerminate, Events: []string{lcpEvClose}},
}

// LCPMachine negotiates MRU, Magic Number and the authentication
// protocol option (spec.md §4.3: "ConfReq/ConfAck with MRU, magic, and
// authentication option (PAP or CHAP as configured)").
type LCPMachine struct {
	FSM FSM

	MRU          uint16
	MagicNumber  uint32
	AuthProtocol protocol.AuthProtocol

	Retries      int
	MaxRetries   int
	KeepaliveMiss int
	MaxKeepaliveMiss int

	ConfReqID uint8
}

// NewLCPMachine returns an LCP sub-state-machine in the Closed state.
func NewLCPMachine() *LCPMachine {
	return &LCPMachine{
		FSM:        FSM{Current: LCPClosed, Table: lcpTable},
		MRU:        1492,
		MaxRetries: 10,
		MaxKeepaliveMiss: 3,
	}
}

// BuildConfReq constructs the local Configure-Request.
func (m *LCPMachine) BuildConfReq() *protocol.ControlPacket {
	m.ConfReqID++
	opts := []protocol.Option{
		{Type: protocol.LCPOptMRU, Data: uint16Bytes(m.MRU)},
		{Type: protocol.LCPOptMagic, Data: uint32Bytes(m.MagicNumber)},
	}
	if m.AuthProtocol != 0 {
		data := uint16Bytes(uint16(m.AuthProtocol))
		if m.AuthProtocol == protocol.AuthProtocolCHAPMD5 {
			data = append(data, 5) // CHAP algorithm: MD5
		}
		opts = append(opts, protocol.Option{Type: protocol.LCPOptAuth, Data: data})
	}
	return &protocol.ControlPacket{
		Protocol: protocol.PPPProtoLCP,
		Code:     protocol.CodeConfigureRequest,
		ID:       m.ConfReqID,
		Options:  opts,
	}
}

// EvaluateConfReq examines a peer Configure-Request and decides
// Ack/Reject per option: MRU, Magic-Number and Authentication-Protocol
// options are accepted with whatever value the peer proposes, and any
// other option is rejected. No option value is compared against the
// local settings, so this never returns a Nak.
func (m *LCPMachine) EvaluateConfReq(req *protocol.ControlPacket) (code protocol.LCPCode, opts []protocol.Option) {
	code = protocol.CodeConfigureAck
	for _, o := range req.Options {
		switch o.Type {
		case protocol.LCPOptMRU, protocol.LCPOptMagic, protocol.LCPOptAuth:
			opts = append(opts, o)
		default:
			if code != protocol.CodeConfigureReject {
				opts = nil
				code = protocol.CodeConfigureReject
			}
			opts = append(opts, o)
		}
	}
	return code, opts
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
