package protocol

import (
	"encoding/binary"
)

// PPP protocol numbers carried in the two-byte PPP protocol field
// (spec.md §6).
type PPPProtocol uint16

const (
	PPPProtoIPv4 PPPProtocol = 0x0021
	PPPProtoIPv6 PPPProtocol = 0x0057
	PPPProtoIPCP PPPProtocol = 0x8021
	PPPProtoIP6CP PPPProtocol = 0x8057
	PPPProtoLCP  PPPProtocol = 0xc021
	PPPProtoPAP  PPPProtocol = 0xc023
	PPPProtoCHAP PPPProtocol = 0xc223
)

// LCPCode enumerates the LCP/NCP codes shared by LCP, IPCP and IP6CP
// (spec.md §6: "codes 1..11").
type LCPCode uint8

const (
	CodeConfigureRequest LCPCode = 1
	CodeConfigureAck     LCPCode = 2
	CodeConfigureNak     LCPCode = 3
	CodeConfigureReject  LCPCode = 4
	CodeTerminateRequest LCPCode = 5
	CodeTerminateAck     LCPCode = 6
	CodeCodeReject       LCPCode = 7
	CodeProtocolReject   LCPCode = 8
	CodeEchoRequest      LCPCode = 9
	CodeEchoReply        LCPCode = 10
	CodeDiscardRequest   LCPCode = 11
)

// LCPOptionType identifies LCP configuration options.
type LCPOptionType uint8

const (
	LCPOptMRU   LCPOptionType = 1
	LCPOptAuth  LCPOptionType = 3
	LCPOptMagic LCPOptionType = 5
)

// IPCPOptionType identifies IPCP configuration options.
type IPCPOptionType uint8

const (
	IPCPOptAddress IPCPOptionType = 3
	IPCPOptDNS1    IPCPOptionType = 129
	IPCPOptDNS2    IPCPOptionType = 131
)

// IP6CPOptionType identifies IP6CP configuration options.
type IP6CPOptionType uint8

const (
	IP6CPOptInterfaceIdentifier IP6CPOptionType = 1
)

// AuthProtocol identifies the authentication protocol negotiated via
// the LCP Auth option.
type AuthProtocol uint16

const (
	AuthProtocolPAP      AuthProtocol = 0xc023
	AuthProtocolCHAPMD5  AuthProtocol = 0xc223
)

// Option is a single decoded LCP/IPCP/IP6CP TLV option.
type Option struct {
	Type LCPOptionType
	Data []byte
}

// ControlPacket is the decoded variant shared by LCP, IPCP and IP6CP:
// all three protocols share the same Configure/Terminate/Code-Reject
// packet format (RFC1661 §5).
type ControlPacket struct {
	Protocol PPPProtocol
	Code     LCPCode
	ID       uint8
	Options  []Option
	// Data carries the raw payload for codes that are not
	// option-bearing (echo request/reply magic, protocol-reject
	// rejected protocol + data, code-reject rejected packet).
	Data []byte
}

// DecodePPPHeader reads the two-byte PPP protocol field and returns it
// plus the remaining payload.
func DecodePPPHeader(buf []byte) (PPPProtocol, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, newErr(ErrDecode, "ppp header truncated")
	}
	return PPPProtocol(binary.BigEndian.Uint16(buf[0:2])), buf[2:], nil
}

// DecodeControlPacket decodes an LCP/IPCP/IP6CP packet. proto
// identifies which NCP owns the option type space (informational
// only — option encoding is identical across all three).
func DecodeControlPacket(proto PPPProtocol, buf []byte) (*ControlPacket, error) {
	if len(buf) < 4 {
		return nil, newErr(ErrDecode, "control packet header truncated")
	}
	code := LCPCode(buf[0])
	id := buf[1]
	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length) > len(buf) {
		return nil, newErr(ErrDecode, "control packet length %d exceeds buffer %d", length, len(buf))
	}
	body := buf[4:length]
	cp := &ControlPacket{Protocol: proto, Code: code, ID: id}

	switch code {
	case CodeConfigureRequest, CodeConfigureAck, CodeConfigureNak, CodeConfigureReject:
		opts, err := decodeOptions(body)
		if err != nil {
			return nil, err
		}
		cp.Options = opts
	default:
		cp.Data = append([]byte{}, body...)
	}
	return cp, nil
}

func decodeOptions(buf []byte) ([]Option, error) {
	var opts []Option
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, newErr(ErrDecode, "option header truncated")
		}
		typ := LCPOptionType(buf[0])
		l := int(buf[1])
		if l < 2 || l > len(buf) {
			return nil, newErr(ErrDecode, "option length %d invalid", l)
		}
		opts = append(opts, Option{Type: typ, Data: append([]byte{}, buf[2:l]...)})
		buf = buf[l:]
	}
	return opts, nil
}

// EncodeControlPacket serializes an LCP/IPCP/IP6CP packet.
func EncodeControlPacket(cp *ControlPacket) ([]byte, error) {
	var body []byte
	switch cp.Code {
	case CodeConfigureRequest, CodeConfigureAck, CodeConfigureNak, CodeConfigureReject:
		for _, o := range cp.Options {
			body = append(body, byte(o.Type), byte(len(o.Data)+2))
			body = append(body, o.Data...)
		}
	default:
		body = cp.Data
	}
	out := make([]byte, 4+len(body))
	out[0] = byte(cp.Code)
	out[1] = cp.ID
	binary.BigEndian.PutUint16(out[2:4], uint16(4+len(body)))
	copy(out[4:], body)
	return out, nil
}

// FindOption returns the first option of type t, if present.
func FindOption(opts []Option, t LCPOptionType) (Option, bool) {
	for _, o := range opts {
		if o.Type == t {
			return o, true
		}
	}
	return Option{}, false
}

// PAPCode identifies a PAP packet type (RFC1334).
type PAPCode uint8

const (
	PAPCodeAuthenticateRequest PAPCode = 1
	PAPCodeAuthenticateAck     PAPCode = 2
	PAPCodeAuthenticateNak     PAPCode = 3
)

// PAPPacket is the decoded variant for a PAP Authenticate-Request/Ack/Nak.
type PAPPacket struct {
	Code     PAPCode
	ID       uint8
	PeerID   string // username, request only
	Password string // request only
	Message  string // ack/nak only
}

// DecodePAP decodes a PAP packet.
func DecodePAP(buf []byte) (*PAPPacket, error) {
	if len(buf) < 4 {
		return nil, newErr(ErrDecode, "pap header truncated")
	}
	p := &PAPPacket{Code: PAPCode(buf[0]), ID: buf[1]}
	body := buf[4:]
	switch p.Code {
	case PAPCodeAuthenticateRequest:
		if len(body) < 1 {
			return nil, newErr(ErrDecode, "pap request truncated")
		}
		ul := int(body[0])
		if len(body) < 1+ul+1 {
			return nil, newErr(ErrDecode, "pap request peer-id truncated")
		}
		p.PeerID = string(body[1 : 1+ul])
		rest := body[1+ul:]
		pl := int(rest[0])
		if len(rest) < 1+pl {
			return nil, newErr(ErrDecode, "pap request password truncated")
		}
		p.Password = string(rest[1 : 1+pl])
	case PAPCodeAuthenticateAck, PAPCodeAuthenticateNak:
		if len(body) < 1 {
			return nil, newErr(ErrDecode, "pap ack/nak truncated")
		}
		ml := int(body[0])
		if len(body) < 1+ml {
			return nil, newErr(ErrDecode, "pap ack/nak message truncated")
		}
		p.Message = string(body[1 : 1+ml])
	default:
		return nil, newErr(ErrDecode, "unrecognised pap code %d", p.Code)
	}
	return p, nil
}

// EncodePAP serializes a PAP packet.
func EncodePAP(p *PAPPacket) ([]byte, error) {
	var body []byte
	switch p.Code {
	case PAPCodeAuthenticateRequest:
		body = append(body, byte(len(p.PeerID)))
		body = append(body, []byte(p.PeerID)...)
		body = append(body, byte(len(p.Password)))
		body = append(body, []byte(p.Password)...)
	case PAPCodeAuthenticateAck, PAPCodeAuthenticateNak:
		body = append(body, byte(len(p.Message)))
		body = append(body, []byte(p.Message)...)
	default:
		return nil, newErr(ErrEncode, "unrecognised pap code %d", p.Code)
	}
	out := make([]byte, 4+len(body))
	out[0] = byte(p.Code)
	out[1] = p.ID
	binary.BigEndian.PutUint16(out[2:4], uint16(4+len(body)))
	copy(out[4:], body)
	return out, nil
}

// CHAPCode identifies a CHAP packet type (RFC1994).
type CHAPCode uint8

const (
	CHAPCodeChallenge CHAPCode = 1
	CHAPCodeResponse  CHAPCode = 2
	CHAPCodeSuccess   CHAPCode = 3
	CHAPCodeFailure   CHAPCode = 4
)

// CHAPPacket is the decoded variant for a CHAP Challenge/Response/
// Success/Failure packet.
type CHAPPacket struct {
	Code    CHAPCode
	ID      uint8
	Value   []byte // challenge (Challenge) or MD5 digest (Response)
	Name    string // challenge/response only
	Message string // success/failure only
}

// DecodeCHAP decodes a CHAP packet.
func DecodeCHAP(buf []byte) (*CHAPPacket, error) {
	if len(buf) < 4 {
		return nil, newErr(ErrDecode, "chap header truncated")
	}
	p := &CHAPPacket{Code: CHAPCode(buf[0]), ID: buf[1]}
	body := buf[4:]
	switch p.Code {
	case CHAPCodeChallenge, CHAPCodeResponse:
		if len(body) < 1 {
			return nil, newErr(ErrDecode, "chap value truncated")
		}
		vl := int(body[0])
		if len(body) < 1+vl {
			return nil, newErr(ErrDecode, "chap value exceeds buffer")
		}
		p.Value = append([]byte{}, body[1:1+vl]...)
		p.Name = string(body[1+vl:])
	case CHAPCodeSuccess, CHAPCodeFailure:
		p.Message = string(body)
	default:
		return nil, newErr(ErrDecode, "unrecognised chap code %d", p.Code)
	}
	return p, nil
}

// EncodeCHAP serializes a CHAP packet.
func EncodeCHAP(p *CHAPPacket) ([]byte, error) {
	var body []byte
	switch p.Code {
	case CHAPCodeChallenge, CHAPCodeResponse:
		body = append(body, byte(len(p.Value)))
		body = append(body, p.Value...)
		body = append(body, []byte(p.Name)...)
	case CHAPCodeSuccess, CHAPCodeFailure:
		body = []byte(p.Message)
	default:
		return nil, newErr(ErrEncode, "unrecognised chap code %d", p.Code)
	}
	out := make([]byte, 4+len(body))
	out[0] = byte(p.Code)
	out[1] = p.ID
	binary.BigEndian.PutUint16(out[2:4], uint16(4+len(body)))
	copy(out[4:], body)
	return out, nil
}
