package protocol

import "encoding/binary"

// L2TPv2 control message header constants (RFC2661 §4.1), adapted
// from l2tp/msg.go and narrowed to v2 only: this emulator only ever
// plays the LNS role against L2TPv2 LACs.
const (
	L2TPv2HeaderLen  = 12
	L2TPv2FlagsVer   = 0xc802
	l2tpAVPHeaderLen = 6
	// vendorIDIetf is the namespace used for standard AVPs described by RFC2661.
	vendorIDIetf = 0
)

// L2TPMessageType identifies the Message Type AVP value carried as the
// first AVP of every non-ZLB control message (RFC2661 §6).
type L2TPMessageType uint16

const (
	L2TPMsgSCCRQ   L2TPMessageType = 1
	L2TPMsgSCCRP   L2TPMessageType = 2
	L2TPMsgSCCCN   L2TPMessageType = 3
	L2TPMsgStopCCN L2TPMessageType = 4
	L2TPMsgHello   L2TPMessageType = 6
	L2TPMsgICRQ    L2TPMessageType = 10
	L2TPMsgICRP    L2TPMessageType = 11
	L2TPMsgICCN    L2TPMessageType = 12
	L2TPMsgCDN     L2TPMessageType = 14
	L2TPMsgWEN     L2TPMessageType = 15
	L2TPMsgCSUN    L2TPMessageType = 28
	L2TPMsgCSURQ   L2TPMessageType = 29
)

// L2TPAVPType identifies the AVP attribute (RFC2661 §4.1, Vendor ID 0
// i.e. IETF namespace; this emulator does not generate vendor-specific
// L2TP AVPs).
type L2TPAVPType uint16

const (
	L2TPAVPMessageType         L2TPAVPType = 0
	L2TPAVPResultCode          L2TPAVPType = 1
	L2TPAVPProtocolVersion     L2TPAVPType = 2
	L2TPAVPFramingCap          L2TPAVPType = 3
	L2TPAVPBearerCap           L2TPAVPType = 4
	L2TPAVPFirmwareRevision    L2TPAVPType = 6
	L2TPAVPHostName            L2TPAVPType = 7
	L2TPAVPVendorName          L2TPAVPType = 8
	L2TPAVPTunnelID            L2TPAVPType = 9
	L2TPAVPRxWindowSize        L2TPAVPType = 10
	L2TPAVPChallenge           L2TPAVPType = 11
	L2TPAVPChallengeResponse   L2TPAVPType = 13
	L2TPAVPSessionID           L2TPAVPType = 14
	L2TPAVPCallSerialNumber    L2TPAVPType = 15
	L2TPAVPBearerType          L2TPAVPType = 18
	L2TPAVPFramingType         L2TPAVPType = 19
	L2TPAVPCalledNumber        L2TPAVPType = 21
	L2TPAVPCallingNumber       L2TPAVPType = 22
	L2TPAVPTxConnectSpeed      L2TPAVPType = 24
	L2TPAVPPhysicalChannelID   L2TPAVPType = 25
	L2TPAVPPrivGroupID         L2TPAVPType = 37
	L2TPAVPRxConnectSpeed      L2TPAVPType = 38
	L2TPAVPSequencingRequired  L2TPAVPType = 39
)

// L2TPResultCode is an RFC2661 §5.9 StopCCN/CDN result code.
type L2TPResultCode uint16

const (
	L2TPResultClearConnection  L2TPResultCode = 1
	L2TPResultGeneralError     L2TPResultCode = 2
	L2TPResultAdminDisconnect  L2TPResultCode = 3
)

// L2TPAVP is a single decoded Attribute Value Pair.
type L2TPAVP struct {
	Mandatory bool
	Hidden    bool
	VendorID  uint16
	Type      L2TPAVPType
	Value     []byte
}

// L2TPHeader is the 12-byte L2TPv2 control message header (RFC2661
// §4.1, control bit always set for the control channel this emulator
// speaks).
type L2TPHeader struct {
	TunnelID  uint16
	SessionID uint16
	Ns        uint16
	Nr        uint16
}

// L2TPMessage is the decoded variant for an L2TPv2 control message. A
// message with no AVPs is a ZLB (zero-length-body) acknowledgement.
type L2TPMessage struct {
	Header L2TPHeader
	AVPs   []L2TPAVP
}

// DecodeL2TPv2 decodes an L2TPv2 control message, including the ZLB
// case (header only, no AVPs).
func DecodeL2TPv2(buf []byte) (*L2TPMessage, error) {
	if len(buf) < L2TPv2HeaderLen {
		return nil, newErr(ErrDecode, "l2tpv2 header truncated")
	}
	flagsVer := binary.BigEndian.Uint16(buf[0:2])
	if flagsVer&0xf != 2 {
		return nil, newErr(ErrDecode, "unsupported l2tp protocol version %d", flagsVer&0xf)
	}
	msgLen := binary.BigEndian.Uint16(buf[2:4])
	if int(msgLen) > len(buf) {
		return nil, newErr(ErrDecode, "l2tpv2 length %d exceeds buffer", msgLen)
	}
	m := &L2TPMessage{
		Header: L2TPHeader{
			TunnelID:  binary.BigEndian.Uint16(buf[4:6]),
			SessionID: binary.BigEndian.Uint16(buf[6:8]),
			Ns:        binary.BigEndian.Uint16(buf[8:10]),
			Nr:        binary.BigEndian.Uint16(buf[10:12]),
		},
	}
	if msgLen > L2TPv2HeaderLen {
		avps, err := decodeL2TPAVPs(buf[L2TPv2HeaderLen:msgLen])
		if err != nil {
			return nil, err
		}
		if len(avps) == 0 || avps[0].Type != L2TPAVPMessageType {
			return nil, newErr(ErrDecode, "first avp is not message type")
		}
		m.AVPs = avps
	}
	return m, nil
}

func decodeL2TPAVPs(buf []byte) ([]L2TPAVP, error) {
	var avps []L2TPAVP
	for len(buf) > 0 {
		if len(buf) < l2tpAVPHeaderLen {
			return nil, newErr(ErrDecode, "avp header truncated")
		}
		flagLen := binary.BigEndian.Uint16(buf[0:2])
		length := int(flagLen & 0x3ff)
		if length < l2tpAVPHeaderLen || len(buf) < length {
			return nil, newErr(ErrDecode, "avp length %d invalid", length)
		}
		a := L2TPAVP{
			Mandatory: flagLen&0x8000 != 0,
			Hidden:    flagLen&0x4000 != 0,
			VendorID:  binary.BigEndian.Uint16(buf[2:4]),
			Type:      L2TPAVPType(binary.BigEndian.Uint16(buf[4:6])),
			Value:     append([]byte{}, buf[l2tpAVPHeaderLen:length]...),
		}
		avps = append(avps, a)
		buf = buf[length:]
	}
	return avps, nil
}

// EncodeL2TPv2 serializes an L2TPv2 control message.
func EncodeL2TPv2(m *L2TPMessage) []byte {
	var body []byte
	for _, a := range m.AVPs {
		body = append(body, encodeL2TPAVP(a)...)
	}
	buf := make([]byte, L2TPv2HeaderLen+len(body))
	binary.BigEndian.PutUint16(buf[0:2], L2TPv2FlagsVer)
	binary.BigEndian.PutUint16(buf[2:4], uint16(L2TPv2HeaderLen+len(body)))
	binary.BigEndian.PutUint16(buf[4:6], m.Header.TunnelID)
	binary.BigEndian.PutUint16(buf[6:8], m.Header.SessionID)
	binary.BigEndian.PutUint16(buf[8:10], m.Header.Ns)
	binary.BigEndian.PutUint16(buf[10:12], m.Header.Nr)
	copy(buf[L2TPv2HeaderLen:], body)
	return buf
}

func encodeL2TPAVP(a L2TPAVP) []byte {
	length := l2tpAVPHeaderLen + len(a.Value)
	buf := make([]byte, length)
	flagLen := uint16(length) & 0x3ff
	if a.Mandatory {
		flagLen |= 0x8000
	}
	if a.Hidden {
		flagLen |= 0x4000
	}
	binary.BigEndian.PutUint16(buf[0:2], flagLen)
	binary.BigEndian.PutUint16(buf[2:4], a.VendorID)
	binary.BigEndian.PutUint16(buf[4:6], uint16(a.Type))
	copy(buf[l2tpAVPHeaderLen:], a.Value)
	return buf
}

// NewMessageTypeAVP builds the mandatory leading Message Type AVP.
func NewMessageTypeAVP(t L2TPMessageType) L2TPAVP {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, uint16(t))
	return L2TPAVP{Mandatory: true, VendorID: vendorIDIetf, Type: L2TPAVPMessageType, Value: v}
}

// NewUint16AVP builds a mandatory AVP carrying a single uint16 value,
// used for Tunnel ID, Session ID, Assigned Tunnel/Session ID and
// similar AVPs.
func NewUint16AVP(t L2TPAVPType, val uint16) L2TPAVP {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, val)
	return L2TPAVP{Mandatory: true, VendorID: vendorIDIetf, Type: t, Value: v}
}

// NewUint32AVP builds a mandatory AVP carrying a single uint32 value.
func NewUint32AVP(t L2TPAVPType, val uint32) L2TPAVP {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, val)
	return L2TPAVP{Mandatory: true, VendorID: vendorIDIetf, Type: t, Value: v}
}

// NewStringAVP builds an AVP carrying an ASCII string value.
func NewStringAVP(t L2TPAVPType, mandatory bool, val string) L2TPAVP {
	return L2TPAVP{Mandatory: mandatory, VendorID: vendorIDIetf, Type: t, Value: []byte(val)}
}

// NewResultCodeAVP builds a Result Code AVP (RFC2661 §4.4.1).
func NewResultCodeAVP(result L2TPResultCode, errCode uint16, errMsg string) L2TPAVP {
	v := make([]byte, 4+len(errMsg))
	binary.BigEndian.PutUint16(v[0:2], uint16(result))
	binary.BigEndian.PutUint16(v[2:4], errCode)
	copy(v[4:], errMsg)
	return L2TPAVP{Mandatory: true, VendorID: vendorIDIetf, Type: L2TPAVPResultCode, Value: v}
}

// Uint16Value decodes an AVP's payload as a big-endian uint16.
func (a L2TPAVP) Uint16Value() (uint16, error) {
	if len(a.Value) != 2 {
		return 0, newErr(ErrDecode, "avp type %d: expected 2-byte value, got %d", a.Type, len(a.Value))
	}
	return binary.BigEndian.Uint16(a.Value), nil
}

// Uint32Value decodes an AVP's payload as a big-endian uint32.
func (a L2TPAVP) Uint32Value() (uint32, error) {
	if len(a.Value) != 4 {
		return 0, newErr(ErrDecode, "avp type %d: expected 4-byte value, got %d", a.Type, len(a.Value))
	}
	return binary.BigEndian.Uint32(a.Value), nil
}

// StringValue decodes an AVP's payload as an ASCII string.
func (a L2TPAVP) StringValue() string {
	return string(a.Value)
}

// FindAVP returns the first AVP of the given type, if present.
func (m *L2TPMessage) FindAVP(t L2TPAVPType) (L2TPAVP, bool) {
	for _, a := range m.AVPs {
		if a.Type == t {
			return a, true
		}
	}
	return L2TPAVP{}, false
}

// MessageType returns the value of the mandatory leading Message Type
// AVP, or an error if it is missing or malformed.
func (m *L2TPMessage) MessageType() (L2TPMessageType, error) {
	a, ok := m.FindAVP(L2TPAVPMessageType)
	if !ok {
		return 0, newErr(ErrDecode, "message has no message-type avp")
	}
	v, err := a.Uint16Value()
	if err != nil {
		return 0, err
	}
	return L2TPMessageType(v), nil
}
