package protocol

import "encoding/binary"

// DHCPMagicCookie is the fixed magic cookie marking the start of the
// DHCP options area (spec.md §6).
const DHCPMagicCookie uint32 = 0x63825363

// DHCPMessageType enumerates the DHCP message types (option 53).
type DHCPMessageType uint8

const (
	DHCPDiscover DHCPMessageType = 1
	DHCPOffer    DHCPMessageType = 2
	DHCPRequest  DHCPMessageType = 3
	DHCPDecline  DHCPMessageType = 4
	DHCPAck      DHCPMessageType = 5
	DHCPNak      DHCPMessageType = 6
	DHCPRelease  DHCPMessageType = 7
	DHCPInform   DHCPMessageType = 8
)

// DHCPOpt option codes used by this emulator.
const (
	DHCPOptSubnetMask      uint8 = 1
	DHCPOptRouter          uint8 = 3
	DHCPOptDNS             uint8 = 6
	DHCPOptRequestedIP     uint8 = 50
	DHCPOptLeaseTime       uint8 = 51
	DHCPOptMessageType     uint8 = 53
	DHCPOptServerID        uint8 = 54
	DHCPOptParamReqList    uint8 = 55
	DHCPOptClientID        uint8 = 61
	DHCPOptRelayAgentInfo  uint8 = 82
	DHCPOptEnd             uint8 = 255
)

// Relay Agent Information (option 82) Broadband Forum sub-options.
const (
	DHCPRAIAgentCircuitID uint8 = 1
	DHCPRAIAgentRemoteID  uint8 = 2
)

// DHCPv4Option is a single decoded option TLV.
type DHCPv4Option struct {
	Code uint8
	Data []byte
}

// DHCPv4Packet is the decoded variant for a DHCPv4 message (BOOTP
// header + magic cookie + options).
type DHCPv4Packet struct {
	Op          uint8 // 1 = BOOTREQUEST, 2 = BOOTREPLY
	XID         uint32
	Secs        uint16
	Flags       uint16
	CIAddr      [4]byte
	YIAddr      [4]byte
	SIAddr      [4]byte
	GIAddr      [4]byte
	CHAddr      [16]byte
	Options     []DHCPv4Option
}

// MessageType returns the DHCP message type carried in option 53, or
// 0 if absent.
func (p *DHCPv4Packet) MessageType() DHCPMessageType {
	for _, o := range p.Options {
		if o.Code == DHCPOptMessageType && len(o.Data) == 1 {
			return DHCPMessageType(o.Data[0])
		}
	}
	return 0
}

// Option returns the first option with the given code.
func (p *DHCPv4Packet) Option(code uint8) ([]byte, bool) {
	for _, o := range p.Options {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// DecodeDHCPv4 decodes a DHCPv4 message (buf begins at the BOOTP `op`
// byte, i.e. after the UDP header has been stripped).
func DecodeDHCPv4(buf []byte) (*DHCPv4Packet, error) {
	if len(buf) < 240 {
		return nil, newErr(ErrDecode, "dhcpv4 message truncated: %d bytes", len(buf))
	}
	p := &DHCPv4Packet{
		Op:    buf[0],
		XID:   binary.BigEndian.Uint32(buf[4:8]),
		Secs:  binary.BigEndian.Uint16(buf[8:10]),
		Flags: binary.BigEndian.Uint16(buf[10:12]),
	}
	copy(p.CIAddr[:], buf[12:16])
	copy(p.YIAddr[:], buf[16:20])
	copy(p.SIAddr[:], buf[20:24])
	copy(p.GIAddr[:], buf[24:28])
	copy(p.CHAddr[:], buf[28:44])

	cookie := binary.BigEndian.Uint32(buf[236:240])
	if cookie != DHCPMagicCookie {
		return nil, newErr(ErrDecode, "bad dhcp magic cookie %#x", cookie)
	}

	opts, err := decodeDHCPv4Options(buf[240:])
	if err != nil {
		return nil, err
	}
	p.Options = opts
	return p, nil
}

func decodeDHCPv4Options(buf []byte) ([]DHCPv4Option, error) {
	var opts []DHCPv4Option
	for len(buf) > 0 {
		code := buf[0]
		if code == DHCPOptEnd {
			break
		}
		if code == 0 { // pad
			buf = buf[1:]
			continue
		}
		if len(buf) < 2 {
			return nil, newErr(ErrDecode, "option %d header truncated", code)
		}
		l := int(buf[1])
		if len(buf) < 2+l {
			return nil, newErr(ErrDecode, "option %d length %d exceeds buffer", code, l)
		}
		opts = append(opts, DHCPv4Option{Code: code, Data: append([]byte{}, buf[2:2+l]...)})
		buf = buf[2+l:]
	}
	return opts, nil
}

// EncodeDHCPv4 serializes a DHCPv4 message.
func EncodeDHCPv4(p *DHCPv4Packet) []byte {
	buf := make([]byte, 240)
	buf[0] = p.Op
	buf[1] = 1 // htype = ethernet
	buf[2] = 6 // hlen
	binary.BigEndian.PutUint32(buf[4:8], p.XID)
	binary.BigEndian.PutUint16(buf[8:10], p.Secs)
	binary.BigEndian.PutUint16(buf[10:12], p.Flags)
	copy(buf[12:16], p.CIAddr[:])
	copy(buf[16:20], p.YIAddr[:])
	copy(buf[20:24], p.SIAddr[:])
	copy(buf[24:28], p.GIAddr[:])
	copy(buf[28:44], p.CHAddr[:])
	binary.BigEndian.PutUint32(buf[236:240], DHCPMagicCookie)
	for _, o := range p.Options {
		buf = append(buf, o.Code, byte(len(o.Data)))
		buf = append(buf, o.Data...)
	}
	buf = append(buf, DHCPOptEnd)
	return buf
}
