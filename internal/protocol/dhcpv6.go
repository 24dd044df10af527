package protocol

import "encoding/binary"

// DHCPv6MessageType enumerates the message types 1..13 named in
// spec.md §6.
type DHCPv6MessageType uint8

const (
	DHCPv6Solicit            DHCPv6MessageType = 1
	DHCPv6Advertise          DHCPv6MessageType = 2
	DHCPv6Request            DHCPv6MessageType = 3
	DHCPv6Confirm            DHCPv6MessageType = 4
	DHCPv6Renew              DHCPv6MessageType = 5
	DHCPv6Rebind             DHCPv6MessageType = 6
	DHCPv6Reply              DHCPv6MessageType = 7
	DHCPv6Release            DHCPv6MessageType = 8
	DHCPv6Decline            DHCPv6MessageType = 9
	DHCPv6Reconfigure        DHCPv6MessageType = 10
	DHCPv6InformationRequest DHCPv6MessageType = 11
	DHCPv6RelayForw          DHCPv6MessageType = 12
	DHCPv6RelayRepl          DHCPv6MessageType = 13
)

// DHCPv6 option codes used by this emulator (spec.md §6).
const (
	DHCPv6OptClientID     uint16 = 1
	DHCPv6OptServerID     uint16 = 2
	DHCPv6OptIANA         uint16 = 3
	DHCPv6OptIAPD         uint16 = 25
	DHCPv6OptORO          uint16 = 6
	DHCPv6OptRapidCommit  uint16 = 14
	DHCPv6OptIAAddr       uint16 = 5
	DHCPv6OptIAPrefix     uint16 = 26
	DHCPv6OptRemoteID     uint16 = 37
)

// DHCPv6Option is a single decoded option TLV.
type DHCPv6Option struct {
	Code uint16
	Data []byte
}

// DHCPv6Packet is the decoded variant for a DHCPv6 client/server
// message (non-relay).
type DHCPv6Packet struct {
	Type          DHCPv6MessageType
	TransactionID [3]byte
	Options       []DHCPv6Option
}

// Option returns the first option with the given code.
func (p *DHCPv6Packet) Option(code uint16) ([]byte, bool) {
	for _, o := range p.Options {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// DecodeDHCPv6 decodes a non-relay DHCPv6 message.
func DecodeDHCPv6(buf []byte) (*DHCPv6Packet, error) {
	if len(buf) < 4 {
		return nil, newErr(ErrDecode, "dhcpv6 header truncated")
	}
	p := &DHCPv6Packet{Type: DHCPv6MessageType(buf[0])}
	copy(p.TransactionID[:], buf[1:4])
	opts, err := decodeDHCPv6Options(buf[4:])
	if err != nil {
		return nil, err
	}
	p.Options = opts
	return p, nil
}

func decodeDHCPv6Options(buf []byte) ([]DHCPv6Option, error) {
	var opts []DHCPv6Option
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, newErr(ErrDecode, "dhcpv6 option header truncated")
		}
		code := binary.BigEndian.Uint16(buf[0:2])
		l := int(binary.BigEndian.Uint16(buf[2:4]))
		if len(buf) < 4+l {
			return nil, newErr(ErrDecode, "dhcpv6 option %d length %d exceeds buffer", code, l)
		}
		opts = append(opts, DHCPv6Option{Code: code, Data: append([]byte{}, buf[4:4+l]...)})
		buf = buf[4+l:]
	}
	return opts, nil
}

// EncodeDHCPv6 serializes a non-relay DHCPv6 message.
func EncodeDHCPv6(p *DHCPv6Packet) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(p.Type)
	copy(buf[1:4], p.TransactionID[:])
	for _, o := range p.Options {
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint16(hdr[0:2], o.Code)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(o.Data)))
		buf = append(buf, hdr...)
		buf = append(buf, o.Data...)
	}
	return buf
}

// BuildIAAddrOption encodes an IA_NA Address option (RFC8415 §21.6).
func BuildIAAddrOption(addr [16]byte, preferred, valid uint32) DHCPv6Option {
	data := make([]byte, 24)
	copy(data[0:16], addr[:])
	binary.BigEndian.PutUint32(data[16:20], preferred)
	binary.BigEndian.PutUint32(data[20:24], valid)
	return DHCPv6Option{Code: DHCPv6OptIAAddr, Data: data}
}

// BuildIANAOption encodes an IA_NA option wrapping the given
// sub-options (e.g. an IA Address option).
func BuildIANAOption(iaid uint32, t1, t2 uint32, suboptions []DHCPv6Option) DHCPv6Option {
	data := make([]byte, 12)
	binary.BigEndian.PutUint32(data[0:4], iaid)
	binary.BigEndian.PutUint32(data[4:8], t1)
	binary.BigEndian.PutUint32(data[8:12], t2)
	for _, s := range suboptions {
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint16(hdr[0:2], s.Code)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(s.Data)))
		data = append(data, hdr...)
		data = append(data, s.Data...)
	}
	return DHCPv6Option{Code: DHCPv6OptIANA, Data: data}
}
