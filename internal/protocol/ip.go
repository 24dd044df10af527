package protocol

import (
	"encoding/binary"
	"net"
)

// IPProtocol identifies the L4 protocol carried by IPv4/IPv6.
type IPProtocol uint8

const (
	IPProtoICMP   IPProtocol = 1
	IPProtoIGMP   IPProtocol = 2
	IPProtoUDP    IPProtocol = 17
	IPProtoICMPv6 IPProtocol = 58
)

// IPv4RouterAlertOption is the IPv4 option used to flag IGMP traffic
// for router interception (spec.md §6).
const IPv4RouterAlertOption = 0x94

// IPv4Header is the decoded variant for an IPv4 header.
type IPv4Header struct {
	TOS      uint8
	TotalLen uint16
	ID       uint16
	Flags    uint8
	FragOff  uint16
	TTL      uint8
	Protocol IPProtocol
	Checksum uint16
	Src      net.IP
	Dst      net.IP
	RouterAlert bool
	HeaderLen   int
}

// DecodeIPv4 decodes an IPv4 header; buf must begin at the version/IHL
// byte.
func DecodeIPv4(buf []byte) (*IPv4Header, error) {
	if len(buf) < 20 {
		return nil, newErr(ErrDecode, "ipv4 header truncated")
	}
	ihl := int(buf[0]&0x0f) * 4
	if ihl < 20 || len(buf) < ihl {
		return nil, newErr(ErrDecode, "ipv4 ihl %d invalid", ihl)
	}
	h := &IPv4Header{
		TOS:      buf[1],
		TotalLen: binary.BigEndian.Uint16(buf[2:4]),
		ID:       binary.BigEndian.Uint16(buf[4:6]),
		TTL:      buf[8],
		Protocol: IPProtocol(buf[9]),
		Checksum: binary.BigEndian.Uint16(buf[10:12]),
		Src:      net.IP(append([]byte{}, buf[12:16]...)),
		Dst:      net.IP(append([]byte{}, buf[16:20]...)),
		HeaderLen: ihl,
	}
	flagsFrag := binary.BigEndian.Uint16(buf[6:8])
	h.Flags = uint8(flagsFrag >> 13)
	h.FragOff = flagsFrag & 0x1fff
	for i := 20; i+1 < ihl; i++ {
		if buf[i] == IPv4RouterAlertOption {
			h.RouterAlert = true
		}
	}
	return h, nil
}

// EncodeIPv4 serializes an IPv4 header (no options) followed by
// payload, computing the header checksum.
func EncodeIPv4(h *IPv4Header, payload []byte) ([]byte, error) {
	if h.Src.To4() == nil || h.Dst.To4() == nil {
		return nil, newErr(ErrEncode, "ipv4 addresses must be v4")
	}
	ihl := 20
	buf := make([]byte, ihl+len(payload))
	buf[0] = 0x40 | byte(ihl/4)
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], uint16(ihl+len(payload)))
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], (uint16(h.Flags)<<13)|h.FragOff)
	buf[8] = h.TTL
	buf[9] = byte(h.Protocol)
	copy(buf[12:16], h.Src.To4())
	copy(buf[16:20], h.Dst.To4())
	binary.BigEndian.PutUint16(buf[10:12], ipChecksum(buf[0:20]))
	copy(buf[20:], payload)
	return buf, nil
}

func ipChecksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// IPv6Header is the decoded variant for an IPv6 header including an
// optional Hop-by-Hop extension header (spec.md §6).
type IPv6Header struct {
	TrafficClass uint8
	FlowLabel    uint32
	PayloadLen   uint16
	NextHeader   IPProtocol
	HopLimit     uint8
	Src          net.IP
	Dst          net.IP
	HopByHop     []byte // raw hop-by-hop options, if present
	HeaderLen    int
}

// DecodeIPv6 decodes an IPv6 header and any Hop-by-Hop extension
// header.
func DecodeIPv6(buf []byte) (*IPv6Header, error) {
	if len(buf) < 40 {
		return nil, newErr(ErrDecode, "ipv6 header truncated")
	}
	vtcfl := binary.BigEndian.Uint32(buf[0:4])
	h := &IPv6Header{
		TrafficClass: uint8((vtcfl >> 20) & 0xff),
		FlowLabel:    vtcfl & 0xfffff,
		PayloadLen:   binary.BigEndian.Uint16(buf[4:6]),
		NextHeader:   IPProtocol(buf[6]),
		HopLimit:     buf[7],
		Src:          net.IP(append([]byte{}, buf[8:24]...)),
		Dst:          net.IP(append([]byte{}, buf[24:40]...)),
		HeaderLen:    40,
	}
	if h.NextHeader == 0 { // Hop-by-Hop Options
		if len(buf) < 42 {
			return nil, newErr(ErrDecode, "ipv6 hop-by-hop truncated")
		}
		hbhLen := (int(buf[41]) + 1) * 8
		if len(buf) < 40+hbhLen {
			return nil, newErr(ErrDecode, "ipv6 hop-by-hop exceeds buffer")
		}
		h.HopByHop = append([]byte{}, buf[40:40+hbhLen]...)
		h.NextHeader = IPProtocol(buf[40])
		h.HeaderLen = 40 + hbhLen
	}
	return h, nil
}

// EncodeIPv6 serializes an IPv6 header (no extension headers) plus
// payload.
func EncodeIPv6(h *IPv6Header, payload []byte) ([]byte, error) {
	if len(h.Src) != 16 || len(h.Dst) != 16 {
		return nil, newErr(ErrEncode, "ipv6 addresses must be 16 bytes")
	}
	buf := make([]byte, 40+len(payload))
	vtcfl := (uint32(6) << 28) | (uint32(h.TrafficClass) << 20) | (h.FlowLabel & 0xfffff)
	binary.BigEndian.PutUint32(buf[0:4], vtcfl)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(payload)))
	buf[6] = byte(h.NextHeader)
	buf[7] = h.HopLimit
	copy(buf[8:24], h.Src)
	copy(buf[24:40], h.Dst)
	copy(buf[40:], payload)
	return buf, nil
}

// UDPHeader is the decoded variant for a UDP header.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// DecodeUDP decodes a UDP header; the remainder of buf is the payload.
func DecodeUDP(buf []byte) (*UDPHeader, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, newErr(ErrDecode, "udp header truncated")
	}
	h := &UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(buf[0:2]),
		DstPort:  binary.BigEndian.Uint16(buf[2:4]),
		Length:   binary.BigEndian.Uint16(buf[4:6]),
		Checksum: binary.BigEndian.Uint16(buf[6:8]),
	}
	if int(h.Length) > len(buf) {
		return nil, nil, newErr(ErrDecode, "udp length %d exceeds buffer", h.Length)
	}
	return h, buf[8:h.Length], nil
}

// EncodeUDP serializes a UDP header and payload. The checksum field is
// left as supplied by the caller (0 disables checksum validation,
// which is acceptable for the synthetic traffic this emulator
// generates).
func EncodeUDP(h *UDPHeader, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], uint16(8+len(payload)))
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	copy(buf[8:], payload)
	return buf
}
