package protocol

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/ipv6"
)

// ICMPv6Type re-exports the RS/RA/NS/NA message types from
// golang.org/x/net/ipv6 (spec.md §6), used here so the rest of this
// package doesn't need a second source of truth for ICMPv6 type
// numbers.
var (
	ICMPv6TypeRouterSolicitation    = ipv6.ICMPTypeRouterSolicitation
	ICMPv6TypeRouterAdvertisement   = ipv6.ICMPTypeRouterAdvertisement
	ICMPv6TypeNeighborSolicitation  = ipv6.ICMPTypeNeighborSolicitation
	ICMPv6TypeNeighborAdvertisement = ipv6.ICMPTypeNeighborAdvertisement
)

// NDOptionType identifies a Neighbor Discovery option.
type NDOptionType uint8

const (
	NDOptSourceLinkLayerAddr NDOptionType = 1
	NDOptTargetLinkLayerAddr NDOptionType = 2
	NDOptPrefixInformation   NDOptionType = 3
)

// NDOption is a single decoded Neighbor Discovery option.
type NDOption struct {
	Type NDOptionType
	Data []byte
}

// ICMPv6Packet is the decoded variant for RS/RA/NS/NA messages.
type ICMPv6Packet struct {
	Type     ipv6.ICMPType
	Code     uint8
	Checksum uint16
	// RA-specific
	CurHopLimit    uint8
	RouterLifetime uint16
	ReachableTime  uint32
	RetransTimer   uint32
	// NS/NA-specific
	TargetAddress net.IP
	// NA flags
	RouterFlag    bool
	SolicitedFlag bool
	OverrideFlag  bool

	Options []NDOption
}

// DecodeICMPv6 decodes an ICMPv6 RS/RA/NS/NA message.
func DecodeICMPv6(buf []byte) (*ICMPv6Packet, error) {
	if len(buf) < 4 {
		return nil, newErr(ErrDecode, "icmpv6 header truncated")
	}
	p := &ICMPv6Packet{
		Type:     ipv6.ICMPType(buf[0]),
		Code:     buf[1],
		Checksum: binary.BigEndian.Uint16(buf[2:4]),
	}
	var optOff int
	switch p.Type {
	case ipv6.ICMPTypeRouterAdvertisement:
		if len(buf) < 16 {
			return nil, newErr(ErrDecode, "icmpv6 ra truncated")
		}
		p.CurHopLimit = buf[4]
		p.RouterFlag = buf[5]&0x80 != 0
		p.RouterLifetime = binary.BigEndian.Uint16(buf[6:8])
		p.ReachableTime = binary.BigEndian.Uint32(buf[8:12])
		p.RetransTimer = binary.BigEndian.Uint32(buf[12:16])
		optOff = 16
	case ipv6.ICMPTypeNeighborSolicitation, ipv6.ICMPTypeNeighborAdvertisement:
		if len(buf) < 24 {
			return nil, newErr(ErrDecode, "icmpv6 ns/na truncated")
		}
		if p.Type == ipv6.ICMPTypeNeighborAdvertisement {
			p.RouterFlag = buf[4]&0x80 != 0
			p.SolicitedFlag = buf[4]&0x40 != 0
			p.OverrideFlag = buf[4]&0x20 != 0
		}
		p.TargetAddress = net.IP(append([]byte{}, buf[8:24]...))
		optOff = 24
	case ipv6.ICMPTypeRouterSolicitation:
		optOff = 8
	default:
		return nil, newErr(ErrUnknownProtocol, "unhandled icmpv6 type %v", p.Type)
	}
	opts, err := decodeNDOptions(buf[optOff:])
	if err != nil {
		return nil, err
	}
	p.Options = opts
	return p, nil
}

func decodeNDOptions(buf []byte) ([]NDOption, error) {
	var opts []NDOption
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, newErr(ErrDecode, "nd option header truncated")
		}
		l := int(buf[1]) * 8
		if l == 0 || len(buf) < l {
			return nil, newErr(ErrDecode, "nd option length %d invalid", l)
		}
		opts = append(opts, NDOption{Type: NDOptionType(buf[0]), Data: append([]byte{}, buf[2:l]...)})
		buf = buf[l:]
	}
	return opts, nil
}

// EncodeICMPv6 serializes an RS/RA/NS/NA message. Checksum is left 0;
// callers that need on-wire validity compute it over the IPv6
// pseudo-header separately.
func EncodeICMPv6(p *ICMPv6Packet) ([]byte, error) {
	var buf []byte
	switch p.Type {
	case ipv6.ICMPTypeRouterAdvertisement:
		buf = make([]byte, 16)
		buf[4] = p.CurHopLimit
		if p.RouterFlag {
			buf[5] |= 0x80
		}
		binary.BigEndian.PutUint16(buf[6:8], p.RouterLifetime)
		binary.BigEndian.PutUint32(buf[8:12], p.ReachableTime)
		binary.BigEndian.PutUint32(buf[12:16], p.RetransTimer)
	case ipv6.ICMPTypeNeighborSolicitation, ipv6.ICMPTypeNeighborAdvertisement:
		if len(p.TargetAddress) != 16 {
			return nil, newErr(ErrEncode, "target address must be 16 bytes")
		}
		buf = make([]byte, 24)
		if p.Type == ipv6.ICMPTypeNeighborAdvertisement {
			if p.RouterFlag {
				buf[4] |= 0x80
			}
			if p.SolicitedFlag {
				buf[4] |= 0x40
			}
			if p.OverrideFlag {
				buf[4] |= 0x20
			}
		}
		copy(buf[8:24], p.TargetAddress)
	case ipv6.ICMPTypeRouterSolicitation:
		buf = make([]byte, 8)
	default:
		return nil, newErr(ErrEncode, "unhandled icmpv6 type %v", p.Type)
	}
	buf[0] = byte(p.Type)
	buf[1] = p.Code
	for _, o := range p.Options {
		pad := (len(o.Data) + 2 + 7) / 8 * 8
		h := make([]byte, pad)
		h[0] = byte(o.Type)
		h[1] = byte(pad / 8)
		copy(h[2:], o.Data)
		buf = append(buf, h...)
	}
	return buf, nil
}
