package protocol

import (
	"encoding/binary"
	"net"
)

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4         EtherType = 0x0800
	EtherTypeARP          EtherType = 0x0806
	EtherTypeVLAN         EtherType = 0x8100
	EtherTypeQinQ         EtherType = 0x88a8
	EtherTypeIPv6         EtherType = 0x86dd
	EtherTypePPPoEDiscovery EtherType = 0x8863
	EtherTypePPPoESession   EtherType = 0x8864
	EtherTypeISIS           EtherType = 0xfefe // carried inside LLC, not directly as an ethertype; kept for internal dispatch tagging
)

// VLANTag is a single 802.1Q/802.1ad tag (outer QinQ uses 0x88a8,
// inner tags and untagged frames use 0x8100).
type VLANTag struct {
	TPID EtherType
	PCP  uint8
	DEI  bool
	VID  uint16
}

// EthHeader is the decoded variant for an Ethernet header with 0-3
// VLAN tags (spec.md §6: "optional 1-3 VLAN tags including QinQ").
type EthHeader struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	VLANs     []VLANTag
	Type      EtherType
	HeaderLen int // bytes consumed decoding Dst/Src/VLANs/Type
}

// DecodeEth parses an Ethernet header including any stacked VLAN tags
// and returns the header plus the number of bytes consumed. Payload
// bytes are not copied; callers slice buf[hdr.HeaderLen:] themselves.
func DecodeEth(buf []byte) (*EthHeader, error) {
	if len(buf) < 14 {
		return nil, newErr(ErrDecode, "ethernet header truncated: %d bytes", len(buf))
	}
	h := &EthHeader{
		Dst: net.HardwareAddr(append([]byte{}, buf[0:6]...)),
		Src: net.HardwareAddr(append([]byte{}, buf[6:12]...)),
	}
	off := 12
	for {
		if len(buf) < off+2 {
			return nil, newErr(ErrDecode, "ethertype truncated at offset %d", off)
		}
		et := EtherType(binary.BigEndian.Uint16(buf[off : off+2]))
		if et != EtherTypeVLAN && et != EtherTypeQinQ {
			break
		}
		if len(buf) < off+4 {
			return nil, newErr(ErrDecode, "vlan tag truncated at offset %d", off)
		}
		tci := binary.BigEndian.Uint16(buf[off+2 : off+4])
		h.VLANs = append(h.VLANs, VLANTag{
			TPID: et,
			PCP:  uint8(tci >> 13),
			DEI:  (tci>>12)&0x1 != 0,
			VID:  tci & 0x0fff,
		})
		off += 4
		if len(h.VLANs) > 3 {
			return nil, newErr(ErrDecode, "too many stacked VLAN tags")
		}
	}
	if len(buf) < off+2 {
		return nil, newErr(ErrDecode, "ethertype truncated at offset %d", off)
	}
	h.Type = EtherType(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	h.HeaderLen = off
	return h, nil
}

// EncodeEth serializes h as a header (no payload).
func EncodeEth(h *EthHeader) ([]byte, error) {
	if len(h.Dst) != 6 || len(h.Src) != 6 {
		return nil, newErr(ErrEncode, "hardware addresses must be 6 bytes")
	}
	if len(h.VLANs) > 3 {
		return nil, newErr(ErrEncode, "too many VLAN tags: %d", len(h.VLANs))
	}
	buf := make([]byte, 12+4*len(h.VLANs)+2)
	copy(buf[0:6], h.Dst)
	copy(buf[6:12], h.Src)
	off := 12
	for _, v := range h.VLANs {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(v.TPID))
		tci := (uint16(v.PCP) << 13) | uint16(v.VID)
		if v.DEI {
			tci |= 0x1000
		}
		binary.BigEndian.PutUint16(buf[off+2:off+4], tci)
		off += 4
	}
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(h.Type))
	return buf, nil
}

// OuterVLAN returns the outer VLAN ID, or 0 if the frame is untagged.
func (h *EthHeader) OuterVLAN() uint16 {
	if len(h.VLANs) == 0 {
		return 0
	}
	return h.VLANs[0].VID
}

// InnerVLAN returns the inner (second) VLAN ID for QinQ frames, or 0.
func (h *EthHeader) InnerVLAN() uint16 {
	if len(h.VLANs) < 2 {
		return 0
	}
	return h.VLANs[1].VID
}
