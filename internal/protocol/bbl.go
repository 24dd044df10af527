package protocol

import "encoding/binary"

// BBLMagic marks a synthetic traffic packet generated by this emulator
// ("RtBrick!", spec.md §4.6/GLOSSARY).
const BBLMagic uint64 = 0x5274427269636b21

// BBLUDPPort is the well-known UDP destination port for BBL traffic
// packets (spec.md §4.6).
const BBLUDPPort uint16 = 65056

// BBLType distinguishes unicast session traffic from multicast
// (IGMP-joined) traffic.
type BBLType uint8

const (
	BBLTypeUnicast   BBLType = 1
	BBLTypeMulticast BBLType = 2
)

// BBLSubType records which address family/flow the packet belongs to.
type BBLSubType uint8

const (
	BBLSubTypeIPv4   BBLSubType = 1
	BBLSubTypeIPv6   BBLSubType = 2
	BBLSubTypeIPv6PD BBLSubType = 3
)

// BBLDirection records whether the packet was generated upstream
// (access to network) or downstream (network to access).
type BBLDirection uint8

const (
	BBLDirectionUp   BBLDirection = 1
	BBLDirectionDown BBLDirection = 2
)

// BBLHeader is the 48-byte trailer appended to synthetic traffic
// packets, carrying everything the verifier needs to correlate a
// received packet back to the flow and session that generated it
// (spec.md §4.6).
type BBLHeader struct {
	Magic        uint64
	Type         BBLType
	SubType      BBLSubType
	Direction    BBLDirection
	SessionID    uint32
	OuterVLAN    uint16
	InnerVLAN    uint16
	FlowID       uint64
	FlowSeq      uint64
	TimestampSec uint32
	TimestampNS  uint32
}

// BBLHeaderLen is the fixed on-wire length of BBLHeader.
const BBLHeaderLen = 48

// DecodeBBL decodes a BBL trailer from the tail of a traffic packet.
func DecodeBBL(buf []byte) (*BBLHeader, error) {
	if len(buf) < BBLHeaderLen {
		return nil, newErr(ErrDecode, "bbl header truncated: %d bytes", len(buf))
	}
	h := &BBLHeader{
		Magic:        binary.BigEndian.Uint64(buf[0:8]),
		Type:         BBLType(buf[8]),
		SubType:      BBLSubType(buf[9]),
		Direction:    BBLDirection(buf[10]),
		SessionID:    binary.BigEndian.Uint32(buf[12:16]),
		OuterVLAN:    binary.BigEndian.Uint16(buf[16:18]),
		InnerVLAN:    binary.BigEndian.Uint16(buf[18:20]),
		FlowID:       binary.BigEndian.Uint64(buf[20:28]),
		FlowSeq:      binary.BigEndian.Uint64(buf[28:36]),
		TimestampSec: binary.BigEndian.Uint32(buf[36:40]),
		TimestampNS:  binary.BigEndian.Uint32(buf[40:44]),
	}
	if h.Magic != BBLMagic {
		return nil, newErr(ErrDecode, "bad bbl magic %#x", h.Magic)
	}
	return h, nil
}

// EncodeBBL serializes a BBL trailer, padded to BBLHeaderLen.
func EncodeBBL(h *BBLHeader) []byte {
	buf := make([]byte, BBLHeaderLen)
	binary.BigEndian.PutUint64(buf[0:8], BBLMagic)
	buf[8] = byte(h.Type)
	buf[9] = byte(h.SubType)
	buf[10] = byte(h.Direction)
	binary.BigEndian.PutUint32(buf[12:16], h.SessionID)
	binary.BigEndian.PutUint16(buf[16:18], h.OuterVLAN)
	binary.BigEndian.PutUint16(buf[18:20], h.InnerVLAN)
	binary.BigEndian.PutUint64(buf[20:28], h.FlowID)
	binary.BigEndian.PutUint64(buf[28:36], h.FlowSeq)
	binary.BigEndian.PutUint32(buf[36:40], h.TimestampSec)
	binary.BigEndian.PutUint32(buf[40:44], h.TimestampNS)
	return buf
}
