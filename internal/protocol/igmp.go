package protocol

import (
	"encoding/binary"
	"net"
)

// IGMPType enumerates the IGMP message types used across v1/v2/v3
// (spec.md §6).
type IGMPType uint8

const (
	IGMPv1MembershipReport IGMPType = 0x12
	IGMPMembershipQuery    IGMPType = 0x11
	IGMPv2MembershipReport IGMPType = 0x16
	IGMPv2LeaveGroup       IGMPType = 0x17
	IGMPv3MembershipReport IGMPType = 0x22
)

// IGMPv3 group record types.
const (
	IGMPv3ModeIsInclude        uint8 = 1
	IGMPv3ModeIsExclude        uint8 = 2
	IGMPv3ChangeToInclude      uint8 = 3
	IGMPv3ChangeToExclude      uint8 = 4
	IGMPv3AllowNewSources      uint8 = 5
	IGMPv3BlockOldSources      uint8 = 6
)

// IGMPGroupRecord is a single IGMPv3 group record (multicast address
// plus up to a bounded set of source addresses, spec.md §3: "IGMP
// group table (bounded, ≤8 groups × ≤3 sources)").
type IGMPGroupRecord struct {
	RecordType uint8
	Group      net.IP
	Sources    []net.IP
}

// IGMPPacket is the decoded variant covering v1/v2 simple
// query/report/leave and v3 membership report with group records.
type IGMPPacket struct {
	Type         IGMPType
	MaxRespTime  uint8
	Group        net.IP // v1/v2 query/report/leave group address
	GroupRecords []IGMPGroupRecord // v3 report only
}

// DecodeIGMP decodes an IGMP message.
func DecodeIGMP(buf []byte) (*IGMPPacket, error) {
	if len(buf) < 8 {
		return nil, newErr(ErrDecode, "igmp message truncated")
	}
	typ := IGMPType(buf[0])
	p := &IGMPPacket{Type: typ}
	switch typ {
	case IGMPv3MembershipReport:
		numRecords := binary.BigEndian.Uint16(buf[6:8])
		off := 8
		for i := 0; i < int(numRecords); i++ {
			if len(buf) < off+8 {
				return nil, newErr(ErrDecode, "igmpv3 record %d truncated", i)
			}
			recType := buf[off]
			auxLen := int(buf[off+1])
			numSrc := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
			group := net.IP(append([]byte{}, buf[off+4:off+8]...))
			off += 8
			rec := IGMPGroupRecord{RecordType: recType, Group: group}
			for s := 0; s < numSrc; s++ {
				if len(buf) < off+4 {
					return nil, newErr(ErrDecode, "igmpv3 record %d source %d truncated", i, s)
				}
				rec.Sources = append(rec.Sources, net.IP(append([]byte{}, buf[off:off+4]...)))
				off += 4
			}
			off += auxLen * 4
			p.GroupRecords = append(p.GroupRecords, rec)
		}
	default:
		p.MaxRespTime = buf[1]
		p.Group = net.IP(append([]byte{}, buf[4:8]...))
	}
	return p, nil
}

// EncodeIGMP serializes an IGMP message.
func EncodeIGMP(p *IGMPPacket) ([]byte, error) {
	switch p.Type {
	case IGMPv3MembershipReport:
		buf := make([]byte, 8)
		buf[0] = byte(p.Type)
		binary.BigEndian.PutUint16(buf[6:8], uint16(len(p.GroupRecords)))
		for _, rec := range p.GroupRecords {
			if rec.Group.To4() == nil {
				return nil, newErr(ErrEncode, "igmpv3 group must be v4")
			}
			h := make([]byte, 8)
			h[0] = rec.RecordType
			binary.BigEndian.PutUint16(h[2:4], uint16(len(rec.Sources)))
			copy(h[4:8], rec.Group.To4())
			buf = append(buf, h...)
			for _, s := range rec.Sources {
				buf = append(buf, s.To4()...)
			}
		}
		binary.BigEndian.PutUint16(buf[2:4], ipChecksum(buf))
		return buf, nil
	default:
		if p.Group.To4() == nil {
			return nil, newErr(ErrEncode, "igmp group must be v4")
		}
		buf := make([]byte, 8)
		buf[0] = byte(p.Type)
		buf[1] = p.MaxRespTime
		copy(buf[4:8], p.Group.To4())
		binary.BigEndian.PutUint16(buf[2:4], ipChecksum(buf))
		return buf, nil
	}
}
