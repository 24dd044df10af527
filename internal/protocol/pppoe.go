package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// adapted from katalix/go-l2tp's pppoe/pppoe.go: same PPPoE discovery
// tag model, generalized here to also cover PPPoE Session framing
// (spec.md §6) and the Broadband Forum Vendor-Specific tag carrying
// access-line sub-options (spec.md §6, glossary "Access line").

// PPPoECode identifies a PPPoE discovery packet type (RFC2516).
type PPPoECode uint8

const (
	PPPoECodePADI PPPoECode = 0x09
	PPPoECodePADO PPPoECode = 0x07
	PPPoECodePADR PPPoECode = 0x19
	PPPoECodePADS PPPoECode = 0x65
	PPPoECodePADT PPPoECode = 0xa7
)

func (c PPPoECode) String() string {
	switch c {
	case PPPoECodePADI:
		return "PADI"
	case PPPoECodePADO:
		return "PADO"
	case PPPoECodePADR:
		return "PADR"
	case PPPoECodePADS:
		return "PADS"
	case PPPoECodePADT:
		return "PADT"
	}
	return "???"
}

// PPPoETagType identifies the TLV tags carried in a discovery packet.
type PPPoETagType uint16

const (
	PPPoETagTypeEOL              PPPoETagType = 0x0000
	PPPoETagTypeServiceName      PPPoETagType = 0x0101
	PPPoETagTypeACName           PPPoETagType = 0x0102
	PPPoETagTypeHostUniq         PPPoETagType = 0x0103
	PPPoETagTypeACCookie         PPPoETagType = 0x0104
	PPPoETagTypeVendorSpecific   PPPoETagType = 0x0105
	PPPoETagTypeRelaySessionID   PPPoETagType = 0x0110
	PPPoETagTypeServiceNameError PPPoETagType = 0x0201
	PPPoETagTypeACSystemError    PPPoETagType = 0x0202
	PPPoETagTypeGenericError     PPPoETagType = 0x0203
)

// BroadbandForumEnterpriseNumber is the IANA Private Enterprise Number
// used by the Vendor-Specific tag to carry access-line attributes
// (spec.md §6).
const BroadbandForumEnterpriseNumber uint32 = 3561

// Broadband Forum Vendor-Specific sub-option types (TR-101).
const (
	BBFSubOptAgentCircuitID uint8 = 0x01
	BBFSubOptAgentRemoteID  uint8 = 0x02
	BBFSubOptActualDataRateUp   uint8 = 0x81
	BBFSubOptActualDataRateDown uint8 = 0x82
	BBFSubOptDSLType            uint8 = 0x91
)

// PPPoETag is a single discovery-packet TLV.
type PPPoETag struct {
	Type PPPoETagType
	Data []byte
}

// PPPoEPacket is the decoded variant for a PPPoE Discovery frame.
type PPPoEPacket struct {
	SrcHWAddr [6]byte
	DstHWAddr [6]byte
	Code      PPPoECode
	SessionID uint16
	Tags      []*PPPoETag
}

// PPPoESessionFrame is the decoded variant for PPPoE Session framing:
// a thin header wrapping a PPP payload (spec.md §6).
type PPPoESessionFrame struct {
	SrcHWAddr [6]byte
	DstHWAddr [6]byte
	SessionID uint16
	Payload   []byte // the encapsulated PPP frame
}

func findTag(typ PPPoETagType, tags []*PPPoETag) (*PPPoETag, error) {
	for _, tag := range tags {
		if tag.Type == typ {
			return tag, nil
		}
	}
	return nil, newErr(ErrDecode, "no tag %v found", typ)
}

// GetTag returns the first tag of the given type.
func (p *PPPoEPacket) GetTag(typ PPPoETagType) (*PPPoETag, error) {
	return findTag(typ, p.Tags)
}

// AddTag appends a tag to the packet.
func (p *PPPoEPacket) AddTag(typ PPPoETagType, data []byte) {
	p.Tags = append(p.Tags, &PPPoETag{Type: typ, Data: data})
}

// AccessLineSubOption is a single Broadband Forum Vendor-Specific
// sub-option (Agent-Circuit-Id, Agent-Remote-Id, rate, DSL type).
type AccessLineSubOption struct {
	Type uint8
	Data []byte
}

// BuildVendorSpecificTag encodes the Broadband Forum enterprise number
// followed by the given sub-options into a single Vendor-Specific tag.
func BuildVendorSpecificTag(subopts []AccessLineSubOption) *PPPoETag {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, BroadbandForumEnterpriseNumber)
	for _, s := range subopts {
		buf.WriteByte(s.Type)
		buf.WriteByte(byte(len(s.Data)))
		buf.Write(s.Data)
	}
	return &PPPoETag{Type: PPPoETagTypeVendorSpecific, Data: buf.Bytes()}
}

// ParseVendorSpecificTag extracts the Broadband Forum sub-options from
// a Vendor-Specific tag, if its enterprise number matches.
func ParseVendorSpecificTag(tag *PPPoETag) ([]AccessLineSubOption, error) {
	if tag.Type != PPPoETagTypeVendorSpecific {
		return nil, newErr(ErrDecode, "not a vendor-specific tag")
	}
	if len(tag.Data) < 4 {
		return nil, newErr(ErrDecode, "vendor-specific tag truncated")
	}
	enterprise := binary.BigEndian.Uint32(tag.Data[0:4])
	if enterprise != BroadbandForumEnterpriseNumber {
		return nil, newErr(ErrIgnored, "unrecognised enterprise number %d", enterprise)
	}
	var out []AccessLineSubOption
	rest := tag.Data[4:]
	for len(rest) >= 2 {
		typ := rest[0]
		l := int(rest[1])
		if len(rest) < 2+l {
			return nil, newErr(ErrDecode, "truncated sub-option")
		}
		out = append(out, AccessLineSubOption{Type: typ, Data: append([]byte{}, rest[2:2+l]...)})
		rest = rest[2+l:]
	}
	return out, nil
}

type pppoeTagHeader struct {
	Type   PPPoETagType
	Length uint16
}

func decodeTags(buf []byte) ([]*PPPoETag, error) {
	var tags []*PPPoETag
	r := bytes.NewReader(buf)
	for r.Len() >= 4 {
		var hdr pppoeTagHeader
		cursor, _ := r.Seek(0, io.SeekCurrent)
		if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
			return nil, newErr(ErrDecode, "tag header: %v", err)
		}
		if int(hdr.Length) > r.Len() {
			return nil, newErr(ErrDecode, "tag length %d exceeds buffer", hdr.Length)
		}
		tags = append(tags, &PPPoETag{
			Type: hdr.Type,
			Data: append([]byte{}, buf[cursor+4:cursor+4+int64(hdr.Length)]...),
		})
		if _, err := r.Seek(int64(hdr.Length), io.SeekCurrent); err != nil {
			return nil, newErr(ErrDecode, "tag seek: %v", err)
		}
	}
	return tags, nil
}

// DecodePPPoEDiscovery decodes a PPPoE Discovery packet from buf,
// where buf begins at the PPPoE version/type byte (i.e. after the
// Ethernet header has already been stripped by DecodeEth).
func DecodePPPoEDiscovery(src, dst [6]byte, buf []byte) (*PPPoEPacket, error) {
	if len(buf) < 6 {
		return nil, newErr(ErrDecode, "pppoe discovery header truncated")
	}
	code := PPPoECode(buf[1])
	sid := binary.BigEndian.Uint16(buf[2:4])
	length := binary.BigEndian.Uint16(buf[4:6])
	if int(length) > len(buf)-6 {
		return nil, newErr(ErrDecode, "pppoe discovery length %d exceeds buffer", length)
	}
	tags, err := decodeTags(buf[6 : 6+int(length)])
	if err != nil {
		return nil, err
	}
	return &PPPoEPacket{
		SrcHWAddr: src,
		DstHWAddr: dst,
		Code:      code,
		SessionID: sid,
		Tags:      tags,
	}, nil
}

// EncodePPPoEDiscovery serializes a PPPoE Discovery packet, including
// the preceding Ethernet header.
func EncodePPPoEDiscovery(p *PPPoEPacket) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(p.DstHWAddr[:])
	buf.Write(p.SrcHWAddr[:])
	_ = binary.Write(buf, binary.BigEndian, uint16(EtherTypePPPoEDiscovery))
	buf.WriteByte(0x11) // Ver=1, Type=1
	buf.WriteByte(byte(p.Code))
	_ = binary.Write(buf, binary.BigEndian, p.SessionID)

	tagBuf := new(bytes.Buffer)
	for _, tag := range p.Tags {
		_ = binary.Write(tagBuf, binary.BigEndian, tag.Type)
		_ = binary.Write(tagBuf, binary.BigEndian, uint16(len(tag.Data)))
		tagBuf.Write(tag.Data)
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(tagBuf.Len()))
	buf.Write(tagBuf.Bytes())
	return buf.Bytes(), nil
}

// DecodePPPoESession decodes a PPPoE Session frame header (buf begins
// at the version/type byte); Payload is the embedded PPP frame.
func DecodePPPoESession(src, dst [6]byte, buf []byte) (*PPPoESessionFrame, error) {
	if len(buf) < 6 {
		return nil, newErr(ErrDecode, "pppoe session header truncated")
	}
	sid := binary.BigEndian.Uint16(buf[2:4])
	length := binary.BigEndian.Uint16(buf[4:6])
	if int(length) > len(buf)-6 {
		return nil, newErr(ErrDecode, "pppoe session length %d exceeds buffer", length)
	}
	return &PPPoESessionFrame{
		SrcHWAddr: src,
		DstHWAddr: dst,
		SessionID: sid,
		Payload:   append([]byte{}, buf[6:6+int(length)]...),
	}, nil
}

// EncodePPPoESession serializes a PPPoE Session frame including its
// Ethernet header.
func EncodePPPoESession(f *PPPoESessionFrame) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(f.DstHWAddr[:])
	buf.Write(f.SrcHWAddr[:])
	_ = binary.Write(buf, binary.BigEndian, uint16(EtherTypePPPoESession))
	buf.WriteByte(0x11)
	buf.WriteByte(0x00) // code 0x00 for Session data
	_ = binary.Write(buf, binary.BigEndian, f.SessionID)
	_ = binary.Write(buf, binary.BigEndian, uint16(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// Validate checks a discovery packet against the RFC2516 requirements
// for its code (mandatory tags, session ID zero/nonzero).
func (p *PPPoEPacket) Validate() error {
	type spec struct {
		zeroSessionID bool
		mandatory     []PPPoETagType
	}
	var s spec
	switch p.Code {
	case PPPoECodePADI:
		s = spec{true, []PPPoETagType{PPPoETagTypeServiceName}}
	case PPPoECodePADO:
		s = spec{true, []PPPoETagType{PPPoETagTypeServiceName, PPPoETagTypeACName}}
	case PPPoECodePADR:
		s = spec{true, []PPPoETagType{PPPoETagTypeServiceName}}
	case PPPoECodePADT:
		s = spec{false, nil}
	case PPPoECodePADS:
		if p.SessionID == 0 {
			s = spec{true, []PPPoETagType{PPPoETagTypeServiceNameError}}
		} else {
			s = spec{false, []PPPoETagType{PPPoETagTypeServiceName}}
		}
	default:
		return newErr(ErrDecode, "unrecognised pppoe code %#x", byte(p.Code))
	}
	if s.zeroSessionID && p.SessionID != 0 {
		return newErr(ErrDecode, "nonzero session id in %v", p.Code)
	}
	if !s.zeroSessionID && p.SessionID == 0 {
		return newErr(ErrDecode, "zero session id in %v", p.Code)
	}
	for _, t := range s.mandatory {
		if _, err := findTag(t, p.Tags); err != nil {
			return newErr(ErrDecode, "missing mandatory tag %v in %v", t, p.Code)
		}
	}
	return nil
}
