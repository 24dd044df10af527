package protocol

import "encoding/binary"

// IS-IS PDU types (ISO 10589 / RFC1195), grounded on the PDU dispatch
// in original_source/src/isis/isis_lsp.c and isis.h.
type ISISPDUType uint8

const (
	ISISPDUL1LANHello ISISPDUType = 15
	ISISPDUL2LANHello ISISPDUType = 16
	ISISPDUP2PHello   ISISPDUType = 17
	ISISPDUL1LSP      ISISPDUType = 18
	ISISPDUL2LSP      ISISPDUType = 20
	ISISPDUL1CSNP     ISISPDUType = 24
	ISISPDUL2CSNP     ISISPDUType = 25
	ISISPDUL1PSNP     ISISPDUType = 26
	ISISPDUL2PSNP     ISISPDUType = 27
)

// ISIS TLV types referenced by this emulator.
const (
	ISISTLVAreaAddresses    uint8 = 1
	ISISTLVIsReachability   uint8 = 2
	ISISTLVISNeighbors      uint8 = 6
	ISISTLVPadding          uint8 = 8
	ISISTLVLSPEntries       uint8 = 9
	ISISTLVAuthentication   uint8 = 10
	ISISTLVExtIsReachability uint8 = 22
	ISISTLVProtocols        uint8 = 129
	ISISTLVIPv4IntAddress   uint8 = 132
	ISISTLVHostname         uint8 = 137
	ISISTLVExtIPv4Reach     uint8 = 135
	ISISTLVIPv6IntAddress   uint8 = 232
	ISISTLVIPv6Reach        uint8 = 236
)

const (
	ISISSystemIDLen = 6
	ISISLSPEntryLen = 16 // lifetime(2) + lsp_id(8 incl pseudonode+fragment) + seq(4) + checksum(2) -- see DecodeLSPEntries
)

// ISISCommonHeader is the 8-byte header shared by every IS-IS PDU
// (intradomain routing protocol discriminator, length indicator,
// version/protocol ID extension, ID length, PDU type, version,
// reserved, max area addresses).
type ISISCommonHeader struct {
	LengthIndicator uint8
	IDLength        uint8
	PDUType         ISISPDUType
	MaxAreaAddr     uint8
}

// ISISTLV is a single decoded Type-Length-Value record.
type ISISTLV struct {
	Type  uint8
	Value []byte
}

// ISISLSPEntry is one entry of an LSP Entries TLV (carried in CSNP and
// PSNP PDUs): remaining lifetime, LSP ID (system ID + pseudonode ID +
// fragment number), sequence number, checksum.
type ISISLSPEntry struct {
	RemainingLifetime uint16
	LSPID             [8]byte
	SeqNumber         uint32
	Checksum          uint16
}

// ISISPDU is the decoded variant for any IS-IS PDU. Fields not
// applicable to a given PDUType are left zero.
type ISISPDU struct {
	Header ISISCommonHeader

	// Hello (LAN and P2P)
	CircuitType   uint8
	SourceID      [ISISSystemIDLen]byte
	HoldingTime   uint16
	LocalCircuitID uint8
	LANPriority   uint8 // LAN hello only
	DISSystemID   [7]byte // LAN hello only, 0 if none

	// LSP
	PDULength   uint16
	LSPID       [8]byte
	SeqNumber   uint32
	LSPChecksum uint16
	LSPFlags    uint8

	// CSNP
	SourceIDCircuit [7]byte
	StartLSPID      [8]byte
	EndLSPID        [8]byte

	// PSNP shares SourceIDCircuit only.

	TLVs []ISISTLV
}

// DecodeISIS decodes the common header, type-specific fixed fields and
// the trailing TLV stream of an IS-IS PDU.
func DecodeISIS(buf []byte) (*ISISPDU, error) {
	if len(buf) < 8 {
		return nil, newErr(ErrDecode, "isis header truncated")
	}
	if buf[0] != 0x83 {
		return nil, newErr(ErrDecode, "bad isis ndpi discriminator %#x", buf[0])
	}
	p := &ISISPDU{
		Header: ISISCommonHeader{
			LengthIndicator: buf[1],
			IDLength:        buf[3],
			PDUType:         ISISPDUType(buf[4] & 0x1f),
			MaxAreaAddr:     buf[7],
		},
	}
	var off int
	switch p.Header.PDUType {
	case ISISPDUL1LANHello, ISISPDUL2LANHello:
		if len(buf) < 27 {
			return nil, newErr(ErrDecode, "isis lan hello truncated")
		}
		p.CircuitType = buf[8] & 0x03
		copy(p.SourceID[:], buf[9:15])
		p.HoldingTime = binary.BigEndian.Uint16(buf[15:17])
		// PDU length buf[17:19] not retained separately
		p.LANPriority = buf[19] & 0x7f
		copy(p.DISSystemID[:], buf[20:27])
		off = 27
	case ISISPDUP2PHello:
		if len(buf) < 20 {
			return nil, newErr(ErrDecode, "isis p2p hello truncated")
		}
		p.CircuitType = buf[8] & 0x03
		copy(p.SourceID[:], buf[9:15])
		p.HoldingTime = binary.BigEndian.Uint16(buf[15:17])
		p.LocalCircuitID = buf[19]
		off = 20
	case ISISPDUL1LSP, ISISPDUL2LSP:
		if len(buf) < 27 {
			return nil, newErr(ErrDecode, "isis lsp truncated")
		}
		p.PDULength = binary.BigEndian.Uint16(buf[8:10])
		copy(p.LSPID[:], buf[10:18])
		p.SeqNumber = binary.BigEndian.Uint32(buf[18:22])
		p.LSPChecksum = binary.BigEndian.Uint16(buf[22:24])
		p.LSPFlags = buf[24]
		off = 27
	case ISISPDUL1CSNP, ISISPDUL2CSNP:
		if len(buf) < 33 {
			return nil, newErr(ErrDecode, "isis csnp truncated")
		}
		copy(p.SourceIDCircuit[:], buf[10:17])
		copy(p.StartLSPID[:], buf[17:25])
		copy(p.EndLSPID[:], buf[25:33])
		off = 33
	case ISISPDUL1PSNP, ISISPDUL2PSNP:
		if len(buf) < 17 {
			return nil, newErr(ErrDecode, "isis psnp truncated")
		}
		copy(p.SourceIDCircuit[:], buf[10:17])
		off = 17
	default:
		return nil, newErr(ErrUnknownProtocol, "unhandled isis pdu type %d", p.Header.PDUType)
	}
	tlvs, err := decodeISISTLVs(buf[off:])
	if err != nil {
		return nil, err
	}
	p.TLVs = tlvs
	return p, nil
}

func decodeISISTLVs(buf []byte) ([]ISISTLV, error) {
	var tlvs []ISISTLV
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, newErr(ErrDecode, "isis tlv header truncated")
		}
		l := int(buf[1])
		if len(buf) < 2+l {
			return nil, newErr(ErrDecode, "isis tlv type %d length %d exceeds buffer", buf[0], l)
		}
		tlvs = append(tlvs, ISISTLV{Type: buf[0], Value: append([]byte{}, buf[2:2+l]...)})
		buf = buf[2+l:]
	}
	return tlvs, nil
}

// DecodeLSPEntries unpacks an LSP Entries TLV (type 9) value into its
// constituent entries.
func DecodeLSPEntries(value []byte) ([]ISISLSPEntry, error) {
	const entryLen = 16 // lifetime(2) + lsp_id(8) + seq(4) + checksum(2)
	if len(value)%entryLen != 0 {
		return nil, newErr(ErrDecode, "lsp entries tlv length %d not a multiple of %d", len(value), entryLen)
	}
	var entries []ISISLSPEntry
	for off := 0; off+entryLen <= len(value); off += entryLen {
		var e ISISLSPEntry
		e.RemainingLifetime = binary.BigEndian.Uint16(value[off : off+2])
		copy(e.LSPID[:], value[off+2:off+10])
		e.SeqNumber = binary.BigEndian.Uint32(value[off+10 : off+14])
		e.Checksum = binary.BigEndian.Uint16(value[off+14 : off+16])
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeLSPEntries packs LSP entries into an LSP Entries TLV value.
func EncodeLSPEntries(entries []ISISLSPEntry) []byte {
	buf := make([]byte, 0, len(entries)*16)
	for _, e := range entries {
		h := make([]byte, 16)
		binary.BigEndian.PutUint16(h[0:2], e.RemainingLifetime)
		copy(h[2:10], e.LSPID[:])
		binary.BigEndian.PutUint32(h[10:14], e.SeqNumber)
		binary.BigEndian.PutUint16(h[14:16], e.Checksum)
		buf = append(buf, h...)
	}
	return buf
}

// EncodeISIS serializes an IS-IS PDU. The caller is responsible for
// computing and patching the Fletcher checksum over the PDU once
// assembled (spec.md §4.5 references original_source's
// isis_checksum.h approach).
func EncodeISIS(p *ISISPDU) ([]byte, error) {
	var fixed []byte
	switch p.Header.PDUType {
	case ISISPDUL1LANHello, ISISPDUL2LANHello:
		fixed = make([]byte, 19)
		fixed[0] = p.CircuitType
		copy(fixed[1:7], p.SourceID[:])
		binary.BigEndian.PutUint16(fixed[7:9], p.HoldingTime)
		fixed[11] = 0x80 | p.LANPriority
		copy(fixed[12:19], p.DISSystemID[:])
	case ISISPDUP2PHello:
		fixed = make([]byte, 12)
		fixed[0] = p.CircuitType
		copy(fixed[1:7], p.SourceID[:])
		binary.BigEndian.PutUint16(fixed[7:9], p.HoldingTime)
		fixed[11] = p.LocalCircuitID
	case ISISPDUL1LSP, ISISPDUL2LSP:
		fixed = make([]byte, 19)
		copy(fixed[2:10], p.LSPID[:])
		binary.BigEndian.PutUint32(fixed[10:14], p.SeqNumber)
		binary.BigEndian.PutUint16(fixed[14:16], p.LSPChecksum)
		fixed[16] = p.LSPFlags
	case ISISPDUL1CSNP, ISISPDUL2CSNP:
		fixed = make([]byte, 25)
		copy(fixed[2:9], p.SourceIDCircuit[:])
		copy(fixed[9:17], p.StartLSPID[:])
		copy(fixed[17:25], p.EndLSPID[:])
	case ISISPDUL1PSNP, ISISPDUL2PSNP:
		fixed = make([]byte, 9)
		copy(fixed[2:9], p.SourceIDCircuit[:])
	default:
		return nil, newErr(ErrEncode, "unhandled isis pdu type %d", p.Header.PDUType)
	}
	header := make([]byte, 8)
	header[0] = 0x83
	header[1] = byte(8 + len(fixed))
	header[3] = ISISSystemIDLen
	header[4] = byte(p.Header.PDUType)
	header[5] = 1 // version
	header[7] = p.Header.MaxAreaAddr

	buf := append(header, fixed...)
	var pduLenOff = -1
	switch p.Header.PDUType {
	case ISISPDUL1LSP, ISISPDUL2LSP:
		pduLenOff = 8
	}
	for _, t := range p.TLVs {
		buf = append(buf, t.Type, byte(len(t.Value)))
		buf = append(buf, t.Value...)
	}
	if pduLenOff >= 0 {
		binary.BigEndian.PutUint16(buf[pduLenOff:pduLenOff+2], uint16(len(buf)))
	}
	return buf, nil
}
