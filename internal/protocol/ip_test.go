package protocol

import (
	"net"
	"testing"
)

func TestIPv4EncodeDecodeRoundTrip(t *testing.T) {
	in := &IPv4Header{
		TOS:      0x10,
		ID:       0x1234,
		Flags:    0x2, // don't fragment
		FragOff:  0,
		TTL:      64,
		Protocol: IPProtoUDP,
		Src:      net.IPv4(10, 0, 0, 1),
		Dst:      net.IPv4(10, 0, 0, 2),
	}
	payload := []byte("payload-bytes")
	buf, err := EncodeIPv4(in, payload)
	if err != nil {
		t.Fatalf("EncodeIPv4: %v", err)
	}
	got, err := DecodeIPv4(buf)
	if err != nil {
		t.Fatalf("DecodeIPv4: %v", err)
	}
	if got.HeaderLen != 20 {
		t.Fatalf("HeaderLen = %d, want 20", got.HeaderLen)
	}
	if got.TOS != in.TOS || got.ID != in.ID || got.Flags != in.Flags || got.FragOff != in.FragOff {
		t.Fatalf("field mismatch: got %+v, want base fields of %+v", got, in)
	}
	if got.TTL != in.TTL || got.Protocol != in.Protocol {
		t.Fatalf("ttl/protocol mismatch: got %+v", got)
	}
	if !got.Src.Equal(in.Src) || !got.Dst.Equal(in.Dst) {
		t.Fatalf("address mismatch: got src=%v dst=%v, want src=%v dst=%v", got.Src, got.Dst, in.Src, in.Dst)
	}
	// TotalLen and Checksum are computed by Encode, not round-tripped
	// from the input struct.
	if int(got.TotalLen) != 20+len(payload) {
		t.Fatalf("TotalLen = %d, want %d", got.TotalLen, 20+len(payload))
	}
	if ipChecksum(buf[0:20]) != 0 {
		t.Fatalf("ipv4 header checksum does not verify")
	}
}

func TestIPv4RouterAlertDetected(t *testing.T) {
	// buf with a 24-byte IHL carrying the router alert option.
	buf := make([]byte, 24)
	buf[0] = 0x46 // version 4, IHL 6 (24 bytes)
	buf[9] = byte(IPProtoIGMP)
	buf[20] = IPv4RouterAlertOption
	buf[21] = 0x04
	h, err := DecodeIPv4(buf)
	if err != nil {
		t.Fatalf("DecodeIPv4: %v", err)
	}
	if !h.RouterAlert {
		t.Fatalf("router alert option not detected")
	}
}

func TestIPv6EncodeDecodeRoundTrip(t *testing.T) {
	in := &IPv6Header{
		TrafficClass: 0x12,
		FlowLabel:    0x54321,
		NextHeader:   IPProtoICMPv6,
		HopLimit:     255,
		Src:          net.ParseIP("fe80::1"),
		Dst:          net.ParseIP("ff02::1"),
	}
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	buf, err := EncodeIPv6(in, payload)
	if err != nil {
		t.Fatalf("EncodeIPv6: %v", err)
	}
	got, err := DecodeIPv6(buf)
	if err != nil {
		t.Fatalf("DecodeIPv6: %v", err)
	}
	if got.TrafficClass != in.TrafficClass || got.FlowLabel != in.FlowLabel {
		t.Fatalf("traffic class/flow label mismatch: got %+v", got)
	}
	if got.NextHeader != in.NextHeader || got.HopLimit != in.HopLimit {
		t.Fatalf("next header/hop limit mismatch: got %+v", got)
	}
	if !got.Src.Equal(in.Src) || !got.Dst.Equal(in.Dst) {
		t.Fatalf("address mismatch: got src=%v dst=%v", got.Src, got.Dst)
	}
	if int(got.PayloadLen) != len(payload) {
		t.Fatalf("PayloadLen = %d, want %d", got.PayloadLen, len(payload))
	}
	if got.HeaderLen != 40 {
		t.Fatalf("HeaderLen = %d, want 40", got.HeaderLen)
	}
}

func TestUDPEncodeDecodeRoundTrip(t *testing.T) {
	in := &UDPHeader{SrcPort: 67, DstPort: 68, Checksum: 0xbeef}
	payload := []byte("dhcp-payload")
	buf := EncodeUDP(in, payload)
	got, gotPayload, err := DecodeUDP(buf)
	if err != nil {
		t.Fatalf("DecodeUDP: %v", err)
	}
	if got.SrcPort != in.SrcPort || got.DstPort != in.DstPort {
		t.Fatalf("port mismatch: got %+v", got)
	}
	if got.Checksum != in.Checksum {
		t.Fatalf("Checksum = %#x, want %#x", got.Checksum, in.Checksum)
	}
	// Length is recomputed by Encode, not taken from the input struct.
	if int(got.Length) != 8+len(payload) {
		t.Fatalf("Length = %d, want %d", got.Length, 8+len(payload))
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}
