package protocol

import (
	"reflect"
	"testing"
)

func TestDHCPv4EncodeDecodeRoundTrip(t *testing.T) {
	in := &DHCPv4Packet{
		Op:     1,
		XID:    0xdeadbeef,
		Secs:   3,
		Flags:  0x8000,
		CIAddr: [4]byte{0, 0, 0, 0},
		YIAddr: [4]byte{192, 168, 1, 10},
		SIAddr: [4]byte{192, 168, 1, 1},
		GIAddr: [4]byte{0, 0, 0, 0},
		CHAddr: [16]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		Options: []DHCPv4Option{
			{Code: DHCPOptMessageType, Data: []byte{byte(DHCPDiscover)}},
			{Code: DHCPOptParamReqList, Data: []byte{DHCPOptSubnetMask, DHCPOptRouter, DHCPOptDNS}},
			{Code: DHCPOptClientID, Data: []byte("client-identifier")},
		},
	}
	buf := EncodeDHCPv4(in)
	got, err := DecodeDHCPv4(buf)
	if err != nil {
		t.Fatalf("DecodeDHCPv4: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, in)
	}
	if got.MessageType() != DHCPDiscover {
		t.Fatalf("MessageType() = %v, want %v", got.MessageType(), DHCPDiscover)
	}
}

func TestDHCPv4DecodeRejectsBadMagicCookie(t *testing.T) {
	buf := EncodeDHCPv4(&DHCPv4Packet{Op: 1})
	buf[236] ^= 0xff
	if _, err := DecodeDHCPv4(buf); err == nil {
		t.Fatalf("DecodeDHCPv4 accepted a corrupted magic cookie")
	}
}

func TestDHCPv4OptionLookupMiss(t *testing.T) {
	p := &DHCPv4Packet{}
	if _, ok := p.Option(DHCPOptRouter); ok {
		t.Fatalf("Option found a router option that was never set")
	}
}
