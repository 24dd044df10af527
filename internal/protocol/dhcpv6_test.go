package protocol

import (
	"reflect"
	"testing"
)

func TestDHCPv6EncodeDecodeRoundTrip(t *testing.T) {
	iaAddr := BuildIAAddrOption([16]byte{0x20, 0x01, 0x0d, 0xb8}, 3600, 7200)
	iana := BuildIANAOption(1, 1800, 2880, []DHCPv6Option{iaAddr})

	in := &DHCPv6Packet{
		Type:          DHCPv6Solicit,
		TransactionID: [3]byte{0x11, 0x22, 0x33},
		Options: []DHCPv6Option{
			{Code: DHCPv6OptClientID, Data: []byte{0x00, 0x01, 0x00, 0x01}},
			iana,
			{Code: DHCPv6OptRapidCommit, Data: []byte{}},
		},
	}
	buf := EncodeDHCPv6(in)
	got, err := DecodeDHCPv6(buf)
	if err != nil {
		t.Fatalf("DecodeDHCPv6: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, in)
	}
	v, ok := got.Option(DHCPv6OptIANA)
	if !ok {
		t.Fatalf("IA_NA option missing after round trip")
	}
	if len(v) != 12+4+len(iaAddr.Data) {
		t.Fatalf("IA_NA option length = %d, want %d", len(v), 12+4+len(iaAddr.Data))
	}
}

func TestDHCPv6OptionLookupMiss(t *testing.T) {
	p := &DHCPv6Packet{}
	if _, ok := p.Option(DHCPv6OptServerID); ok {
		t.Fatalf("Option found a server-id option that was never set")
	}
}
