package protocol

import (
	"net"
	"reflect"
	"testing"
)

func TestEthEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *EthHeader
	}{
		{
			name: "untagged ipv4",
			in: &EthHeader{
				Dst:  net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
				Src:  net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
				Type: EtherTypeIPv4,
			},
		},
		{
			name: "single tag pppoe discovery",
			in: &EthHeader{
				Dst: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
				Src: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
				VLANs: []VLANTag{
					{TPID: EtherTypeVLAN, PCP: 3, DEI: true, VID: 100},
				},
				Type: EtherTypePPPoEDiscovery,
			},
		},
		{
			name: "qinq stacked tags ipv6",
			in: &EthHeader{
				Dst: net.HardwareAddr{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
				Src: net.HardwareAddr{0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b},
				VLANs: []VLANTag{
					{TPID: EtherTypeQinQ, PCP: 0, DEI: false, VID: 10},
					{TPID: EtherTypeVLAN, PCP: 7, DEI: false, VID: 20},
				},
				Type: EtherTypeIPv6,
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodeEth(c.in)
			if err != nil {
				t.Fatalf("EncodeEth: %v", err)
			}
			got, err := DecodeEth(buf)
			if err != nil {
				t.Fatalf("DecodeEth: %v", err)
			}
			if got.HeaderLen != len(buf) {
				t.Fatalf("HeaderLen = %d, want %d", got.HeaderLen, len(buf))
			}
			// HeaderLen is decode-only; the input struct never sets it.
			got.HeaderLen = 0
			if !reflect.DeepEqual(got, c.in) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c.in)
			}
		})
	}
}

func TestEthOuterInnerVLAN(t *testing.T) {
	h := &EthHeader{
		VLANs: []VLANTag{{VID: 10}, {VID: 20}},
	}
	if h.OuterVLAN() != 10 {
		t.Fatalf("OuterVLAN = %d, want 10", h.OuterVLAN())
	}
	if h.InnerVLAN() != 20 {
		t.Fatalf("InnerVLAN = %d, want 20", h.InnerVLAN())
	}
	untagged := &EthHeader{}
	if untagged.OuterVLAN() != 0 || untagged.InnerVLAN() != 0 {
		t.Fatalf("untagged frame reported nonzero VLAN")
	}
}
