package protocol

import (
	"net"
	"reflect"
	"testing"
)

func TestICMPv6EncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *ICMPv6Packet
	}{
		{
			name: "router solicitation",
			in: &ICMPv6Packet{
				Type: ICMPv6TypeRouterSolicitation,
				Code: 0,
			},
		},
		{
			name: "router advertisement",
			in: &ICMPv6Packet{
				Type:           ICMPv6TypeRouterAdvertisement,
				Code:           0,
				CurHopLimit:    64,
				RouterFlag:     true,
				RouterLifetime: 1800,
				ReachableTime:  30000,
				RetransTimer:   1000,
			},
		},
		{
			name: "neighbor solicitation with source link-layer option",
			in: &ICMPv6Packet{
				Type:          ICMPv6TypeNeighborSolicitation,
				Code:          0,
				TargetAddress: net.ParseIP("fe80::1").To16(),
				Options: []NDOption{
					{Type: NDOptSourceLinkLayerAddr, Data: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}},
				},
			},
		},
		{
			name: "neighbor advertisement solicited+override",
			in: &ICMPv6Packet{
				Type:          ICMPv6TypeNeighborAdvertisement,
				Code:          0,
				SolicitedFlag: true,
				OverrideFlag:  true,
				TargetAddress: net.ParseIP("2001:db8::1").To16(),
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodeICMPv6(c.in)
			if err != nil {
				t.Fatalf("EncodeICMPv6: %v", err)
			}
			got, err := DecodeICMPv6(buf)
			if err != nil {
				t.Fatalf("DecodeICMPv6: %v", err)
			}
			// Encode always writes a zero checksum; the input struct's
			// Checksum (if any) is never serialized.
			c.in.Checksum = 0
			if !reflect.DeepEqual(got, c.in) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c.in)
			}
		})
	}
}
