package protocol

import (
	"reflect"
	"testing"
)

func TestControlPacketEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *ControlPacket
	}{
		{
			name: "lcp configure-request with options",
			in: &ControlPacket{
				Protocol: PPPProtoLCP,
				Code:     CodeConfigureRequest,
				ID:       1,
				Options: []Option{
					{Type: LCPOptMRU, Data: []byte{0x05, 0xd4}},
					{Type: LCPOptAuth, Data: []byte{0xc0, 0x23}},
					{Type: LCPOptMagic, Data: []byte{0x01, 0x02, 0x03, 0x04}},
				},
			},
		},
		{
			name: "ipcp configure-ack",
			in: &ControlPacket{
				Protocol: PPPProtoIPCP,
				Code:     CodeConfigureAck,
				ID:       2,
				Options: []Option{
					{Type: IPCPOptAddress, Data: []byte{10, 0, 0, 1}},
				},
			},
		},
		{
			name: "lcp echo-request carries raw data",
			in: &ControlPacket{
				Protocol: PPPProtoLCP,
				Code:     CodeEchoRequest,
				ID:       3,
				Data:     []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
		{
			name: "lcp terminate-request empty data",
			in: &ControlPacket{
				Protocol: PPPProtoLCP,
				Code:     CodeTerminateRequest,
				ID:       4,
				Data:     []byte{},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodeControlPacket(c.in)
			if err != nil {
				t.Fatalf("EncodeControlPacket: %v", err)
			}
			got, err := DecodeControlPacket(c.in.Protocol, buf)
			if err != nil {
				t.Fatalf("DecodeControlPacket: %v", err)
			}
			if !reflect.DeepEqual(got, c.in) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c.in)
			}
		})
	}
}

func TestFindOption(t *testing.T) {
	opts := []Option{{Type: LCPOptMRU, Data: []byte{0x05, 0xd4}}}
	if _, ok := FindOption(opts, LCPOptAuth); ok {
		t.Fatalf("FindOption found an option that was never set")
	}
	o, ok := FindOption(opts, LCPOptMRU)
	if !ok || len(o.Data) != 2 {
		t.Fatalf("FindOption did not return the MRU option")
	}
}

func TestPAPEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *PAPPacket
	}{
		{
			name: "authenticate request",
			in:   &PAPPacket{Code: PAPCodeAuthenticateRequest, ID: 1, PeerID: "subscriber1", Password: "hunter2"},
		},
		{
			name: "authenticate ack",
			in:   &PAPPacket{Code: PAPCodeAuthenticateAck, ID: 1, Message: "welcome"},
		},
		{
			name: "authenticate nak",
			in:   &PAPPacket{Code: PAPCodeAuthenticateNak, ID: 1, Message: "denied"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodePAP(c.in)
			if err != nil {
				t.Fatalf("EncodePAP: %v", err)
			}
			got, err := DecodePAP(buf)
			if err != nil {
				t.Fatalf("DecodePAP: %v", err)
			}
			if !reflect.DeepEqual(got, c.in) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c.in)
			}
		})
	}
}

func TestCHAPEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *CHAPPacket
	}{
		{
			name: "challenge",
			in:   &CHAPPacket{Code: CHAPCodeChallenge, ID: 9, Value: []byte{0x01, 0x02, 0x03, 0x04}, Name: "lns1"},
		},
		{
			name: "response",
			in:   &CHAPPacket{Code: CHAPCodeResponse, ID: 9, Value: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99}, Name: "subscriber1"},
		},
		{
			name: "success",
			in:   &CHAPPacket{Code: CHAPCodeSuccess, ID: 9, Message: "authenticated"},
		},
		{
			name: "failure",
			in:   &CHAPPacket{Code: CHAPCodeFailure, ID: 9, Message: "auth failed"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodeCHAP(c.in)
			if err != nil {
				t.Fatalf("EncodeCHAP: %v", err)
			}
			got, err := DecodeCHAP(buf)
			if err != nil {
				t.Fatalf("DecodeCHAP: %v", err)
			}
			if !reflect.DeepEqual(got, c.in) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c.in)
			}
		})
	}
}

func TestDecodePPPHeader(t *testing.T) {
	buf := []byte{0xc0, 0x21, 0x01, 0x02, 0x03}
	proto, rest, err := DecodePPPHeader(buf)
	if err != nil {
		t.Fatalf("DecodePPPHeader: %v", err)
	}
	if proto != PPPProtoLCP {
		t.Fatalf("proto = %#x, want %#x", proto, PPPProtoLCP)
	}
	if len(rest) != 3 {
		t.Fatalf("rest len = %d, want 3", len(rest))
	}
}
