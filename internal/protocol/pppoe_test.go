package protocol

import (
	"reflect"
	"testing"
)

const ethHeaderLen = 14

func TestPPPoEDiscoveryEncodeDecodeRoundTrip(t *testing.T) {
	src := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dst := [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	vendorTag := BuildVendorSpecificTag([]AccessLineSubOption{
		{Type: BBFSubOptAgentCircuitID, Data: []byte("circuit-1")},
		{Type: BBFSubOptAgentRemoteID, Data: []byte("remote-1")},
	})

	in := &PPPoEPacket{
		SrcHWAddr: src,
		DstHWAddr: dst,
		Code:      PPPoECodePADI,
		SessionID: 0,
		Tags: []*PPPoETag{
			{Type: PPPoETagTypeServiceName, Data: []byte{}},
			{Type: PPPoETagTypeHostUniq, Data: []byte{0x01, 0x02, 0x03, 0x04}},
			vendorTag,
		},
	}
	buf, err := EncodePPPoEDiscovery(in)
	if err != nil {
		t.Fatalf("EncodePPPoEDiscovery: %v", err)
	}
	if len(buf) < ethHeaderLen {
		t.Fatalf("encoded discovery frame shorter than an ethernet header: %d bytes", len(buf))
	}
	got, err := DecodePPPoEDiscovery(src, dst, buf[ethHeaderLen:])
	if err != nil {
		t.Fatalf("DecodePPPoEDiscovery: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, in)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	subs, err := ParseVendorSpecificTag(vendorTag)
	if err != nil {
		t.Fatalf("ParseVendorSpecificTag: %v", err)
	}
	if len(subs) != 2 || string(subs[0].Data) != "circuit-1" || string(subs[1].Data) != "remote-1" {
		t.Fatalf("ParseVendorSpecificTag mismatch: %+v", subs)
	}
}

func TestPPPoESessionEncodeDecodeRoundTrip(t *testing.T) {
	src := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dst := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	in := &PPPoESessionFrame{
		SrcHWAddr: src,
		DstHWAddr: dst,
		SessionID: 0x1234,
		Payload:   []byte{0xc0, 0x21, 0x01, 0x02, 0x00, 0x04},
	}
	buf, err := EncodePPPoESession(in)
	if err != nil {
		t.Fatalf("EncodePPPoESession: %v", err)
	}
	got, err := DecodePPPoESession(src, dst, buf[ethHeaderLen:])
	if err != nil {
		t.Fatalf("DecodePPPoESession: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, in)
	}
}

func TestPPPoEValidateRejectsMissingMandatoryTag(t *testing.T) {
	p := &PPPoEPacket{Code: PPPoECodePADI, SessionID: 0}
	if err := p.Validate(); err == nil {
		t.Fatalf("Validate accepted a PADI with no Service-Name tag")
	}
}

func TestPPPoECodeString(t *testing.T) {
	if PPPoECodePADI.String() != "PADI" {
		t.Fatalf("PADI.String() = %q, want PADI", PPPoECodePADI.String())
	}
	if PPPoECode(0xff).String() != "???" {
		t.Fatalf("unrecognised code String() = %q, want ???", PPPoECode(0xff).String())
	}
}
