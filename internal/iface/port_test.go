package iface

import "testing"

func TestSendResultString(t *testing.T) {
	cases := map[SendResult]string{
		SendOK:    "OK",
		SendFull:  "FULL",
		SendError: "ERROR",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("SendResult(%d).String() = %q, want %q", r, got, want)
		}
	}
}

func TestCountersEWMASmoothsTowardRate(t *testing.T) {
	var c txrxCounters
	c.packets = 100
	c.bytes = 6400
	c.sample(1.0)
	if c.ppsEWMA != ewmaAlpha*100 {
		t.Fatalf("first sample should weight purely by alpha: got %v", c.ppsEWMA)
	}

	c.packets = 200
	c.bytes = 12800
	c.sample(1.0)
	want := ewmaAlpha*100 + (1-ewmaAlpha)*(ewmaAlpha*100)
	if diff := c.ppsEWMA - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("ppsEWMA = %v, want %v", c.ppsEWMA, want)
	}
}

func TestHtons(t *testing.T) {
	if got := htons(0x0003); got != 0x0300 {
		t.Fatalf("htons(0x0003) = %#x, want 0x0300", got)
	}
}
