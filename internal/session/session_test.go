package session

import (
	"net"
	"testing"
	"time"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

func newTestRegistry() *Registry {
	return NewRegistry(timer.NewRoot(func() time.Time { return time.Unix(0, 0) }))
}

func TestRegistryAcquireReleaseReuse(t *testing.T) {
	r := newTestRegistry()
	key := Key{Ifindex: 1, OuterVLAN: 100, InnerVLAN: 200}

	s1, err := r.Acquire(key, KindPPPoE)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	if _, err := r.Acquire(key, KindPPPoE); err == nil {
		t.Fatalf("expected error acquiring duplicate key")
	}

	r.Release(s1)
	if r.Count() != 0 {
		t.Fatalf("Count() after release = %d, want 0", r.Count())
	}

	s2, err := r.Acquire(key, KindIPoE)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatalf("expected idle-list reuse to preserve session id: got %d, want %d", s2.ID, s1.ID)
	}
	if s2.Kind != KindIPoE {
		t.Fatalf("reused session did not reset kind")
	}
	if s2.Top.Current != StateIdle {
		t.Fatalf("reused session top state = %q, want Idle", s2.Top.Current)
	}
}

func TestPPPoETopTransitions(t *testing.T) {
	f := FSM{Current: StateIdle, Table: pppoeTopTable}
	steps := []struct {
		event string
		want  string
	}{
		{EvStart, StatePPPoEInit},
		{EvPADORx, StatePPPoERequest},
		{EvPADSRx, StatePPPoEEstablished},
		{EvStart, StateLCPInit},
		{EvLCPUp, StateLCPAuth},
		{EvAuthOK, StatePPPAuth},
		{EvNCPUp, StateNetwork},
	}
	for _, s := range steps {
		if err := f.HandleEvent(s.event); err != nil {
			t.Fatalf("event %q: %v", s.event, err)
		}
		if f.Current != s.want {
			t.Fatalf("after %q: state = %q, want %q", s.event, f.Current, s.want)
		}
	}
}

func TestLCPEvaluateConfReqRejectsUnknownOption(t *testing.T) {
	m := NewLCPMachine()
	req := &protocol.ControlPacket{
		Options: []protocol.Option{{Type: 0x99, Data: []byte{1, 2}}},
	}
	code, opts := m.EvaluateConfReq(req)
	if code != protocol.CodeConfigureReject {
		t.Fatalf("code = %v, want CodeConfigureReject (%v)", code, protocol.CodeConfigureReject)
	}
	if len(opts) != 1 {
		t.Fatalf("opts = %v, want 1 rejected option", opts)
	}
}

func testGroupIP(i int) net.IP {
	return net.IPv4(239, 1, 1, byte(i))
}

func testSourceIP(i int) net.IP {
	return net.IPv4(192, 0, 2, byte(i))
}

func TestGroupTableBounds(t *testing.T) {
	gt := NewGroupTable()
	for i := 0; i < MaxGroups; i++ {
		if err := gt.Join(testGroupIP(i), nil); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if err := gt.Join(testGroupIP(MaxGroups), nil); err == nil {
		t.Fatalf("expected error joining beyond MaxGroups")
	}

	gt2 := NewGroupTable()
	g := testGroupIP(0)
	for i := 0; i < MaxSourcesPerGroup; i++ {
		if err := gt2.Join(g, testSourceIP(i)); err != nil {
			t.Fatalf("join source %d: %v", i, err)
		}
	}
	if err := gt2.Join(g, testSourceIP(MaxSourcesPerGroup)); err == nil {
		t.Fatalf("expected error joining beyond MaxSourcesPerGroup")
	}
}
