package traffic

import (
	"net"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/session"
	"github.com/domthera/bngblaster/internal/timer"
)

func TestFlowBudgetForIntervalCarriesFraction(t *testing.T) {
	f := &Flow{TargetPPS: 100}
	total := 0
	for i := 0; i < 10; i++ {
		total += f.budgetForInterval(10 * time.Millisecond)
	}
	if total != 10 {
		t.Fatalf("total budget over 100ms at 100pps = %d, want 10", total)
	}
}

func TestFlowVerifyFirstPacketMarksVerified(t *testing.T) {
	f := &Flow{}
	now := time.Unix(100, 0)
	hdr := &protocol.BBLHeader{FlowSeq: 1, TimestampSec: 99, TimestampNS: 0}
	f.verify(hdr, now, 64)
	if !f.Verified {
		t.Fatalf("first packet did not mark Verified")
	}
	if f.Loss != 0 {
		t.Fatalf("first packet counted as loss")
	}
	if f.MinDelay != time.Second {
		t.Fatalf("MinDelay = %v, want 1s", f.MinDelay)
	}
}

func TestFlowVerifyGapCountsSingleLoss(t *testing.T) {
	f := &Flow{}
	now := time.Unix(100, 0)
	f.verify(&protocol.BBLHeader{FlowSeq: 1, TimestampSec: 100}, now, 64)
	f.verify(&protocol.BBLHeader{FlowSeq: 5, TimestampSec: 100}, now, 64) // gap of 4
	if f.Loss != 1 {
		t.Fatalf("Loss = %d, want 1 (gap size must not matter)", f.Loss)
	}
}

func TestFlowVerifyOutOfOrderCountsAsLossNotMinDelay(t *testing.T) {
	f := &Flow{}
	base := time.Unix(100, 0)
	// first packet arrives in order with a 500ms one-way delay, seeding MinDelay.
	f.verify(&protocol.BBLHeader{FlowSeq: 5, TimestampSec: 100}, base.Add(500*time.Millisecond), 64)
	if f.MinDelay != 500*time.Millisecond {
		t.Fatalf("MinDelay after first packet = %v, want 500ms", f.MinDelay)
	}
	// an older sequence arrives late, with a smaller *positive* apparent
	// delay; it must count as loss/out-of-order and must not pull
	// MinDelay down to its own smaller delay.
	f.verify(&protocol.BBLHeader{FlowSeq: 3, TimestampSec: 100}, base.Add(100*time.Millisecond), 64)
	if f.OutOfOrder != 1 {
		t.Fatalf("OutOfOrder = %d, want 1", f.OutOfOrder)
	}
	if f.Loss != 1 {
		t.Fatalf("Loss = %d, want 1", f.Loss)
	}
	if f.MinDelay != 500*time.Millisecond {
		t.Fatalf("MinDelay = %v, want unchanged 500ms", f.MinDelay)
	}
}

func TestFlowResetSequenceBaseline(t *testing.T) {
	f := &Flow{}
	f.verify(&protocol.BBLHeader{FlowSeq: 9, TimestampSec: 0}, time.Unix(0, 0), 64)
	f.ResetSequenceBaseline()
	if f.Verified {
		t.Fatalf("ResetSequenceBaseline left Verified set")
	}
	f.verify(&protocol.BBLHeader{FlowSeq: 1, TimestampSec: 0}, time.Unix(0, 0), 64)
	if f.Loss != 0 {
		t.Fatalf("first packet after reset counted as loss: %d", f.Loss)
	}
}

func newTestEngine(t *testing.T) (*Engine, *session.Registry) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	reg := session.NewRegistry(tr)
	e := NewEngine(log.NewNopLogger(), tr, reg)
	return e, reg
}

func TestEngineReceiveBBLFlipsSessionVerified(t *testing.T) {
	e, reg := newTestEngine(t)
	s, err := reg.Acquire(session.Key{Ifindex: 1, OuterVLAN: 10}, session.KindPPPoE)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s.TrafficVerified.ExpectIPv4 = true

	f := NewFlow(1, FlowKindBBL, protocol.BBLTypeUnicast, FamilyIPv4, DirectionUp, s.ID, 10, make([]byte, protocol.BBLHeaderLen), 0)
	e.AddFlow(f)

	frame := f.buildPacket(time.Unix(1, 0))
	e.ReceiveBBL(frame, time.Unix(2, 0))

	if !s.TrafficVerified.IPv4Up {
		t.Fatalf("session IPv4Up not flipped after ReceiveBBL")
	}
	if e.VerifiedFlows != 1 {
		t.Fatalf("VerifiedFlows = %d, want 1", e.VerifiedFlows)
	}
}

func TestEngineStartStopResetsVerifier(t *testing.T) {
	e, _ := newTestEngine(t)
	f := NewFlow(1, FlowKindBBL, protocol.BBLTypeUnicast, FamilyIPv4, DirectionUp, 1, 10, make([]byte, protocol.BBLHeaderLen), 0)
	e.AddFlow(f)
	f.verify(&protocol.BBLHeader{FlowSeq: 5}, time.Unix(0, 0), 64)

	e.Start()
	if !e.Running() {
		t.Fatalf("engine not running after Start")
	}
	e.Stop()
	if e.Running() {
		t.Fatalf("engine still running after Stop")
	}
	if f.Verified {
		t.Fatalf("Stop did not reset flow verifier baseline")
	}
}

func TestEngineTickRespectsBudget(t *testing.T) {
	e, _ := newTestEngine(t)
	f := NewFlow(1, FlowKindBBL, protocol.BBLTypeUnicast, FamilyIPv4, DirectionUp, 1, 100, make([]byte, protocol.BBLHeaderLen), 0)
	e.AddFlow(f)
	var sent int
	e.Transmit = func(flow *Flow, frame []byte) { sent++ }
	e.txInterval = 10 * time.Millisecond
	e.tick()
	if sent != 1 {
		t.Fatalf("tick sent %d packets, want 1 (100pps * 10ms)", sent)
	}
}

func TestGroupJoinTransitionsToActiveOnFirstRx(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	g := NewGroup(1, net.ParseIP("239.1.1.1"))
	sent := 0
	g.Join(now, tr, func() { sent++ })
	if g.State() != GroupJoining {
		t.Fatalf("state after Join = %s, want %s", g.State(), GroupJoining)
	}
	if sent != 1 {
		t.Fatalf("Join did not send an immediate report")
	}
	g.ReceiveTraffic(now.Add(50 * time.Millisecond))
	if g.State() != GroupActive {
		t.Fatalf("state after first RX = %s, want %s", g.State(), GroupActive)
	}
	if g.JoinDelay != 50*time.Millisecond {
		t.Fatalf("JoinDelay = %v, want 50ms", g.JoinDelay)
	}
}

func TestGroupLeaveComputesDelayFromLastRx(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	g := NewGroup(1, net.ParseIP("239.1.1.1"))
	g.Join(now, tr, func() {})
	g.ReceiveTraffic(now.Add(10 * time.Millisecond))

	leaveAt := now.Add(time.Second)
	g.Leave(leaveAt, tr, func() {})
	g.ReceiveTraffic(leaveAt.Add(20 * time.Millisecond))
	g.CompleteLeave()

	if g.State() != GroupIdle {
		t.Fatalf("state after CompleteLeave = %s, want %s", g.State(), GroupIdle)
	}
	if g.LeaveDelay != 20*time.Millisecond {
		t.Fatalf("LeaveDelay = %v, want 20ms", g.LeaveDelay)
	}
}

func TestCFMSessionStartStopRDI(t *testing.T) {
	f := &Flow{}
	c := NewCFMSession(1, f)
	if f.Kind != FlowKindCFM {
		t.Fatalf("NewCFMSession did not set FlowKindCFM")
	}
	c.Start()
	if !f.Enabled {
		t.Fatalf("Start did not enable flow")
	}
	c.SetRDI(true)
	if !f.RDI {
		t.Fatalf("SetRDI did not set RDI flag")
	}
	c.Stop()
	if f.Enabled {
		t.Fatalf("Stop did not disable flow")
	}
}
