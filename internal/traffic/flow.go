// Package traffic implements the synthetic payload generator and
// verifier: per-flow sequence tracking, one-way delay measurement and
// loss accounting, session traffic verification, IGMP join/leave
// robustness and delay metrics, and a CFM continuity-check flow type
// sharing the same sequence/loss machinery (spec.md §4.6, supplemented
// per spec.md §4.7's CFM control-socket handlers with no other home).
package traffic

import (
	"time"

	"github.com/domthera/bngblaster/internal/protocol"
)

// Direction distinguishes flows generated toward the network (access
// to network, "up") from those generated toward the access side
// ("down").
type Direction uint8

const (
	DirectionUp Direction = iota
	DirectionDown
)

// AddressFamily identifies which BBL sub-type a flow carries.
type AddressFamily uint8

const (
	FamilyIPv4   AddressFamily = AddressFamily(protocol.BBLSubTypeIPv4)
	FamilyIPv6   AddressFamily = AddressFamily(protocol.BBLSubTypeIPv6)
	FamilyIPv6PD AddressFamily = AddressFamily(protocol.BBLSubTypeIPv6PD)
)

// FlowKind distinguishes a BBL session-traffic flow from a CFM
// continuity-check flow: both carry a monotonic sequence and are
// verified the same way. buildPacket stamps the same BBL trailer for
// both kinds; no CFM-specific payload is encoded or decoded.
type FlowKind uint8

const (
	FlowKindBBL FlowKind = iota
	FlowKindCFM
)

// Flow is one generator/verifier pair keyed by a globally unique
// 64-bit flow id (spec.md §GLOSSARY "Flow (traffic)").
type Flow struct {
	ID        uint64
	Kind      FlowKind
	Type      protocol.BBLType
	Family    AddressFamily
	Direction Direction

	SessionID uint32
	OuterVLAN uint16
	InnerVLAN uint16

	// Template is the pre-built L2/L3 frame this flow stamps a BBL (or
	// CFM) trailer onto before each send; TemplateBBLOffset is where in
	// Template the trailer's first byte belongs.
	Template          []byte
	TemplateBBLOffset int

	TargetPPS float64
	Enabled   bool

	// Generator state.
	txSeq         uint64
	carryPackets  float64
	lastTickTime  time.Time

	// Verifier state.
	RxFirstSeq uint64
	RxLastSeq  uint64
	RxPackets  uint64
	Loss       uint64
	OutOfOrder uint64
	MinDelay   time.Duration
	MaxDelay   time.Duration
	SumDelay   time.Duration
	RxBytes    uint64
	Verified   bool // true once the first RX packet has been seen

	// CFM-only: remote defect indication, toggled by the control
	// socket independently of sequence/loss tracking.
	RDI bool
}

// NewFlow constructs a Flow ready to be registered with an Engine.
func NewFlow(id uint64, kind FlowKind, typ protocol.BBLType, family AddressFamily, dir Direction, sessionID uint32, targetPPS float64, template []byte, bblOffset int) *Flow {
	return &Flow{
		ID:                id,
		Kind:              kind,
		Type:              typ,
		Family:            family,
		Direction:         dir,
		SessionID:         sessionID,
		Template:          template,
		TemplateBBLOffset: bblOffset,
		TargetPPS:         targetPPS,
		Enabled:           true,
	}
}

// budgetForInterval computes how many packets this flow should emit in
// one TX tick of the given interval, carrying any fractional remainder
// forward so a flow with a target pps below 1/interval still emits at
// the right long-run rate (spec.md §4.6: "computes packets-per-
// interval from target pps and the global TX interval").
func (f *Flow) budgetForInterval(interval time.Duration) int {
	perTick := f.TargetPPS * interval.Seconds()
	f.carryPackets += perTick
	budget := int(f.carryPackets)
	f.carryPackets -= float64(budget)
	return budget
}

// buildPacket stamps a fresh BBL trailer (sequence, timestamp) onto a
// copy of the flow's template and returns the wire-ready frame.
func (f *Flow) buildPacket(now time.Time) []byte {
	f.txSeq++
	buf := append([]byte{}, f.Template...)
	hdr := &protocol.BBLHeader{
		Type:         f.Type,
		SubType:      protocol.BBLSubType(f.Family),
		Direction:    bblDirection(f.Direction),
		SessionID:    f.SessionID,
		OuterVLAN:    f.OuterVLAN,
		InnerVLAN:    f.InnerVLAN,
		FlowID:       f.ID,
		FlowSeq:      f.txSeq,
		TimestampSec: uint32(now.Unix()),
		TimestampNS:  uint32(now.Nanosecond()),
	}
	copy(buf[f.TemplateBBLOffset:], protocol.EncodeBBL(hdr))
	return buf
}

func bblDirection(d Direction) protocol.BBLDirection {
	if d == DirectionUp {
		return protocol.BBLDirectionUp
	}
	return protocol.BBLDirectionDown
}

// verify applies one received BBL trailer to the flow's counters
// (spec.md §4.6 "Flow verification"): first packet marks Verified and
// seeds RxFirstSeq; a non-successor sequence counts as exactly one
// loss/out-of-order event regardless of gap size; one-way delay is
// rx-tx, with min only updated when strictly smaller (or unset).
func (f *Flow) verify(hdr *protocol.BBLHeader, rxTime time.Time, rxBytes int) {
	f.RxPackets++
	f.RxBytes += uint64(rxBytes)

	var outOfOrder bool
	if !f.Verified {
		f.Verified = true
		f.RxFirstSeq = hdr.FlowSeq
		f.RxLastSeq = hdr.FlowSeq
	} else if hdr.FlowSeq != f.RxLastSeq+1 {
		f.Loss++
		if hdr.FlowSeq <= f.RxLastSeq {
			f.OutOfOrder++
			outOfOrder = true
		} else {
			f.RxLastSeq = hdr.FlowSeq
		}
	} else {
		f.RxLastSeq = hdr.FlowSeq
	}

	txTime := time.Unix(int64(hdr.TimestampSec), int64(hdr.TimestampNS))
	delay := rxTime.Sub(txTime)
	if delay < 0 {
		delay = 0
	}
	if !outOfOrder && (f.MinDelay == 0 || delay < f.MinDelay) {
		f.MinDelay = delay
	}
	if delay > f.MaxDelay {
		f.MaxDelay = delay
	}
	f.SumDelay += delay
}

// ResetSequenceBaseline restores the verifier to its pre-stop state
// (spec.md §8: "traffic-stop; traffic-start returns the verifier to
// the pre-stop sequence baseline"): the next received sequence is
// treated as a fresh RxFirstSeq rather than compared against the last
// one seen before the stop.
func (f *Flow) ResetSequenceBaseline() {
	f.Verified = false
	f.RxFirstSeq = 0
	f.RxLastSeq = 0
}
