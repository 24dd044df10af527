package traffic

import (
	"net"
	"time"

	"github.com/domthera/bngblaster/internal/timer"
)

// Multicast group states (spec.md §4.6: "IGMP joins/leaves transition
// a group entry through Idle -> Joining -> Active -> Leaving -> Idle
// with bounded robustness retries").
const (
	GroupIdle    = "idle"
	GroupJoining = "joining"
	GroupActive  = "active"
	GroupLeaving = "leaving"
)

// DefaultRobustness bounds how many times in total a join or leave
// report is sent (the initial report plus DefaultRobustness-1 retries,
// mirroring IGMP's Robustness Variable). When the retries run out a
// Leaving entry returns to Idle; a Joining entry stays Joining.
const DefaultRobustness = 2

// DefaultRetryInterval is the spacing between robustness retries.
const DefaultRetryInterval = time.Second

// Group is one multicast group membership under verification: its FSM
// state, retry bookkeeping, and join/leave delay metrics (spec.md
// §4.6 "Join/leave delay metrics are the wallclock gap between the
// first member report and the first/last received multicast datagram
// for the group").
type Group struct {
	Session uint32
	Address net.IP

	state   string
	retries int

	joinSentAt  time.Time
	firstRxAt   time.Time
	leaveSentAt time.Time
	lastRxAt    time.Time

	JoinDelay  time.Duration
	LeaveDelay time.Duration

	FlowID uint64

	timers     *timer.Root
	retryTimer *timer.Handle
}

// NewGroup constructs a group entry in the Idle state.
func NewGroup(sessionID uint32, addr net.IP) *Group {
	return &Group{Session: sessionID, Address: addr, state: GroupIdle}
}

// State returns the group's current FSM state.
func (g *Group) State() string { return g.state }

// Join transitions Idle -> Joining, recording the time of the first
// membership report for join-delay measurement, and arms a robustness
// retry timer via send.
func (g *Group) Join(now time.Time, timers *timer.Root, send func()) {
	if g.state != GroupIdle {
		return
	}
	g.state = GroupJoining
	g.retries = 0
	g.joinSentAt = now
	g.firstRxAt = time.Time{}
	g.timers = timers
	send()
	g.armRetry(timers, send)
}

// Leave transitions Active -> Leaving, recording the leave-request
// time for leave-delay measurement, and arms a robustness retry timer.
func (g *Group) Leave(now time.Time, timers *timer.Root, send func()) {
	if g.state != GroupActive {
		return
	}
	g.state = GroupLeaving
	g.retries = 0
	g.leaveSentAt = now
	g.timers = timers
	send()
	g.armRetry(timers, send)
}

func (g *Group) armRetry(timers *timer.Root, send func()) {
	if timers == nil {
		return
	}
	g.retryTimer = timers.Add("igmp-robustness", DefaultRetryInterval, g, func(data interface{}) {
		grp := data.(*Group)
		grp.onRetryTick(timers, send)
	})
}

func (g *Group) onRetryTick(timers *timer.Root, send func()) {
	if g.state != GroupJoining && g.state != GroupLeaving {
		return
	}
	g.retries++
	if g.retries >= DefaultRobustness {
		if g.state == GroupLeaving {
			g.state = GroupIdle
		}
		return
	}
	send()
	g.armRetry(timers, send)
}

// ReceiveTraffic records a received multicast datagram for this group:
// the first RX while Joining flips the group to Active and completes
// the join-delay measurement; any RX while Active/Leaving updates the
// last-received timestamp used for leave-delay measurement.
func (g *Group) ReceiveTraffic(now time.Time) {
	g.lastRxAt = now
	switch g.state {
	case GroupJoining:
		if g.firstRxAt.IsZero() {
			g.firstRxAt = now
			g.JoinDelay = now.Sub(g.joinSentAt)
		}
		g.state = GroupActive
		if g.retryTimer != nil && g.timers != nil {
			g.timers.Del(g.retryTimer)
			g.retryTimer = nil
		}
	case GroupLeaving:
		// still counted for LeaveDelay below, which uses lastRxAt before
		// the leave completes.
	}
}

// CompleteLeave finalizes a pending leave once the robustness window
// has elapsed with no further traffic observed, computing the
// leave-delay as the gap between the leave request and the last
// datagram actually received for the group.
func (g *Group) CompleteLeave() {
	if g.state != GroupLeaving {
		return
	}
	if !g.lastRxAt.IsZero() {
		g.LeaveDelay = g.lastRxAt.Sub(g.leaveSentAt)
	}
	g.state = GroupIdle
}
