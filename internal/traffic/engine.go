package traffic

import (
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/session"
	"github.com/domthera/bngblaster/internal/timer"
)

// DefaultTXInterval is the global tick the engine computes per-flow
// send budgets against (spec.md §4.6: "the global TX interval").
const DefaultTXInterval = 10 * time.Millisecond

// Transmit sends one wire-ready frame on behalf of a flow.
type Transmit func(flow *Flow, frame []byte)

// Engine owns every registered flow, runs the periodic TX tick, and
// dispatches received BBL/CFM packets back to their flow for
// verification (spec.md §4.6).
type Engine struct {
	logger   log.Logger
	timers   *timer.Root
	sessions *session.Registry

	mu        sync.Mutex
	flows     map[uint64]*Flow
	nextID    uint64
	running   bool
	txTimer   *timer.Handle
	txInterval time.Duration

	Transmit Transmit

	VerifiedFlows uint64 // global counter, incremented on each flow's first verified RX
}

// NewEngine constructs a stopped traffic engine.
func NewEngine(logger log.Logger, timers *timer.Root, sessions *session.Registry) *Engine {
	return &Engine{
		logger:     logger,
		timers:     timers,
		sessions:   sessions,
		flows:      make(map[uint64]*Flow),
		txInterval: DefaultTXInterval,
	}
}

// NextFlowID allocates a fresh globally unique flow id.
func (e *Engine) NextFlowID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return e.nextID
}

// AddFlow registers a flow with the engine.
func (e *Engine) AddFlow(f *Flow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[f.ID] = f
}

// RemoveFlow unregisters a flow.
func (e *Engine) RemoveFlow(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.flows, id)
}

// Flow returns the flow with the given id, if registered.
func (e *Engine) Flow(id uint64) (*Flow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.flows[id]
	return f, ok
}

// Flows returns every flow currently registered with the engine, for
// the control socket's stream list/info handlers.
func (e *Engine) Flows() []*Flow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Flow, 0, len(e.flows))
	for _, f := range e.flows {
		out = append(out, f)
	}
	return out
}

// Start arms the periodic TX tick (spec.md §4.7 "global traffic
// start/stop").
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.txTimer = e.timers.AddPeriodic("traffic-tx", e.txInterval, e, func(data interface{}) {
		data.(*Engine).tick()
	})
}

// Stop disarms the TX tick and resets every flow's verifier baseline,
// so a subsequent Start treats the next RX as a fresh sequence
// (spec.md §8).
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	if e.txTimer != nil {
		e.timers.Del(e.txTimer)
		e.txTimer = nil
	}
	for _, f := range e.flows {
		f.ResetSequenceBaseline()
	}
}

// Running reports whether the TX tick is currently armed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) tick() {
	e.mu.Lock()
	flows := make([]*Flow, 0, len(e.flows))
	for _, f := range e.flows {
		flows = append(flows, f)
	}
	interval := e.txInterval
	e.mu.Unlock()

	now := time.Now()
	for _, f := range flows {
		if !f.Enabled {
			continue
		}
		budget := f.budgetForInterval(interval)
		for i := 0; i < budget; i++ {
			frame := f.buildPacket(now)
			if e.Transmit != nil {
				e.Transmit(f, frame)
			}
		}
	}
}

// ReceiveBBL decodes a BBL trailer from the tail of payload and routes
// it to the owning flow's verifier, flipping the owning session's
// per-family/direction traffic-verified counter on the flow's first
// verified packet (spec.md §4.6 "Session traffic").
func (e *Engine) ReceiveBBL(payload []byte, rxTime time.Time) {
	hdr, err := protocol.DecodeBBL(payload[len(payload)-protocol.BBLHeaderLen:])
	if err != nil {
		return
	}
	e.mu.Lock()
	f, ok := e.flows[hdr.FlowID]
	e.mu.Unlock()
	if !ok {
		return
	}

	wasVerified := f.Verified
	f.verify(hdr, rxTime, len(payload))
	if !wasVerified && f.Verified {
		e.mu.Lock()
		e.VerifiedFlows++
		e.mu.Unlock()
		e.flipSessionVerified(f)
	}
}

func (e *Engine) flipSessionVerified(f *Flow) {
	if e.sessions == nil {
		return
	}
	s, ok := e.sessions.LookupID(f.SessionID)
	if !ok {
		return
	}
	up := f.Direction == DirectionUp
	switch f.Family {
	case FamilyIPv4:
		s.TrafficVerified.MarkIPv4(up)
	case FamilyIPv6:
		s.TrafficVerified.MarkIPv6(up)
	case FamilyIPv6PD:
		s.TrafficVerified.MarkIPv6PD(up)
	}
	level.Debug(e.logger).Log("event", "traffic-verified", "session", f.SessionID, "flow", f.ID, "family", f.Family, "direction", f.Direction)
}
