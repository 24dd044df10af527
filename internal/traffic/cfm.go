package traffic

import "time"

// CFMSession is a single continuity-check session: a CFM flow plus the
// control socket's start/stop/RDI toggle state. CFM is named in
// spec.md §4.7's handler list ("CFM continuity start/stop/RDI on/off")
// but is not otherwise specified; this is a minimal implementation
// sharing BBL's sequence/loss/delay machinery so the control-socket
// operation has something real to drive, rather than left a stub.
type CFMSession struct {
	SessionID uint32
	Flow      *Flow
	Running   bool
}

// NewCFMSession constructs a CFM continuity-check session wrapping
// flow and tags the flow FlowKindCFM. The send rate is the flow's own
// TargetPPS (CFM CCMs are conventionally sent at a fixed interval,
// e.g. one per second, so callers set the matching pps on the flow).
func NewCFMSession(sessionID uint32, flow *Flow) *CFMSession {
	flow.Kind = FlowKindCFM
	return &CFMSession{SessionID: sessionID, Flow: flow}
}

// Start enables the underlying flow so the engine's TX tick begins
// emitting CCMs.
func (c *CFMSession) Start() {
	c.Running = true
	c.Flow.Enabled = true
}

// Stop disables the flow without removing it from the engine, so
// counters persist across a subsequent restart.
func (c *CFMSession) Stop() {
	c.Running = false
	c.Flow.Enabled = false
}

// SetRDI toggles the Remote Defect Indication flag recorded on this
// session's flow. buildPacket does not encode the flag into the
// transmitted frame.
func (c *CFMSession) SetRDI(rdi bool) {
	c.Flow.RDI = rdi
}

// DefaultCFMInterval is the standard CCM transmission interval (1s,
// the most common CFM continuity-check rate).
const DefaultCFMInterval = time.Second
