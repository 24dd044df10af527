package session

import (
	"sync"

	"github.com/domthera/bngblaster/internal/timer"
)

// Kind distinguishes a PPPoE session from an IPoE session; each drives
// a different top-level state machine (spec.md §4.3).
type Kind int

const (
	KindPPPoE Kind = iota
	KindIPoE
)

// Top-level PPPoE states (spec.md §4.3).
const (
	StateIdle             = "Idle"
	StatePPPoEInit        = "PPPoE_Init"
	StatePPPoERequest     = "PPPoE_Request"
	StatePPPoEEstablished = "PPPoE_Established"
	StateLCPInit          = "LCP_Init"
	StateLCPAuth          = "LCP_Auth"
	StatePPPAuth          = "PPP_Auth"
	StateNetwork          = "Network"
	StateEstablished      = "Established"
	StateTerminating      = "Terminating"
	StateTerminated       = "Terminated"
)

// Top-level IPoE states (spec.md §4.3).
const (
	StateARPResolve    = "ARP_Resolve"
	StateDHCPDiscover  = "DHCP_Discover"
	StateDHCPRequest   = "DHCP_Request"
	StateDHCPBound     = "DHCP_Bound"
	StateDHCPv6Solicit = "DHCPv6_Solicit"
	StateDHCPv6Request = "DHCPv6_Request"
	StateDHCPv6Bound   = "DHCPv6_Bound"
)

// Session is a subscriber session: its composite key, top-level state
// machine, sub-state-machines for auth/NCP/lease management, and the
// resources it owns (timers, flows, IGMP group table).
type Session struct {
	ID  uint32
	key Key
	Kind Kind

	mu sync.Mutex

	Top FSM

	// PPPoE-path sub-machines
	LCP   *LCPMachine
	Auth  *AuthMachine
	IPCP  *IPCPMachine
	IP6CP *IP6CPMachine

	// IPoE-path sub-machines
	DHCP   *DHCPMachine
	DHCPv6 *DHCPv6Machine

	IGMP *GroupTable

	PeerSessionID uint16 // PPPoE session id assigned to the peer
	ACCookie      []byte
	MagicNumber   uint32

	FlowIDs []uint64

	// TrafficVerified records, per address family and direction,
	// whether at least one synthetic traffic packet has been observed
	// (spec.md §4.6: "the first matching RX per direction flips the
	// session's traffic verified counter used by the sessions-pending
	// control query").
	TrafficVerified TrafficVerification

	timers     map[string]*timer.Handle
	timerRoot  *timer.Root
}

// TrafficVerification tracks, per address family, whether upstream and
// downstream synthetic traffic has each been observed at least once.
// ExpectIPv4/ExpectIPv6/ExpectIPv6PD mark which families this session
// actually has flows for; families never expected do not hold up
// Pending.
type TrafficVerification struct {
	ExpectIPv4, ExpectIPv6, ExpectIPv6PD bool
	IPv4Up, IPv4Down                     bool
	IPv6Up, IPv6Down                     bool
	IPv6PDUp, IPv6PDDown                 bool
}

// MarkIPv4 flips the IPv4 up or down verified flag.
func (v *TrafficVerification) MarkIPv4(up bool) {
	if up {
		v.IPv4Up = true
	} else {
		v.IPv4Down = true
	}
}

// MarkIPv6 flips the IPv6 up or down verified flag.
func (v *TrafficVerification) MarkIPv6(up bool) {
	if up {
		v.IPv6Up = true
	} else {
		v.IPv6Down = true
	}
}

// MarkIPv6PD flips the IPv6PD up or down verified flag.
func (v *TrafficVerification) MarkIPv6PD(up bool) {
	if up {
		v.IPv6PDUp = true
	} else {
		v.IPv6PDDown = true
	}
}

// Pending reports whether any expected direction/family has not yet
// seen its first verified packet (the "sessions-pending" control
// query, spec.md §4.6/§4.7).
func (v *TrafficVerification) Pending() bool {
	if v.ExpectIPv4 && !(v.IPv4Up && v.IPv4Down) {
		return true
	}
	if v.ExpectIPv6 && !(v.IPv6Up && v.IPv6Down) {
		return true
	}
	if v.ExpectIPv6PD && !(v.IPv6PDUp && v.IPv6PDDown) {
		return true
	}
	return false
}

func newSession(id uint32, key Key, kind Kind, timers *timer.Root) *Session {
	s := &Session{ID: id, timerRoot: timers, timers: make(map[string]*timer.Handle)}
	s.reset(key, kind)
	return s
}

// reset reinitializes a (possibly reused) session for a new key/kind,
// rebuilding its sub-state-machines from scratch.
func (s *Session) reset(key Key, kind Kind) {
	s.key = key
	s.Kind = kind
	s.PeerSessionID = 0
	s.ACCookie = nil
	s.FlowIDs = nil
	s.IGMP = NewGroupTable()
	s.TrafficVerified = TrafficVerification{}

	switch kind {
	case KindPPPoE:
		s.Top = FSM{Current: StateIdle, Table: pppoeTopTable}
		s.LCP = NewLCPMachine()
		s.Auth = NewAuthMachine()
		s.IPCP = NewIPCPMachine()
		s.IP6CP = NewIP6CPMachine()
		s.DHCP = nil
		s.DHCPv6 = nil
	case KindIPoE:
		s.Top = FSM{Current: StateIdle, Table: ipoeTopTable}
		s.LCP, s.Auth, s.IPCP, s.IP6CP = nil, nil, nil, nil
		s.DHCP = NewDHCPMachine()
		s.DHCPv6 = NewDHCPv6Machine()
	}
}

// Key returns the session's composite key.
func (s *Session) Key() Key { return s.key }

// AttachFlow records a traffic flow id as belonging to this session.
func (s *Session) AttachFlow(flowID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FlowIDs = append(s.FlowIDs, flowID)
}

// DetachFlows clears the session's flow references, returning the ids
// that were attached so the caller can tear the flows down.
func (s *Session) DetachFlows() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.FlowIDs
	s.FlowIDs = nil
	return ids
}

// SetTimer records a named timer handle owned by this session so it
// can be cancelled in one sweep when the session is released.
func (s *Session) SetTimer(name string, h *timer.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[name]; ok {
		s.timerRoot.Del(old)
	}
	s.timers[name] = h
}

func (s *Session) cancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, h := range s.timers {
		s.timerRoot.Del(h)
		delete(s.timers, name)
	}
}

// IsTerminal reports whether the session's top-level state machine has
// reached Terminated.
func (s *Session) IsTerminal() bool {
	return s.Top.Current == StateTerminated
}
