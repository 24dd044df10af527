// Package session implements the subscriber session registry and the
// PPPoE/IPoE state machines that drive each session, generalized from
// the teacher's L2TP tunnel/session FSMs to the protocols named in
// spec.md §4.3.
package session

import "fmt"

// EventDesc is one row of a state machine's transition table: from
// state, on any of events, go to state, then run cb. Adapted directly
// from the teacher's l2tp/fsm.go eventDesc/fsm pair.
type EventDesc struct {
	From, To string
	Events   []string
	Cb       func(args ...interface{})
}

// FSM is a small table-driven finite state machine shared by every
// sub-state machine in this package (LCP, auth, IPCP, IP6CP, the
// PPPoE/IPoE top-level machines, DHCP, DHCPv6).
type FSM struct {
	Current string
	Table   []EventDesc
}

// HandleEvent looks up a transition for e from the current state and,
// if found, performs the transition and invokes its callback.
func (f *FSM) HandleEvent(e string, args ...interface{}) error {
	for _, t := range f.Table {
		if f.Current != t.From {
			continue
		}
		for _, event := range t.Events {
			if e == event {
				f.Current = t.To
				if t.Cb != nil {
					t.Cb(args...)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("no transition defined for event %q in state %q", e, f.Current)
}
