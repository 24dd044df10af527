package l2tp

import "fmt"

// eventDesc and fsm are ported directly from the teacher's
// l2tp/fsm.go, unchanged: a small table-driven state machine.
type eventDesc struct {
	from, to string
	events   []string
	cb       func(args ...interface{})
}

type fsm struct {
	current string
	table   []eventDesc
}

func (f *fsm) handleEvent(e string, args ...interface{}) error {
	for _, t := range f.table {
		if f.current != t.from {
			continue
		}
		for _, event := range t.events {
			if e == event {
				f.current = t.to
				if t.cb != nil {
					t.cb(args...)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("no transition defined for event %q in state %q", e, f.current)
}
