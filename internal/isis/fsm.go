package isis

import "fmt"

// eventDesc and fsm are the same table-driven pattern the teacher uses
// in l2tp/fsm.go, kept as its own package-local copy since this is a
// new package adapting the pattern directly rather than sharing
// internal/session's exported variant.
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
