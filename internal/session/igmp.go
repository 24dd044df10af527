package session

import (
	"fmt"
	"net"
)

// MaxGroups and MaxSourcesPerGroup bound the per-session IGMP group
// table (spec.md §3: "IGMP group table (bounded, ≤8 groups × ≤3
// sources)").
const (
	MaxGroups           = 8
	MaxSourcesPerGroup  = 3
)

// GroupMembership is one joined multicast group and its source list
// (empty for ASM/exclude-mode joins).
type GroupMembership struct {
	Group      net.IP
	Sources    []net.IP
	JoinDelay  uint64 // nanoseconds between join request and traffic observed, for metrics
	LeaveDelay uint64
}

// GroupTable is a session's bounded IGMP membership set.
type GroupTable struct {
	groups []*GroupMembership
}

// NewGroupTable returns an empty group table.
func NewGroupTable() *GroupTable {
	return &GroupTable{}
}

// Join adds a group (or a source to an existing group), enforcing the
// bounded limits. Returns an error rather than silently dropping state
// so callers can surface a resource-error refusal (spec.md §8).
func (t *GroupTable) Join(group net.IP, source net.IP) error {
	for _, g := range t.groups {
		if g.Group.Equal(group) {
			if source == nil {
				return nil
			}
			for _, s := range g.Sources {
				if s.Equal(source) {
					return nil
				}
			}
			if len(g.Sources) >= MaxSourcesPerGroup {
				return fmt.Errorf("group %s: source limit %d reached", group, MaxSourcesPerGroup)
			}
			g.Sources = append(g.Sources, source)
			return nil
		}
	}
	if len(t.groups) >= MaxGroups {
		return fmt.Errorf("group limit %d reached", MaxGroups)
	}
	gm := &GroupMembership{Group: group}
	if source != nil {
		gm.Sources = []net.IP{source}
	}
	t.groups = append(t.groups, gm)
	return nil
}

// Leave removes a group, or a single source from it if source is
// non-nil and the group has other sources remaining.
func (t *GroupTable) Leave(group net.IP, source net.IP) {
	for i, g := range t.groups {
		if !g.Group.Equal(group) {
			continue
		}
		if source == nil {
			t.groups = append(t.groups[:i], t.groups[i+1:]...)
			return
		}
		for j, s := range g.Sources {
			if s.Equal(source) {
				g.Sources = append(g.Sources[:j], g.Sources[j+1:]...)
				break
			}
		}
		if len(g.Sources) == 0 {
			t.groups = append(t.groups[:i], t.groups[i+1:]...)
		}
		return
	}
}

// Groups returns the current membership set.
func (t *GroupTable) Groups() []*GroupMembership {
	return t.groups
}

// Count returns the number of joined groups.
func (t *GroupTable) Count() int {
	return len(t.groups)
}
