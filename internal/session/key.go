package session

// Key is the composite session key this emulator indexes sessions by:
// interface, outer VLAN tag and inner VLAN tag. Making it a first-class
// comparable struct (rather than overlaying it onto a packed integer,
// as the original does) lets it be used directly as a Go map key.
type Key struct {
	Ifindex   int
	OuterVLAN uint16
	InnerVLAN uint16
}
