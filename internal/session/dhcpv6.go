package session

import "github.com/domthera/bngblaster/internal/protocol"

// DHCPv6 client states, mirroring the v4 machine's shape
// (spec.md §4.3's DHCPv6_Solicit/DHCPv6_Request/DHCPv6_Bound).
const (
	DHCPv6Init       = "Init"
	DHCPv6Soliciting = "Soliciting"
	DHCPv6Requesting = "Requesting"
	DHCPv6Bound      = "Bound"
	DHCPv6Renewing   = "Renewing"
	DHCPv6Rebinding  = "Rebinding"
)

const (
	dhcpv6EvSolicitSent  = "solicit_sent"
	dhcpv6EvAdvertiseRx  = "advertise_rx"
	dhcpv6EvReplyRx      = "reply_rx"
	dhcpv6EvRapidCommit  = "rapid_commit_reply_rx"
	dhcpv6EvT1Expired    = "t1_expired"
	dhcpv6EvT2Expired    = "t2_expired"
	dhcpv6EvLeaseExpired = "lease_expired"
)

var dhcpv6Table = []EventDesc{
	{From: DHCPv6Init, To: DHCPv6Soliciting, Events: []string{dhcpv6EvSolicitSent}},
	{From: DHCPv6Soliciting, To: DHCPv6Requesting, Events: []string{dhcpv6EvAdvertiseRx}},
	{From: DHCPv6Soliciting, To: DHCPv6Bound, Events: []string{dhcpv6EvRapidCommit}},
	{From: DHCPv6Requesting, To: DHCPv6Bound, Events: []string{dhcpv6EvReplyRx}},
	{From: DHCPv6Bound, To: DHCPv6Renewing, Events: []string{dhcpv6EvT1Expired}},
	{From: DHCPv6Renewing, To: DHCPv6Rebinding, Events: []string{dhcpv6EvT2Expired}},
	{From: DHCPv6Renewing, To: DHCPv6Bound, Events: []string{dhcpv6EvReplyRx}},
	{From: DHCPv6Rebinding, To: DHCPv6Bound, Events: []string{dhcpv6EvReplyRx}},
	{From: DHCPv6Rebinding, To: DHCPv6Init, Events: []string{dhcpv6EvLeaseExpired}},
}

// DHCPv6Machine is the IA_NA/IA_PD lease state machine for an IPoE
// session's IPv6 leg.
type DHCPv6Machine struct {
	FSM FSM

	TransactionID [3]byte
	IAID          uint32
	Address       [16]byte
	PrefixLen     uint8
	Prefix        [16]byte
	T1, T2        uint32
	RapidCommit   bool
	RemoteID      []byte
}

// NewDHCPv6Machine returns a DHCPv6 client machine in the Init state.
func NewDHCPv6Machine() *DHCPv6Machine {
	return &DHCPv6Machine{FSM: FSM{Current: DHCPv6Init, Table: dhcpv6Table}}
}

// BuildSolicit constructs a Solicit message, requesting Rapid Commit
// if configured.
func (m *DHCPv6Machine) BuildSolicit() *protocol.DHCPv6Packet {
	opts := []protocol.DHCPv6Option{
		protocol.BuildIANAOption(m.IAID, m.T1, m.T2, nil),
	}
	if m.RapidCommit {
		opts = append(opts, protocol.DHCPv6Option{Code: protocol.DHCPv6OptRapidCommit})
	}
	return &protocol.DHCPv6Packet{
		Type:          protocol.DHCPv6Solicit,
		TransactionID: m.TransactionID,
		Options:       opts,
	}
}

// BuildRequest constructs a Request message for the address offered
// in a preceding Advertise.
func (m *DHCPv6Machine) BuildRequest() *protocol.DHCPv6Packet {
	sub := []protocol.DHCPv6Option{protocol.BuildIAAddrOption(m.Address, m.T1, m.T2)}
	return &protocol.DHCPv6Packet{
		Type:          protocol.DHCPv6Request,
		TransactionID: m.TransactionID,
		Options:       []protocol.DHCPv6Option{protocol.BuildIANAOption(m.IAID, m.T1, m.T2, sub)},
	}
}
