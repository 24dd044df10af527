package session

// IPoE top-level events. The IPv4 and IPv6 legs run independently and
// either reaching Bound is sufficient to consider the session
// Established (spec.md §4.3: "Either family alone suffices").
const (
	EvDHCPOffer    = "dhcp_offer"
	EvDHCPAck      = "dhcp_ack"
	EvDHCPNak      = "dhcp_nak"
	EvDHCPv6Adv    = "dhcpv6_advertise"
	EvDHCPv6Reply  = "dhcpv6_reply"
	EvLeaseExpired = "lease_expired"
	EvFlap         = "flap"
)

var ipoeTopTable = []EventDesc{
	{From: StateIdle, To: StateARPResolve, Events: []string{EvStart}},
	{From: StateARPResolve, To: StateDHCPDiscover, Events: []string{EvStart}},
	{From: StateDHCPDiscover, To: StateDHCPRequest, Events: []string{EvDHCPOffer}},
	{From: StateDHCPRequest, To: StateDHCPBound, Events: []string{EvDHCPAck}},
	{From: StateDHCPRequest, To: StateDHCPDiscover, Events: []string{EvDHCPNak}},
	{From: StateDHCPBound, To: StateDHCPDiscover, Events: []string{EvLeaseExpired, EvFlap}},
	{From: StateDHCPBound, To: StateEstablished, Events: []string{EvStart}},

	{From: StateIdle, To: StateDHCPv6Solicit, Events: []string{EvStart}},
	{From: StateDHCPv6Solicit, To: StateDHCPv6Request, Events: []string{EvDHCPv6Adv}},
	{From: StateDHCPv6Request, To: StateDHCPv6Bound, Events: []string{EvDHCPv6Reply}},
	{From: StateDHCPv6Bound, To: StateDHCPv6Solicit, Events: []string{EvLeaseExpired, EvFlap}},
	{From: StateDHCPv6Bound, To: StateEstablished, Events: []string{EvStart}},

	{From: StateARPResolve, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPDiscover, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPRequest, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPBound, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPv6Solicit, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPv6Request, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateDHCPv6Bound, To: StateTerminating, Events: []string{EvTerminate}},
	{From: StateEstablished, To: StateTerminating, Events: []string{EvTerminate}},

	{From: StateTerminating, To: StateTerminated, Events: []string{EvTermDone}},
}
