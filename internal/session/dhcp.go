package session

import "github.com/domthera/bngblaster/internal/protocol"

// DHCPv4 client states (spec.md §4.3's DHCP_Discover/DHCP_Request/
// DHCP_Bound top-level states map directly onto the client states
// here; this machine additionally tracks renew/rebind).
const (
	DHCPInit      = "Init"
	DHCPSelecting = "Selecting"
	DHCPRequesting = "Requesting"
	DHCPBound     = "Bound"
	DHCPRenewing  = "Renewing"
	DHCPRebinding = "Rebinding"
)

const (
	dhcpEvDiscoverSent = "discover_sent"
	dhcpEvOfferRx      = "offer_rx"
	dhcpEvAckRx        = "ack_rx"
	dhcpEvNakRx        = "nak_rx"
	dhcpEvT1Expired    = "t1_expired"
	dhcpEvT2Expired    = "t2_expired"
	dhcpEvLeaseExpired = "lease_expired"
)

var dhcpTable = []EventDesc{
	{From: DHCPInit, To: DHCPSelecting, Events: []string{dhcpEvDiscoverSent}},
	{From: DHCPSelecting, To: DHCPRequesting, Events: []string{dhcpEvOfferRx}},
	{From: DHCPRequesting, To: DHCPBound, Events: []string{dhcpEvAckRx}},
	{From: DHCPRequesting, To: DHCPInit, Events: []string{dhcpEvNakRx}},
	{From: DHCPBound, To: DHCPRenewing, Events: []string{dhcpEvT1Expired}},
	{From: DHCPRenewing, To: DHCPRebinding, Events: []string{dhcpEvT2Expired}},
	{From: DHCPRenewing, To: DHCPBound, Events: []string{dhcpEvAckRx}},
	{From: DHCPRenewing, To: DHCPInit, Events: []string{dhcpEvNakRx}},
	{From: DHCPRebinding, To: DHCPBound, Events: []string{dhcpEvAckRx}},
	{From: DHCPRebinding, To: DHCPInit, Events: []string{dhcpEvNakRx, dhcpEvLeaseExpired}},
}

// DHCPMachine is the IPv4 lease state machine for an IPoE session
// (spec.md §4.3: "Lease renewal runs T1/T2 timers with rebinding
// fallback; on NAK or lease expiry without rebind, revert to
// DHCP_Discover and emit a flap event").
type DHCPMachine struct {
	FSM FSM

	XID          uint32
	OfferedAddr  [4]byte
	ServerID     [4]byte
	LeaseTime    uint32
	T1, T2       uint32
	RelayCircuitID []byte
	RelayRemoteID  []byte
}

// NewDHCPMachine returns a DHCP client machine in the Init state.
func NewDHCPMachine() *DHCPMachine {
	return &DHCPMachine{FSM: FSM{Current: DHCPInit, Table: dhcpTable}}
}

// BuildDiscover constructs a DHCPDISCOVER.
func (m *DHCPMachine) BuildDiscover(chaddr [16]byte) *protocol.DHCPv4Packet {
	return &protocol.DHCPv4Packet{
		Op:     1,
		XID:    m.XID,
		CHAddr: chaddr,
		Options: []protocol.DHCPv4Option{
			{Code: protocol.DHCPOptMessageType, Data: []byte{byte(protocol.DHCPDiscover)}},
			{Code: protocol.DHCPOptParamReqList, Data: []byte{protocol.DHCPOptSubnetMask, protocol.DHCPOptRouter, protocol.DHCPOptDNS}},
		},
	}
}

// BuildRequest constructs a DHCPREQUEST selecting the offer from
// BuildDiscover/the most recent OFFER.
func (m *DHCPMachine) BuildRequest(chaddr [16]byte) *protocol.DHCPv4Packet {
	return &protocol.DHCPv4Packet{
		Op:     1,
		XID:    m.XID,
		CHAddr: chaddr,
		Options: []protocol.DHCPv4Option{
			{Code: protocol.DHCPOptMessageType, Data: []byte{byte(protocol.DHCPRequest)}},
			{Code: protocol.DHCPOptRequestedIP, Data: m.OfferedAddr[:]},
			{Code: protocol.DHCPOptServerID, Data: m.ServerID[:]},
		},
	}
}
