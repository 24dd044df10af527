package session

// PPPoE top-level events driving the Idle..Terminated machine
// (spec.md §4.3).
const (
	EvStart       = "start"        // Idle -> PPPoE_Init, begin sending PADI
	EvPADORx      = "pado_rx"      // PADO received, AC selected
	EvPADSRx      = "pads_rx"      // PADS received, peer session id recorded
	EvPADTRx      = "padt_rx"      // PADT received at any point
	EvLCPUp       = "lcp_up"       // LCP reached Opened
	EvAuthOK      = "auth_ok"      // PAP/CHAP authentication succeeded
	EvAuthFail    = "auth_fail"    // PAP/CHAP authentication failed
	EvNCPUp       = "ncp_up"       // IPCP and/or IP6CP reached Opened
	EvTerminate   = "terminate"    // operator/control-socket requested teardown
	EvTermDone    = "term_done"    // NCP Terminate + PADT sent
)

var pppoeTopTable = []EventDesc{
	{From: StateIdle, To: StatePPPoEInit, Events: []string{EvStart}},
	{From: StatePPPoEInit, To: StatePPPoERequest, Events: []string{EvPADORx}},
	{From: StatePPPoERequest, To: StatePPPoEEstablished, Events: []string{EvPADSRx}},
	{From: StatePPPoEEstablished, To: StateLCPInit, Events: []string{EvStart}},
	{From: StateLCPInit, To: StateLCPAuth, Events: []string{EvLCPUp}},
	{From: StateLCPAuth, To: StatePPPAuth, Events: []string{EvAuthOK}},
	{From: StatePPPAuth, To: StateNetwork, Events: []string{EvNCPUp}},
	{From: StateNetwork, To: StateEstablished, Events: []string{EvNCPUp}},

	{From: StatePPPoEInit, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},
	{From: StatePPPoERequest, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},
	{From: StatePPPoEEstablished, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},
	{From: StateLCPInit, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate, EvAuthFail}},
	{From: StateLCPAuth, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate, EvAuthFail}},
	{From: StatePPPAuth, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},
	{From: StateNetwork, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},
	{From: StateEstablished, To: StateTerminating, Events: []string{EvPADTRx, EvTerminate}},

	{From: StateTerminating, To: StateTerminated, Events: []string{EvTermDone}},
}
