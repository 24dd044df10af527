package session

import (
	"crypto/md5"

	"github.com/domthera/bngblaster/internal/protocol"
)

// Auth states: either PAP (single request/ack-or-nak) or CHAP
// (challenge/response/success-or-failure) are modeled by the same
// machine since exactly one runs per session (spec.md §4.3).
const (
	AuthIdle    = "Idle"
	AuthPending = "Pending"
	AuthSuccess = "Success"
	AuthFailure = "Failure"
)

const (
	authEvSend    = "send"
	authEvSuccess = "success"
	authEvFail    = "fail"
)

var authTable = []EventDesc{
	{From: AuthIdle, To: AuthPending, Events: []string{authEvSend}},
	{From: AuthPending, To: AuthSuccess, Events: []string{authEvSuccess}},
	{From: AuthPending, To: AuthFailure, Events: []string{authEvFail}},
}

// AuthMachine drives PAP or CHAP authentication for a session,
// decided by the negotiated LCP Auth option (spec.md §4.3).
type AuthMachine struct {
	FSM      FSM
	Protocol protocol.AuthProtocol
	Username string
	Password string
	Retries  int
	MaxRetries int
}

// NewAuthMachine returns an auth sub-state-machine in the Idle state.
func NewAuthMachine() *AuthMachine {
	return &AuthMachine{FSM: FSM{Current: AuthIdle, Table: authTable}, MaxRetries: 5}
}

// BuildPAPRequest constructs a PAP Authenticate-Request.
func (m *AuthMachine) BuildPAPRequest(id uint8) *protocol.PAPPacket {
	return &protocol.PAPPacket{
		Code:     protocol.PAPCodeAuthenticateRequest,
		ID:       id,
		PeerID:   m.Username,
		Password: m.Password,
	}
}

// BuildCHAPResponse answers a CHAP Challenge with
// MD5(id || secret || challenge), per RFC1994 §4.
func (m *AuthMachine) BuildCHAPResponse(challenge *protocol.CHAPPacket) *protocol.CHAPPacket {
	h := md5.New()
	h.Write([]byte{challenge.ID})
	h.Write([]byte(m.Password))
	h.Write(challenge.Value)
	return &protocol.CHAPPacket{
		Code:  protocol.CHAPCodeResponse,
		ID:    challenge.ID,
		Value: h.Sum(nil),
		Name:  m.Username,
	}
}

// EvaluateServerPAP always accepts: this emulator only ever acts as
// the A10NSP/PPP peer terminating a client, and the corresponding
// Open Question decision (DESIGN.md) is that the emulator always Acks
// PAP — there is no configured credential store to check against in
// the terminator role.
func EvaluateServerPAP(req *protocol.PAPPacket) *protocol.PAPPacket {
	return &protocol.PAPPacket{Code: protocol.PAPCodeAuthenticateAck, ID: req.ID}
}
