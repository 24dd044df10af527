// Package l2tp implements the L2TP Network Server (LNS) role: tunnel
// and session state machines, and the RFC2661 reliable control
// transport, adapted from the teacher's LAC-oriented l2tp package to
// respond to peer-initiated tunnels/sessions instead of originating
// them (spec.md §4.4).
package l2tp

import (
	"sync"

	"github.com/domthera/bngblaster/internal/protocol"
)

// seqIncrement increments a transport sequence number by one, wrapping
// at 0x10000 as per RFC2661/RFC3931. Ported verbatim from the
// teacher's l2tp/transport.go.
func seqIncrement(seqNum uint16) uint16 {
	next := uint32(seqNum)
	next = (next + 1) % 0x10000
	return uint16(next)
}

// seqCompare compares two transport sequence numbers accounting for
// wraparound, as per RFC2661/RFC3931. Ported verbatim from the
// teacher's l2tp/transport.go.
func seqCompare(seq1, seq2 uint16) int {
	var delta uint16
	if seq2 <= seq1 {
		delta = seq1 - seq2
	} else {
		delta = seq1 + (0xffff - seq2) + 1
	}
	if delta == 0 {
		return 0
	} else if delta < 0x8000 {
		return 1
	}
	return -1
}

// slowStartState holds the transport sequence numbers and the
// slow-start/congestion-avoidance window state for one tunnel's
// control channel (RFC2661 §5.8), ported from the teacher's
// l2tp/transport.go slowStartState with the same field names and
// algorithm.
type slowStartState struct {
	lock                             sync.Mutex
	ns, nr, cwnd, thresh, nacks, ntx uint16
}

func newSlowStartState(maxTxWindow uint16) *slowStartState {
	return &slowStartState{cwnd: 1, thresh: maxTxWindow}
}

func (s *slowStartState) canSend() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ntx < s.cwnd
}

func (s *slowStartState) onSend() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ntx++
}

func (s *slowStartState) onAck(maxTxWindow uint16) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ntx > 0 {
		if s.cwnd < maxTxWindow {
			if s.cwnd < s.thresh {
				s.cwnd++ // slow start
			} else {
				s.nacks++ // congestion avoidance
				if s.nacks >= s.cwnd {
					s.nacks = 0
					s.cwnd++
				}
			}
		}
		s.ntx--
	}
}

func (s *slowStartState) onRetransmit() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.thresh = s.cwnd / 2
	s.cwnd = 1
}

func (s *slowStartState) incrementNr() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.nr = seqIncrement(s.nr)
}

func (s *slowStartState) incrementNs() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ns = seqIncrement(s.ns)
}

// msgIsInSequence reports whether msg's Ns value equals our Nr, i.e.
// it's the next expected message.
func (s *slowStartState) msgIsInSequence(msg *protocol.L2TPMessage) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return seqCompare(s.nr, msg.Header.Ns) == 0
}

// msgIsStale reports whether msg's Ns value is behind our Nr, i.e.
// it's a stale retransmit we've already acked.
func (s *slowStartState) msgIsStale(msg *protocol.L2TPMessage) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return seqCompare(msg.Header.Ns, s.nr) == -1
}

func (s *slowStartState) getSequenceNumbers() (ns, nr uint16) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ns, s.nr
}

// pendingMessage is one unacknowledged outbound control message,
// tracked for exponential-backoff retransmission (spec.md §4.4).
type pendingMessage struct {
	msg      *protocol.L2TPMessage
	retries  uint
	maxRetries uint
}
