package l2tp

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

// DefaultRetryInterval is a base interval for RetryInterval's
// exponential backoff, and DefaultMaxRetries the retry count after
// which RetransmitPending reports a tunnel's pending messages as
// exhausted (RFC2661 §5.8).
const (
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxRetries    = 7
	DefaultHelloInterval = 60 * time.Second
	DefaultWindowSize    = 4
)

// Manager owns every LNS tunnel this emulator terminates, keyed by the
// locally assigned tunnel ID.
type Manager struct {
	logger log.Logger
	timers *timer.Root

	mu      sync.Mutex
	tunnels map[uint16]*Tunnel
	nextID  uint16

	// Transmit sends an already-encoded wire frame to a peer; the
	// caller (cmd/bngblaster) supplies this to route through the
	// correct interface/socket.
	Transmit func(peerTunnelID uint16, frame []byte) error
}

// NewManager constructs an empty tunnel manager.
func NewManager(logger log.Logger, timers *timer.Root) *Manager {
	return &Manager{
		logger:  logger,
		timers:  timers,
		tunnels: make(map[uint16]*Tunnel),
		nextID:  1,
	}
}

// CreateTunnel allocates a new local tunnel ID and constructs a Tunnel
// in the idle state, ready to process an inbound SCCRQ.
func (m *Manager) CreateTunnel(peerTunnelID uint16, peerHostName string) *Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	t := NewTunnel(log.With(m.logger, "tunnel_id", id), m.timers, DefaultWindowSize, DefaultMaxRetries)
	t.LocalTunnelID = id
	t.PeerTunnelID = peerTunnelID
	t.PeerHostName = peerHostName
	t.Send = func(msg *protocol.L2TPMessage) error {
		if m.Transmit == nil {
			return fmt.Errorf("tunnel %d: no transport configured", id)
		}
		return m.Transmit(t.PeerTunnelID, protocol.EncodeL2TPv2(msg))
	}
	m.tunnels[id] = t
	m.scheduleHello(t)
	return t
}

// Tunnel looks up a tunnel by local ID.
func (m *Manager) Tunnel(id uint16) (*Tunnel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tunnels[id]
	return t, ok
}

// Tunnels returns every tunnel currently owned by the manager, for the
// control socket's l2tp-tunnels list handler.
func (m *Manager) Tunnels() []*Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tunnel, 0, len(m.tunnels))
	for _, t := range m.tunnels {
		out = append(out, t)
	}
	return out
}

// RemoveTunnel cancels timers and drops a terminated tunnel from the
// manager.
func (m *Manager) RemoveTunnel(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tunnels[id]; ok {
		if t.helloTimer != nil {
			m.timers.Del(t.helloTimer)
		}
		delete(m.tunnels, id)
	}
}

// scheduleHello arms the periodic keepalive for an idle established
// tunnel (spec.md §4.4).
func (m *Manager) scheduleHello(t *Tunnel) {
	t.helloTimer = m.timers.AddPeriodic("l2tp-hello", DefaultHelloInterval, t, func(data interface{}) {
		tt := data.(*Tunnel)
		if tt.State() != TunnelEstablished {
			return
		}
		hello := tt.BuildHello()
		if err := tt.SendReliable(hello); err != nil {
			level.Warn(m.logger).Log("message", "hello send failed", "tunnel_id", tt.LocalTunnelID, "error", err)
		}
	})
}

// RetransmitPending resends every unacknowledged message of a tunnel
// once per call, counting a retry and shrinking the slow-start window
// for each (RFC2661 §5.8, spec.md §4.4). No per-message send time is
// kept, so no backoff interval is applied here, and Manager does not
// schedule this call. It stops and returns exhausted=true at the first
// message that has used up maxRetries; it does not tear the tunnel
// down.
func (t *Tunnel) RetransmitPending() (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ns, p := range t.pending {
		if p.retries >= p.maxRetries {
			return true
		}
		p.retries++
		t.slowStart.onRetransmit()
		t.Stats.ControlRetry++
		if t.Send != nil {
			_ = t.Send(p.msg)
		}
		_ = ns
	}
	return false
}
