package l2tp

import (
	"os"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

func TestSeqIncrement(t *testing.T) {
	cases := []struct{ in, want uint16 }{
		{0, 1},
		{65534, 65535},
		{65535, 0},
	}
	for _, c := range cases {
		if got := seqIncrement(c.in); got != c.want {
			t.Errorf("seqIncrement(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSeqCompare(t *testing.T) {
	cases := []struct {
		a, b uint16
		want int
	}{
		{10, 10, 0},
		{11, 10, 1},
		{10, 11, -1},
		{0, 65535, 1},
		{65535, 0, -1},
	}
	for _, c := range cases {
		if got := seqCompare(c.a, c.b); got != c.want {
			t.Errorf("seqCompare(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSlowStartWindowGrows(t *testing.T) {
	s := newSlowStartState(8)
	if !s.canSend() {
		t.Fatalf("canSend() = false at cwnd=1")
	}
	s.onSend()
	if s.canSend() {
		t.Fatalf("canSend() = true with ntx == cwnd")
	}
	s.onAck(8)
	if s.cwnd != 2 {
		t.Fatalf("cwnd = %d after first ack, want 2", s.cwnd)
	}
}

func TestSlowStartRetransmitResetsWindow(t *testing.T) {
	s := newSlowStartState(8)
	s.cwnd = 6
	s.onRetransmit()
	if s.cwnd != 1 {
		t.Fatalf("cwnd after retransmit = %d, want 1", s.cwnd)
	}
	if s.thresh != 3 {
		t.Fatalf("thresh after retransmit = %d, want 3", s.thresh)
	}
}

func newTestTunnel(t *testing.T) *Tunnel {
	logger := log.NewLogfmtLogger(os.Stderr)
	root := timer.NewRoot(func() time.Time { return time.Unix(0, 0) })
	tun := NewTunnel(logger, root, DefaultWindowSize, DefaultMaxRetries)
	tun.LocalTunnelID = 1
	tun.PeerTunnelID = 42
	tun.HostName = "bngblaster"
	return tun
}

func TestTunnelFSMSCCRQThroughEstablished(t *testing.T) {
	tun := newTestTunnel(t)
	if tun.State() != TunnelIdle {
		t.Fatalf("initial state = %q, want idle", tun.State())
	}
	if err := tun.HandleEvent("sccrq"); err != nil {
		t.Fatalf("sccrq: %v", err)
	}
	if tun.State() != TunnelWaitCtlReply {
		t.Fatalf("state after sccrq = %q, want waitctlreply", tun.State())
	}
	if err := tun.HandleEvent("scccn"); err != nil {
		t.Fatalf("scccn: %v", err)
	}
	if tun.State() != TunnelEstablished {
		t.Fatalf("state after scccn = %q, want established", tun.State())
	}
}

func TestTunnelFSMStopCCNTerminates(t *testing.T) {
	tun := newTestTunnel(t)
	_ = tun.HandleEvent("sccrq")
	_ = tun.HandleEvent("scccn")
	sess := NewSession(log.NewLogfmtLogger(os.Stderr), tun)
	tun.Sessions[1] = sess
	if err := tun.HandleEvent("stopccn"); err != nil {
		t.Fatalf("stopccn: %v", err)
	}
	if tun.State() != TunnelTerminated {
		t.Fatalf("state after stopccn = %q, want terminated", tun.State())
	}
	if sess.State() != SessionTerminated {
		t.Fatalf("session state after tunnel stopccn = %q, want terminated", sess.State())
	}
}

func TestSessionFSMICRQThroughEstablished(t *testing.T) {
	tun := newTestTunnel(t)
	_ = tun.HandleEvent("sccrq")
	_ = tun.HandleEvent("scccn")
	sess := NewSession(log.NewLogfmtLogger(os.Stderr), tun)

	if err := sess.HandleEvent("icrq"); err != nil {
		t.Fatalf("icrq: %v", err)
	}
	if sess.State() != SessionWaitConnect {
		t.Fatalf("state after icrq = %q, want waitconnect", sess.State())
	}
	if err := sess.HandleEvent("iccn"); err != nil {
		t.Fatalf("iccn: %v", err)
	}
	if sess.State() != SessionEstablished {
		t.Fatalf("state after iccn = %q, want established", sess.State())
	}
}

func TestSessionRecordProxyAuth(t *testing.T) {
	tun := newTestTunnel(t)
	sess := NewSession(log.NewLogfmtLogger(os.Stderr), tun)
	sess.RecordProxyAuth("alice", 2, 7, []byte{0xde, 0xad, 0xbe, 0xef})
	if sess.ProxyAuthName != "alice" || sess.ProxyAuthType != 2 || sess.ProxyAuthID != 7 {
		t.Fatalf("proxy auth fields not recorded: %+v", sess)
	}
}

func TestProcessCSURQBuildsCDNsForKnownSessions(t *testing.T) {
	tun := newTestTunnel(t)
	_ = tun.HandleEvent("sccrq")
	_ = tun.HandleEvent("scccn")

	sess := NewSession(log.NewLogfmtLogger(os.Stderr), tun)
	sess.LocalSessionID = 5
	sess.PeerSessionID = 50
	tun.Sessions[5] = sess

	csurq := &protocol.L2TPMessage{
		AVPs: []protocol.L2TPAVP{
			protocol.NewMessageTypeAVP(protocol.L2TPMsgCSURQ),
			protocol.NewUint16AVP(protocol.L2TPAVPSessionID, 5),
			protocol.NewUint16AVP(protocol.L2TPAVPSessionID, 999),
		},
	}
	replies := tun.ProcessCSURQ(csurq)
	if len(replies) != 1 {
		t.Fatalf("len(replies) = %d, want 1", len(replies))
	}
	mt, err := replies[0].MessageType()
	if err != nil || mt != protocol.L2TPMsgCDN {
		t.Fatalf("reply message type = %v (err %v), want CDN", mt, err)
	}
	if sess.csurqSessionIDs != nil {
		t.Fatalf("csurqSessionIDs leaked after handling: %v", sess.csurqSessionIDs)
	}
}

func TestManagerCreateTunnelAssignsIncrementingIDs(t *testing.T) {
	root := timer.NewRoot(func() time.Time { return time.Unix(0, 0) })
	m := NewManager(log.NewLogfmtLogger(os.Stderr), root)
	t1 := m.CreateTunnel(10, "peer-a")
	t2 := m.CreateTunnel(11, "peer-b")
	if t1.LocalTunnelID != 1 || t2.LocalTunnelID != 2 {
		t.Fatalf("local tunnel ids = %d, %d, want 1, 2", t1.LocalTunnelID, t2.LocalTunnelID)
	}
	if _, ok := m.Tunnel(1); !ok {
		t.Fatalf("Tunnel(1) not found")
	}
	m.RemoveTunnel(1)
	if _, ok := m.Tunnel(1); ok {
		t.Fatalf("Tunnel(1) still present after RemoveTunnel")
	}
}

func TestRetryIntervalBacksOffExponentially(t *testing.T) {
	base := 1 * time.Second
	if got := RetryInterval(base, 0); got != base {
		t.Fatalf("RetryInterval(base, 0) = %v, want %v", got, base)
	}
	if got := RetryInterval(base, 3); got != 8*time.Second {
		t.Fatalf("RetryInterval(base, 3) = %v, want 8s", got)
	}
}
