package isis

import (
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

func testLogger() log.Logger {
	return log.NewNopLogger()
}

func TestAdjacencyFSMThreeWay(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, tr)

	if adj.State() != StateDown {
		t.Fatalf("initial state = %s, want %s", adj.State(), StateDown)
	}
	if err := adj.HandleEvent(EvHelloRx); err != nil {
		t.Fatalf("hello_rx: %v", err)
	}
	if adj.State() != StateInit {
		t.Fatalf("state after hello_rx = %s, want %s", adj.State(), StateInit)
	}
	if err := adj.HandleEvent(EvTwoWay); err != nil {
		t.Fatalf("two_way: %v", err)
	}
	if adj.State() != StateUp {
		t.Fatalf("state after two_way = %s, want %s", adj.State(), StateUp)
	}
}

func TestAdjacencyHoldExpireResetsTrees(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, tr)
	adj.HandleEvent(EvHelloRx)
	adj.HandleEvent(EvTwoWay)

	lsp := &LSP{ID: [8]byte{1}}
	adj.AddToFloodTree(lsp)
	adj.AddToPSNPTree(lsp)
	if adj.FloodTreeSize() != 1 {
		t.Fatalf("flood tree size = %d, want 1", adj.FloodTreeSize())
	}

	if err := adj.HandleEvent(EvHoldExpire); err != nil {
		t.Fatalf("hold_expire: %v", err)
	}
	if adj.State() != StateDown {
		t.Fatalf("state after hold_expire = %s, want %s", adj.State(), StateDown)
	}
	if adj.FloodTreeSize() != 0 {
		t.Fatalf("flood tree size after hold_expire = %d, want 0", adj.FloodTreeSize())
	}
	if len(adj.DrainPSNPTree()) != 0 {
		t.Fatalf("psnp tree not reset on hold_expire")
	}
}

func TestAdjacencyTXJobRespectsWindow(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, tr)
	for i := 0; i < 5; i++ {
		adj.AddToFloodTree(&LSP{ID: [8]byte{byte(i)}})
	}

	var sent []*LSP
	adj.TXJob(2, now, func(lsp *LSP) { sent = append(sent, lsp) })
	if len(sent) != 2 {
		t.Fatalf("TXJob sent %d, want 2", len(sent))
	}

	var sentAgain []*LSP
	adj.TXJob(2, now, func(lsp *LSP) { sentAgain = append(sentAgain, lsp) })
	if len(sentAgain) != 2 {
		t.Fatalf("TXJob (second call) sent %d, want 2 (remaining not-yet-waiting entries)", len(sentAgain))
	}
}

func TestAdjacencyRetryJobRearms(t *testing.T) {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, tr)
	lsp := &LSP{ID: [8]byte{9}}
	adj.AddToFloodTree(lsp)
	adj.TXJob(1, now, func(*LSP) {})

	if adj.FloodTreeSize() != 1 {
		t.Fatalf("flood tree size = %d, want 1", adj.FloodTreeSize())
	}

	later := now.Add(10 * time.Second)
	adj.RetryJob(time.Second, later)

	var resent []*LSP
	adj.TXJob(1, later, func(lsp *LSP) { resent = append(resent, lsp) })
	if len(resent) != 1 {
		t.Fatalf("RetryJob did not re-arm entry for retransmission")
	}
}

func TestLSDBInsertLookupOrdered(t *testing.T) {
	var db LSDB
	ids := [][8]byte{{3}, {1}, {2}}
	for _, id := range ids {
		db.Insert(&LSP{ID: id})
	}
	all := db.All()
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !idLess(all[i-1].ID, all[i].ID) {
			t.Fatalf("entries not sorted: %v then %v", all[i-1].ID, all[i].ID)
		}
	}
	if _, ok := db.Lookup([8]byte{2}); !ok {
		t.Fatalf("Lookup({2}) not found")
	}
	if _, ok := db.Lookup([8]byte{9}); ok {
		t.Fatalf("Lookup({9}) unexpectedly found")
	}
}

func TestLSDBGCSweepRemovesExpiredUnreferenced(t *testing.T) {
	var db LSDB
	db.Insert(&LSP{ID: [8]byte{1}, Expired: true, Refcount: 0})
	db.Insert(&LSP{ID: [8]byte{2}, Expired: true, Refcount: 1})
	db.Insert(&LSP{ID: [8]byte{3}, Expired: false})

	removed := db.GCSweep()
	if removed != 1 {
		t.Fatalf("GCSweep removed %d, want 1", removed)
	}
	if len(db.All()) != 2 {
		t.Fatalf("len(All()) after GCSweep = %d, want 2", len(db.All()))
	}
	if _, ok := db.Lookup([8]byte{1}); ok {
		t.Fatalf("expired unreferenced LSP not removed")
	}
}

func newTestInstance() *Instance {
	now := time.Unix(0, 0)
	tr := timer.NewRoot(func() time.Time { return now })
	return NewInstance(testLogger(), tr, Config{
		SystemID:           [protocol.ISISSystemIDLen]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		Hostname:           "test-router",
		RouterID:           0xc0a80101,
		ProtocolIPv4:       true,
		LSPLifetime:        1200 * time.Second,
		LSPRefreshInterval: 600 * time.Second,
		LSPRetryInterval:   5 * time.Second,
	})
}

func TestSelfUpdateGeneratesAndFloodsLSP(t *testing.T) {
	inst := newTestInstance()
	lsp := inst.SelfUpdate(1)
	if lsp.Source != SourceSelf {
		t.Fatalf("self LSP source = %v, want SourceSelf", lsp.Source)
	}
	if lsp.SeqNumber != 1 {
		t.Fatalf("self LSP seq = %d, want 1", lsp.SeqNumber)
	}
	if len(lsp.PDU.TLVs) == 0 {
		t.Fatalf("self LSP has no TLVs")
	}
}

func TestSelfUpdateBumpsSeqOnRepeat(t *testing.T) {
	inst := newTestInstance()
	first := inst.SelfUpdate(1)
	second := inst.SelfUpdate(1)
	if second.SeqNumber != first.SeqNumber+1 {
		t.Fatalf("second SelfUpdate seq = %d, want %d", second.SeqNumber, first.SeqNumber+1)
	}
}

func TestReceiveLSPNeverOverwritesExternal(t *testing.T) {
	inst := newTestInstance()
	id := [8]byte{1, 2, 3, 4, 5, 6, 0, 0}
	inst.LoadExternalLSP(1, &protocol.ISISPDU{LSPID: id, SeqNumber: 5})

	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, nil)
	inst.ReceiveLSP(adj, &protocol.ISISPDU{LSPID: id, SeqNumber: 99}, time.Minute)

	lsp, ok := inst.LSDB(1).Lookup(id)
	if !ok {
		t.Fatalf("external LSP missing after ReceiveLSP")
	}
	if lsp.Source != SourceExternal || lsp.SeqNumber != 5 {
		t.Fatalf("external LSP was overwritten: source=%v seq=%d", lsp.Source, lsp.SeqNumber)
	}
}

func TestReceiveLSPRegeneratesSelfOnNewerPeerCopy(t *testing.T) {
	inst := newTestInstance()
	self := inst.SelfUpdate(1)

	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, nil)
	inst.ReceiveLSP(adj, &protocol.ISISPDU{LSPID: self.ID, SeqNumber: self.SeqNumber + 10}, time.Minute)

	lsp, ok := inst.LSDB(1).Lookup(self.ID)
	if !ok {
		t.Fatalf("self LSP missing after ReceiveLSP")
	}
	if lsp.Source != SourceSelf {
		t.Fatalf("self LSP source changed to %v, want SourceSelf", lsp.Source)
	}
	if lsp.SeqNumber <= self.SeqNumber+10 {
		t.Fatalf("self LSP not regenerated with a higher seq: got %d, peer had %d", lsp.SeqNumber, self.SeqNumber+10)
	}
}

func TestReceiveLSPAcceptsNewAdjacencyLSPAndFloods(t *testing.T) {
	inst := newTestInstance()
	other := NewAdjacency(1, CircuitP2P, time.Second, 3, nil)
	other.PeerSystemID = [protocol.ISISSystemIDLen]byte{1, 1, 1, 1, 1, 1}
	inst.AddAdjacency(1, other)
	other.HandleEvent(EvHelloRx)
	other.HandleEvent(EvTwoWay)

	src := NewAdjacency(1, CircuitP2P, time.Second, 3, nil)
	src.PeerSystemID = [protocol.ISISSystemIDLen]byte{2, 2, 2, 2, 2, 2}
	id := [8]byte{9, 9, 9, 9, 9, 9, 0, 0}
	inst.ReceiveLSP(src, &protocol.ISISPDU{LSPID: id, SeqNumber: 1}, time.Minute)

	lsp, ok := inst.LSDB(1).Lookup(id)
	if !ok {
		t.Fatalf("received LSP not inserted")
	}
	if lsp.Source != SourceAdjacency {
		t.Fatalf("received LSP source = %v, want SourceAdjacency", lsp.Source)
	}
	if other.FloodTreeSize() != 1 {
		t.Fatalf("LSP not flooded to other up adjacency")
	}
}

func TestReceiveLSPStaleDoesNotReplace(t *testing.T) {
	inst := newTestInstance()
	adj := NewAdjacency(1, CircuitP2P, time.Second, 3, nil)
	id := [8]byte{7, 7, 7, 7, 7, 7, 0, 0}
	inst.ReceiveLSP(adj, &protocol.ISISPDU{LSPID: id, SeqNumber: 5}, time.Minute)
	inst.ReceiveLSP(adj, &protocol.ISISPDU{LSPID: id, SeqNumber: 5}, time.Minute)

	lsp, _ := inst.LSDB(1).Lookup(id)
	if lsp.SeqNumber != 5 {
		t.Fatalf("stale re-receipt changed seq to %d, want 5", lsp.SeqNumber)
	}
}

func TestPurgeOnShutdownSetsPurgeLifetime(t *testing.T) {
	inst := newTestInstance()
	inst.SelfUpdate(1)
	inst.SelfUpdate(2)
	inst.PurgeOnShutdown()

	for lvl := uint8(1); lvl <= 2; lvl++ {
		id := selfLSPID(inst.config.SystemID)
		lsp, ok := inst.LSDB(lvl).Lookup(id)
		if !ok {
			t.Fatalf("self LSP missing at level %d after purge", lvl)
		}
		if lsp.Lifetime != uint16(DefaultPurgeLifetime/time.Second) {
			t.Fatalf("purged LSP lifetime = %d, want %d", lsp.Lifetime, uint16(DefaultPurgeLifetime/time.Second))
		}
	}
}

func TestGCSweepAcrossBothLevels(t *testing.T) {
	inst := newTestInstance()
	inst.LSDB(1).Insert(&LSP{ID: [8]byte{1}, Expired: true, Refcount: 0})
	inst.LSDB(2).Insert(&LSP{ID: [8]byte{2}, Expired: true, Refcount: 0})

	removed := inst.GCSweep()
	if removed != 2 {
		t.Fatalf("GCSweep removed %d, want 2", removed)
	}
}
