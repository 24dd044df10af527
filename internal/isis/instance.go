package isis

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

// ExternalConnection is a configured extended-reachability neighbor
// with no real adjacency behind it, injected into every self-LSP
// (original's isis_external_connection_t, spec.md §4.5 "configured
// external connections").
type ExternalConnection struct {
	SystemID [protocol.ISISSystemIDLen]byte
	Metric   uint32
}

// Config holds an Instance's static parameters (area addresses,
// hostname, router id, optional Segment Routing capability, lifetime
// and refresh intervals).
type Config struct {
	SystemID   [protocol.ISISSystemIDLen]byte
	AreaAddresses [][]byte
	Hostname      string
	RouterID      uint32 // IPv4 TE router id / interface address
	ProtocolIPv4  bool
	ProtocolIPv6  bool
	SRBase, SRRange uint32

	LSPLifetime         time.Duration
	LSPRefreshInterval  time.Duration
	LSPRetryInterval    time.Duration

	ExternalConnections []ExternalConnection
}

type level struct {
	lsdb        LSDB
	adjacencies []*Adjacency
	refreshTimers map[[8]byte]*timer.Handle
}

// Instance is one IS-IS routing process: two levels (L1, L2), each
// with its own LSDB and adjacency set (spec.md §4.5).
type Instance struct {
	logger log.Logger
	timers *timer.Root
	config Config

	mu       sync.Mutex
	levels   [2]*level
	teardown bool
}

// NewInstance constructs an Instance with empty L1/L2 databases.
func NewInstance(logger log.Logger, timers *timer.Root, config Config) *Instance {
	inst := &Instance{logger: logger, timers: timers, config: config}
	inst.levels[0] = &level{refreshTimers: make(map[[8]byte]*timer.Handle)}
	inst.levels[1] = &level{refreshTimers: make(map[[8]byte]*timer.Handle)}
	return inst
}

// AddAdjacency registers an adjacency under the given level (1 or 2).
func (inst *Instance) AddAdjacency(lvl uint8, adj *Adjacency) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	l := inst.levels[lvl-1]
	l.adjacencies = append(l.adjacencies, adj)
}

// LSDB returns the LSP database for the given level.
func (inst *Instance) LSDB(lvl uint8) *LSDB {
	return &inst.levels[lvl-1].lsdb
}

// Adjacencies returns every adjacency registered under the given
// level, for the control socket's "isis-adjacencies" handler.
func (inst *Instance) Adjacencies(lvl uint8) []*Adjacency {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	l := inst.levels[lvl-1]
	out := make([]*Adjacency, len(l.adjacencies))
	copy(out, l.adjacencies)
	return out
}

func selfLSPID(systemID [protocol.ISISSystemIDLen]byte) [8]byte {
	var id [8]byte
	copy(id[:6], systemID[:])
	// pseudonode (byte 6) and fragment (byte 7) are zero for the
	// non-pseudonode, single-fragment self LSP this emulator emits.
	return id
}

// SelfUpdate (re)builds and floods this instance's self-originated LSP
// for the given level, enumerating area addresses, supported
// protocols, hostname, interface address, and per-up-adjacency
// reachability TLVs plus configured external connections (spec.md
// §4.5 "Self LSP generation"; original's isis_lsp_self_update). No TE
// router id or SR capability TLV is emitted. During teardown the LSP
// is rebuilt with no TLVs.
func (inst *Instance) SelfUpdate(lvl uint8) *LSP {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	l := inst.levels[lvl-1]
	id := selfLSPID(inst.config.SystemID)

	lsp, ok := l.lsdb.Lookup(id)
	if !ok {
		lsp = &LSP{ID: id}
		l.lsdb.Insert(lsp)
	}

	lsp.Level = lvl
	lsp.Source = SourceSelf
	lsp.SeqNumber++
	lsp.Timestamp = inst.now()

	if inst.teardown {
		lsp.Lifetime = uint16(DefaultPurgeLifetime / time.Second)
		if h, ok := l.refreshTimers[id]; ok {
			inst.timers.Del(h)
			delete(l.refreshTimers, id)
		}
	} else {
		lsp.Lifetime = uint16(inst.config.LSPLifetime / time.Second)
		if _, ok := l.refreshTimers[id]; !ok {
			l.refreshTimers[id] = inst.timers.AddPeriodic("isis-lsp-refresh", inst.config.LSPRefreshInterval, lsp, func(data interface{}) {
				inst.refreshSelfLSP(lvl)
			})
		}
	}

	pduType := protocol.ISISPDUL1LSP
	if lvl == 2 {
		pduType = protocol.ISISPDUL2LSP
	}
	pdu := &protocol.ISISPDU{
		Header:    protocol.ISISCommonHeader{PDUType: pduType, IDLength: protocol.ISISSystemIDLen},
		LSPID:     id,
		SeqNumber: lsp.SeqNumber,
	}
	if !inst.teardown {
		pdu.TLVs = inst.buildSelfTLVs(lvl)
	}
	lsp.PDU = pdu

	inst.floodLocked(lsp)
	return lsp
}

func (inst *Instance) refreshSelfLSP(lvl uint8) {
	inst.SelfUpdate(lvl)
}

// buildSelfTLVs assembles the TLV set for this instance's self LSP:
// area addresses, supported protocols, hostname, IPv4 interface
// address (RouterID), per-up-adjacency extended reachability, and
// configured external connections. It emits no TE router id TLV and
// no SR router capability TLV; SRBase/SRRange are not used here.
func (inst *Instance) buildSelfTLVs(lvl uint8) []protocol.ISISTLV {
	var tlvs []protocol.ISISTLV
	for _, area := range inst.config.AreaAddresses {
		tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVAreaAddresses, Value: area})
	}
	var protos []byte
	if inst.config.ProtocolIPv4 {
		protos = append(protos, 0xcc)
	}
	if inst.config.ProtocolIPv6 {
		protos = append(protos, 0x8e)
	}
	if len(protos) > 0 {
		tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVProtocols, Value: protos})
	}
	if inst.config.Hostname != "" {
		tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVHostname, Value: []byte(inst.config.Hostname)})
	}
	routerID := uint32Bytes(inst.config.RouterID)
	tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVIPv4IntAddress, Value: routerID})

	for _, adj := range inst.levels[lvl-1].adjacencies {
		if adj.State() != StateUp {
			continue
		}
		reach := make([]byte, 6+3)
		copy(reach[:6], adj.PeerSystemID[:])
		reach[6] = byte(adj.Metric >> 16)
		reach[7] = byte(adj.Metric >> 8)
		reach[8] = byte(adj.Metric)
		tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVExtIsReachability, Value: reach})
	}
	for _, ext := range inst.config.ExternalConnections {
		reach := make([]byte, 6+3)
		copy(reach[:6], ext.SystemID[:])
		reach[6] = byte(ext.Metric >> 16)
		reach[7] = byte(ext.Metric >> 8)
		reach[8] = byte(ext.Metric)
		tlvs = append(tlvs, protocol.ISISTLV{Type: protocol.ISISTLVExtIsReachability, Value: reach})
	}
	return tlvs
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// floodLocked adds lsp to every up adjacency's flood tree at this
// level, except the adjacency it was received from and any adjacency
// whose peer matches that source (original's isis_lsp_flood). Caller
// must hold inst.mu.
func (inst *Instance) floodLocked(lsp *LSP) {
	l := inst.levels[lsp.Level-1]
	for _, adj := range l.adjacencies {
		if adj.State() != StateUp {
			continue
		}
		if lsp.Source == SourceAdjacency && lsp.SourceAdjacency != nil {
			if adj == lsp.SourceAdjacency || adj.PeerSystemID == lsp.SourceAdjacency.PeerSystemID {
				continue
			}
		}
		adj.AddToFloodTree(lsp)
	}
}

// ReceiveLSP applies spec.md §4.5's "Receipt of LSP" rules: insert if
// unknown; ack-only via PSNP if the received sequence is not newer;
// if newer and self-originated, bump and regenerate; if newer and
// external, never overwrite; otherwise replace, mark source as this
// adjacency, reset the lifetime timer, and flood.
func (inst *Instance) ReceiveLSP(adj *Adjacency, pdu *protocol.ISISPDU, lifetime time.Duration) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	adj.Stats.LSPRx++
	l := inst.levels[adj.Level-1]
	lsp, existed := l.lsdb.Lookup(pdu.LSPID)

	if existed {
		if lsp.SeqNumber >= pdu.SeqNumber {
			adj.AddToPSNPTree(lsp)
			return
		}
		if lsp.Source == SourceExternal {
			adj.AddToPSNPTree(lsp)
			return
		}
		if lsp.Source == SourceSelf {
			lsp.SeqNumber = pdu.SeqNumber
			inst.mu.Unlock()
			inst.SelfUpdate(adj.Level)
			inst.mu.Lock()
			adj.AddToPSNPTree(lsp)
			return
		}
	} else {
		lsp = &LSP{ID: pdu.LSPID}
		l.lsdb.Insert(lsp)
	}

	lsp.Level = adj.Level
	lsp.Source = SourceAdjacency
	lsp.SourceAdjacency = adj
	lsp.SeqNumber = pdu.SeqNumber
	lsp.Lifetime = uint16(lifetime / time.Second)
	lsp.Expired = false
	lsp.Timestamp = inst.now()
	lsp.PDU = pdu

	if inst.timers != nil {
		seq := lsp.SeqNumber
		inst.timers.Add("isis-lsp-lifetime", lifetime, lsp, func(data interface{}) {
			// a timer armed for an older copy finds a newer sequence
			// number and leaves the LSP alone
			if cur := data.(*LSP); cur.SeqNumber == seq {
				cur.Expired = true
			}
		})
	}

	inst.floodLocked(lsp)
	adj.AddToPSNPTree(lsp)
}

// ProcessCSNPEntries applies spec.md §4.5's CSNP scan semantics: every
// LSP the CSNP mentions is stamped with scan; an LSP the CSNP lists
// with a newer sequence than ours causes our flood tree to drop the
// entry (peer is authoritative), and once the caller detects scan
// completion it should call SweepCSNPScan to add any unstamped LSP to
// the peer's flood tree (the peer is missing it).
func (inst *Instance) ProcessCSNPEntries(adj *Adjacency, entries []protocol.ISISLSPEntry, scan uint64) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	l := inst.levels[adj.Level-1]
	for _, e := range entries {
		lsp, ok := l.lsdb.Lookup(e.LSPID)
		if !ok {
			continue
		}
		lsp.CSNPScan = scan
		if e.SeqNumber > lsp.SeqNumber {
			adj.AckFloodEntry(lsp.ID)
		} else if e.SeqNumber < lsp.SeqNumber {
			adj.AddToFloodTree(lsp)
		} else {
			adj.AckFloodEntry(lsp.ID)
		}
	}
}

// SweepCSNPScan adds any LSP at this level not stamped with scan to
// adj's flood tree: the peer's CSNP omitted it, so the peer is missing
// it (spec.md §4.5).
func (inst *Instance) SweepCSNPScan(adj *Adjacency, scan uint64) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	l := inst.levels[adj.Level-1]
	for _, lsp := range l.lsdb.All() {
		if lsp.CSNPScan != scan {
			adj.AddToFloodTree(lsp)
		}
	}
}

// GCSweep runs the periodic GC job over both levels (original's
// isis_lsp_gc_job).
func (inst *Instance) GCSweep() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	removed := 0
	for _, l := range inst.levels {
		removed += l.lsdb.GCSweep()
	}
	return removed
}

// PurgeOnShutdown purges every self-originated LSP at both levels:
// lifetime set to DefaultPurgeLifetime, sequence bumped, rebuilt with
// an empty TLV set (an Instance carries no authentication TLV),
// re-flooded (spec.md §4.5 "Purge on shutdown").
func (inst *Instance) PurgeOnShutdown() {
	inst.mu.Lock()
	inst.teardown = true
	inst.mu.Unlock()
	for lvl := uint8(1); lvl <= 2; lvl++ {
		inst.SelfUpdate(lvl)
	}
}

// LoadExternalLSP inserts a pre-built PDU as an External-sourced LSP:
// not subject to overwrite by a peer and never refreshed (spec.md §4.5
// "External LSPs").
func (inst *Instance) LoadExternalLSP(lvl uint8, pdu *protocol.ISISPDU) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	l := inst.levels[lvl-1]
	lsp := &LSP{
		ID:        pdu.LSPID,
		Level:     lvl,
		Source:    SourceExternal,
		SeqNumber: pdu.SeqNumber,
		Timestamp: inst.now(),
		PDU:       pdu,
	}
	l.lsdb.Insert(lsp)
}

// LoadExternalLSPHex loads a hex-encoded raw PDU, as supplied by the
// control socket (spec.md §4.5 "via the control socket (hex-encoded
// PDU list)").
func (inst *Instance) LoadExternalLSPHex(lvl uint8, hexPDU string) error {
	raw, err := hex.DecodeString(hexPDU)
	if err != nil {
		return err
	}
	pdu, err := protocol.DecodeISIS(raw)
	if err != nil {
		return err
	}
	inst.LoadExternalLSP(lvl, pdu)
	return nil
}

func (inst *Instance) now() time.Time {
	if inst.timers != nil {
		return time.Now()
	}
	return time.Time{}
}
