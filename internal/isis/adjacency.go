package isis

import (
	"sync"
	"time"

	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/timer"
)

// Adjacency states (spec.md §4.5: "standard three-way (Down/Init/Up)
// on P2P and two-way elect on LAN" — both circuit types share this
// FSM; LAN's "two-way" check is done by the caller before firing
// EvTwoWay, per the same Down/Init/Up shape).
const (
	StateDown = "down"
	StateInit = "init"
	StateUp   = "up"
)

const (
	EvHelloRx  = "hello_rx"
	EvTwoWay   = "two_way"
	EvHoldExpire = "hold_expire"
)

// CircuitType distinguishes a point-to-point interface (one adjacency)
// from a broadcast/LAN interface (one adjacency per level, with DIS
// election — spec.md §4.5).
type CircuitType uint8

const (
	CircuitP2P CircuitType = iota
	CircuitLAN
)

// floodEntry is one LSP queued for transmission on an adjacency's
// flood tree (original's isis_flood_entry_t): wait_ack/tx_count/
// tx_timestamp drive the retry job.
type floodEntry struct {
	lsp         *LSP
	waitAck     bool
	txCount     int
	txTimestamp time.Time
}

// Adjacency is a single IS-IS neighbor relationship on one level of
// one interface.
type Adjacency struct {
	mu  sync.Mutex
	fsm fsm

	Level         uint8
	Circuit       CircuitType
	PeerSystemID  [protocol.ISISSystemIDLen]byte
	Metric        uint32
	HelloInterval time.Duration
	HoldingMultiplier uint8

	floodTree map[[8]byte]*floodEntry
	psnpTree  map[[8]byte]*LSP

	csnpScanCounter uint64

	holdTimer  *timer.Handle
	timers     *timer.Root

	Stats struct {
		LSPTx, LSPRx uint64
	}
}

// NewAdjacency constructs an adjacency in the Down state.
func NewAdjacency(level uint8, circuit CircuitType, helloInterval time.Duration, holdingMultiplier uint8, timers *timer.Root) *Adjacency {
	a := &Adjacency{
		Level:             level,
		Circuit:           circuit,
		HelloInterval:     helloInterval,
		HoldingMultiplier: holdingMultiplier,
		floodTree:         make(map[[8]byte]*floodEntry),
		psnpTree:          make(map[[8]byte]*LSP),
		timers:            timers,
	}
	a.fsm = fsm{
		current: StateDown,
		table: []eventDesc{
			{from: StateDown, events: []string{EvHelloRx}, to: StateInit},
			{from: StateInit, events: []string{EvTwoWay}, to: StateUp},
			{from: StateInit, events: []string{EvHoldExpire}, to: StateDown, cb: a.onDown},
			{from: StateUp, events: []string{EvHoldExpire}, to: StateDown, cb: a.onDown},
			{from: StateUp, events: []string{EvHelloRx}, to: StateUp},
		},
	}
	return a
}

func (a *Adjacency) onDown(args ...interface{}) {
	a.floodTree = make(map[[8]byte]*floodEntry)
	a.psnpTree = make(map[[8]byte]*LSP)
}

// State returns the adjacency's current FSM state.
func (a *Adjacency) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fsm.current
}

// HandleEvent drives the adjacency FSM and, on a hello receipt, resets
// the holding timer (spec.md §4.5: "Receipt resets the holding timer;
// expiry drops to Down").
func (a *Adjacency) HandleEvent(e string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e == EvHelloRx && a.timers != nil {
		holding := time.Duration(a.HoldingMultiplier) * a.HelloInterval
		if a.holdTimer == nil {
			a.holdTimer = a.timers.Add("isis-hold", holding, a, func(data interface{}) {
				adj := data.(*Adjacency)
				adj.HandleEvent(EvHoldExpire)
			})
		} else {
			a.holdTimer = a.timers.Change(a.holdTimer, holding)
		}
	}
	return a.fsm.handleEvent(e)
}

// AddToFloodTree marks lsp for transmission on this adjacency
// (original's isis_lsp_flood_adjacency): re-arms an existing entry or
// inserts a new one and bumps the LSP's refcount.
func (a *Adjacency) AddToFloodTree(lsp *LSP) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.floodTree[lsp.ID]; ok {
		e.waitAck = false
		e.txCount = 0
		return
	}
	a.floodTree[lsp.ID] = &floodEntry{lsp: lsp}
	lsp.Refcount++
}

// AckFloodEntry removes lsp from the flood tree on acknowledgement
// (seen in a CSNP/PSNP with equal or higher sequence number) and
// drops its refcount.
func (a *Adjacency) AckFloodEntry(id [8]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.floodTree[id]; ok {
		if e.lsp.Refcount > 0 {
			e.lsp.Refcount--
		}
		delete(a.floodTree, id)
	}
}

// FloodTreeSize reports the number of LSPs still pending
// acknowledgement on this adjacency.
func (a *Adjacency) FloodTreeSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.floodTree)
}

// TXJob transmits up to windowSize not-yet-acked flood-tree entries
// via send, marking each wait_ack=true with a tx timestamp (original's
// isis_lsp_tx_job).
func (a *Adjacency) TXJob(windowSize int, now time.Time, send func(lsp *LSP)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sent := 0
	for _, e := range a.floodTree {
		if sent >= windowSize {
			break
		}
		if e.waitAck {
			continue
		}
		send(e.lsp)
		e.waitAck = true
		e.txCount++
		e.txTimestamp = now
		a.Stats.LSPTx++
		sent++
	}
}

// RetryJob clears wait_ack on any flood-tree entry whose
// acknowledgement has not arrived within lspRetryInterval, so the next
// TXJob retransmits it (original's isis_lsp_retry_job).
func (a *Adjacency) RetryJob(lspRetryInterval time.Duration, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.floodTree {
		if e.waitAck && now.Sub(e.txTimestamp) > lspRetryInterval {
			e.waitAck = false
		}
	}
}

// AddToPSNPTree queues lsp for acknowledgement on the next PSNP tick
// (original's isis_lsp_handler_rx ACK label).
func (a *Adjacency) AddToPSNPTree(lsp *LSP) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.psnpTree[lsp.ID]; !ok {
		a.psnpTree[lsp.ID] = lsp
		lsp.Refcount++
	}
}

// DrainPSNPTree empties the PSNP tree and returns its contents for a
// single outbound PSNP PDU, dropping each entry's refcount (spec.md
// §4.5: "on the next PSNP tick a single PSNP PDU aggregates as many
// entries as fit, removing them as it goes").
func (a *Adjacency) DrainPSNPTree() []*LSP {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*LSP, 0, len(a.psnpTree))
	for id, lsp := range a.psnpTree {
		out = append(out, lsp)
		if lsp.Refcount > 0 {
			lsp.Refcount--
		}
		delete(a.psnpTree, id)
	}
	return out
}

// NextCSNPScan allocates a new monotonic scan id for a CSNP processing
// pass (spec.md §4.5: "A CSNP scan is stamped with a monotonic
// csnp_scan id on each LSP it mentions").
func (a *Adjacency) NextCSNPScan() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.csnpScanCounter++
	return a.csnpScanCounter
}
