// Package isis implements an IS-IS instance: per-level adjacencies,
// an LSP database, self-LSP generation, flooding with a per-adjacency
// flood tree and PSNP tree, CSNP scan-stamping, and lifetime/GC/purge
// handling, per spec.md §4.5 and
// original_source/src/isis/isis_lsp.c + isis.h.
package isis

import (
	"sort"
	"time"

	"github.com/domthera/bngblaster/internal/protocol"
)

// LSPSource identifies who last wrote an LSP's contents, controlling
// overwrite rules on receipt (original_source isis_lsp.c
// isis_lsp_handler_rx: self-originated LSPs regenerate on a newer
// peer copy, external LSPs are never overwritten).
type LSPSource uint8

const (
	SourceAdjacency LSPSource = iota
	SourceSelf
	SourceExternal
)

// DefaultPurgeLifetime is the remaining-lifetime value used when
// purging an LSP (original's ISIS_DEFAULT_PURGE_LIFETIME).
const DefaultPurgeLifetime = 60 * time.Second

// LSP is one link-state PDU record in an Instance's per-level
// database, keyed by its 8-byte LSP ID (system ID ‖ pseudonode ‖
// fragment, ISO10589).
type LSP struct {
	ID      [8]byte
	Level   uint8
	SeqNumber uint32
	Lifetime  uint16 // seconds, as carried on the wire
	Expired   bool
	Refcount  int

	Source           LSPSource
	SourceAdjacency  *Adjacency // set only when Source == SourceAdjacency

	Timestamp time.Time
	PDU       *protocol.ISISPDU

	// CSNPScan is stamped with the scan id of the most recent CSNP
	// that mentioned this LSP (original's lsp->csnp_scan), used to
	// detect LSPs the peer is missing once a CSNP scan completes.
	CSNPScan uint64
}

// LSDB is the per-level LSP database, kept as an id-sorted slice with
// binary search: spec.md §4.5 names a "balanced binary search tree"
// and Go's stdlib has no built-in one, so an ordered slice is the
// grounded approximation (importing a BST implementation from the
// pack would be ungrounded — no pack repo carries one).
type LSDB struct {
	entries []*LSP // kept sorted by ID
}

func idLess(a, b [8]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (d *LSDB) search(id [8]byte) (int, bool) {
	i := sort.Search(len(d.entries), func(i int) bool {
		return !idLess(d.entries[i].ID, id)
	})
	if i < len(d.entries) && d.entries[i].ID == id {
		return i, true
	}
	return i, false
}

// Lookup returns the LSP with the given id, if present.
func (d *LSDB) Lookup(id [8]byte) (*LSP, bool) {
	i, ok := d.search(id)
	if !ok {
		return nil, false
	}
	return d.entries[i], true
}

// Insert adds an LSP record, keeping the slice sorted. An existing
// record with the same id is replaced.
func (d *LSDB) Insert(lsp *LSP) {
	i, ok := d.search(lsp.ID)
	if ok {
		d.entries[i] = lsp
		return
	}
	d.entries = append(d.entries, nil)
	copy(d.entries[i+1:], d.entries[i:])
	d.entries[i] = lsp
}

// Delete removes the LSP with the given id, if present.
func (d *LSDB) Delete(id [8]byte) {
	i, ok := d.search(id)
	if !ok {
		return
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
}

// All returns every LSP in id order, for CSNP generation and GC
// sweeps.
func (d *LSDB) All() []*LSP {
	return d.entries
}

// GCSweep removes every LSP that is both expired and unreferenced
// (original's isis_lsp_gc_job): freeing it from the LSDB once no
// adjacency's flood/PSNP tree still holds a reference.
func (d *LSDB) GCSweep() int {
	var kept []*LSP
	removed := 0
	for _, lsp := range d.entries {
		if lsp.Expired && lsp.Refcount == 0 {
			removed++
			continue
		}
		kept = append(kept, lsp)
	}
	d.entries = kept
	return removed
}
