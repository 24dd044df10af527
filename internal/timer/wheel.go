// Package timer implements the O(1) hierarchical timer wheel that
// drives every timeout in the emulator: PPPoE/LCP/PAP/CHAP retransmit,
// DHCP lease renewal, L2TP hello/retry, IS-IS hello/holding/CSNP/PSNP,
// and the per-interface TX tick.
//
// The design mirrors the original C timer library
// (bbl_timer.h/bbl_timer.c): timers sharing an identical (sec, nsec)
// duration are grouped into a bucket. Because monotonic time only
// moves forward, a bucket's head entry is always its nearest
// expiration, so Walk only ever needs to inspect bucket heads — O(1)
// per timer serviced rather than O(log n) or O(n).
package timer

import (
	"container/list"
	"time"
)

// Handle identifies a single scheduled timer. It remains valid after
// the timer has fired (for periodic timers) and after Del has been
// called (Del is deferred-safe: del only marks the timer, the
// callback is skipped at its next expiry and storage is freed by GC).
type Handle struct {
	elem   *list.Element
	bucket *bucket
}

// CallbackFunc is invoked when a timer expires. data is the opaque
// pointer supplied to Add/AddPeriodic.
type CallbackFunc func(data interface{})

type entry struct {
	name     string
	expire   time.Time
	duration time.Duration
	data     interface{}
	cb       CallbackFunc
	periodic bool
	deleted  bool
	bucket   *bucket
}

type bucket struct {
	duration time.Duration
	timers   *list.List // of *entry, insertion order; head is nearest expiry
}

// Root is the top-level container for a set of timers: one root is
// shared by every component scheduling work on the same cooperative
// thread.
type Root struct {
	buckets map[time.Duration]*bucket
	gc      []*entry
	now     func() time.Time
}

// NewRoot creates an empty timer root. now is normally time.Now; a
// fake clock may be substituted in tests.
func NewRoot(now func() time.Time) *Root {
	if now == nil {
		now = time.Now
	}
	return &Root{
		buckets: make(map[time.Duration]*bucket),
		now:     now,
	}
}

func (r *Root) bucketFor(d time.Duration) *bucket {
	b, ok := r.buckets[d]
	if !ok {
		b = &bucket{duration: d, timers: list.New()}
		r.buckets[d] = b
	}
	return b
}

func (r *Root) add(name string, d time.Duration, data interface{}, cb CallbackFunc, periodic bool) *Handle {
	b := r.bucketFor(d)
	e := &entry{
		name:     name,
		expire:   r.now().Add(d),
		duration: d,
		data:     data,
		cb:       cb,
		periodic: periodic,
		bucket:   b,
	}
	elem := b.timers.PushBack(e)
	return &Handle{elem: elem, bucket: b}
}

// Add schedules a one-shot timer that invokes cb(data) after d has
// elapsed.
func (r *Root) Add(name string, d time.Duration, data interface{}, cb CallbackFunc) *Handle {
	return r.add(name, d, data, cb, false)
}

// AddPeriodic schedules a timer that invokes cb(data) every d until
// Del is called.
func (r *Root) AddPeriodic(name string, d time.Duration, data interface{}, cb CallbackFunc) *Handle {
	return r.add(name, d, data, cb, true)
}

// Del cancels h. It is O(1) and safe to call even if the timer has
// already fired and its callback is queued: the entry is marked
// deleted so Walk skips invoking the callback, and storage is
// reclaimed by the next GC pass.
func (r *Root) Del(h *Handle) {
	if h == nil || h.elem == nil {
		return
	}
	if e, ok := h.elem.Value.(*entry); ok {
		e.deleted = true
	}
}

// Change reprograms a live timer's duration in O(1) by unlinking it
// from its current bucket and re-linking into the bucket for the new
// duration. The handle returned replaces h; the old handle must not
// be used again.
func (r *Root) Change(h *Handle, d time.Duration) *Handle {
	if h == nil || h.elem == nil {
		return nil
	}
	e, ok := h.elem.Value.(*entry)
	if !ok || e.deleted {
		return h
	}
	h.bucket.timers.Remove(h.elem)
	e.duration = d
	e.expire = r.now().Add(d)
	nb := r.bucketFor(d)
	e.bucket = nb
	elem := nb.timers.PushBack(e)
	return &Handle{elem: elem, bucket: nb}
}

// Walk inspects the head of every bucket. Any head whose expiry has
// passed is popped and its callback invoked; periodic timers are
// re-inserted at the tail of their bucket with a freshly computed
// expiry, one-shot timers (and any timer marked deleted) are moved to
// the GC list. GC frees entries on the next call to Walk after they
// were queued, guaranteeing a deleted timer's callback is never
// invoked even if Del raced with expiry.
func (r *Root) Walk() {
	r.gc = r.gc[:0]
	now := r.now()
	for _, b := range r.buckets {
		for {
			front := b.timers.Front()
			if front == nil {
				break
			}
			e := front.Value.(*entry)
			if e.expire.After(now) {
				break
			}
			b.timers.Remove(front)
			if e.deleted {
				r.gc = append(r.gc, e)
				continue
			}
			if e.cb != nil {
				e.cb(e.data)
			}
			if e.periodic && !e.deleted {
				e.expire = now.Add(e.duration)
				elem := b.timers.PushBack(e)
				_ = elem
			} else {
				r.gc = append(r.gc, e)
			}
		}
	}
}

// Buckets reports the number of distinct durations currently holding
// at least one timer, used by the control socket for diagnostics.
func (r *Root) Buckets() int {
	n := 0
	for _, b := range r.buckets {
		if b.timers.Len() > 0 {
			n++
		}
	}
	return n
}

// GC reports the number of timers awaiting garbage collection, i.e.
// expired-and-non-periodic or deleted timers whose callback has
// already run or been skipped but whose entry value has not yet been
// dropped by the next Walk.
func (r *Root) GC() int {
	return len(r.gc)
}

// SmearBucket spreads the initial expiration of every timer currently
// in the bucket for duration d uniformly across the interval [0, d),
// avoiding a synchronized burst when many sessions schedule the same
// periodic timer (e.g. thousands of PPPoE keepalives) at startup.
func (r *Root) SmearBucket(d time.Duration) {
	b, ok := r.buckets[d]
	if !ok || d <= 0 {
		return
	}
	n := b.timers.Len()
	if n <= 1 {
		return
	}
	i := 0
	now := r.now()
	step := d / time.Duration(n)
	for elem := b.timers.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		e.expire = now.Add(step * time.Duration(i))
		i++
	}
}

// SmearAllBuckets applies SmearBucket to every bucket in the root.
// Intended to be called exactly once, after configuration has
// finished loading and every startup timer has been scheduled.
func (r *Root) SmearAllBuckets() {
	for d := range r.buckets {
		r.SmearBucket(d)
	}
}
