package txpool

import (
	"time"

	"github.com/execore/execore/core/types"
)

// txEntry is one pooled transaction together with the bookkeeping the pool
// needs around it: when it was admitted (for the cleanup sweep) and its
// position in its sender's nonce-ordered list.
type txEntry struct {
	tx      *types.Transaction
	addedAt time.Time

	prev, next *txEntry
}

// Less reports whether e sorts before other: ascending by nonce, the order
// every per-sender list maintains. Two entries for the same sender never
// compare equal on nonce once the list invariant holds (at most one entry
// per (sender, nonce)).
func (e *txEntry) Less(other *txEntry) bool {
	return e.tx.Nonce() < other.tx.Nonce()
}

// txList is one sender's pooled transactions, held in strictly ascending
// nonce order in a doubly-linked list: head is the lowest pending nonce,
// bottom the highest. Adapted from a global price-ordered eviction index
// into this per-sender, nonce-ordered shape — sorting by nonce rather than
// price is what lets GetOrderedTransactions treat each sender's list as a
// ready-to-execute queue instead of needing a separate re-sort.
type txList struct {
	head, bottom *txEntry
	len          int
}

func newTxList() txList {
	return txList{}
}

func (l *txList) Len() int { return l.len }

// Get returns the entry with the given nonce, or nil if none is pooled.
func (l *txList) Get(nonce uint64) *txEntry {
	for e := l.head; e != nil; e = e.next {
		if e.tx.Nonce() == nonce {
			return e
		}
		if e.tx.Nonce() > nonce {
			break
		}
	}
	return nil
}

// Add inserts e in ascending-nonce order. If an entry for the same nonce is
// already present, Add does not mutate the list and returns that entry
// instead, leaving the replace-by-fee decision to the caller.
func (l *txList) Add(e *txEntry) (existing *txEntry) {
	if l.head == nil {
		l.head, l.bottom = e, e
		l.len++
		return nil
	}
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.tx.Nonce() == e.tx.Nonce() {
			return cur
		}
		if cur.tx.Nonce() > e.tx.Nonce() {
			l.insertBefore(cur, e)
			l.len++
			return nil
		}
	}
	// e's nonce is higher than every entry currently pooled.
	e.prev = l.bottom
	l.bottom.next = e
	l.bottom = e
	l.len++
	return nil
}

func (l *txList) insertBefore(at, e *txEntry) {
	e.next = at
	e.prev = at.prev
	if at.prev != nil {
		at.prev.next = e
	} else {
		l.head = e
	}
	at.prev = e
}

// Replace swaps out the pooled entry sharing e's nonce for e, preserving
// position; the caller must already know that entry exists (Get/Add having
// reported it).
func (l *txList) Replace(e *txEntry) {
	cur := l.Get(e.tx.Nonce())
	if cur == nil {
		return
	}
	e.prev, e.next = cur.prev, cur.next
	if cur.prev != nil {
		cur.prev.next = e
	} else {
		l.head = e
	}
	if cur.next != nil {
		cur.next.prev = e
	} else {
		l.bottom = e
	}
}

// Delete removes and returns the first entry matchFn accepts, or nil if
// none matches.
func (l *txList) Delete(matchFn func(*txEntry) bool) *txEntry {
	for e := l.head; e != nil; e = e.next {
		if !matchFn(e) {
			continue
		}
		if e.prev != nil {
			e.prev.next = e.next
		} else {
			l.head = e.next
		}
		if e.next != nil {
			e.next.prev = e.prev
		} else {
			l.bottom = e.prev
		}
		l.len--
		return e
	}
	return nil
}

// Peek returns up to n transactions in ascending-nonce order.
func (l *txList) Peek(n int) []*types.Transaction {
	if n > l.len {
		n = l.len
	}
	out := make([]*types.Transaction, 0, n)
	for e := l.head; e != nil && len(out) < n; e = e.next {
		out = append(out, e.tx)
	}
	return out
}

// LowestEntry returns the entry with the lowest (next-to-execute) nonce, or
// nil if the list is empty.
func (l *txList) LowestEntry() *txEntry { return l.head }
