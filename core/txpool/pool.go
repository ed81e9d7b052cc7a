// Package txpool implements an admission-controlled, per-sender-ordered
// buffer of pending transactions: replace-by-fee, rejection of new
// transactions once the pool is full, block-inclusion reconciliation, and
// gossip fan-out with peers
// speaking the eth sub-protocol.
package txpool

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/execore/execore/core/types"
	"github.com/execore/execore/event"
	"github.com/execore/execore/log"
)

// StateView is the read-only account-state capability the pool consults
// during admission; it never mutates state and never sees anything beyond
// a sender's current nonce and balance.
type StateView interface {
	GetNonce(addr common.Address) uint64
	GetBalance(addr common.Address) *big.Int
}

// Peer is the capability the pool needs from a connected eth sub-protocol
// session: suppressing re-announcement to peers that already have a hash,
// and the two ways of pushing transaction data outward. Satisfied
// structurally by *eth.Peer without either package importing the other.
type Peer interface {
	ID() string
	KnownTransaction(hash common.Hash) bool
	MarkTransaction(hash common.Hash)
	AsyncSendTransactions(txs []*types.Transaction)
	AsyncSendPooledTransactionHashes(hashes []common.Hash)
	RequestTxs(id uint64, hashes []common.Hash) error
}

// PeerPool is the set of currently connected peers the pool gossips
// through. Satisfied structurally by the module's own peer registry.
type PeerPool interface {
	Peers() []Peer
}

// NewTxsEvent is sent on TxPool.txFeed whenever one or more transactions
// are newly admitted into the pool, for anything that wants to react
// (re-announcement, a miner assembling the next block).
type NewTxsEvent struct {
	Txs []*types.Transaction
}

// Config bounds the pool's admission and housekeeping behavior. Every
// limit spec.md names a constant for has a field here rather than a
// hard-coded literal, so ops and tests can both see and override it.
type Config struct {
	MaxPerSender  int
	MaxPoolSize   int
	MaxDataBytes  int
	MinGasPrice   *big.Int

	ReplacementBumpPercent int64

	TxRetrievalLimit int

	PooledStorageTimeLimit  time.Duration
	HandledCleanupTimeLimit time.Duration

	CleanupInterval time.Duration
}

// DefaultConfig returns the pool's tunables at the values spec.md fixes:
// a 100-transaction-per-sender ceiling, a 5000-transaction pool ceiling, a
// 128 KiB per-transaction data cap, and a 10% replace-by-fee bump.
func DefaultConfig() Config {
	return Config{
		MaxPerSender:            100,
		MaxPoolSize:             5000,
		MaxDataBytes:            131072,
		MinGasPrice:             big.NewInt(1),
		ReplacementBumpPercent:  10,
		TxRetrievalLimit:        256,
		PooledStorageTimeLimit:  3 * time.Hour,
		HandledCleanupTimeLimit: 30 * time.Minute,
		CleanupInterval:         time.Minute,
	}
}

type handledEntry struct {
	addedAt time.Time
}

// peerKnown is one peer's set of transaction hashes already exchanged with
// it. Membership uses the same set library the EVM access list does
// (mapset); ages are tracked alongside in a plain map since the cleanup
// sweep needs per-entry timestamps a set alone can't carry.
type peerKnown struct {
	set     mapset.Set[common.Hash]
	addedAt map[common.Hash]time.Time
}

func newPeerKnown() *peerKnown {
	return &peerKnown{set: mapset.NewThreadUnsafeSet[common.Hash](), addedAt: make(map[common.Hash]time.Time)}
}

func (k *peerKnown) has(h common.Hash) bool { return k.set.Contains(h) }

func (k *peerKnown) add(h common.Hash, now time.Time) {
	k.set.Add(h)
	k.addedAt[h] = now
}

func (k *peerKnown) forget(h common.Hash) {
	k.set.Remove(h)
	delete(k.addedAt, h)
}

// TxPool is the pool's single owning task domain: every mutation below
// takes mu, so no two acceptance pipelines ever observe an intermediate
// state (the concurrency model's core invariant).
type TxPool struct {
	mu sync.RWMutex

	config Config
	signer types.Signer
	state  StateView

	head *types.Header // current chain head; GasLimit/BaseFee drive admission

	bySender map[common.Address]*txList
	handled  map[common.Hash]handledEntry
	total    int

	knownByPeer map[string]*peerKnown

	peers PeerPool

	txFeed event.Feed[NewTxsEvent]

	log log.Logger

	reqID atomic.Uint64

	opened  bool
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a TxPool bound to state for account lookups and signer for
// sender recovery. The pool starts closed; callers must Open then Start it.
func New(config Config, state StateView, signer types.Signer) *TxPool {
	return &TxPool{
		config:      config,
		signer:      signer,
		state:       state,
		bySender:    make(map[common.Address]*txList),
		handled:     make(map[common.Hash]handledEntry),
		knownByPeer: make(map[string]*peerKnown),
		log:         log.Root.New("module", "txpool"),
	}
}

// SetPeerPool wires the peer registry gossip is fanned out through. May be
// called before or after Open.
func (p *TxPool) SetPeerPool(peers PeerPool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers = peers
}

// UpdateHead records the chain head admission is validated against (block
// gas limit, base fee). Call this whenever a new block becomes canonical,
// before the next acceptance round runs.
func (p *TxPool) UpdateHead(head *types.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = head
}

// Open arms the pool for use. It is idempotent: calling it again before
// Close returns false without doing anything.
func (p *TxPool) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return false
	}
	p.opened = true
	return true
}

// Start arms the cleanup and re-announce timers. Safe to call only after
// Open; calling it twice is a no-op.
func (p *TxPool) Start() {
	p.mu.Lock()
	if !p.opened || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.cleanupLoop()
}

// Stop stops the cleanup loop started by Start. It does not stop admission
// or gossip: Add keeps admitting transactions and announcing them to peers
// after Stop.
func (p *TxPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Close clears all pooled state. The pool must be reopened before reuse.
func (p *TxPool) Close() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bySender = make(map[common.Address]*txList)
	p.handled = make(map[common.Hash]handledEntry)
	p.knownByPeer = make(map[string]*peerKnown)
	p.total = 0
	p.opened = false
}

func (p *TxPool) cleanupLoop() {
	defer p.wg.Done()
	t := time.NewTicker(p.config.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.Cleanup()
		case <-p.stopCh:
			return
		}
	}
}

// Stats returns the number of pooled transactions and the number of
// distinct senders holding them.
func (p *TxPool) Stats() (pending int, senders int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total, len(p.bySender)
}

// SubscribeNewTxsEvent registers ch to receive every batch of newly
// admitted transactions.
func (p *TxPool) SubscribeNewTxsEvent(ch chan<- NewTxsEvent) event.Subscription {
	return p.txFeed.Subscribe(ch)
}

// Add runs the full acceptance pipeline against tx and, on success, inserts
// it into the pool and schedules it for gossip to every connected peer that
// doesn't already know it.
func (p *TxPool) Add(tx *types.Transaction) error {
	if err := p.add(tx); err != nil {
		return err
	}
	p.txFeed.Send(NewTxsEvent{Txs: []*types.Transaction{tx}})
	p.broadcast(tx)
	return nil
}

// AddBatch runs Add over every transaction, collecting one error per input
// (nil on success), matching the teacher's AddRemotes shape.
func (p *TxPool) AddBatch(txs []*types.Transaction) []error {
	errs := make([]error, len(txs))
	for i, tx := range txs {
		errs[i] = p.Add(tx)
	}
	return errs
}

func (p *TxPool) add(tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	head := p.head
	if head == nil {
		head = &types.Header{}
	}
	if err := ValidateTransaction(tx, head, p.signer, &ValidationOptions{Accept: acceptedTxTypes}); err != nil {
		return err
	}

	sender, err := p.signer.Sender(tx)
	if err != nil {
		return ErrNotSigned
	}

	list, ok := p.bySender[sender]
	if ok && list.Len() >= p.config.MaxPerSender {
		return ErrAccountLimitExceeded
	}
	if p.total >= p.config.MaxPoolSize {
		return ErrTxPoolOverflow
	}
	hash := tx.Hash()
	if _, known := p.handled[hash]; known {
		return ErrAlreadyKnown
	}
	if p.config.MaxDataBytes > 0 && len(tx.Data()) > p.config.MaxDataBytes {
		return ErrOversizedData
	}
	if tx.Nonce() < p.state.GetNonce(sender) {
		return ErrNonceTooLow
	}
	baseFee := p.baseFeeLocked()
	upfront := tx.UpfrontCost(baseFee)
	if p.state.GetBalance(sender).Cmp(upfront) < 0 {
		return ErrInsufficientFunds
	}
	// Block gas limit is already enforced by ValidateTransaction above.
	price := tx.EffectiveGasPriceValue(baseFee)
	if p.config.MinGasPrice != nil && price.Cmp(p.config.MinGasPrice) < 0 {
		return ErrUnderpriced
	}

	entry := &txEntry{tx: tx, addedAt: time.Now()}
	if !ok {
		list = newTxListPtr()
		p.bySender[sender] = list
	}
	if existing := list.Get(tx.Nonce()); existing != nil {
		if !priceBumpSatisfied(price, existing.tx.EffectiveGasPriceValue(baseFee), p.config.ReplacementBumpPercent) {
			return ErrReplaceUnderpriced
		}
		delete(p.handled, existing.tx.Hash())
		list.Replace(entry)
		p.handled[hash] = handledEntry{addedAt: entry.addedAt}
		return nil
	}

	list.Add(entry)
	p.total++
	p.handled[hash] = handledEntry{addedAt: entry.addedAt}
	return nil
}

func newTxListPtr() *txList {
	l := newTxList()
	return &l
}

// priceBumpSatisfied reports whether newPrice is at least bumpPercent%
// above oldPrice, the replace-by-fee threshold.
func priceBumpSatisfied(newPrice, oldPrice *big.Int, bumpPercent int64) bool {
	threshold := new(big.Int).Mul(oldPrice, big.NewInt(100+bumpPercent))
	threshold.Div(threshold, big.NewInt(100))
	return newPrice.Cmp(threshold) >= 0
}

func (p *TxPool) baseFeeLocked() *big.Int {
	if p.head == nil {
		return nil
	}
	return p.head.BaseFee
}

// Get returns the pooled transaction with the given hash, or nil.
func (p *TxPool) Get(hash common.Hash) *types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, list := range p.bySender {
		for e := list.head; e != nil; e = e.next {
			if e.tx.Hash() == hash {
				return e.tx
			}
		}
	}
	return nil
}

// RemoveNewBlockTxs drops every (sender, nonce) pair included in the given
// blocks from the pool; a sender whose last pooled entry is removed is
// dropped from bySender entirely.
func (p *TxPool) RemoveNewBlockTxs(blocks [][]*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, txs := range blocks {
		for _, tx := range txs {
			sender, err := p.signer.Sender(tx)
			if err != nil {
				continue
			}
			list, ok := p.bySender[sender]
			if !ok {
				continue
			}
			nonce := tx.Nonce()
			removed := list.Delete(func(e *txEntry) bool { return e.tx.Nonce() == nonce })
			if removed != nil {
				delete(p.handled, removed.tx.Hash())
				p.total--
			}
			if list.Len() == 0 {
				delete(p.bySender, sender)
			}
		}
	}
}

// Cleanup sweeps pool entries, knownByPeer entries and handled records past
// their retention window. Safe to call directly (e.g. from a test) or let
// the background loop started by Start call it on its own timer.
func (p *TxPool) Cleanup() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for sender, list := range p.bySender {
		for {
			e := list.Delete(func(e *txEntry) bool {
				return now.Sub(e.addedAt) > p.config.PooledStorageTimeLimit
			})
			if e == nil {
				break
			}
			delete(p.handled, e.tx.Hash())
			p.total--
		}
		if list.Len() == 0 {
			delete(p.bySender, sender)
		}
	}

	for hash, entry := range p.handled {
		if now.Sub(entry.addedAt) > p.config.HandledCleanupTimeLimit {
			delete(p.handled, hash)
		}
	}

	for _, known := range p.knownByPeer {
		for h, t := range known.addedAt {
			if now.Sub(t) > p.config.PooledStorageTimeLimit {
				known.forget(h)
			}
		}
	}
}

// broadcast re-announces tx to every connected peer that isn't already
// known to have it, recording the announcement so it isn't repeated.
func (p *TxPool) broadcast(tx *types.Transaction) {
	p.mu.RLock()
	peers := p.peers
	p.mu.RUnlock()
	if peers == nil {
		return
	}
	hash := tx.Hash()
	for _, peer := range peers.Peers() {
		if p.isKnown(peer.ID(), hash) {
			continue
		}
		peer.AsyncSendPooledTransactionHashes([]common.Hash{hash})
		p.markKnown(peer.ID(), hash)
	}
}

func (p *TxPool) isKnown(peerID string, hash common.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.knownByPeer[peerID]
	return ok && k.has(hash)
}

func (p *TxPool) markKnown(peerID string, hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.knownByPeer[peerID]
	if !ok {
		k = newPeerKnown()
		p.knownByPeer[peerID] = k
	}
	k.add(hash, time.Now())
}
