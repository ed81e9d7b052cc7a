package eth

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/execore/execore/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/execore/execore/p2p"
)

// maxKnownTxs bounds how many transaction hashes we remember having
// announced to or received from a single peer, so the set can't grow
// without bound over a long-lived connection.
const maxKnownTxs = 32768

// knownCache is a size-bounded set of hashes, used to suppress re-announcing
// a transaction to a peer that is already known to have it.
type knownCache struct {
	cache *lru.Cache[common.Hash, struct{}]
}

func newKnownCache(max int) *knownCache {
	c, err := lru.New[common.Hash, struct{}](max)
	if err != nil {
		panic(err)
	}
	return &knownCache{cache: c}
}

// Add records hashes as known, evicting the least recently used entries
// once the cache is at capacity.
func (k *knownCache) Add(hashes ...common.Hash) {
	for _, h := range hashes {
		k.cache.Add(h, struct{}{})
	}
}

func (k *knownCache) Contains(h common.Hash) bool {
	return k.cache.Contains(h)
}

func (k *knownCache) Cardinality() int {
	return k.cache.Len()
}

// TxPool is the capability eth needs from the transaction pool: looking
// up transactions to answer GetPooledTransactions. Inbound announcements
// and bodies are handed to the Backend, not to TxPool.
type TxPool interface {
	Get(hash common.Hash) *types.Transaction
}

// Peer is a connection negotiated for the eth sub-protocol, layered on top
// of the generic p2p session. It tracks the negotiated version and the
// set of transaction hashes already exchanged with the remote side.
type Peer struct {
	id      string
	version uint
	rw      p2p.MsgReadWriter

	txpool TxPool

	knownTxs *knownCache

	queuedTxs    chan []*types.Transaction
	queuedHashes chan []common.Hash

	term chan struct{}
	once sync.Once
}

// NewPeer wraps a negotiated sub-protocol connection. txpool may be nil in
// tests that don't exercise message handling.
func NewPeer(version uint, id string, rw p2p.MsgReadWriter, txpool TxPool) *Peer {
	return &Peer{
		id:           id,
		version:      version,
		rw:           rw,
		txpool:       txpool,
		knownTxs:     newKnownCache(maxKnownTxs),
		queuedTxs:    make(chan []*types.Transaction, 4),
		queuedHashes: make(chan []common.Hash, 4),
		term:         make(chan struct{}),
	}
}

func (p *Peer) ID() string    { return p.id }
func (p *Peer) Version() uint { return p.version }

// Close shuts down the peer's broadcast loops; safe to call more than once.
func (p *Peer) Close() {
	p.once.Do(func() { close(p.term) })
}

// KnownTransaction reports whether hash is known to have already been sent
// to or received from this peer.
func (p *Peer) KnownTransaction(hash common.Hash) bool {
	return p.knownTxs.Contains(hash)
}

// MarkTransaction records hash as known to this peer, trimming the oldest
// entries if the known-set has grown past its cap.
func (p *Peer) MarkTransaction(hash common.Hash) {
	p.knownTxs.Add(hash)
}

// AsyncSendTransactions queues full transactions for broadcast to this
// peer, marking them known so they aren't re-announced. Drops the batch if
// the peer's outbound queue is already full rather than blocking the
// caller.
func (p *Peer) AsyncSendTransactions(txs []*types.Transaction) {
	select {
	case p.queuedTxs <- txs:
		for _, tx := range txs {
			p.knownTxs.Add(tx.Hash())
		}
	case <-p.term:
	default:
	}
}

// AsyncSendPooledTransactionHashes queues a hash-only announcement.
func (p *Peer) AsyncSendPooledTransactionHashes(hashes []common.Hash) {
	select {
	case p.queuedHashes <- hashes:
		p.knownTxs.Add(hashes...)
	case <-p.term:
	default:
	}
}

// SendTransactions immediately writes a TransactionsPacket.
func (p *Peer) SendTransactions(txs types.Transactions) error {
	return p2p.Send(p.rw, TransactionsMsg, TransactionsPacket(txs))
}

// SendPooledTransactionHashes immediately writes a
// NewPooledTransactionHashesPacket (eth/66-67 shape: hashes only).
func (p *Peer) SendPooledTransactionHashes(hashes []common.Hash) error {
	return p2p.Send(p.rw, NewPooledTransactionHashesMsg, NewPooledTransactionHashesPacket{Hashes: hashes})
}

// SendPooledTransactionsRLP answers a GetPooledTransactionsMsg.
func (p *Peer) SendPooledTransactionsRLP(id uint64, txs []*types.Transaction) error {
	return p2p.Send(p.rw, PooledTransactionsMsg, PooledTransactionsPacket{RequestId: id, Transactions: txs})
}

// RequestTxs asks the peer to deliver the bodies for hashes.
func (p *Peer) RequestTxs(id uint64, hashes []common.Hash) error {
	return p2p.Send(p.rw, GetPooledTransactionsMsg, GetPooledTransactionsPacket{RequestId: id, Hashes: hashes})
}
