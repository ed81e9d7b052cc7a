package txpool

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/execore/execore/core/types"
)

// HandleAnnouncedTxHashes implements handleAnnouncedTxHashes: it filters
// hashes already admitted or already known to have been exchanged with
// peer, records every announced hash against peer regardless (so a later
// announcement of the same hash by the same peer is never re-requested),
// and retrieves the remainder in batches bounded by TxRetrievalLimit.
func (p *TxPool) HandleAnnouncedTxHashes(hashes []common.Hash, peer Peer) error {
	p.mu.Lock()
	known, ok := p.knownByPeer[peer.ID()]
	var toFetch []common.Hash
	for _, h := range hashes {
		_, handled := p.handled[h]
		alreadyKnown := ok && known.has(h)
		if !handled && !alreadyKnown {
			toFetch = append(toFetch, h)
		}
	}
	for _, h := range hashes {
		p.markKnownLocked(peer.ID(), h)
	}
	p.mu.Unlock()

	for _, h := range hashes {
		peer.MarkTransaction(h)
	}

	limit := p.config.TxRetrievalLimit
	if limit <= 0 {
		limit = len(toFetch)
	}
	for len(toFetch) > 0 {
		n := limit
		if n > len(toFetch) {
			n = len(toFetch)
		}
		batch := toFetch[:n]
		toFetch = toFetch[n:]
		id := p.reqID.Add(1)
		if err := peer.RequestTxs(id, batch); err != nil {
			p.log.Debug("pooled transaction retrieval failed", "peer", peer.ID(), "err", err)
		}
	}
	return nil
}

// HandlePooledTransactions runs the acceptance pipeline over every
// transaction a GetPooledTransactions round-trip returned, marking the
// sending peer as knowing each one regardless of admission outcome (it
// just handed us the body, so it plainly already has it).
func (p *TxPool) HandlePooledTransactions(txs []*types.Transaction, peer Peer) []error {
	errs := make([]error, len(txs))
	for i, tx := range txs {
		peer.MarkTransaction(tx.Hash())
		p.markKnown(peer.ID(), tx.Hash())
		errs[i] = p.Add(tx)
	}
	return errs
}

func (p *TxPool) markKnownLocked(peerID string, hash common.Hash) {
	k, ok := p.knownByPeer[peerID]
	if !ok {
		k = newPeerKnown()
		p.knownByPeer[peerID] = k
	}
	k.add(hash, time.Now())
}
