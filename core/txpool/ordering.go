package txpool

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/execore/execore/core/types"
)

// GetOrderedTransactions builds a deterministic sequence for block
// construction: each sender's pooled transactions are already in
// ascending-nonce order, so the only work here is repeatedly choosing which
// sender's head transaction goes next, by highest effective price at
// baseFee, ties broken by sender address so the result never depends on
// map iteration order.
func (p *TxPool) GetOrderedTransactions(baseFee *big.Int) []*types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	senders := make([]common.Address, 0, len(p.bySender))
	heads := make(map[common.Address]*txEntry, len(p.bySender))
	for addr, list := range p.bySender {
		if e := list.LowestEntry(); e != nil {
			senders = append(senders, addr)
			heads[addr] = e
		}
	}

	var out []*types.Transaction
	for len(senders) > 0 {
		bestIdx := 0
		bestPrice := heads[senders[0]].tx.EffectiveGasPriceValue(baseFee)
		for i := 1; i < len(senders); i++ {
			price := heads[senders[i]].tx.EffectiveGasPriceValue(baseFee)
			cmp := price.Cmp(bestPrice)
			if cmp > 0 || (cmp == 0 && bytes.Compare(senders[i].Bytes(), senders[bestIdx].Bytes()) < 0) {
				bestIdx, bestPrice = i, price
			}
		}

		addr := senders[bestIdx]
		entry := heads[addr]
		out = append(out, entry.tx)

		next := entry.next
		if next == nil {
			senders[bestIdx] = senders[len(senders)-1]
			senders = senders[:len(senders)-1]
			delete(heads, addr)
		} else {
			heads[addr] = next
		}
	}
	return out
}
