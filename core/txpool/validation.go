package txpool

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/params"

	"github.com/execore/execore/core/types"
)

// acceptedTxTypes is the Accept mask for every EIP-2718 type this package's
// types.TxData decodes: legacy, EIP-2930 access-list, and EIP-1559
// dynamic-fee.
const acceptedTxTypes = 1<<types.LegacyTxType | 1<<types.AccessListTxType | 1<<types.DynamicFeeTxType

// ValidationOptions bounds the stateless checks ValidateTransaction applies,
// independent of the pool's own account-state lookups (balance, current
// nonce) — those belong to the acceptance pipeline in pool.go, which calls
// ValidateTransaction first and then consults a StateView.
type ValidationOptions struct {
	Config *params.ChainConfig

	// Accept is a bitmask of acceptable EIP-2718 type bytes: bit i set
	// means type i is accepted. 0xFF accepts every type this package knows.
	Accept uint8

	MaxSize int

	// MaxBlobCount is carried for parity with the teacher's options shape;
	// none of the three TxData variants this package implements are blob
	// transactions, so it is not yet consulted.
	MaxBlobCount int

	MinTip *big.Int
}

// ValidateTransaction applies the stateless half of the acceptance
// pipeline: signature presence, type acceptance, size, the EIP-2681 nonce
// ceiling, and the fee-vs-block-limits checks that don't require touching
// account state. The caller is responsible for the state-dependent steps
// (current nonce, balance, pool occupancy, replace-by-fee).
func ValidateTransaction(tx *types.Transaction, head *types.Header, signer types.Signer, opts *ValidationOptions) error {
	if _, err := signer.Sender(tx); err != nil {
		return ErrNotSigned
	}
	if opts.Accept&(1<<tx.Type()) == 0 {
		return ErrTxTypeNotSupported
	}
	if tx.Value().Sign() < 0 {
		return ErrNegativeValue
	}
	if tx.Nonce() == math.MaxUint64 {
		// EIP-2681: a transaction may not push an account's nonce past
		// 2^64-1, since the subsequent nonce would overflow uint64.
		return ErrNonceMax
	}
	if opts.MaxSize > 0 && tx.Size() > uint64(opts.MaxSize) {
		return ErrOversizedData
	}
	if head.GasLimit > 0 && tx.Gas() > head.GasLimit {
		return ErrGasLimit
	}
	if _, err := tx.EffectiveGasTip(head.BaseFee); err != nil {
		return err
	}
	if opts.MinTip != nil {
		tip, _ := tx.EffectiveGasTip(head.BaseFee)
		if tip != nil && tip.Cmp(opts.MinTip) < 0 {
			return ErrUnderpriced
		}
	}
	return nil
}
