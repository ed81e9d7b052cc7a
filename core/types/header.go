package types

import "math/big"

// Header is the subset of a block header the pool and its validation path
// work with. Validation reads GasLimit (to bound gas) and BaseFee (to price
// transactions against the current base fee); Number, Time and Difficulty
// are carried but not read there, and EIP-2681's nonce ceiling is applied
// regardless of block height. Full header machinery (trie roots, mix
// digest) belongs to block validation, out of scope here.
type Header struct {
	Number     *big.Int
	GasLimit   uint64
	Time       uint64
	Difficulty *big.Int
	BaseFee    *big.Int
}
