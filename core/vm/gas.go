package vm

import "github.com/holiman/uint256"

// Per-word gas constants used by the copy-fee and SHA3/CREATE2 init-code
// hashing rules.
const (
	copyWord = 3 // GasCopy: charged per 32-byte word copied
	sha3Word = 6 // Sha3WordGas: charged per 32-byte word hashed
)

// EIP-2929 access-list costs.
const (
	coldAccountAccess = 2600
	coldSload         = 2100
	warmStorageRead   = 100
)

// Legacy (pre-2929) SLOAD/EXTCODE* costs, still the base cost on forks
// before Berlin.
const (
	sloadGasFrontier    = 50
	sloadGasEIP150      = 200
	sloadGasEIP1884     = 800
	extcodeSizeFrontier = 20
	extcodeSizeEIP150   = 700
	extcodeCopyBase     = 20
	extcodeCopyEIP150   = 700
	extcodeHashEIP1884  = 400
	balanceFrontier     = 20
	balanceEIP150       = 400
	balanceEIP1884      = 700
)

// callStipend is the gas stipend that accompanies a CALL transferring
// non-zero value. No gas handler in this package references it.
const callStipend = 2300

// callNewAccountGas is the surcharge for a CALL whose destination did
// not previously exist in the state.
const callNewAccountGas = 25000

// copyGasCost returns the copy-word fee for length bytes, zero when
// length is zero (no per-word charge for a no-op copy).
func copyGasCost(length uint64) (uint64, error) {
	if length == 0 {
		return 0, nil
	}
	words := toWordSize(length)
	fee := words * copyWord
	if fee/copyWord != words {
		return 0, ErrGasUintOverflow
	}
	return fee, nil
}

// sha3GasCost returns the per-word hashing fee SHA3 and CREATE2 charge
// over their input/init-code region.
func sha3GasCost(length uint64) (uint64, error) {
	if length == 0 {
		return 0, nil
	}
	words := toWordSize(length)
	fee := words * sha3Word
	if fee/sha3Word != words {
		return 0, ErrGasUintOverflow
	}
	return fee, nil
}

// callGas computes the amount of gas to forward to a callee. Before
// Tangerine Whistle (EIP-150) the full requested amount is forwarded
// unconditionally — any shortfall is caught later, as an ordinary
// out-of-gas trap, when the call actually executes. From EIP-150 on, at
// most n - n/64 of what remains (n) after paying the base cost of the
// CALL-family opcode itself may be forwarded, so the caller keeps at least
// n/64; if the request exceeds that ceiling, the ceiling is forwarded
// instead of the request.
func callGas(isEip150 bool, availableGas, base uint64, callCost *uint256.Int) (uint64, error) {
	if isEip150 {
		availableGas -= base
		gas := availableGas - availableGas/64
		if !callCost.IsUint64() || gas < callCost.Uint64() {
			return gas, nil
		}
	}
	if !callCost.IsUint64() {
		return 0, ErrGasUintOverflow
	}
	return callCost.Uint64(), nil
}
