package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-2200 / EIP-1283 net-metering constants.
const (
	sstoreSentryGas        = 2300  // minimum gas that must remain before SSTORE is even attempted
	sstoreSetGas           = 20000 // writing a zero slot to a non-zero value
	sstoreResetGas         = 5000  // writing a non-zero slot to a different value
	sstoreClearGas         = 5000  // legacy (pre-Constantinople) clearing cost
	sstoreNoopGas          = 200   // no-op net-metered write
	sstoreInitGas          = 20000 // net-metered creation of a previously-zero slot
	sstoreCleanGas         = 5000  // net-metered first dirtying of an original slot
	sstoreDirtyGas         = 200   // net-metered write to an already-dirtied slot
	sstoreClearRefund      = 15000 // pre-EIP-3529 refund for clearing a slot to zero
	sstoreResetRefund      = 4800  // net-metered refund for restoring the original non-zero value
	sstoreResetClearRefund = 19800 // net-metered refund for restoring the original zero value

	sstoreClearsScheduleRefundEIP3529 = 4800 // London's reduced clear-slot refund
)

// errReentrancySentry wraps ErrOutOfGas so code checking either the
// specific rejection or the generic out-of-gas sentinel via errors.Is both
// still match.
var errReentrancySentry = fmt.Errorf("not enough gas for reentrancy sentry: %w", ErrOutOfGas)

// zeroHash is the 32-zero-byte value a cleared or never-set storage slot
// round-trips to; RunState/EEI always represent "no value" this way so
// every comparison below is a plain equality check.
var zeroHash common.Hash

// gasSStoreLegacy prices SSTORE before Constantinople: a flat cost keyed
// only on whether the write creates, clears, or merely changes a slot,
// with a flat refund for clearing.
func gasSStoreLegacy(rs *RunState, addr common.Address, slot common.Hash, newValue common.Hash) (uint64, error) {
	current := rs.EEI.GetState(addr, slot)
	switch {
	case current == zeroHash && newValue != zeroHash:
		return sstoreSetGas, nil
	case current != zeroHash && newValue == zeroHash:
		rs.EEI.AddRefund(sstoreClearRefund)
		return sstoreClearGas, nil
	default:
		return sstoreResetGas, nil
	}
}

// gasSStoreEIP1283 prices SSTORE at exactly Constantinople: net-metered
// against the slot's value at the start of the transaction (original),
// not just its value before this write (current), so touching a slot
// back to its original value is cheap regardless of how many times it
// was rewritten in between.
func gasSStoreEIP1283(rs *RunState, addr common.Address, slot common.Hash, newValue common.Hash) (uint64, error) {
	return netMeteredSStore(rs, addr, slot, newValue, sstoreClearRefund, sstoreResetRefund, sstoreResetClearRefund)
}

// gasSStoreEIP2200 prices SSTORE from Istanbul on: the same net-metering
// as EIP-1283, with the EIP-2200 reentrancy sentry — a call that has
// spent itself down to sstoreSentryGas or less may not attempt SSTORE at
// all, since a successful net-metered noop must always leave enough gas
// for the caller's own cleanup. London reduces the clear-slot refund from
// 15000 to 4800 (EIP-3529); callers pass the already-resolved constant.
func gasSStoreEIP2200(rs *RunState, gasRemaining uint64, addr common.Address, slot common.Hash, newValue common.Hash, clearRefund uint64) (uint64, error) {
	if gasRemaining <= sstoreSentryGas {
		return 0, NewGasError("SSTORE", sstoreSentryGas+1, gasRemaining, errReentrancySentry)
	}
	return netMeteredSStore(rs, addr, slot, newValue, clearRefund, sstoreResetRefund, sstoreResetClearRefund)
}

func netMeteredSStore(rs *RunState, addr common.Address, slot common.Hash, newValue common.Hash, clearRefund, resetRefund, resetClearRefund uint64) (uint64, error) {
	current := rs.EEI.GetState(addr, slot)
	if current == newValue {
		return sstoreNoopGas, nil
	}
	original := rs.EEI.GetCommittedState(addr, slot)
	if original == current {
		if original == zeroHash {
			return sstoreInitGas, nil
		}
		if newValue == zeroHash {
			rs.EEI.AddRefund(clearRefund)
		}
		return sstoreCleanGas, nil
	}
	if original != zeroHash {
		if current == zeroHash {
			rs.EEI.SubRefund(clearRefund)
		} else if newValue == zeroHash {
			rs.EEI.AddRefund(clearRefund)
		}
	}
	if original == newValue {
		if original == zeroHash {
			rs.EEI.AddRefund(resetClearRefund)
		} else {
			rs.EEI.AddRefund(resetRefund)
		}
	}
	return sstoreDirtyGas, nil
}

// gasSStoreEIP2929 layers the Berlin access-list surcharge on top of the
// Istanbul/EIP-2200 net-metering: the first touch of a slot within a call
// pays the cold-SLOAD surcharge (and implicitly warms the slot for every
// later access in the same call), and the net-metered "clean write"
// tier's cost is reduced by that same amount since the cold surcharge
// already covers it.
func gasSStoreEIP2929(rs *RunState, gasRemaining uint64, addr common.Address, slot common.Hash, newValue common.Hash, london bool) (uint64, error) {
	if gasRemaining <= sstoreSentryGas {
		return 0, NewGasError("SSTORE", sstoreSentryGas+1, gasRemaining, errReentrancySentry)
	}
	var cold uint64
	if _, slotPresent := rs.SlotInAccessList(addr, slot); !slotPresent {
		cold = coldSload
		rs.AddSlotToAccessList(addr, slot)
	}

	clearRefund := uint64(sstoreClearRefund)
	resetRefund := uint64(sstoreResetRefund)
	resetClearRefund := uint64(sstoreResetClearRefund)
	if london {
		clearRefund = sstoreClearsScheduleRefundEIP3529
		resetRefund = (sstoreResetGas - coldSload) - warmStorageRead
		resetClearRefund = sstoreSetGas - warmStorageRead
	}

	current := rs.EEI.GetState(addr, slot)
	if current == newValue {
		return cold + warmStorageRead, nil
	}
	original := rs.EEI.GetCommittedState(addr, slot)
	if original == current {
		if original == zeroHash {
			return cold + sstoreSetGas, nil
		}
		if newValue == zeroHash {
			rs.EEI.AddRefund(clearRefund)
		}
		return cold + (sstoreResetGas - coldSload), nil
	}
	if original != zeroHash {
		if current == zeroHash {
			rs.EEI.SubRefund(clearRefund)
		} else if newValue == zeroHash {
			rs.EEI.AddRefund(clearRefund)
		}
	}
	if original == newValue {
		if original == zeroHash {
			rs.EEI.AddRefund(resetClearRefund)
		} else {
			rs.EEI.AddRefund(resetRefund)
		}
	}
	return cold + warmStorageRead, nil
}

// gasSStore dispatches to the rule variant matching params, per the
// documented hardfork boundaries: flat pricing before Constantinople,
// EIP-1283 net-metering at exactly Constantinople, EIP-2200 net-metering
// (with the reentrancy sentry) from Istanbul, and the EIP-2929 access-list
// overlay from Berlin.
func gasSStore(rs *RunState, gasRemaining uint64, addr common.Address, slot common.Hash, newValue common.Hash, params HardforkParams) (uint64, error) {
	switch {
	case params.IsBerlin:
		return gasSStoreEIP2929(rs, gasRemaining, addr, slot, newValue, params.IsLondon)
	case params.IsIstanbul:
		return gasSStoreEIP2200(rs, gasRemaining, addr, slot, newValue, sstoreClearRefund)
	case params.IsConstantinople:
		return gasSStoreEIP1283(rs, addr, slot, newValue)
	default:
		return gasSStoreLegacy(rs, addr, slot, newValue)
	}
}

// accessAddressGas prices the EIP-2929 cold/warm split for any
// address-touching opcode (BALANCE, EXTCODESIZE, EXTCODECOPY,
// EXTCODEHASH, the CALL family): the first touch in a call costs
// coldAccountAccess and warms the address; every later touch costs only
// warmStorageRead.
func accessAddressGas(rs *RunState, addr common.Address) uint64 {
	if rs.AddressInAccessList(addr) {
		return warmStorageRead
	}
	rs.AddAddressToAccessList(addr)
	return coldAccountAccess
}

// accessSlotGas prices the EIP-2929 cold/warm split for SLOAD.
func accessSlotGas(rs *RunState, addr common.Address, slot common.Hash) uint64 {
	if _, slotPresent := rs.SlotInAccessList(addr, slot); slotPresent {
		return warmStorageRead
	}
	rs.AddSlotToAccessList(addr, slot)
	return coldSload
}
