package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// --- memory-only and copy opcodes ---

func gasMemoryExpansionOnly(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	return memoryGasCost(rs.Memory, memorySize)
}

func gasSHA3(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	size, overflow := uint64OrOverflow(rs.back(1))
	if overflow {
		return 0, ErrGasUintOverflow
	}
	wordGas, err := sha3GasCost(size)
	if err != nil {
		return 0, err
	}
	return addGas(gas, wordGas)
}

func gasCopyWith(lenIdx int) gasFunc {
	return func(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
		gas, err := memoryGasCost(rs.Memory, memorySize)
		if err != nil {
			return 0, err
		}
		length, overflow := uint64OrOverflow(rs.back(lenIdx))
		if overflow {
			return 0, ErrGasUintOverflow
		}
		wordGas, err := copyGasCost(length)
		if err != nil {
			return 0, err
		}
		return addGas(gas, wordGas)
	}
}

var (
	gasCallDataCopy   = gasCopyWith(2)
	gasCodeCopy       = gasCopyWith(2)
	gasReturnDataCopy = gasCopyWith(2)
)

func gasExtCodeCopy(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	length, overflow := uint64OrOverflow(rs.back(3))
	if overflow {
		return 0, ErrGasUintOverflow
	}
	wordGas, err := copyGasCost(length)
	if err != nil {
		return 0, err
	}
	gas, err = addGas(gas, wordGas)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(0).Bytes20())
	access := legacyOrAccessAddressGas(rs, params, addr, extcodeCopyBase, extcodeCopyEIP150)
	return addGas(gas, access)
}

// --- address-access opcodes ---

func legacyOrAccessAddressGas(rs *RunState, params HardforkParams, addr common.Address, frontier, eip150 uint64) uint64 {
	if params.IsBerlin {
		return accessAddressGas(rs, addr)
	}
	if params.IsEIP150 {
		return eip150
	}
	return frontier
}

func gasBalance(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	addr := common.Address(rs.back(0).Bytes20())
	if params.IsBerlin {
		return accessAddressGas(rs, addr), nil
	}
	switch {
	case params.IsIstanbul:
		return balanceEIP1884, nil
	case params.IsEIP150:
		return balanceEIP150, nil
	default:
		return balanceFrontier, nil
	}
}

func gasExtCodeSize(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	addr := common.Address(rs.back(0).Bytes20())
	return legacyOrAccessAddressGas(rs, params, addr, extcodeSizeFrontier, extcodeSizeEIP150), nil
}

func gasExtCodeHash(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	addr := common.Address(rs.back(0).Bytes20())
	if params.IsBerlin {
		return accessAddressGas(rs, addr), nil
	}
	return extcodeHashEIP1884, nil
}

// --- storage opcodes ---

func gasSLoad(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	slot := common.Hash(rs.back(0).Bytes32())
	if params.IsBerlin {
		return accessSlotGas(rs, rs.Address, slot), nil
	}
	switch {
	case params.IsIstanbul:
		return sloadGasEIP1884, nil
	case params.IsEIP150:
		return sloadGasEIP150, nil
	default:
		return sloadGasFrontier, nil
	}
}

func gasSStoreOp(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	if rs.IsStatic {
		return 0, ErrStaticStateChange
	}
	slot := common.Hash(rs.back(0).Bytes32())
	newValue := common.Hash(rs.back(1).Bytes32())
	return gasSStore(rs, gasRemaining, rs.Address, slot, newValue, params)
}

// --- logging ---

func gasLog(topics uint64) gasFunc {
	return func(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
		if rs.IsStatic {
			return 0, ErrStaticStateChange
		}
		gas, err := memoryGasCost(rs.Memory, memorySize)
		if err != nil {
			return 0, err
		}
		gas, err = addGas(gas, logGas+topics*logTopicGas)
		if err != nil {
			return 0, err
		}
		length, overflow := uint64OrOverflow(rs.back(1))
		if overflow {
			return 0, ErrGasUintOverflow
		}
		dataGas, overflow := mulUint64(length, logDataGas)
		if overflow {
			return 0, ErrGasUintOverflow
		}
		return addGas(gas, dataGas)
	}
}

// --- create / call family ---

func gasCreate(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	if rs.IsStatic {
		return 0, ErrStaticStateChange
	}
	return memoryGasCost(rs.Memory, memorySize)
}

func gasCreate2(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	if rs.IsStatic {
		return 0, ErrStaticStateChange
	}
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	size, overflow := uint64OrOverflow(rs.back(2))
	if overflow {
		return 0, ErrGasUintOverflow
	}
	hashGas, err := sha3GasCost(size)
	if err != nil {
		return 0, err
	}
	return addGas(gas, hashGas)
}

// callValueOperand reports whether a CALL/CALLCODE carries non-zero value,
// which adds the value-transfer charge and, from EIP158 on, is a condition
// of the new-account surcharge.
func callValueOperand(rs *RunState) bool {
	return !rs.back(2).IsZero()
}

func gasCall(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(1).Bytes20())
	gas, err = addGas(gas, legacyOrAccessAddressGas(rs, params, addr, 0, 700))
	if err != nil {
		return 0, err
	}
	transfersValue := callValueOperand(rs)
	if transfersValue {
		if rs.IsStatic {
			return 0, ErrStaticStateChange
		}
		gas, err = addGas(gas, callValueTransferGas)
		if err != nil {
			return 0, err
		}
	}
	// Before Spurious Dragon, touching any nonexistent account charges
	// the new-account surcharge; from Spurious Dragon on, only a value
	// transfer to an account the state would otherwise prune (empty)
	// does, since CALLs that don't move value can no longer be used to
	// cheaply "probe" an address into existence.
	newAccount := !rs.EEI.AccountExists(addr)
	if params.IsEIP158 {
		newAccount = transfersValue && rs.EEI.Empty(addr)
	}
	if newAccount {
		gas, err = addGas(gas, callNewAccountGas)
		if err != nil {
			return 0, err
		}
	}
	return gas, nil
}

func gasCallCode(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(1).Bytes20())
	gas, err = addGas(gas, legacyOrAccessAddressGas(rs, params, addr, 0, 700))
	if err != nil {
		return 0, err
	}
	if callValueOperand(rs) {
		gas, err = addGas(gas, callValueTransferGas)
		if err != nil {
			return 0, err
		}
	}
	return gas, nil
}

func gasDelegateCall(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(1).Bytes20())
	return addGas(gas, legacyOrAccessAddressGas(rs, params, addr, 0, 700))
}

func gasStaticCall(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(1).Bytes20())
	return addGas(gas, legacyOrAccessAddressGas(rs, params, addr, 0, 700))
}

func gasSelfdestruct(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	if rs.IsStatic {
		return 0, ErrStaticStateChange
	}
	addr := common.Address(rs.back(0).Bytes20())
	var gas uint64
	if params.IsBerlin {
		gas = accessAddressGas(rs, addr)
	} else if !params.IsEIP150 {
		return 0, nil
	}
	if params.IsEIP158 && rs.EEI.Empty(addr) {
		gas, _ = addGas(gas, callNewAccountGas)
	}
	return gas, nil
}

// --- AUTH / AUTHCALL ---
//
// AUTH establishes an authority address that the very next AUTHCALL in
// this call may act on behalf of; AUTHCALL may not run without a
// preceding, still-valid AUTH, and may not forward a non-zero extended
// value (valueExt, the portion of value paid from the authority's own
// balance beyond what the caller funds directly).

func gasAuth(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	authority := common.Address(rs.back(0).Bytes20())
	gas := accessAddressGas(rs, authority)
	rs.Authorized = &authority
	return gas, nil
}

// gasAuthCall prices memory expansion and address access only; it does not
// enforce a requested-gas-vs-available-gas forwarding ceiling the way CALL's
// 63/64 rule does. AUTHCALL has no equivalent in the originating protocol
// version this package was modeled on, so the forwarding rule is left to the
// caller until a reference implementation settles it.
func gasAuthCall(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error) {
	if rs.Authorized == nil {
		return 0, ErrAuthNotSet
	}
	if !rs.back(3).IsZero() {
		return 0, ErrAuthCallValueExt
	}
	gas, err := memoryGasCost(rs.Memory, memorySize)
	if err != nil {
		return 0, err
	}
	addr := common.Address(rs.back(1).Bytes20())
	return addGas(gas, accessAddressGas(rs, addr))
}

// --- small overflow-checked helpers shared by the handlers above ---

// uint64OrOverflow reads a stack operand as a uint64, reporting overflow
// instead of silently truncating a value wider than 64 bits.
func uint64OrOverflow(v *uint256.Int) (uint64, bool) {
	if !v.IsUint64() {
		return 0, true
	}
	return v.Uint64(), false
}

func addGas(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrGasUintOverflow
	}
	return sum, nil
}

func mulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	result := a * b
	return result, result/b != a
}

const (
	logGas               = 375
	logTopicGas          = 375
	logDataGas           = 8
	callValueTransferGas = 9000
)
