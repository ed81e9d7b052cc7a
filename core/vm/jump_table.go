package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// gasFunc computes the dynamic (as opposed to opcode-constant) gas cost of
// an operation against the current RunState. gasRemaining is the gas still
// available to the executing call (read by SSTORE's reentrancy sentry;
// the CALL-family handlers ignore it); memorySize is the new
// total memory size the operation will require, already computed from the
// stack's offset/length operands by whatever drives the interpreter loop.
type gasFunc func(rs *RunState, params HardforkParams, gasRemaining, memorySize uint64) (uint64, error)

// operation is a single jump-table slot: whether the opcode is available
// under the active rule set, and how to price it.
type operation struct {
	valid      bool
	dynamicGas gasFunc
}

// JumpTable maps every possible opcode byte to its availability and gas
// handler for one hardfork configuration.
type JumpTable [256]operation

// newJumpTable builds the dispatch table for one (chain config, block
// number) pair, gating opcode availability the same way the teacher gates
// instruction availability: by comparing each relevant fork's block
// number against the block currently executing. DELEGATECALL, for
// instance, only became valid at Homestead.
func newJumpTable(cfg *params.ChainConfig, blockNumber *big.Int) JumpTable {
	homestead := isBlockForked(cfg.HomesteadBlock, blockNumber)
	byzantium := isBlockForked(cfg.ByzantiumBlock, blockNumber)
	constantinople := isBlockForked(cfg.ConstantinopleBlock, blockNumber)

	var jt JumpTable

	jt[SHA3] = operation{valid: true, dynamicGas: gasSHA3}

	jt[BALANCE] = operation{valid: true, dynamicGas: gasBalance}
	jt[CALLDATACOPY] = operation{valid: true, dynamicGas: gasCallDataCopy}
	jt[CODECOPY] = operation{valid: true, dynamicGas: gasCodeCopy}
	jt[EXTCODESIZE] = operation{valid: true, dynamicGas: gasExtCodeSize}
	jt[EXTCODECOPY] = operation{valid: true, dynamicGas: gasExtCodeCopy}
	jt[RETURNDATACOPY] = operation{valid: byzantium, dynamicGas: gasReturnDataCopy}
	jt[EXTCODEHASH] = operation{valid: constantinople, dynamicGas: gasExtCodeHash}

	jt[MLOAD] = operation{valid: true, dynamicGas: gasMemoryExpansionOnly}
	jt[MSTORE] = operation{valid: true, dynamicGas: gasMemoryExpansionOnly}
	jt[MSTORE8] = operation{valid: true, dynamicGas: gasMemoryExpansionOnly}
	jt[SLOAD] = operation{valid: true, dynamicGas: gasSLoad}
	jt[SSTORE] = operation{valid: true, dynamicGas: gasSStoreOp}

	jt[LOG0] = operation{valid: true, dynamicGas: gasLog(0)}
	jt[LOG1] = operation{valid: true, dynamicGas: gasLog(1)}
	jt[LOG2] = operation{valid: true, dynamicGas: gasLog(2)}
	jt[LOG3] = operation{valid: true, dynamicGas: gasLog(3)}
	jt[LOG4] = operation{valid: true, dynamicGas: gasLog(4)}

	jt[CREATE] = operation{valid: true, dynamicGas: gasCreate}
	jt[CALL] = operation{valid: true, dynamicGas: gasCall}
	jt[CALLCODE] = operation{valid: true, dynamicGas: gasCallCode}
	jt[RETURN] = operation{valid: true, dynamicGas: gasMemoryExpansionOnly}
	jt[DELEGATECALL] = operation{valid: homestead, dynamicGas: gasDelegateCall}
	jt[CREATE2] = operation{valid: constantinople, dynamicGas: gasCreate2}

	jt[AUTH] = operation{valid: true, dynamicGas: gasAuth}
	jt[AUTHCALL] = operation{valid: true, dynamicGas: gasAuthCall}

	jt[STATICCALL] = operation{valid: byzantium, dynamicGas: gasStaticCall}
	jt[REVERT] = operation{valid: byzantium, dynamicGas: gasMemoryExpansionOnly}
	jt[SELFDESTRUCT] = operation{valid: true, dynamicGas: gasSelfdestruct}

	return jt
}
