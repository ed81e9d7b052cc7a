package vm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

func TestJumpTableEnablesDelegateCallAtHomestead(t *testing.T) {
	cfg := &params.ChainConfig{HomesteadBlock: big.NewInt(1)}

	before := newJumpTable(cfg, big.NewInt(0))
	require.False(t, before[DELEGATECALL].valid, "DELEGATECALL should not be present before Homestead")

	for _, n := range []int64{1, 2, 100} {
		at := newJumpTable(cfg, big.NewInt(n))
		require.True(t, at[DELEGATECALL].valid, "DELEGATECALL should be present at block %d", n)
	}
}
