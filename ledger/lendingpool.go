package ledger

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/chainpipe/chainpipe/errs"
)

// lendingPoolABIJSON is the minimal fragment of a borrow protocol's ABI
// this repository calls: a read-only utilization query scaled by 1e6,
// mirroring relayer/abi.go's embedded-ABI convention.
const lendingPoolABIJSON = `[
  {"type":"function","name":"utilizationOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"utilization","type":"uint256"}],"stateMutability":"view"}
]`

var lendingPoolABI = mustParseABI(lendingPoolABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid embedded lending pool ABI: " + err.Error())
	}
	return parsed
}

// EVMLendingPool implements LendingPool against one deployed protocol
// contract via a read-only call, grounded on relayer.EVMClient's
// bind.BoundContract wiring.
type EVMLendingPool struct {
	contract *bind.BoundContract
}

// NewEVMLendingPool binds address on backend as a LendingPool.
func NewEVMLendingPool(backend bind.ContractCaller, address gethcommon.Address) *EVMLendingPool {
	return &EVMLendingPool{contract: bind.NewBoundContract(address, lendingPoolABI, backend, nil, nil)}
}

// Utilization calls utilizationOf(tokenId), already scaled by 1e6 per the
// GLOSSARY's utilization convention.
func (p *EVMLendingPool) Utilization(ctx context.Context, tokenID *big.Int) (uint64, error) {
	var out []interface{}
	callOpts := &bind.CallOpts{Context: ctx}
	if err := p.contract.Call(callOpts, &out, "utilizationOf", tokenID); err != nil {
		return 0, errs.Transient(err)
	}
	if len(out) == 0 {
		return 0, errs.Invariant("ledger: utilizationOf returned no values")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return 0, errs.Invariant("ledger: utilizationOf returned unexpected type %T", out[0])
	}
	return v.Uint64(), nil
}
