package chain

import "math/big"

func newBigInt(number uint64) *big.Int {
	return new(big.Int).SetUint64(number)
}
