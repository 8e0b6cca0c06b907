package relayer

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// relayerABIJSON is the minimal fragment of the relayer contract's ABI this
// client exercises: updateNFTOwnershipRoot and processRequest (§6).
const relayerABIJSON = `[
  {"type":"function","name":"updateNFTOwnershipRoot","inputs":[{"name":"root","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"processRequest","inputs":[{"name":"requestId","type":"bytes32"},{"name":"approved","type":"bool"}],"outputs":[{"name":"status","type":"uint8"},{"name":"errorData","type":"bytes"}],"stateMutability":"nonpayable"}
]`

// vaultHandlerABIJSON is the minimal fragment of the vault entry point's ABI
// this client exercises: completeWithdraw (§6).
const vaultHandlerABIJSON = `[
  {"type":"function","name":"completeWithdraw","inputs":[{"name":"handler","type":"address"},{"name":"requestId","type":"bytes32"},{"name":"proof","type":"bytes32[]"},{"name":"additionalData","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"}
]`

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("relayer: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var relayerABI = mustParseABI(relayerABIJSON)
var vaultHandlerABI = mustParseABI(vaultHandlerABIJSON)
