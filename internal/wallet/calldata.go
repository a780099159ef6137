package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const tokenABIJSON = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const paymasterFlowABIJSON = `[
	{"type":"function","name":"general","stateMutability":"nonpayable","inputs":[{"name":"input","type":"bytes"}],"outputs":[]}
]`

var (
	TokenABI         = mustABI(tokenABIJSON)
	paymasterFlowABI = mustABI(paymasterFlowABIJSON)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("wallet: bad abi: " + err.Error())
	}
	return parsed
}

// MintCalldata encodes mint(to, amount).
func MintCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := TokenABI.Pack("mint", to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return data, nil
}

// GeneralPaymasterInput encodes the zkSync general paymaster flow with the
// given inner input. A nil inner input yields general(0x).
func GeneralPaymasterInput(inner []byte) []byte {
	if inner == nil {
		inner = []byte{}
	}
	data, err := paymasterFlowABI.Pack("general", inner)
	if err != nil {
		// only reachable if the static ABI above is wrong
		panic("wallet: pack general paymaster input: " + err.Error())
	}
	return data
}
