package omen

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// marketMakerABI is the subset of the market-maker contract the funding
// panel uses. Pool shares are the contract's ERC20 balance.
const marketMakerABI = `[
	{"type":"function","name":"collateralToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"funding","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"addFunding","stateMutability":"nonpayable","inputs":[{"name":"addedFunds","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"removeFunding","stateMutability":"nonpayable","inputs":[{"name":"sharesToBurn","type":"uint256"}],"outputs":[]}
]`

const erc20ABI = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	marketMakerContract = mustParse(marketMakerABI)
	erc20Contract       = mustParse(erc20ABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("omen: parse abi: " + err.Error())
	}
	return parsed
}
