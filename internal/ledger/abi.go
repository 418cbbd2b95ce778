package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract ABIs. Only the members the adapter touches are declared.
var (
	factoryABI abi.ABI
	marketABI  abi.ABI

	marketCreatedID  common.Hash
	positionOpenedID common.Hash
)

func init() {
	var err error

	factoryABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getMarkets",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address[]"}]
		},
		{
			"name": "MarketCreated",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "market", "type": "address", "indexed": true},
				{"name": "creator", "type": "address", "indexed": true},
				{"name": "feedAddress", "type": "address", "indexed": true}
			]
		}
	]`))
	if err != nil {
		panic("factory abi parse: " + err.Error())
	}

	marketABI, err = abi.JSON(strings.NewReader(`[
		{"name": "question", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "string"}]},
		{"name": "deadline", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "resolved", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bool"}]},
		{"name": "outcome", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
		{"name": "creator", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
		{"name": "lockPrice", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "totalYes", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "totalNo", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "feedId", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes32"}]},
		{
			"name": "resolveMarketFast",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "feedId", "type": "bytes32"}
			],
			"outputs": []
		},
		{
			"name": "PositionOpened",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "marketId", "type": "uint256", "indexed": true},
				{"name": "trader", "type": "address", "indexed": true},
				{"name": "side", "type": "bool", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("market abi parse: " + err.Error())
	}

	marketCreatedID = factoryABI.Events["MarketCreated"].ID
	positionOpenedID = marketABI.Events["PositionOpened"].ID
}

// MarketCreatedTopic is topic0 of the factory's creation event.
func MarketCreatedTopic() common.Hash { return marketCreatedID }

// PositionOpenedTopic is topic0 of a market's position event.
func PositionOpenedTopic() common.Hash { return positionOpenedID }
