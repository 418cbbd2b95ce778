package ledger

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeStatus tags the result of decoding one log.
type DecodeStatus string

const (
	StatusDecoded DecodeStatus = "decoded"
	StatusSkipped DecodeStatus = "skipped"
)

// DecodeStage records which decoder produced a result.
type DecodeStage string

const (
	StageSchema DecodeStage = "schema"
	StageRaw    DecodeStage = "raw"
)

// CreationDecode is the tagged result of decoding a MarketCreated log.
type CreationDecode struct {
	Status  DecodeStatus
	Stage   DecodeStage
	Market  string
	Creator string
	Feed    string
	Reason  string
}

// PositionDecode is the tagged result of decoding a PositionOpened log.
type PositionDecode struct {
	Status   DecodeStatus
	Stage    DecodeStage
	Market   string
	MarketID *big.Int
	Trader   string
	Side     bool
	Amount   float64
	Reason   string
}

var weiPerUnit = new(big.Float).SetFloat64(1e18)

// WeiToFloat converts an amount in the ledger's native unit (18 decimals)
// to a decimal float.
func WeiToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerUnit).Float64()
	return f
}

func lowerAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// topicAddress extracts an address from a left-padded 32-byte topic. It
// rejects topics whose padding is not zero.
func topicAddress(topic common.Hash) (string, bool) {
	for _, b := range topic[:12] {
		if b != 0 {
			return "", false
		}
	}
	return "0x" + hex.EncodeToString(topic[12:]), true
}

// DecodeCreation decodes a MarketCreated log. The schema decoder is tried
// first; if it fails, creator and market are read from the fixed topic
// layout (market, creator, feed). A log neither stage can read is skipped.
func DecodeCreation(log types.Log) CreationDecode {
	if d, ok := decodeCreationSchema(log); ok {
		return d
	}

	if len(log.Topics) < 3 {
		return CreationDecode{Status: StatusSkipped, Reason: "missing creator topic"}
	}
	creator, ok := topicAddress(log.Topics[2])
	if !ok {
		return CreationDecode{Status: StatusSkipped, Reason: "creator topic is not an address"}
	}
	market, _ := topicAddress(log.Topics[1])
	d := CreationDecode{
		Status:  StatusDecoded,
		Stage:   StageRaw,
		Market:  market,
		Creator: creator,
	}
	if len(log.Topics) > 3 {
		d.Feed, _ = topicAddress(log.Topics[3])
	}
	return d
}

func decodeCreationSchema(log types.Log) (CreationDecode, bool) {
	if len(log.Topics) != 4 || log.Topics[0] != marketCreatedID {
		return CreationDecode{}, false
	}
	var indexed abi.Arguments
	for _, in := range factoryABI.Events["MarketCreated"].Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	out := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(out, indexed, log.Topics[1:]); err != nil {
		return CreationDecode{}, false
	}
	// The schema decoder ignores padding; require it to be clean so a
	// corrupted topic falls through to the stricter raw decoder.
	for _, t := range log.Topics[1:] {
		if _, ok := topicAddress(t); !ok {
			return CreationDecode{}, false
		}
	}

	market, ok1 := out["market"].(common.Address)
	creator, ok2 := out["creator"].(common.Address)
	feed, ok3 := out["feedAddress"].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return CreationDecode{}, false
	}
	return CreationDecode{
		Status:  StatusDecoded,
		Stage:   StageSchema,
		Market:  lowerAddr(market),
		Creator: lowerAddr(creator),
		Feed:    lowerAddr(feed),
	}, true
}

// DecodePosition decodes a PositionOpened log. The schema decoder is tried
// first; on failure the payload is read manually as a 32-byte side flag
// followed by a 32-byte big-endian amount.
func DecodePosition(log types.Log) PositionDecode {
	if len(log.Topics) < 3 {
		return PositionDecode{Status: StatusSkipped, Reason: "missing trader topic"}
	}
	trader, ok := topicAddress(log.Topics[2])
	if !ok {
		return PositionDecode{Status: StatusSkipped, Reason: "trader topic is not an address"}
	}

	d := PositionDecode{
		Market:   lowerAddr(log.Address),
		MarketID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Trader:   trader,
	}

	if log.Topics[0] == positionOpenedID {
		out := make(map[string]interface{})
		if err := marketABI.UnpackIntoMap(out, "PositionOpened", log.Data); err == nil {
			side, okSide := out["side"].(bool)
			amount, okAmount := out["amount"].(*big.Int)
			if okSide && okAmount {
				d.Status, d.Stage = StatusDecoded, StageSchema
				d.Side = side
				d.Amount = WeiToFloat(amount)
				return d
			}
		}
	}

	if len(log.Data) < 64 {
		return PositionDecode{Status: StatusSkipped, Reason: "payload shorter than 64 bytes"}
	}
	d.Status, d.Stage = StatusDecoded, StageRaw
	d.Side = new(big.Int).SetBytes(log.Data[0:32]).Sign() != 0
	d.Amount = WeiToFloat(new(big.Int).SetBytes(log.Data[32:64]))
	return d
}
