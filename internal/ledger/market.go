package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// ReadMarket reads the view functions of one market contract.
func (a *Adapter) ReadMarket(ctx context.Context, address string) (domain.LedgerMarket, error) {
	contract := common.HexToAddress(address)
	m := domain.LedgerMarket{Address: lowerAddr(contract)}

	read := func(method string) (interface{}, error) {
		out, err := a.call(ctx, contract, marketABI, method)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w: market %s: %v", domain.ErrLedgerError, m.Address, err)
		}
		return out[0], nil
	}

	v, err := read("question")
	if err != nil {
		return domain.LedgerMarket{}, err
	}
	m.Question, _ = v.(string)

	if v, err = read("deadline"); err != nil {
		return domain.LedgerMarket{}, err
	}
	if d, ok := v.(*big.Int); ok && d.IsInt64() {
		m.Deadline = time.Unix(d.Int64(), 0).UTC()
	}

	if v, err = read("resolved"); err != nil {
		return domain.LedgerMarket{}, err
	}
	m.Resolved, _ = v.(bool)

	if v, err = read("outcome"); err != nil {
		return domain.LedgerMarket{}, err
	}
	if o, ok := v.(uint8); ok {
		m.Outcome = domain.Outcome(o)
	}

	if v, err = read("creator"); err != nil {
		return domain.LedgerMarket{}, err
	}
	if c, ok := v.(common.Address); ok {
		m.Creator = lowerAddr(c)
	}

	if v, err = read("totalYes"); err != nil {
		return domain.LedgerMarket{}, err
	}
	m.TotalYes = WeiToFloat(asBig(v))

	if v, err = read("totalNo"); err != nil {
		return domain.LedgerMarket{}, err
	}
	m.TotalNo = WeiToFloat(asBig(v))

	// Older deployments lack these getters; their absence is not fatal.
	if v, err = read("feedId"); err == nil {
		if f, ok := v.([32]byte); ok {
			m.FeedID = "0x" + common.Bytes2Hex(f[:])
		}
	}
	if v, err = read("lockPrice"); err == nil {
		m.LockPrice = WeiToFloat(asBig(v))
	}

	return m, nil
}

func asBig(v interface{}) *big.Int {
	b, _ := v.(*big.Int)
	return b
}
