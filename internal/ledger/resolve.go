package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/prophezy/oracle-resolver/internal/breaker"
	"github.com/prophezy/oracle-resolver/internal/domain"
)

// FastResolution is the outcome of a confirmed resolveMarketFast call.
type FastResolution struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// TxError reports a resolving transaction that was sent but did not
// confirm successfully. It matches domain.ErrLedgerError.
type TxError struct {
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("ledger: tx %s: %v", e.TxHash, e.Err)
}

func (e *TxError) Unwrap() []error {
	return []error{domain.ErrLedgerError, e.Err}
}

var errReverted = errors.New("transaction reverted")

// SubmitFastResolution signs and sends resolveMarketFast(marketID, feed) to
// the market contract and waits for its receipt. The wait is bounded by the
// configured receipt timeout; expiry returns a *TxError carrying the hash.
func (a *Adapter) SubmitFastResolution(ctx context.Context, marketAddress string, marketID int64, feed string) (FastResolution, error) {
	if a.key == nil {
		return FastResolution{}, fmt.Errorf("ledger: %w: no resolver key configured", domain.ErrLedgerError)
	}
	if !common.IsHexAddress(marketAddress) {
		return FastResolution{}, fmt.Errorf("ledger: %w: invalid market address %q", domain.ErrLedgerError, marketAddress)
	}

	feedKey, err := EncodeFeedRef(feed)
	if err != nil {
		return FastResolution{}, fmt.Errorf("ledger: %w: %v", domain.ErrLedgerError, err)
	}
	data, err := marketABI.Pack("resolveMarketFast", big.NewInt(marketID), feedKey)
	if err != nil {
		return FastResolution{}, fmt.Errorf("ledger: %w: pack resolveMarketFast: %v", domain.ErrLedgerError, err)
	}

	to := common.HexToAddress(marketAddress)
	signed, err := breaker.Do(a.cb, func() (*types.Transaction, error) {
		return a.send(ctx, to, data)
	})
	if err != nil {
		return FastResolution{}, fmt.Errorf("ledger: %w: send resolveMarketFast: %v", domain.ErrLedgerError, err)
	}

	txHash := signed.Hash().Hex()
	a.logger.Info("ledger: resolution tx sent",
		slog.String("market", marketAddress),
		slog.Int64("market_id", marketID),
		slog.String("tx", txHash),
	)

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := a.waitForReceipt(waitCtx, signed.Hash())
	if err != nil {
		return FastResolution{TxHash: txHash}, &TxError{TxHash: txHash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return FastResolution{TxHash: txHash}, &TxError{TxHash: txHash, Err: errReverted}
	}

	res := FastResolution{TxHash: txHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	a.logger.Info("ledger: resolution tx confirmed",
		slog.String("tx", txHash),
		slog.Uint64("block", res.BlockNumber),
	)
	return res, nil
}

// send builds, signs and broadcasts a legacy transaction to the contract.
func (a *Adapter) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.resolver)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil || gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = big.NewInt(fallbackGasPriceWei)
	} else {
		// +10% so the tx is not priced out while we wait.
		gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(11)), big.NewInt(10))
	}

	gas, err := a.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     a.resolver,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		a.logger.Warn("ledger: gas estimate failed, using configured limit",
			slog.String("error", err.Error()),
			slog.Uint64("limit", a.cfg.GasLimit),
		)
		gas = a.cfg.GasLimit
	}
	gas = gas * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(a.chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	return signed, nil
}

// waitForReceipt polls until the receipt is available or ctx expires.
func (a *Adapter) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			a.logger.Debug("ledger: receipt poll error", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
