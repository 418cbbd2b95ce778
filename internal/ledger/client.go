// Package ledger is the stateless gateway to the prediction-market
// contracts: directory reads, event scans and the fast resolution call.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"

	"github.com/prophezy/oracle-resolver/internal/breaker"
	"github.com/prophezy/oracle-resolver/internal/domain"
)

const (
	DefaultFactoryAddress = "0xDfdd62075F027cbcE342C6533255cF338D164E46"
	DefaultRPCURL         = "https://data-seed-prebsc-1-s1.binance.org:8545"
	DefaultChainID        = int64(97)

	defaultGasLimit        = uint64(300_000)
	defaultReceiptTimeout  = 90 * time.Second
	defaultReceiptPoll     = 3 * time.Second
	defaultScanConcurrency = 8
	fallbackGasPriceWei    = 10_000_000_000 // 10 gwei
)

// Backend is the subset of *ethclient.Client the adapter uses.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the adapter's chain parameters.
type Config struct {
	RPCURL          string
	ChainID         int64
	FactoryAddress  string
	GasLimit        uint64
	ReceiptTimeout  time.Duration
	ReceiptPoll     time.Duration
	ScanConcurrency int
}

// BlockRange bounds an event scan. Nil From means genesis, nil To means the
// latest block.
type BlockRange struct {
	From *big.Int
	To   *big.Int
}

// Adapter implements every ledger interaction. It holds no market state.
type Adapter struct {
	backend  Backend
	closer   func()
	cfg      Config
	factory  common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	resolver common.Address
	cb       *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// Dial connects to cfg.RPCURL and builds an Adapter. key may be nil, in
// which case SubmitFastResolution always fails with a LedgerError.
func Dial(ctx context.Context, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*Adapter, error) {
	url := cfg.RPCURL
	if url == "" {
		url = DefaultRPCURL
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial rpc %s: %w", url, err)
	}
	a := New(client, cfg, key, logger)
	a.closer = client.Close
	return a, nil
}

// New builds an Adapter over an existing backend.
func New(backend Backend, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) *Adapter {
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.FactoryAddress == "" {
		cfg.FactoryAddress = DefaultFactoryAddress
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = defaultReceiptPoll
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = defaultScanConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		backend: backend,
		cfg:     cfg,
		factory: common.HexToAddress(cfg.FactoryAddress),
		chainID: big.NewInt(cfg.ChainID),
		key:     key,
		cb:      breaker.New(breaker.Settings{Name: "ledger"}, logger),
		logger:  logger.With(slog.String("component", "ledger")),
	}
	if key != nil {
		a.resolver = crypto.PubkeyToAddress(key.PublicKey)
	}
	return a
}

// Close releases the RPC connection when the adapter owns one.
func (a *Adapter) Close() {
	if a.closer != nil {
		a.closer()
	}
}

// ResolverAddress returns the address that signs resolving transactions, or
// "" when no key is configured.
func (a *Adapter) ResolverAddress() string {
	if a.key == nil {
		return ""
	}
	return strings.ToLower(a.resolver.Hex())
}

// call packs method, runs it as a read-only call against to and unpacks the
// outputs.
func (a *Adapter) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := breaker.Do(a.cb, func() ([]byte, error) {
		return a.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: no outputs", method)
	}
	return out, nil
}

func (a *Adapter) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return breaker.Do(a.cb, func() ([]types.Log, error) {
		return a.backend.FilterLogs(ctx, q)
	})
}

// GetMarketAddresses enumerates every market registered in the factory.
func (a *Adapter) GetMarketAddresses(ctx context.Context) ([]string, error) {
	out, err := a.call(ctx, a.factory, factoryABI, "getMarkets")
	if err != nil {
		return nil, fmt.Errorf("ledger: %w: get markets: %v", domain.ErrLedgerError, err)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("ledger: %w: get markets: unexpected type %T", domain.ErrLedgerError, out[0])
	}

	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, lowerAddr(addr))
	}
	return result, nil
}
