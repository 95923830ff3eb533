// Package omen talks to market-maker and ERC20 contracts on an EVM chain
// through go-ethereum. Reads are eth_call; writes are EIP-1559 transactions
// signed by the configured wallet and waited on until mined.
package omen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/marketfund/internal/crypto"
	"github.com/alanyoungcy/marketfund/internal/domain"
)

// Backend is the part of ethclient.Client the contracts need.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options tune transaction submission.
type Options struct {
	// GasMultiplier scales the estimated gas limit. Values below 1 mean 1.
	GasMultiplier float64
	// ReceiptPoll is the interval between receipt lookups.
	ReceiptPoll time.Duration
}

// Client is a chain connection bound to an optional wallet. Without a wallet
// the connection reports no account and writes fail with
// domain.ErrNotConnected.
type Client struct {
	backend Backend
	wallet  *crypto.Wallet
	chainID *big.Int
	opts    Options
	logger  *slog.Logger
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, chainID int64, wallet *crypto.Wallet, opts Options, logger *slog.Logger) (*Client, func(), error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("omen: dial %s: %w", rpcURL, err)
	}
	return NewClient(ec, chainID, wallet, opts, logger), ec.Close, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, chainID int64, wallet *crypto.Wallet, opts Options, logger *slog.Logger) *Client {
	if opts.GasMultiplier < 1 {
		opts.GasMultiplier = 1
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = 2 * time.Second
	}
	return &Client{
		backend: backend,
		wallet:  wallet,
		chainID: big.NewInt(chainID),
		opts:    opts,
		logger:  logger.With(slog.String("component", "omen")),
	}
}

// Account implements domain.Connection.
func (c *Client) Account() string {
	if c.wallet == nil {
		return ""
	}
	return c.wallet.Address()
}

// ChainID implements domain.Connection.
func (c *Client) ChainID() int64 { return c.chainID.Int64() }

// BuildMarketMaker implements domain.Contracts.
func (c *Client) BuildMarketMaker(address string) domain.MarketMakerService {
	return &MarketMaker{client: c, address: common.HexToAddress(address)}
}

// BuildERC20 implements domain.Contracts.
func (c *Client) BuildERC20(address string) domain.TokenService {
	return &ERC20{client: c, address: common.HexToAddress(address)}
}

// TokenInfo reads the symbol and decimals of an ERC20 token.
func (c *Client) TokenInfo(ctx context.Context, address string) (domain.Token, error) {
	if !common.IsHexAddress(address) {
		return domain.Token{}, fmt.Errorf("omen: %w: %q", domain.ErrInvalidAddress, address)
	}
	to := common.HexToAddress(address)
	out, err := c.call(ctx, erc20Contract, to, "symbol")
	if err != nil {
		return domain.Token{}, err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return domain.Token{}, fmt.Errorf("omen: symbol: unexpected %T", out[0])
	}
	out, err = c.call(ctx, erc20Contract, to, "decimals")
	if err != nil {
		return domain.Token{}, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return domain.Token{}, fmt.Errorf("omen: decimals: unexpected %T", out[0])
	}
	return domain.Token{Address: to.Hex(), Symbol: symbol, Decimals: decimals}, nil
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("omen: pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	if c.wallet != nil {
		msg.From = c.wallet.CommonAddress()
	}
	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("omen: call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("omen: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("omen: %s returned no values", method)
	}
	return out, nil
}

func (c *Client) callUint(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("omen: %s: unexpected %T", method, out[0])
	}
	return v, nil
}

// transact signs and sends a call of method and waits for it to be mined.
func (c *Client) transact(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) error {
	if c.wallet == nil {
		return domain.ErrNotConnected
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("omen: pack %s: %w", method, err)
	}
	from := c.wallet.CommonAddress()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("omen: %s: nonce: %w", method, err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("omen: %s: gas tip: %w", method, err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("omen: %s: head: %w", method, err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return fmt.Errorf("omen: %s: estimate gas: %w", method, err)
	}
	gas = uint64(float64(gas) * c.opts.GasMultiplier)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := c.wallet.SignTx(tx, c.chainID)
	if err != nil {
		return err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("omen: %s: send: %w", method, err)
	}
	c.logger.InfoContext(ctx, "omen: transaction sent",
		slog.String("method", method),
		slog.String("to", to.Hex()),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)
	return c.waitMined(ctx, method, signed.Hash())
}

func (c *Client) waitMined(ctx context.Context, method string, hash common.Hash) error {
	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("omen: %s: %w: %s", method, domain.ErrTxReverted, hash.Hex())
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("omen: %s: receipt: %w", method, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("omen: %s: waiting for %s: %w", method, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

var (
	_ domain.Connection = (*Client)(nil)
	_ domain.Contracts  = (*Client)(nil)
)
