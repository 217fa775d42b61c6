// Package tron implements the blockchain rail: TRC20 USDT balance, transfer
// and confirmation tracking over the TRON gRPC API.
package tron

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/savanna-pay/savanna_pay/internal/config"
	"github.com/savanna-pay/savanna_pay/internal/provider"
)

// Name identifies this rail in the provider registry.
const Name = "tron"

// USDT uses six decimal places on TRON.
const usdtDecimals = 6

// transfer(address,uint256) selector.
const transferSelector = "a9059cbb"

const pollInterval = 3 * time.Second

// ErrTransactionReverted indicates the chain rejected the transfer.
var ErrTransactionReverted = errors.New("transaction reverted on chain")

// Client wraps the TRON gRPC client for TRC20 operations against a single
// hot wallet.
type Client struct {
	grpc    *client.GrpcClient
	cfg     config.TronConfig
	timeout time.Duration
	logger  *slog.Logger
}

// New connects to the TRON network for the configured environment.
// confirmationTimeout bounds every WaitForConfirmation call.
func New(cfg config.TronConfig, confirmationTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	var grpcURL string
	switch cfg.Network {
	case "mainnet":
		grpcURL = "grpc.trongrid.io:50051"
	case "shasta":
		grpcURL = "grpc.shasta.trongrid.io:50051"
	case "nile":
		grpcURL = "grpc.nile.trongrid.io:50051"
	default:
		return nil, fmt.Errorf("unsupported tron network: %s", cfg.Network)
	}

	grpcClient := client.NewGrpcClient(grpcURL)
	grpcClient.SetAPIKey(cfg.APIKey)
	if err := grpcClient.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("start tron grpc client: %w", err)
	}

	logger.Info("tron client connected",
		slog.String("network", cfg.Network),
		slog.String("grpc_url", grpcURL))

	return &Client{grpc: grpcClient, cfg: cfg, timeout: confirmationTimeout, logger: logger}, nil
}

// Close stops the underlying gRPC client.
func (c *Client) Close() {
	if c.grpc != nil {
		c.grpc.Stop()
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Balance returns the USDT balance of an address.
func (c *Client) Balance(_ context.Context, addr string) (decimal.Decimal, error) {
	if _, err := address.Base58ToAddress(addr); err != nil {
		return decimal.Zero, fmt.Errorf("invalid tron address %s: %w", addr, err)
	}
	raw, err := c.grpc.TRC20ContractBalance(addr, c.cfg.USDTContract)
	if err != nil {
		return decimal.Zero, fmt.Errorf("trc20 balance: %w", err)
	}
	return decimal.NewFromBigInt(raw, -usdtDecimals), nil
}

// Send transfers USDT from the hot wallet to the destination address and
// returns the transaction hash once the broadcast is accepted.
func (c *Client) Send(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	toAddress, err := address.Base58ToAddress(to)
	if err != nil {
		return "", fmt.Errorf("invalid to address: %w", err)
	}
	if _, err := address.Base58ToAddress(c.cfg.HotWalletAddress); err != nil {
		return "", fmt.Errorf("invalid hot wallet address: %w", err)
	}

	units := amount.Shift(usdtDecimals).BigInt()
	if units.Sign() <= 0 {
		return "", fmt.Errorf("amount too small to transfer: %s", amount)
	}

	// ABI-encode transfer(address,uint256): strip the 0x41 prefix and pad
	// both parameters to 32 bytes.
	toParam := common.LeftPadBytes(toAddress.Bytes()[1:], 32)
	amountParam := common.LeftPadBytes(units.Bytes(), 32)
	data := transferSelector + hex.EncodeToString(toParam) + hex.EncodeToString(amountParam)

	tx, err := c.grpc.TriggerContract(
		c.cfg.HotWalletAddress,
		c.cfg.USDTContract,
		data,
		"0",      // feeLimit (0 = auto)
		int64(0), // callValue
		int64(0), // tokenValue
		"",       // tokenId
		int64(0), // permission_id
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if tx.Result.Code != 0 {
		return "", fmt.Errorf("transaction build failed: %s", string(tx.Result.Message))
	}

	signedTx, err := signTransaction(tx.Transaction, c.cfg.HotWalletKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	txHash, err := transactionHash(signedTx)
	if err != nil {
		return "", err
	}

	result, err := c.grpc.Broadcast(signedTx)
	if err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	if !result.Result {
		return "", fmt.Errorf("broadcast rejected: %s", string(result.Message))
	}

	c.logger.Info("trc20 transfer broadcast",
		slog.String("tx_hash", txHash),
		slog.String("to", to),
		slog.String("amount", amount.String()))
	return txHash, nil
}

// WaitForConfirmation blocks until the transaction has minConfirmations
// blocks on top of it, the chain reports a revert, or the bounded wait
// elapses with ErrConfirmationTimeout.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, minConfirmations int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", provider.ErrConfirmationTimeout, txHash, c.timeout)
			}
			return ctx.Err()
		case <-ticker.C:
			confirmations, err := c.confirmations(txHash)
			if err != nil {
				if errors.Is(err, ErrTransactionReverted) {
					return err
				}
				// Not yet indexed; keep polling.
				continue
			}
			if confirmations >= int64(minConfirmations) {
				return nil
			}
		}
	}
}

func (c *Client) confirmations(txHash string) (int64, error) {
	info, err := c.grpc.GetTransactionInfoByID(txHash)
	if err != nil {
		return 0, err
	}
	if info.BlockNumber == 0 {
		return 0, fmt.Errorf("transaction %s not yet in a block", txHash)
	}
	if info.Receipt != nil && info.Receipt.Result != core.Transaction_Result_SUCCESS && info.Receipt.Result != core.Transaction_Result_DEFAULT {
		return 0, fmt.Errorf("%w: %s", ErrTransactionReverted, info.Receipt.Result.String())
	}

	now, err := c.grpc.GetNowBlock()
	if err != nil {
		return 0, err
	}
	return now.BlockHeader.RawData.Number - info.BlockNumber + 1, nil
}

// InitiateDeposit is not supported on this rail.
func (c *Client) InitiateDeposit(_ context.Context, _ provider.DepositRequest) (provider.Response, error) {
	return provider.Response{}, fmt.Errorf("tron rail does not accept deposits")
}

// InitiateWithdrawal satisfies the provider contract: Destination is a TRON
// address and the amount is denominated in USDT.
func (c *Client) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.Response, error) {
	txHash, err := c.Send(ctx, req.Destination, req.Amount)
	if err != nil {
		return provider.Response{}, err
	}
	return provider.Response{ProviderTxID: txHash}, nil
}

// QueryStatus reports the confirmation state of a transaction hash.
func (c *Client) QueryStatus(_ context.Context, providerTxID string) (provider.Status, error) {
	confirmations, err := c.confirmations(providerTxID)
	if err != nil {
		return provider.Status{ProviderTxID: providerTxID, ResultDesc: err.Error()}, nil
	}
	status := provider.Status{
		ProviderTxID: providerTxID,
		ResultDesc:   fmt.Sprintf("%d confirmations", confirmations),
	}
	if confirmations > 0 {
		status.ResultCode = provider.ResultSuccess
	}
	return status, nil
}
