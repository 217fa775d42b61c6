// Package exchange implements the custodial-exchange rail: asset balance
// queries and withdrawals to on-chain addresses, used to refill the hot
// wallet when network liquidity runs short.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/config"
	"github.com/savanna-pay/savanna_pay/internal/provider"
)

// Name identifies this rail in the provider registry.
const Name = "exchange"

// Client talks to the custodial exchange REST API.
type Client struct {
	cfg        config.ExchangeConfig
	httpClient *http.Client
}

// New builds an exchange client.
func New(cfg config.ExchangeConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

type balanceResponse struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
}

// Balance returns the available balance for an asset on the exchange account.
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/balances/"+asset, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Available, nil
}

type withdrawalRequest struct {
	Asset     string          `json:"asset"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type withdrawalResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Withdraw moves asset funds from the exchange account to an on-chain
// address and returns the exchange-side withdrawal id.
func (c *Client) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, reference string) (string, error) {
	payload := withdrawalRequest{Asset: asset, Address: address, Amount: amount, Reference: reference}
	var resp withdrawalResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/withdrawals", payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// InitiateDeposit is not supported on this rail; funds enter the exchange
// through its own on-ramp.
func (c *Client) InitiateDeposit(_ context.Context, _ provider.DepositRequest) (provider.Response, error) {
	return provider.Response{}, fmt.Errorf("exchange rail does not accept deposits")
}

// InitiateWithdrawal satisfies the provider contract; Destination is the
// on-chain address and Currency the asset symbol.
func (c *Client) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.Response, error) {
	id, err := c.Withdraw(ctx, req.Currency, req.Destination, req.Amount, req.Reference)
	if err != nil {
		return provider.Response{}, err
	}
	return provider.Response{ProviderTxID: id}, nil
}

type withdrawalStatusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// QueryStatus reports the state of a previously created withdrawal.
func (c *Client) QueryStatus(ctx context.Context, providerTxID string) (provider.Status, error) {
	var resp withdrawalStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/withdrawals/"+providerTxID, nil, &resp); err != nil {
		return provider.Status{}, err
	}
	status := provider.Status{ProviderTxID: resp.ID, ResultDesc: resp.Status, Amount: resp.Amount}
	if resp.Status == "completed" {
		status.ResultCode = provider.ResultSuccess
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchange request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("exchange request %s failed: %s: %s", path, resp.Status, raw)
	}
	return json.Unmarshal(raw, out)
}
