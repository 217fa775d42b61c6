// Package mpesa implements the mobile-money rail over the Daraja REST API.
// Collections use STK push, payouts use B2C, and status queries use the STK
// query endpoint so reconciliation can resolve missed callbacks.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/savanna-pay/savanna_pay/internal/config"
	"github.com/savanna-pay/savanna_pay/internal/provider"
)

// Name identifies this rail in the provider registry and transaction records.
const Name = "mpesa"

const tokenSlack = 30 * time.Second

// Client talks to the M-Pesa API.
type Client struct {
	cfg        config.MpesaConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New builds an M-Pesa client.
func New(cfg config.MpesaConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiateDeposit pushes an STK prompt to the payer's phone. The returned
// provider transaction id is the CheckoutRequestID used for later queries.
func (c *Client) InitiateDeposit(ctx context.Context, req provider.DepositRequest) (provider.Response, error) {
	token, err := c.accessTokenFor(ctx)
	if err != nil {
		return provider.Response{}, fmt.Errorf("mpesa access token: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int(req.Amount.IntPart()),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   fmt.Sprintf("Deposit %s", req.Reference),
	}

	var resp stkPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &resp); err != nil {
		return provider.Response{}, err
	}
	if resp.ResponseCode != "0" {
		return provider.Response{}, fmt.Errorf("mpesa rejected deposit: %s", resp.ResponseDescription)
	}
	return provider.Response{ProviderTxID: resp.CheckoutRequestID, Message: resp.CustomerMessage}, nil
}

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int    `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// InitiateWithdrawal pays out to the destination phone number via B2C.
func (c *Client) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.Response, error) {
	token, err := c.accessTokenFor(ctx)
	if err != nil {
		return provider.Response{}, fmt.Errorf("mpesa access token: %w", err)
	}

	payload := b2cRequest{
		InitiatorName:      c.cfg.ShortCode,
		SecurityCredential: c.cfg.Passkey,
		CommandID:          "BusinessPayment",
		Amount:             int(req.Amount.IntPart()),
		PartyA:             c.cfg.ShortCode,
		PartyB:             req.Destination,
		Remarks:            fmt.Sprintf("Withdrawal %s", req.Reference),
		QueueTimeOutURL:    c.cfg.CallbackURL,
		ResultURL:          c.cfg.CallbackURL,
		Occasion:           req.Reference,
	}

	var resp b2cResponse
	if err := c.post(ctx, "/mpesa/b2c/v1/paymentrequest", token, payload, &resp); err != nil {
		return provider.Response{}, err
	}
	if resp.ResponseCode != "0" {
		return provider.Response{}, fmt.Errorf("mpesa rejected withdrawal: %s", resp.ResponseDescription)
	}
	return provider.Response{ProviderTxID: resp.ConversationID, Message: resp.ResponseDescription}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryStatus asks M-Pesa for the outcome of an STK collection.
func (c *Client) QueryStatus(ctx context.Context, providerTxID string) (provider.Status, error) {
	token, err := c.accessTokenFor(ctx)
	if err != nil {
		return provider.Status{}, fmt.Errorf("mpesa access token: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: providerTxID,
	}

	var resp stkQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &resp); err != nil {
		return provider.Status{}, err
	}
	return provider.Status{
		ProviderTxID: providerTxID,
		ResultCode:   resp.ResultCode,
		ResultDesc:   resp.ResultDesc,
	}, nil
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *Client) accessTokenFor(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed: %s: %s", resp.Status, body)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = token.AccessToken
	// Daraja tokens last an hour; refresh a little early.
	c.tokenExpiry = time.Now().Add(time.Hour - tokenSlack)
	return c.accessToken, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mpesa request %s failed: %s: %s", path, resp.Status, raw)
	}
	return json.Unmarshal(raw, out)
}
