package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// StatusEntry is one entry of a transfer's status history.
type StatusEntry struct {
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Transfer is the client view of a relayed transfer. SignedTransaction
// holds the wire bytes of the relay-signed transaction, ready for the
// sender to counter-sign and submit. It is populated only on the
// transfer returned by CreateTransfer; read endpoints serve the public
// view, which omits transaction bytes.
type Transfer struct {
	ID                   string        `json:"id"`
	ReferenceID          string        `json:"reference_id"`
	Sender               string        `json:"sender"`
	Destination          string        `json:"destination"`
	Amount               uint64        `json:"amount"`
	Mint                 string        `json:"mint"`
	MintSymbol           string        `json:"mint_symbol"`
	FeePayer             string        `json:"fee_payer"`
	SignedTransaction    []byte        `json:"-"`
	EstimatedFeeLamports uint64        `json:"estimated_fee_lamports"`
	FeeBaseUnits         uint64        `json:"fee_base_units"`
	Status               string        `json:"status"`
	Statuses             []StatusEntry `json:"statuses"`
	Signature            *string       `json:"signature,omitempty"`
	Slot                 *uint64       `json:"slot,omitempty"`
	TimestampIncluded    *time.Time    `json:"timestamp_included,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// CreateTransferRequest is a request for a new relayed transfer. Amount
// is a decimal string in human units, e.g. "1.50".
type CreateTransferRequest struct {
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	MintSymbol  string `json:"mint_symbol"`
}

// FeeQuote is the current network cost of a relayed transfer.
type FeeQuote struct {
	MintSymbol           string `json:"mint_symbol"`
	EstimatedFeeLamports uint64 `json:"estimated_fee_lamports"`
	SOLPriceUSD          string `json:"sol_price_usd,omitempty"`
	EstimatedFeeUSD      string `json:"estimated_fee_usd,omitempty"`
}

// Client is the HTTP client for the gasless relay service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new relay service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateTransfer asks the relay to compose and co-sign a transfer.
func (c *Client) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*Transfer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	transfer, err := decodeTransfer(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("transfer created",
		"transfer_id", transfer.ID,
		"mint_symbol", transfer.MintSymbol,
	)
	return transfer, nil
}

// GetTransfer retrieves a transfer by id. The result is the public
// view; SignedTransaction is never set.
func (c *Client) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	u := fmt.Sprintf("%s/api/v1/transfers/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	return decodeTransfer(resp.Body)
}

// ListTransfers retrieves transfers newest first.
func (c *Client) ListTransfers(ctx context.Context, limit, offset int32) ([]*Transfer, error) {
	u := fmt.Sprintf("%s/api/v1/transfers?limit=%d&offset=%d", c.baseURL, limit, offset)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transfers []json.RawMessage `json:"transfers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	transfers := make([]*Transfer, len(response.Transfers))
	for i, raw := range response.Transfers {
		transfer, err := decodeTransfer(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		transfers[i] = transfer
	}
	return transfers, nil
}

// QuoteFee retrieves the current fee quote for transfers of a mint.
func (c *Client) QuoteFee(ctx context.Context, mintSymbol string) (*FeeQuote, error) {
	u := fmt.Sprintf("%s/api/v1/fees?mint=%s", c.baseURL, url.QueryEscape(mintSymbol))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var quote FeeQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &quote, nil
}

// AwaitConfirmation polls a transfer until its status reaches CONFIRMED
// or the context is cancelled.
func (c *Client) AwaitConfirmation(ctx context.Context, id string, pollInterval time.Duration) (*Transfer, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		transfer, err := c.GetTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		if transfer.Status == "CONFIRMED" {
			return transfer, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// transferResponse mirrors the server's JSON. The signed transaction
// arrives base64 encoded and only on the create response.
type transferResponse struct {
	Transfer
	SignedTransaction string `json:"signed_transaction"`
}

func decodeTransfer(r io.Reader) (*Transfer, error) {
	var apiTransfer transferResponse
	if err := json.NewDecoder(r).Decode(&apiTransfer); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	transfer := apiTransfer.Transfer
	if apiTransfer.SignedTransaction != "" {
		raw, err := base64.StdEncoding.DecodeString(apiTransfer.SignedTransaction)
		if err != nil {
			return nil, fmt.Errorf("invalid signed_transaction encoding: %w", err)
		}
		transfer.SignedTransaction = raw
	}
	return &transfer, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errResp.Error)
}
