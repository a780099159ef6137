package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"sessionkeys/internal/constants"
)

// Client is the HTTP wallet-session provider client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a provider client. Requests carry no client-side timeout;
// callers bound them through the context.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// CreateSession registers a new session for req.Account.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	var res CreateSessionResult
	if err := c.post(ctx, constants.ProviderSessions, req, &res); err != nil {
		return nil, fmt.Errorf("provider.CreateSession: %w", err)
	}
	if res.Session.Signer != req.Session.Signer {
		return nil, fmt.Errorf("provider.CreateSession: signer mismatch: sent %s, got %s",
			req.Session.Signer.Hex(), res.Session.Signer.Hex())
	}
	return &res, nil
}

// RevokeSessions revokes every session in req on-chain.
func (c *Client) RevokeSessions(ctx context.Context, req RevokeSessionsRequest) (*RevokeSessionsResult, error) {
	var res RevokeSessionsResult
	if err := c.post(ctx, constants.ProviderRevoke, req, &res); err != nil {
		return nil, fmt.Errorf("provider.RevokeSessions: %w", err)
	}
	return &res, nil
}

// SendSessionTransaction relays a session-signed transaction.
func (c *Client) SendSessionTransaction(ctx context.Context, tx SessionTransaction) (common.Hash, error) {
	var res SendResult
	if err := c.post(ctx, constants.ProviderSend, tx, &res); err != nil {
		return common.Hash{}, fmt.Errorf("provider.SendSessionTransaction: %w", err)
	}
	if res.TransactionHash == (common.Hash{}) {
		return common.Hash{}, errors.New("provider.SendSessionTransaction: empty transaction hash")
	}
	return res.TransactionHash, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	limited := io.LimitReader(resp.Body, constants.MaxProviderBodySize)
	if err := json.NewDecoder(limited).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			msg = errResp.Error
		case errResp.Message != "":
			msg = errResp.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}
