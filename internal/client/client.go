// Package client is the sessionctl side of the session-key API: an HTTP
// client for the server and the terminal rendering around it.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/types"
	"sessionkeys/internal/utils"
)

// Client talks to a sessionkeys server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// New creates a client. Self-signed localhost HTTPS is accepted.
func New(serverURL, token string) *Client {
	baseURL, skipTLSVerify := utils.NormalizeServerURL(serverURL)
	tlsConfig := &tls.Config{InsecureSkipVerify: skipTLSVerify} //nolint:gosec // localhost only

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout:   constants.ProviderTimeout + 10*time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: constants.DialTimeout,
			TLSClientConfig:  tlsConfig,
		},
	}
}

func accountPath(account common.Address, suffix string) string {
	return constants.EndpointAPI + "/accounts/" + account.Hex() + suffix
}

func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var h types.HealthResponse
	if err := c.get(ctx, constants.EndpointAPI+constants.EndpointHealth, &h); err != nil {
		return nil, fmt.Errorf("client.Health: %w", err)
	}
	return &h, nil
}

// Session returns the account's session, restoring a stored one if needed.
func (c *Client) Session(ctx context.Context, account common.Address) (*types.SessionResponse, error) {
	var s types.SessionResponse
	if err := c.get(ctx, accountPath(account, "/session"), &s); err != nil {
		return nil, fmt.Errorf("client.Session: %w", err)
	}
	return &s, nil
}

func (c *Client) CreateSession(ctx context.Context, account common.Address) (*types.SessionResponse, error) {
	var s types.SessionResponse
	if err := c.doRequest(ctx, http.MethodPost, accountPath(account, "/session"), nil, &s); err != nil {
		return nil, fmt.Errorf("client.CreateSession: %w", err)
	}
	return &s, nil
}

func (c *Client) RevokeSession(ctx context.Context, account common.Address) error {
	if err := c.doRequest(ctx, http.MethodDelete, accountPath(account, "/session"), nil, nil); err != nil {
		return fmt.Errorf("client.RevokeSession: %w", err)
	}
	return nil
}

// Logout drops the server's in-memory client; the stored key survives.
func (c *Client) Logout(ctx context.Context, account common.Address) error {
	if err := c.doRequest(ctx, http.MethodPost, accountPath(account, "/logout"), nil, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	return nil
}

// Mint mints through the account's session key. Empty fields take the
// server's defaults.
func (c *Client) Mint(ctx context.Context, account common.Address, req types.MintRequest) (*types.TransactionResponse, error) {
	var tx types.TransactionResponse
	if err := c.post(ctx, accountPath(account, "/mint"), req, &tx); err != nil {
		return nil, fmt.Errorf("client.Mint: %w", err)
	}
	return &tx, nil
}

func (c *Client) Balance(ctx context.Context, account common.Address) (*types.BalanceResponse, error) {
	var b types.BalanceResponse
	if err := c.get(ctx, accountPath(account, "/balance"), &b); err != nil {
		return nil, fmt.Errorf("client.Balance: %w", err)
	}
	return &b, nil
}

func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.ReceiptResponse, error) {
	var r types.ReceiptResponse
	if err := c.get(ctx, constants.EndpointAPI+"/transactions/"+hash.Hex()+"/receipt", &r); err != nil {
		return nil, fmt.Errorf("client.Receipt: %w", err)
	}
	return &r, nil
}

// WaitReceipt polls Receipt until the transaction leaves pending.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*types.ReceiptResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := c.Receipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r.Status != constants.MsgReceiptPending {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("client.WaitReceipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Watch streams lifecycle events for account (all accounts when zero)
// into fn until ctx is done or the server closes the stream.
func (c *Client) Watch(ctx context.Context, account common.Address, fn func(types.ChangeEvent)) error {
	u, err := url.Parse(c.baseURL + constants.EndpointAPI + constants.EndpointEvents)
	if err != nil {
		return fmt.Errorf("client.Watch: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	q := u.Query()
	if account != (common.Address{}) {
		q.Set("account", account.Hex())
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("client.Watch: %w", &HTTPError{StatusCode: resp.StatusCode, Message: resp.Status})
		}
		return fmt.Errorf("client.Watch: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev types.ChangeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client.Watch: %w", err)
		}
		fn(ev)
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr types.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
