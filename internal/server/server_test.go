package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"sessionkeys/internal/config"
	"sessionkeys/internal/constants"
	"sessionkeys/internal/policy"
	"sessionkeys/internal/provider"
	"sessionkeys/internal/session"
	"sessionkeys/internal/types"
	"sessionkeys/internal/wallet"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token   = common.HexToAddress(constants.TokenAddress)
	minedTx = common.HexToHash("0xbeef")
)

type fakeProvider struct {
	mu        sync.Mutex
	createErr error
	revokeErr error
	block     chan struct{}
	entered   chan struct{}
	sent      []provider.SessionTransaction
}

func (f *fakeProvider) CreateSession(ctx context.Context, req provider.CreateSessionRequest) (*provider.CreateSessionResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	h := common.HexToHash("0xc0ffee")
	return &provider.CreateSessionResult{Session: req.Session, TransactionHash: &h}, nil
}

func (f *fakeProvider) RevokeSessions(_ context.Context, _ provider.RevokeSessionsRequest) (*provider.RevokeSessionsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return nil, f.revokeErr
	}
	return &provider.RevokeSessionsResult{}, nil
}

func (f *fakeProvider) SendSessionTransaction(_ context.Context, tx provider.SessionTransaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeProvider) sentTxs() []provider.SessionTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.SessionTransaction(nil), f.sent...)
}

// fakeBackend answers decimals/balanceOf and knows one mined receipt.
type fakeBackend struct {
	balance *big.Int
}

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := wallet.TokenABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	case "balanceOf":
		return method.Outputs.Pack(b.balance)
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if hash != minedTx {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(42),
		GasUsed:     21000,
	}, nil
}

type testServer struct {
	*Server
	provider *fakeProvider
	store    *session.MemoryStore
	http     *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := &config.Config{
		ChainID:         constants.ChainID,
		ExplorerURL:     constants.ExplorerURL,
		Token:           token,
		Paymaster:       common.HexToAddress(constants.PaymasterAddress),
		MintAmount:      big.NewInt(10),
		ProviderTimeout: 5 * time.Second,
		Template:        policy.MintTemplate(token),
		Store:           session.StoreConfig{Backend: constants.StoreMemory},
	}
	if mutate != nil {
		mutate(cfg)
	}

	prov := &fakeProvider{}
	store := session.NewMemoryStore()
	manager, err := session.NewManager(session.Options{
		Store:      store,
		Provider:   prov,
		Transactor: prov,
		Template:   cfg.Template,
		Chain:      wallet.Chain{ID: cfg.ChainID, Name: constants.ChainName, ExplorerURL: cfg.ExplorerURL},
		Token:      cfg.Token,
		Paymaster:  cfg.Paymaster,
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	s := New(cfg, Deps{
		Manager: manager,
		Reader:  wallet.NewReader(&fakeBackend{balance: big.NewInt(1_500_000_000_000_000_000)}, time.Millisecond),
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		s.Cleanup()
		store.Close()
	})
	return &testServer{Server: s, provider: prov, store: store, http: ts}
}

func (ts *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+"/api"+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if ts.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+ts.cfg.APIToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func sessionPath(a common.Address) string {
	return "/accounts/" + a.Hex() + "/session"
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	var health types.HealthResponse
	if code := ts.do(t, http.MethodGet, "/health", "", &health); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if health.Status != "ok" || health.ChainID != constants.ChainID || health.Store != constants.StoreMemory {
		t.Errorf("health = %+v", health)
	}
}

func TestGetSessionWithoutRecord(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp types.SessionResponse
	if code := ts.do(t, http.MethodGet, sessionPath(account), "", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.State != "no_session" || resp.Signer != "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestInvalidAccount(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp types.ErrorResponse
	if code := ts.do(t, http.MethodGet, "/accounts/not-an-address/session", "", &resp); code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	if resp.Error != constants.MsgInvalidAccount {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp types.SessionResponse
	if code := ts.do(t, http.MethodPost, sessionPath(account), "", &resp); code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if resp.State != "active" {
		t.Errorf("state = %q", resp.State)
	}
	if resp.Signer == "" || resp.SessionHash == "" || resp.ExpiresAt == nil {
		t.Errorf("incomplete response: %+v", resp)
	}
	if len(resp.Capabilities) != 1 || resp.Capabilities[0] != constants.CapabilitiesMint {
		t.Errorf("capabilities = %v", resp.Capabilities)
	}
	if !strings.HasSuffix(resp.ExplorerURL, "/tx/"+resp.TransactionHash) {
		t.Errorf("explorer url = %q", resp.ExplorerURL)
	}

	var errResp types.ErrorResponse
	if code := ts.do(t, http.MethodPost, sessionPath(account), "", &errResp); code != http.StatusConflict {
		t.Fatalf("second create status = %d", code)
	}
	if errResp.Error != constants.MsgSessionActive {
		t.Errorf("error = %q", errResp.Error)
	}
}

func TestCreateSessionProviderFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.createErr = &provider.HTTPError{StatusCode: 500, Message: "boom"}

	var resp types.ErrorResponse
	if code := ts.do(t, http.MethodPost, sessionPath(account), "", &resp); code != http.StatusBadGateway {
		t.Fatalf("status = %d", code)
	}
	if resp.Error != constants.MsgProviderFailed {
		t.Errorf("error = %q", resp.Error)
	}

	var st types.SessionResponse
	ts.do(t, http.MethodGet, sessionPath(account), "", &st)
	if st.State != "no_session" {
		t.Errorf("state after failure = %q", st.State)
	}
}

func TestCreateSessionInFlight(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.block = make(chan struct{})
	ts.provider.entered = make(chan struct{}, 1)

	done := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, ts.http.URL+"/api"+sessionPath(account), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-ts.provider.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first create never reached the provider")
	}

	var resp types.ErrorResponse
	if code := ts.do(t, http.MethodPost, sessionPath(account), "", &resp); code != http.StatusConflict {
		t.Fatalf("concurrent create status = %d", code)
	}
	if resp.Error != constants.MsgRequestInFlight {
		t.Errorf("error = %q", resp.Error)
	}

	close(ts.provider.block)
	if code := <-done; code != http.StatusCreated {
		t.Errorf("first create status = %d", code)
	}
}

func TestMint(t *testing.T) {
	ts := newTestServer(t, nil)

	var errResp types.ErrorResponse
	if code := ts.do(t, http.MethodPost, "/accounts/"+account.Hex()+"/mint", "", &errResp); code != http.StatusConflict {
		t.Fatalf("mint without session status = %d", code)
	}
	if errResp.Error != constants.MsgSessionRequired {
		t.Errorf("error = %q", errResp.Error)
	}

	ts.do(t, http.MethodPost, sessionPath(account), "", nil)

	var tx types.TransactionResponse
	if code := ts.do(t, http.MethodPost, "/accounts/"+account.Hex()+"/mint", "", &tx); code != http.StatusAccepted {
		t.Fatalf("mint status = %d", code)
	}
	if tx.TransactionHash == "" || !strings.Contains(tx.ExplorerURL, tx.TransactionHash) {
		t.Errorf("tx = %+v", tx)
	}

	txs := ts.provider.sentTxs()
	if len(txs) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(txs))
	}
	sent := txs[0]
	if sent.To != token {
		t.Errorf("to = %s, want token", sent.To.Hex())
	}
	if !wallet.VerifySessionTransaction(sent) {
		t.Error("relayed transaction signature does not verify")
	}
	want, _ := wallet.MintCalldata(account, big.NewInt(10))
	if string(sent.Data) != string(want) {
		t.Error("calldata does not mint the default amount to the account")
	}
}

func TestMintRejectsBadBody(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, sessionPath(account), "", nil)
	path := "/accounts/" + account.Hex() + "/mint"

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{"},
		{"bad recipient", `{"recipient":"0x12"}`},
		{"zero amount", `{"amount":"0"}`},
		{"non-numeric amount", `{"amount":"ten"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := ts.do(t, http.MethodPost, path, tt.body, nil); code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
		})
	}
	if n := len(ts.provider.sentTxs()); n != 0 {
		t.Errorf("sent %d transactions for rejected requests", n)
	}
}

func TestRevokeSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, sessionPath(account), "", nil)

	var resp types.SessionResponse
	if code := ts.do(t, http.MethodDelete, sessionPath(account), "", &resp); code != http.StatusOK {
		t.Fatalf("revoke status = %d", code)
	}
	if resp.State != "no_session" {
		t.Errorf("state = %q", resp.State)
	}
	if _, ok, _ := ts.store.Get(context.Background(), session.StorageKey(account)); ok {
		t.Error("record still stored after revoke")
	}
}

func TestRevokeProviderFailureClearsLocalState(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, sessionPath(account), "", nil)
	ts.provider.mu.Lock()
	ts.provider.revokeErr = errors.New("relay down")
	ts.provider.mu.Unlock()

	if code := ts.do(t, http.MethodDelete, sessionPath(account), "", nil); code != http.StatusBadGateway {
		t.Fatalf("revoke status = %d", code)
	}

	var st types.SessionResponse
	ts.do(t, http.MethodGet, sessionPath(account), "", &st)
	if st.State != "no_session" {
		t.Errorf("state after failed revoke = %q", st.State)
	}
}

func TestLogoutKeepsStoredRecord(t *testing.T) {
	ts := newTestServer(t, nil)
	var created types.SessionResponse
	ts.do(t, http.MethodPost, sessionPath(account), "", &created)

	if code := ts.do(t, http.MethodPost, "/accounts/"+account.Hex()+"/logout", "", nil); code != http.StatusNoContent {
		t.Fatalf("logout status = %d", code)
	}
	if ts.Manager.Client(account) != nil {
		t.Fatal("client survived logout")
	}

	var restored types.SessionResponse
	ts.do(t, http.MethodGet, sessionPath(account), "", &restored)
	if restored.State != "active" || restored.Signer != created.Signer {
		t.Errorf("restored = %+v, want signer %s", restored, created.Signer)
	}
}

func TestBalance(t *testing.T) {
	ts := newTestServer(t, nil)

	var bal types.BalanceResponse
	if code := ts.do(t, http.MethodGet, "/accounts/"+account.Hex()+"/balance", "", &bal); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if bal.Formatted != "1.5" || bal.Decimals != 18 || bal.Symbol != constants.TokenSymbol {
		t.Errorf("balance = %+v", bal)
	}
}

func TestChainEndpointsWithoutRPC(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.Reader = nil

	if code := ts.do(t, http.MethodGet, "/accounts/"+account.Hex()+"/balance", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("balance status = %d", code)
	}
	if code := ts.do(t, http.MethodGet, "/transactions/"+minedTx.Hex()+"/receipt", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("receipt status = %d", code)
	}
}

func TestReceipt(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		hash   common.Hash
		status string
		block  uint64
	}{
		{minedTx, "success", 42},
		{common.HexToHash("0x1234"), constants.MsgReceiptPending, 0},
	}
	for _, tt := range tests {
		var resp types.ReceiptResponse
		if code := ts.do(t, http.MethodGet, "/transactions/"+tt.hash.Hex()+"/receipt", "", &resp); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if resp.Status != tt.status || resp.BlockNumber != tt.block {
			t.Errorf("receipt(%s) = %+v", tt.hash.Hex(), resp)
		}
	}

	if code := ts.do(t, http.MethodGet, "/transactions/0xnope/receipt", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad hash status = %d", code)
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.APIToken = "s3cret" })

	req, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/api"+sessionPath(account), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}

	if code := ts.do(t, http.MethodGet, sessionPath(account), "", nil); code != http.StatusOK {
		t.Errorf("authenticated status = %d", code)
	}

	resp, err = http.Get(ts.http.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health should not need a token, got %d", resp.StatusCode)
	}
}

func TestBearerAuthBlocksRepeatedFailures(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.APIToken = "s3cret" })

	var last int
	for i := 0; i <= constants.MaxAuthAttempts; i++ {
		req, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/api"+sessionPath(account), nil)
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after %d failures = %d, want 429", constants.MaxAuthAttempts+1, last)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no session", session.ErrNoSession, http.StatusConflict},
		{"expired", wallet.ErrSessionExpired, http.StatusConflict},
		{"policy", fmt.Errorf("mint: %w", policy.ErrCallNotAllowed), http.StatusForbidden},
		{"value limit", policy.ErrValueLimitExceeded, http.StatusForbidden},
		{"provider", fmt.Errorf("%w: %w", session.ErrProviderRequestFailed, errors.New("x")), http.StatusBadGateway},
		{"provider http", &provider.HTTPError{StatusCode: 400, Message: "bad"}, http.StatusBadGateway},
		{"transport", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, http.StatusBadGateway},
		{"timeout", fmt.Errorf("%w: %w", session.ErrProviderRequestFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"no relay", wallet.ErrNoTransactor, http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
