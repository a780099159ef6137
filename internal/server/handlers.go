package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/policy"
	"sessionkeys/internal/security"
	"sessionkeys/internal/session"
	"sessionkeys/internal/types"
	"sessionkeys/internal/utils"
	"sessionkeys/internal/wallet"
)

var mintSelector = policy.SelectorOf(constants.MintSignature)

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:  "ok",
		Version: constants.Version,
		ChainID: s.cfg.ChainID,
		Store:   s.cfg.StoreName(),
	})
}

// accountParam reads {account} from the route, writing a 400 on failure.
func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "account")
	account, ok := security.ParseAddress(raw)
	if !ok {
		if s.AuditLogger != nil {
			s.AuditLogger.LogInvalidRequest(security.GetClientIP(r), r.URL.Path, "invalid account "+security.SanitizeInput(raw))
		}
		writeError(w, http.StatusBadRequest, constants.MsgInvalidAccount)
		return common.Address{}, false
	}
	return account, true
}

func (s *Server) providerContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.ProviderTimeout)
}

func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	if _, err := s.Manager.Restore(r.Context(), account); err != nil {
		log.Printf("❌ Restore failed for %s: %v", account.Hex(), err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(s.Manager.Status(account)))
}

func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	ip := security.GetClientIP(r)
	key := account.Hex()

	if !s.Inflight.TryAcquire(key) {
		if s.AuditLogger != nil {
			s.AuditLogger.LogInflightRejected(ip, key)
		}
		writeError(w, http.StatusConflict, constants.MsgRequestInFlight)
		return
	}
	defer s.Inflight.Release(key)

	existing, err := s.Manager.Restore(r.Context(), account)
	if err != nil {
		writeErr(w, err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, constants.MsgSessionActive)
		return
	}

	ctx, cancel := s.providerContext(r)
	defer cancel()

	client, err := s.Manager.Create(ctx, account)
	if err != nil {
		if s.AuditLogger != nil {
			s.AuditLogger.LogSessionCreateFailed(ip, key, err.Error())
		}
		writeErr(w, err)
		return
	}
	if s.AuditLogger != nil {
		s.AuditLogger.LogSessionCreate(ip, key, client.SignerAddress().Hex())
	}
	writeJSON(w, http.StatusCreated, s.sessionResponse(s.Manager.Status(account)))
}

func (s *Server) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	ip := security.GetClientIP(r)
	key := account.Hex()

	if !s.Inflight.TryAcquire(key) {
		if s.AuditLogger != nil {
			s.AuditLogger.LogInflightRejected(ip, key)
		}
		writeError(w, http.StatusConflict, constants.MsgRequestInFlight)
		return
	}
	defer s.Inflight.Release(key)

	ctx, cancel := s.providerContext(r)
	defer cancel()

	err := s.Manager.Revoke(ctx, account)
	if s.AuditLogger != nil {
		reason := "requested"
		if err != nil {
			reason = err.Error()
		}
		s.AuditLogger.LogSessionRevoke(ip, key, reason)
	}
	if err != nil {
		// Local state is already cleared; report the provider failure.
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(s.Manager.Status(account)))
}

// HandleLogout drops the in-memory client, keeping the stored record.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	s.Manager.Forget(account)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleMint(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	ip := security.GetClientIP(r)

	var req types.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, constants.MsgInvalidJSON)
		return
	}

	recipient := account
	if req.Recipient != "" {
		if recipient, ok = security.ParseAddress(req.Recipient); !ok {
			writeError(w, http.StatusBadRequest, "Invalid recipient address")
			return
		}
	}
	amount := new(big.Int).Set(s.cfg.MintAmount)
	if req.Amount != "" {
		if amount, ok = math.ParseBig256(req.Amount); !ok || amount.Sign() <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
	}

	client, err := s.Manager.Restore(r.Context(), account)
	if err != nil {
		writeErr(w, err)
		return
	}
	if client == nil {
		writeErr(w, session.ErrNoSession)
		return
	}

	ctx, cancel := s.providerContext(r)
	defer cancel()

	hash, err := client.Mint(ctx, recipient, amount)
	if err != nil {
		if errors.Is(err, wallet.ErrSessionExpired) {
			// Let the manager observe the expiry now rather than at the timer.
			s.Manager.Client(account)
		}
		if status, _ := statusForError(err); status == http.StatusForbidden && s.AuditLogger != nil {
			s.AuditLogger.LogPolicyViolation(ip, account.Hex(), err.Error())
		}
		log.Printf("❌ Mint failed for %s: %v", account.Hex(), err)
		writeErr(w, err)
		return
	}

	if s.AuditLogger != nil {
		s.AuditLogger.LogSessionTransaction(ip, account.Hex(), hash.Hex())
	}
	log.Printf("🪙 Mint %s %s to %s: %s", utils.FormatUnits(amount, constants.TokenDecimals),
		constants.TokenSymbol, recipient.Hex(), hash.Hex())
	writeJSON(w, http.StatusAccepted, types.TransactionResponse{
		TransactionHash: hash.Hex(),
		ExplorerURL:     utils.ExplorerTxURL(s.cfg.ExplorerURL, hash.Hex()),
	})
}

func (s *Server) HandleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	if s.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, constants.MsgChainUnavailable)
		return
	}

	bal, err := s.Reader.TokenBalance(r.Context(), s.cfg.Token, account)
	if err != nil {
		log.Printf("❌ Balance query failed for %s: %v", account.Hex(), err)
		writeError(w, http.StatusBadGateway, "Chain RPC request failed")
		return
	}
	writeJSON(w, http.StatusOK, types.BalanceResponse{
		Account:     account.Hex(),
		Token:       s.cfg.Token.Hex(),
		Symbol:      constants.TokenSymbol,
		Raw:         bal.Raw.String(),
		Decimals:    bal.Decimals,
		Formatted:   utils.FormatUnits(bal.Raw, bal.Decimals),
		ExplorerURL: utils.ExplorerAddressURL(s.cfg.ExplorerURL, account.Hex()),
	})
}

func (s *Server) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	hash, ok := security.ParseTxHash(chi.URLParam(r, "hash"))
	if !ok {
		writeError(w, http.StatusBadRequest, constants.MsgInvalidTxHash)
		return
	}
	if s.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, constants.MsgChainUnavailable)
		return
	}

	receipt, err := s.Reader.Receipt(r.Context(), hash)
	if err != nil {
		log.Printf("❌ Receipt query failed for %s: %v", hash.Hex(), err)
		writeError(w, http.StatusBadGateway, "Chain RPC request failed")
		return
	}

	resp := types.ReceiptResponse{
		TransactionHash: hash.Hex(),
		Status:          constants.MsgReceiptPending,
		ExplorerURL:     utils.ExplorerTxURL(s.cfg.ExplorerURL, hash.Hex()),
	}
	if receipt != nil {
		resp.Status = "reverted"
		if receipt.Status == ethtypes.ReceiptStatusSuccessful {
			resp.Status = "success"
		}
		if receipt.BlockNumber != nil {
			resp.BlockNumber = receipt.BlockNumber.Uint64()
		}
		resp.GasUsed = receipt.GasUsed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sessionResponse(st session.Status) types.SessionResponse {
	resp := types.SessionResponse{
		Account: st.Account.Hex(),
		State:   st.State.String(),
	}
	if st.Session == nil {
		return resp
	}

	expires := st.ExpiresAt
	resp.Signer = st.Signer.Hex()
	resp.SessionHash = st.SessionHash.Hex()
	resp.ExpiresAt = &expires
	resp.ExpiresIn = utils.FormatDuration(expires.Sub(s.now()))
	resp.Session = st.Session
	resp.Capabilities = capabilities(*st.Session)
	if st.TxHash != nil {
		resp.TransactionHash = st.TxHash.Hex()
		resp.ExplorerURL = utils.ExplorerTxURL(s.cfg.ExplorerURL, st.TxHash.Hex())
	}
	return resp
}

// capabilities names what a session lets the UI do.
func capabilities(sess policy.Session) []string {
	var out []string
	for _, cp := range sess.CallPolicies {
		if cp.Selector == mintSelector {
			out = append(out, constants.CapabilitiesMint)
			break
		}
	}
	if len(sess.TransferPolicies) > 0 {
		out = append(out, constants.CapabilitiesTransfer)
	}
	return out
}
