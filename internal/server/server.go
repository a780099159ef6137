// Package server exposes the session-key lifecycle over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"sessionkeys/internal/config"
	"sessionkeys/internal/constants"
	"sessionkeys/internal/crypto"
	"sessionkeys/internal/dashboard"
	"sessionkeys/internal/logger"
	"sessionkeys/internal/provider"
	"sessionkeys/internal/security"
	"sessionkeys/internal/session"
	"sessionkeys/internal/wallet"
)

// Deps are the collaborators a Server is assembled from.
type Deps struct {
	Manager *session.Manager
	// Reader is nil when no chain RPC is configured.
	Reader      *wallet.Reader
	Hub         *dashboard.Hub
	AuditLogger *security.AuditLogger
}

type Server struct {
	cfg            *config.Config
	Manager        *session.Manager
	Reader         *wallet.Reader
	Hub            *dashboard.Hub
	Inflight       *security.InflightGuard
	BruteProtector *security.BruteForceProtector
	AuditLogger    *security.AuditLogger
	closers        []func() error
	now            func() time.Time
}

func New(cfg *config.Config, d Deps) *Server {
	hub := d.Hub
	if hub == nil {
		hub = dashboard.New(cfg.AllowedOrigins)
	}
	return &Server{
		cfg:            cfg,
		Manager:        d.Manager,
		Reader:         d.Reader,
		Hub:            hub,
		Inflight:       security.NewInflightGuard(constants.MaxInflightPerAccount),
		BruteProtector: security.NewBruteForceProtector(constants.MaxAuthAttempts, constants.BlockDuration),
		AuditLogger:    d.AuditLogger,
		now:            time.Now,
	}
}

// NewServer wires store, provider, chain reader, journal and event hub
// from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	store := session.NewStore(cfg.Store)

	var sealer session.Sealer
	if cfg.SealSecret != "" {
		s, err := crypto.NewSealer([]byte(cfg.SealSecret))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize record sealing: %w", err)
		}
		sealer = s
		log.Println("🔐 Session records sealed at rest")
	}

	prov := provider.New(cfg.ProviderURL, cfg.ProviderToken)

	var reader *wallet.Reader
	var rpc *ethclient.Client
	if cfg.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c, err := ethclient.DialContext(ctx, cfg.RPCURL)
		cancel()
		if err != nil {
			log.Printf("⚠️  Chain RPC unavailable (%s): %v", cfg.RPCURL, err)
		} else {
			rpc = c
			reader = wallet.NewReader(c, constants.ReceiptPolling)
			log.Printf("⛓️  Chain RPC: %s", cfg.RPCURL)
		}
	}

	manager, err := session.NewManager(session.Options{
		Store:      store,
		Provider:   prov,
		Transactor: prov,
		Template:   cfg.Template,
		Chain: wallet.Chain{
			ID:          cfg.ChainID,
			Name:        constants.ChainName,
			ExplorerURL: cfg.ExplorerURL,
		},
		Token:        cfg.Token,
		Paymaster:    cfg.Paymaster,
		Sealer:       sealer,
		ExpiryTimers: cfg.ExpiryTimers,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	auditLogger, err := security.GetAuditLogger()
	if err != nil {
		log.Printf("Warning: Failed to initialize audit logger: %v", err)
		auditLogger = nil
	}

	s := New(cfg, Deps{
		Manager:     manager,
		Reader:      reader,
		Hub:         dashboard.New(cfg.AllowedOrigins),
		AuditLogger: auditLogger,
	})
	manager.Subscribe(s.Hub.Publish)

	journal, err := logger.NewLogger(cfg.JournalDir, "lifecycle")
	if err != nil {
		log.Printf("Warning: Failed to open lifecycle journal: %v", err)
	} else {
		manager.Subscribe(journal.LogChange)
		s.closers = append(s.closers, journal.Close)
		log.Printf("📝 Lifecycle journal: %s", journal.GetLogPath())
	}

	s.closers = append(s.closers, store.Close)
	if rpc != nil {
		s.closers = append(s.closers, func() error { rpc.Close(); return nil })
	}
	if auditLogger != nil {
		s.closers = append(s.closers, auditLogger.Close)
	}
	return s, nil
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware)
	r.Use(RequestID)
	r.Use(LoggingMiddleware)
	r.Use(CorsMiddleware(s.cfg.AllowedOrigins))
	r.Use(security.SecurityHeaders)
	r.Use(security.MaxBodySize(constants.MaxBodySize))

	r.Route(constants.EndpointAPI, func(r chi.Router) {
		r.Get(constants.EndpointHealth, s.HandleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.BearerAuth)

			r.Get(constants.EndpointSession, s.HandleGetSession)
			r.Post(constants.EndpointSession, s.HandleCreateSession)
			r.Delete(constants.EndpointSession, s.HandleRevokeSession)
			r.Post(constants.EndpointLogout, s.HandleLogout)
			r.Post(constants.EndpointMint, s.HandleMint)
			r.Get(constants.EndpointBalance, s.HandleBalance)
			r.Get(constants.EndpointReceipt, s.HandleReceipt)
			r.Get(constants.EndpointEvents, s.Hub.HandleWebSocket)
		})
	})

	return r
}

func (s *Server) Run() {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           h2c.NewHandler(s.Router(), &http2.Server{}),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("🌐 HTTP mode (HTTP/2 enabled)")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("🚀 %s server starting on %s (chain %d, store %s)", constants.AppName, s.cfg.Addr(), s.cfg.ChainID, s.cfg.StoreName())

	<-sigChan
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	s.Cleanup()
	log.Println("✅ Server stopped")
}

// Cleanup stops timers and closes the event stream, journal and store.
func (s *Server) Cleanup() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	s.Hub.Close()
	s.BruteProtector.Close()
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Printf("⚠️  Cleanup: %v", err)
		}
	}
}
