// Package session owns the session-key lifecycle for connected accounts:
// restoring a stored key, creating one through the wallet provider,
// revoking it, and expiring it when its validity window ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sessionkeys/internal/policy"
	"sessionkeys/internal/provider"
	"sessionkeys/internal/utils"
	"sessionkeys/internal/wallet"
)

// Provider creates and revokes sessions on-chain. *provider.Client
// satisfies it.
type Provider interface {
	CreateSession(ctx context.Context, req provider.CreateSessionRequest) (*provider.CreateSessionResult, error)
	RevokeSessions(ctx context.Context, req provider.RevokeSessionsRequest) (*provider.RevokeSessionsResult, error)
}

type Options struct {
	Store          StoreInterface
	Provider       Provider
	Transactor     wallet.Transactor
	Template       policy.Template
	Chain          wallet.Chain
	Token          common.Address
	Paymaster      common.Address
	PaymasterInput []byte
	// Sealer encrypts records at rest when set.
	Sealer Sealer
	// ExpiryTimers schedules an expiry at each session's deadline. Without
	// it sessions are only expired when next touched.
	ExpiryTimers bool
	Now          func() time.Time
}

type entry struct {
	client *wallet.Client
	record *Record
	stop   func() bool
}

type Manager struct {
	opts     Options
	now      func() time.Time
	schedule func(d time.Duration, f func()) func() bool

	mu       sync.Mutex
	active   map[common.Address]*entry
	creating map[common.Address]int

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session: nil store")
	}
	if opts.Provider == nil {
		return nil, errors.New("session: nil provider")
	}
	if err := opts.Template.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.PaymasterInput == nil {
		opts.PaymasterInput = wallet.GeneralPaymasterInput(nil)
	}
	return &Manager{
		opts: opts,
		now:  now,
		schedule: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		active:    make(map[common.Address]*entry),
		creating:  make(map[common.Address]int),
		observers: make(map[int]Observer),
	}, nil
}

// Subscribe registers an observer and returns its unsubscribe func.
// Observers are called synchronously, outside the manager's lock.
func (m *Manager) Subscribe(o Observer) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) notify(c Change) {
	c.At = m.now()
	m.obsMu.RLock()
	obs := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		obs = append(obs, o)
	}
	m.obsMu.RUnlock()

	for _, o := range obs {
		o(c)
	}
}

// Restore loads the account's stored record and rebuilds its client.
// Absent, expired and corrupt records all yield a nil client and no error;
// the latter two are deleted. Errors are only returned when the store
// itself fails.
func (m *Manager) Restore(ctx context.Context, account common.Address) (*wallet.Client, error) {
	if c := m.Client(account); c != nil {
		return c, nil
	}

	key := StorageKey(account)
	raw, ok, err := m.opts.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", account.Hex(), err)
	}
	if !ok {
		return nil, nil
	}

	rec, err := decodeRecord(raw, key, m.opts.Sealer)
	if err != nil {
		m.discard(ctx, account, TransitionCorrupt, StateNoSession, err)
		return nil, nil
	}
	if rec.Expired(m.now()) {
		m.discard(ctx, account, TransitionExpired, StateExpired, nil)
		return nil, nil
	}
	client, err := m.buildClient(account, rec)
	if err != nil {
		m.discard(ctx, account, TransitionCorrupt, StateNoSession, err)
		return nil, nil
	}

	m.install(account, client, rec)
	log.Printf("🔑 Session restored for %s (signer %s, %s left)",
		account.Hex(), rec.Address.Hex(), utils.FormatDuration(rec.ExpiresAt.Sub(m.now())))
	m.notify(m.activeChange(account, client, rec, TransitionRestored))
	return client, nil
}

// discard deletes a stored record that can no longer be used.
func (m *Manager) discard(ctx context.Context, account common.Address, tr Transition, state State, cause error) {
	if err := m.opts.Store.Delete(ctx, StorageKey(account)); err != nil {
		log.Printf("⚠️  Failed to delete %s record for %s: %v", tr, account.Hex(), err)
	}
	if cause != nil {
		log.Printf("❌ Discarding session record for %s: %v", account.Hex(), cause)
	} else {
		log.Printf("🗑 Discarding %s session record for %s", tr, account.Hex())
	}
	m.notify(Change{Account: account, State: state, Transition: tr, Err: cause})
}

// Create provisions a fresh session key through the provider. On failure
// nothing is persisted and the account returns to its prior state.
// Concurrent creates for one account are not deduplicated here.
func (m *Manager) Create(ctx context.Context, account common.Address) (*wallet.Client, error) {
	prior := m.beginCreate(account)
	m.notify(Change{Account: account, State: StateCreating, Transition: TransitionCreating})

	client, rec, err := m.create(ctx, account)
	m.endCreate(account)
	if err != nil {
		log.Printf("❌ Session creation failed for %s: %v", account.Hex(), err)
		c := Change{Account: account, State: StateNoSession, Transition: TransitionCreateFailed, Err: err}
		if prior != nil && !prior.client.Expired() {
			c.State = StateActive
			c.Client = prior.client
			c.Signer = prior.record.Address
			c.SessionHash = prior.client.SessionHash()
			c.ExpiresAt = prior.record.ExpiresAt
		}
		m.notify(c)
		return nil, err
	}

	m.install(account, client, rec)
	log.Printf("✅ Session created for %s (signer %s, expires %s)",
		account.Hex(), rec.Address.Hex(), rec.ExpiresAt.Format(time.RFC3339))
	m.notify(m.activeChange(account, client, rec, TransitionCreated))
	return client, nil
}

func (m *Manager) create(ctx context.Context, account common.Address) (*wallet.Client, *Record, error) {
	signer, err := wallet.GenerateSigner()
	if err != nil {
		return nil, nil, err
	}
	spec := m.opts.Template.Build(signer.Address(), account, m.now())

	res, err := m.opts.Provider.CreateSession(ctx, provider.CreateSessionRequest{
		Account:        account,
		Session:        spec,
		Paymaster:      m.opts.Paymaster,
		PaymasterInput: m.opts.PaymasterInput,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProviderRequestFailed, err)
	}
	if res.Session.Signer != signer.Address() {
		return nil, nil, fmt.Errorf("%w: provider returned session for signer %s", ErrProviderRequestFailed, res.Session.Signer.Hex())
	}

	rec := &Record{
		PrivateKey:      signer.PrivateKeyBytes(),
		Address:         signer.Address(),
		ExpiresAt:       res.Session.Expiry(),
		Session:         res.Session,
		TransactionHash: res.TransactionHash,
	}
	client, err := m.buildClient(account, rec)
	if err != nil {
		return nil, nil, err
	}

	key := StorageKey(account)
	raw, err := encodeRecord(rec, key, m.opts.Sealer)
	if err != nil {
		return nil, nil, err
	}
	if err := m.opts.Store.Save(ctx, key, raw, rec.ExpiresAt.Sub(m.now())); err != nil {
		return nil, nil, fmt.Errorf("persist session: %w", err)
	}
	return client, rec, nil
}

// Revoke asks the provider to revoke the account's session, then clears
// the record and client whatever the provider said. A provider failure is
// returned after local state is cleared.
func (m *Manager) Revoke(ctx context.Context, account common.Address) error {
	rec, err := m.currentRecord(ctx, account)
	if err != nil {
		return err
	}
	if rec == nil {
		m.drop(account)
		return nil
	}

	var txHash *common.Hash
	res, provErr := m.opts.Provider.RevokeSessions(ctx, provider.RevokeSessionsRequest{
		Account:        account,
		Sessions:       []policy.Session{rec.Session},
		SessionHashes:  []common.Hash{rec.Session.Hash()},
		Paymaster:      m.opts.Paymaster,
		PaymasterInput: m.opts.PaymasterInput,
	})
	if provErr != nil {
		provErr = fmt.Errorf("%w: %w", ErrProviderRequestFailed, provErr)
		log.Printf("❌ Revoke request failed for %s: %v", account.Hex(), provErr)
	} else if res != nil {
		txHash = res.TransactionHash
	}

	m.drop(account)
	delErr := m.opts.Store.Delete(ctx, StorageKey(account))
	if delErr != nil {
		delErr = fmt.Errorf("delete session record: %w", delErr)
	}

	log.Printf("🗑 Session revoked for %s (signer %s)", account.Hex(), rec.Address.Hex())
	m.notify(Change{
		Account:     account,
		State:       StateRevoked,
		Transition:  TransitionRevoked,
		Signer:      rec.Address,
		SessionHash: rec.Session.Hash(),
		TxHash:      txHash,
		ExpiresAt:   rec.ExpiresAt,
		Err:         provErr,
	})
	return errors.Join(provErr, delErr)
}

// currentRecord prefers the in-memory record and falls back to the store.
// A corrupt stored record is deleted and reported as absent.
func (m *Manager) currentRecord(ctx context.Context, account common.Address) (*Record, error) {
	m.mu.Lock()
	e := m.active[account]
	m.mu.Unlock()
	if e != nil {
		return e.record, nil
	}

	key := StorageKey(account)
	raw, ok, err := m.opts.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", account.Hex(), err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := decodeRecord(raw, key, m.opts.Sealer)
	if err != nil {
		m.discard(ctx, account, TransitionCorrupt, StateNoSession, err)
		return nil, nil
	}
	return rec, nil
}

// Client returns the account's live client, or nil. A client found past
// its expiry is expired on the spot.
func (m *Manager) Client(account common.Address) *wallet.Client {
	m.mu.Lock()
	e := m.active[account]
	m.mu.Unlock()
	if e == nil {
		return nil
	}
	if e.client.Expired() {
		m.expire(account, e.client.SessionHash())
		return nil
	}
	return e.client
}

// Status is a snapshot of the in-memory state. Call Restore first to
// pick up a stored record.
func (m *Manager) Status(account common.Address) Status {
	st := Status{Account: account, State: StateNoSession}

	m.mu.Lock()
	creating := m.creating[account] > 0
	m.mu.Unlock()

	if c := m.Client(account); c != nil {
		m.mu.Lock()
		e := m.active[account]
		m.mu.Unlock()
		if e != nil {
			sess := e.record.Session
			st.State = StateActive
			st.Signer = e.record.Address
			st.SessionHash = e.client.SessionHash()
			st.TxHash = e.record.TransactionHash
			st.ExpiresAt = e.record.ExpiresAt
			st.Session = &sess
		}
	}
	if creating {
		st.State = StateCreating
	}
	return st
}

// Forget discards the in-memory client and keeps the stored record, as on
// wallet disconnect.
func (m *Manager) Forget(account common.Address) {
	if !m.drop(account) {
		return
	}
	log.Printf("👋 Session client discarded for %s", account.Hex())
	m.notify(Change{Account: account, State: StateNoSession, Transition: TransitionForgotten})
}

// Close stops every pending expiry timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.active {
		if e.stop != nil {
			e.stop()
		}
	}
}

// expire clears the account's session if it is still the one identified
// by hash. Timers from replaced sessions are ignored.
func (m *Manager) expire(account common.Address, hash common.Hash) {
	m.mu.Lock()
	e := m.active[account]
	if e == nil || e.client.SessionHash() != hash {
		m.mu.Unlock()
		return
	}
	delete(m.active, account)
	if e.stop != nil {
		e.stop()
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.opts.Store.Delete(ctx, StorageKey(account)); err != nil {
		log.Printf("⚠️  Failed to delete expired record for %s: %v", account.Hex(), err)
	}

	log.Printf("⏰ Session expired for %s (signer %s)", account.Hex(), e.record.Address.Hex())
	m.notify(Change{
		Account:     account,
		State:       StateExpired,
		Transition:  TransitionExpired,
		Signer:      e.record.Address,
		SessionHash: hash,
		ExpiresAt:   e.record.ExpiresAt,
	})
}

func (m *Manager) buildClient(account common.Address, rec *Record) (*wallet.Client, error) {
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}
	return wallet.NewClient(wallet.ClientConfig{
		Account:        account,
		Chain:          m.opts.Chain,
		Signer:         signer,
		Session:        rec.Session,
		Token:          m.opts.Token,
		Paymaster:      m.opts.Paymaster,
		PaymasterInput: m.opts.PaymasterInput,
		Transactor:     m.opts.Transactor,
		Now:            m.now,
	})
}

// install makes client the account's live client, replacing any other.
func (m *Manager) install(account common.Address, client *wallet.Client, rec *Record) {
	e := &entry{client: client, record: rec}

	m.mu.Lock()
	if old := m.active[account]; old != nil && old.stop != nil {
		old.stop()
	}
	if m.opts.ExpiryTimers {
		hash := client.SessionHash()
		e.stop = m.schedule(rec.ExpiresAt.Sub(m.now()), func() { m.expire(account, hash) })
	}
	m.active[account] = e
	m.mu.Unlock()
}

// drop removes the in-memory client and reports whether there was one.
func (m *Manager) drop(account common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.active[account]
	if e == nil {
		return false
	}
	if e.stop != nil {
		e.stop()
	}
	delete(m.active, account)
	return true
}

func (m *Manager) beginCreate(account common.Address) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creating[account]++
	return m.active[account]
}

func (m *Manager) endCreate(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creating[account]--; m.creating[account] <= 0 {
		delete(m.creating, account)
	}
}

func (m *Manager) activeChange(account common.Address, client *wallet.Client, rec *Record, tr Transition) Change {
	return Change{
		Account:     account,
		State:       StateActive,
		Transition:  tr,
		Client:      client,
		Signer:      rec.Address,
		SessionHash: client.SessionHash(),
		TxHash:      rec.TransactionHash,
		ExpiresAt:   rec.ExpiresAt,
	}
}
