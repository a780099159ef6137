// Package dashboard streams session lifecycle changes to websocket clients.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/security"
	"sessionkeys/internal/session"
	"sessionkeys/internal/types"
)

const writeWait = 10 * time.Second

type client struct {
	conn    *websocket.Conn
	account string // empty means all accounts
	send    chan []byte
}

// Hub fans lifecycle changes out to connected clients and keeps a short
// history so new clients see recent state.
type Hub struct {
	mu         sync.RWMutex
	history    []types.ChangeEvent
	maxHistory int

	clientsMu sync.Mutex
	clients   map[*client]struct{}
	active    int64

	upgrader websocket.Upgrader
}

func New(allowedOrigins []string) *Hub {
	return &Hub{
		maxHistory: constants.EventHistory,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return security.ValidateOrigin(r, allowedOrigins)
			},
			ReadBufferSize:  constants.WSBufferSize,
			WriteBufferSize: constants.WSBufferSize,
		},
	}
}

// ToEvent converts a lifecycle change to its wire form.
func ToEvent(c session.Change) types.ChangeEvent {
	ev := types.ChangeEvent{
		Account:    c.Account.Hex(),
		State:      c.State.String(),
		Transition: string(c.Transition),
		Timestamp:  c.At,
	}
	if c.Signer != (common.Address{}) {
		ev.Signer = c.Signer.Hex()
	}
	if c.SessionHash != (common.Hash{}) {
		ev.SessionHash = c.SessionHash.Hex()
	}
	if c.TxHash != nil {
		ev.TransactionHash = c.TxHash.Hex()
	}
	if !c.ExpiresAt.IsZero() {
		exp := c.ExpiresAt.UTC()
		ev.ExpiresAt = &exp
	}
	if c.Err != nil {
		ev.Error = c.Err.Error()
	}
	return ev
}

// Publish is a session.Observer.
func (h *Hub) Publish(c session.Change) {
	ev := ToEvent(c)

	h.mu.Lock()
	h.history = append(h.history, ev)
	if len(h.history) > h.maxHistory {
		h.history = h.history[len(h.history)-h.maxHistory:]
	}
	h.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for cl := range h.clients {
		if cl.account != "" && cl.account != ev.Account {
			continue
		}
		select {
		case cl.send <- data:
		default:
			// slow reader
			h.removeLocked(cl)
		}
	}
}

// History returns recent events, optionally for one account.
func (h *Hub) History(account string) []types.ChangeEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.ChangeEvent, 0, len(h.history))
	for _, ev := range h.history {
		if account == "" || ev.Account == account {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) Clients() int {
	return int(atomic.LoadInt64(&h.active))
}

// HandleWebSocket streams history then live events. ?account= narrows the
// stream to one account.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var account string
	if q := strings.TrimSpace(r.URL.Query().Get("account")); q != "" {
		addr, ok := security.ParseAddress(q)
		if !ok {
			http.Error(w, constants.MsgInvalidAccount, http.StatusBadRequest)
			return
		}
		account = addr.Hex()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	cl := &client{conn: conn, account: account, send: make(chan []byte, constants.EventBufferSize)}
	for _, ev := range h.History(account) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case cl.send <- data:
		default:
		}
	}

	h.clientsMu.Lock()
	h.clients[cl] = struct{}{}
	h.clientsMu.Unlock()
	atomic.AddInt64(&h.active, 1)
	log.Printf("🔌 Event stream connected (%s)", security.GetClientIP(r))

	go h.writePump(cl)
	h.readPump(cl)
}

// readPump only watches for the peer going away.
func (h *Hub) readPump(cl *client) {
	defer h.remove(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()
	for data := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(cl)
			return
		}
	}
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
}

func (h *Hub) remove(cl *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	atomic.AddInt64(&h.active, -1)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}
