package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const recordSeparator = 0x1e

// Invocation is a client-to-server hub call captured by Hub.
type Invocation struct {
	Target    string
	Arguments []json.RawMessage
}

// StringArg decodes argument i as a string.
func (inv Invocation) StringArg(i int) string {
	if i >= len(inv.Arguments) {
		return ""
	}
	var s string
	_ = json.Unmarshal(inv.Arguments[i], &s)
	return s
}

// Hub is a minimal SignalR JSON hub: negotiate, handshake, invocations in
// both directions, pings and close messages.
type Hub struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conns       map[*hubPeer]struct{}
	tokens      []string
	negotiated  int
	refuse      bool
	connected   chan struct{}
	invocations chan Invocation
	silent      bool
}

type hubPeer struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *hubPeer) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, append(data, recordSeparator))
}

func newHub(t *testing.T) *Hub {
	return &Hub{
		t:           t,
		conns:       make(map[*hubPeer]struct{}),
		connected:   make(chan struct{}, 16),
		invocations: make(chan Invocation, 64),
	}
}

// Refuse makes the hub answer 401 to negotiate and connect requests.
func (h *Hub) Refuse(refuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse = refuse
}

// Silence stops the hub from answering the client's pings, so only the
// client's server timeout can notice a dead peer.
func (h *Hub) Silence(silent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.silent = silent
}

// Tokens returns every access token presented on connect, in order.
func (h *Hub) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

// Negotiations returns how many negotiate requests were served.
func (h *Hub) Negotiations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.negotiated
}

// ConnectionCount returns the number of live hub connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// WaitConnected blocks until a client has completed the handshake.
func (h *Hub) WaitConnected(timeout time.Duration) bool {
	select {
	case <-h.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

// NextInvocation waits for the next client invocation.
func (h *Hub) NextInvocation(timeout time.Duration) (Invocation, bool) {
	select {
	case inv := <-h.invocations:
		return inv, true
	case <-time.After(timeout):
		return Invocation{}, false
	}
}

// Send invokes target on every connected client.
func (h *Hub) Send(target string, args ...any) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			h.t.Errorf("hub: encoding %s argument: %v", target, err)
			return
		}
		raw = append(raw, b)
	}
	h.broadcast(map[string]any{"type": 1, "target": target, "arguments": raw})
}

// SendRaw writes data verbatim as one frame to every client.
func (h *Hub) SendRaw(data []byte) {
	for _, p := range h.peers() {
		p.writeMu.Lock()
		_ = p.ws.WriteMessage(websocket.TextMessage, data)
		p.writeMu.Unlock()
	}
}

// Close sends a Close message to every client.
func (h *Hub) Close(allowReconnect bool) {
	h.broadcast(map[string]any{"type": 7, "error": "server shutting down", "allowReconnect": allowReconnect})
}

// Drop severs every connection without a close handshake.
func (h *Hub) Drop() {
	for _, p := range h.peers() {
		_ = p.ws.UnderlyingConn().Close()
	}
}

func (h *Hub) peers() []*hubPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hubPeer, 0, len(h.conns))
	for p := range h.conns {
		out = append(out, p)
	}
	return out
}

func (h *Hub) broadcast(msg any) {
	for _, p := range h.peers() {
		if err := p.write(msg); err != nil {
			h.t.Logf("hub: write failed: %v", err)
		}
	}
}

func (h *Hub) authorized(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.refuse && token != ""
}

func (h *Hub) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if !h.authorized(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	h.mu.Lock()
	h.negotiated++
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"negotiateVersion": 1,
		"connectionId":     uuid.NewString(),
		"connectionToken":  uuid.NewString(),
		"availableTransports": []map[string]any{
			{"transport": "WebSockets", "transferFormats": []string{"Text", "Binary"}},
		},
	})
}

func (h *Hub) handleConnect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if !h.authorized(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.t.Logf("hub: upgrade failed: %v", err)
		return
	}
	peer := &hubPeer{ws: ws}

	if !h.readHandshake(peer) {
		_ = ws.Close()
		return
	}

	h.mu.Lock()
	h.conns[peer] = struct{}{}
	h.tokens = append(h.tokens, token)
	h.mu.Unlock()
	select {
	case h.connected <- struct{}{}:
	default:
	}

	defer func() {
		h.mu.Lock()
		delete(h.conns, peer)
		h.mu.Unlock()
		_ = ws.Close()
	}()
	h.readLoop(peer)
}

func (h *Hub) readHandshake(p *hubPeer) bool {
	_ = p.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := p.ws.ReadMessage()
	if err != nil {
		return false
	}
	_ = p.ws.SetReadDeadline(time.Time{})
	rec, _, _ := bytes.Cut(data, []byte{recordSeparator})
	var hs struct {
		Protocol string `json:"protocol"`
		Version  int    `json:"version"`
	}
	if json.Unmarshal(rec, &hs) != nil || hs.Protocol != "json" {
		_ = p.write(map[string]string{"error": "unsupported protocol"})
		return false
	}
	return p.write(struct{}{}) == nil
}

func (h *Hub) readLoop(p *hubPeer) {
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
			if len(rec) == 0 {
				continue
			}
			var msg struct {
				Type      int               `json:"type"`
				Target    string            `json:"target"`
				Arguments []json.RawMessage `json:"arguments"`
			}
			if json.Unmarshal(rec, &msg) != nil {
				continue
			}
			switch msg.Type {
			case 1:
				select {
				case h.invocations <- Invocation{Target: msg.Target, Arguments: msg.Arguments}:
				default:
				}
			case 6:
				h.mu.Lock()
				silent := h.silent
				h.mu.Unlock()
				if !silent {
					_ = p.write(map[string]int{"type": 6})
				}
			}
		}
	}
}
