// Package tunesvc broadcasts tuning-winner updates over a websocket so a
// fleet of worker processes sharing one profile database can converge on
// the same override map without re-running spec §4.4 step 3's tuning
// pass independently on every process. Grounded on the teacher's
// WebSocketBroadcast client bookkeeping (one mutex-guarded client set,
// close-on-write-error), generalized from arbitrary text frames to typed
// tuning-update events encoded as JSON.
package tunesvc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"isaac/internal/ierrors"
	"isaac/internal/scheduler"
)

// Update is one tuning result broadcast to every connected client: the
// (device, kind, dtype, size) the winner applies to, and the candidate
// index that won.
type Update struct {
	DeviceKey string        `json:"device_key"`
	Kind      string        `json:"kind"`
	Dtype     string        `json:"dtype"`
	Sizes     []int64       `json:"sizes"`
	Candidate int           `json:"candidate"`
}

// Server fans Update events out to every connected websocket client.
// Clients that fail a write are dropped; a slow client never blocks the
// others (each gets its own goroutine-free, mutex-serialized write).
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// New returns an empty Server. Handler is its http.Handler.
func New() *Server {
	return &Server{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[string]*client),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting connection as a broadcast recipient until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.nextID++
	id := strconv.Itoa(s.nextID)
	c := &client{conn: conn}
	s.clients[id] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close()
	}()

	// Drain and discard inbound frames; this connection is broadcast-only,
	// but the read loop still has to run to notice the peer closing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends u to every currently connected client, dropping any
// that error on write.
func (s *Server) Broadcast(u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return ierrors.Wrap(ierrors.RuntimeError, err, "tunesvc: encoding update")
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	ids := make([]string, 0, len(s.clients))
	for id, c := range s.clients {
		clients = append(clients, c)
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var lastErr error
	for i, c := range clients {
		c.mu.Lock()
		if !c.closed {
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.closed = true
				lastErr = err
				s.mu.Lock()
				delete(s.clients, ids[i])
				s.mu.Unlock()
			}
		}
		c.mu.Unlock()
	}
	return lastErr
}

// ClientCount reports how many clients are currently connected.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// NewUpdate builds an Update from a winning candidate. The dispatcher
// does not call it; a caller that has a tuning winner builds the Update
// and passes it to Broadcast itself.
func NewUpdate(deviceKey string, kind scheduler.Kind, dtype string, sizes []int64, candidate int) Update {
	return Update{DeviceKey: deviceKey, Kind: kind.String(), Dtype: dtype, Sizes: sizes, Candidate: candidate}
}
