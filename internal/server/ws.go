package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/romano/lista/internal/domain"
	"github.com/romano/lista/internal/identity"
	"github.com/romano/lista/internal/platform/metrics"
	"github.com/romano/lista/internal/store"
)

// Frame type tags for the websocket push protocol. item_added,
// item_updated, item_deleted and users_updated are reserved in the
// protocol; the current broadcast policy always pushes the full
// snapshot, so only items_updated and error are emitted.
const (
	frameTypeAuth         = "auth"
	frameTypeItemsUpdated = "items_updated"
	frameTypeItemAdded    = "item_added"
	frameTypeItemUpdated  = "item_updated"
	frameTypeItemDeleted  = "item_deleted"
	frameTypeUsersUpdated = "users_updated"
	frameTypeError        = "error"
)

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type itemsUpdatedFrame struct {
	Type  string        `json:"type"`
	Seq   uint64        `json:"seq"`
	Items []domain.Item `json:"items"`
	Users []domain.User `json:"users"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func marshalSnapshotFrame(snap store.Snapshot) ([]byte, error) {
	return json.Marshal(itemsUpdatedFrame{
		Type:  frameTypeItemsUpdated,
		Seq:   snap.Seq,
		Items: snap.Items,
		Users: snap.Users,
	})
}

// session is one authenticated websocket connection. The mutex
// serializes writes so broadcast fan-out and the initial snapshot never
// interleave bytes on the wire.
type session struct {
	user domain.User
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSession(user domain.User, conn *websocket.Conn) *session {
	return &session{user: user, conn: conn}
}

func (s *session) write(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(raw)
	return err
}

// registry tracks live authenticated sessions. Registration and
// unregistration are idempotent and may run concurrently with fan-out.
type registry struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
	metrics  *metrics.Metrics
}

func newRegistry(m *metrics.Metrics) *registry {
	return &registry{
		sessions: make(map[*session]struct{}),
		metrics:  m,
	}
}

func (r *registry) register(sess *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess]; ok {
		return
	}
	r.sessions[sess] = struct{}{}
	r.metrics.SessionOpened()
}

// unregister removes sess and reports whether it was still registered.
func (r *registry) unregister(sess *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess]; !ok {
		return false
	}
	delete(r.sessions, sess)
	r.metrics.SessionClosed()
	return true
}

// snapshot returns a stable copy for iteration, so registry mutations
// during fan-out are never observed mid-iteration.
func (r *registry) snapshot() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*session, 0, len(r.sessions))
	for sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// coordinator serializes each store snapshot once and delivers the same
// byte payload to every registered session. Delivery is best-effort and
// independent per session: a failed write drops that session only.
type coordinator struct {
	registry *registry
	metrics  *metrics.Metrics
}

func newCoordinator(r *registry, m *metrics.Metrics) *coordinator {
	return &coordinator{registry: r, metrics: m}
}

// Broadcast implements store.Broadcaster. The store calls it
// synchronously under its lock, so broadcast cycles never interleave
// and every session observes snapshots in mutation order.
func (c *coordinator) Broadcast(snap store.Snapshot) {
	raw, err := marshalSnapshotFrame(snap)
	if err != nil {
		log.Printf("lista: marshal snapshot seq=%d: %v", snap.Seq, err)
		return
	}

	c.metrics.RecordBroadcast()
	for _, sess := range c.registry.snapshot() {
		if err := sess.write(raw); err != nil {
			log.Printf("lista: dropping session user=%q: broadcast write failed: %v", sess.user.ID, err)
			c.metrics.RecordBroadcastFailure()
			if c.registry.unregister(sess) {
				_ = sess.conn.Close()
			}
		}
	}
}

// wsHandler performs the per-connection handshake and lifecycle.
type wsHandler struct {
	table            *identity.Table
	store            *store.Store
	registry         *registry
	handshakeTimeout time.Duration
}

// handle runs on a dedicated goroutine per connection. The connection
// moves through three states: connected (awaiting the auth frame),
// authenticated (registered, receiving broadcasts), and closed.
func (h *wsHandler) handle(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)

	sess, ok := h.handshake(conn, decoder)
	if !ok {
		return
	}
	defer h.registry.unregister(sess)

	// Send the current snapshot so the client starts consistent.
	raw, err := marshalSnapshotFrame(h.store.List())
	if err != nil {
		log.Printf("lista: marshal initial snapshot for user=%q: %v", sess.user.ID, err)
		return
	}
	if err := sess.write(raw); err != nil {
		log.Printf("lista: initial snapshot write failed for user=%q: %v", sess.user.ID, err)
		return
	}

	// Application frames from the client carry no effect today; read
	// and discard until the transport closes or errors.
	for {
		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			return
		}
	}
}

// handshake waits for the first auth frame within the handshake
// deadline. Frames of any other type before authentication are ignored.
// An unknown token produces an error frame and ends the connection
// without registering a session.
func (h *wsHandler) handshake(conn *websocket.Conn, decoder *json.Decoder) (*session, bool) {
	if h.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
	}

	for {
		var frame authFrame
		if err := decoder.Decode(&frame); err != nil {
			return nil, false
		}
		if frame.Type != frameTypeAuth {
			continue
		}

		user, ok := h.table.Resolve(frame.Token)
		if !ok {
			log.Printf("lista: websocket handshake rejected: unknown token from %s", conn.Request().RemoteAddr)
			writeErrorFrame(conn, "Unauthorized")
			return nil, false
		}

		_ = conn.SetReadDeadline(time.Time{})
		sess := newSession(user, conn)
		h.registry.register(sess)
		return sess, true
	}
}

func writeErrorFrame(conn *websocket.Conn, message string) {
	raw, err := json.Marshal(errorFrame{Type: frameTypeError, Message: message})
	if err != nil {
		log.Printf("lista: marshal error frame: %v", err)
		return
	}
	_, _ = conn.Write(raw)
}
