package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/romano/lista/internal/domain"
	"github.com/romano/lista/internal/identity"
	"github.com/romano/lista/internal/platform/metrics"
	"github.com/romano/lista/internal/store"
)

type wsTestSnapshotFrame struct {
	Type  string        `json:"type"`
	Seq   uint64        `json:"seq"`
	Items []domain.Item `json:"items"`
	Users []domain.User `json:"users"`
}

type wsTestErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type testEnv struct {
	table    *identity.Table
	store    *store.Store
	registry *registry
	handler  http.Handler
	srv      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithHandshakeTimeout(t, 2*time.Second)
}

func newTestEnvWithHandshakeTimeout(t *testing.T, handshakeTimeout time.Duration) *testEnv {
	t.Helper()

	table, err := identity.Parse(identity.DefaultProvisioning)
	if err != nil {
		t.Fatalf("parse provisioning: %v", err)
	}

	m := metrics.New()
	reg := newRegistry(m)
	coordinator := newCoordinator(reg, m)
	st := store.New(table.Users(), store.WithBroadcaster(coordinator))
	handler := newHandler(table, st, reg, m, handshakeTimeout)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{
		table:    table,
		store:    st,
		registry: reg,
		handler:  handler,
		srv:      srv,
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeWSFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readSnapshotFrame(t *testing.T, conn *websocket.Conn) wsTestSnapshotFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestSnapshotFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	if got.Type != frameTypeItemsUpdated {
		t.Fatalf("frame type = %q, want %q", got.Type, frameTypeItemsUpdated)
	}
	return got
}

func authenticateWS(t *testing.T, conn *websocket.Conn, token string) wsTestSnapshotFrame {
	t.Helper()
	writeWSFrame(t, conn, map[string]any{"type": "auth", "token": token})
	return readSnapshotFrame(t, conn)
}

func TestWebSocketAuthDeliversInitialSnapshot(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env.srv)

	snap := authenticateWS(t, conn, "user1")

	if snap.Seq != 0 {
		t.Fatalf("initial snapshot seq = %d, want 0", snap.Seq)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("initial snapshot items = %d, want 0", len(snap.Items))
	}
	if len(snap.Users) != 3 {
		t.Fatalf("initial snapshot users = %d, want 3", len(snap.Users))
	}
	names := make(map[string]bool)
	for _, user := range snap.Users {
		names[user.Name] = true
	}
	for _, want := range []string{"Alice", "Bob", "Charlie"} {
		if !names[want] {
			t.Fatalf("snapshot users missing %q: %v", want, snap.Users)
		}
	}
}

func TestWebSocketUnknownTokenGetsUnauthorizedError(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env.srv)

	writeWSFrame(t, conn, map[string]any{"type": "auth", "token": "intruder"})

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestErrorFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	if got.Type != frameTypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, frameTypeError)
	}
	if got.Message != "Unauthorized" {
		t.Fatalf("error message = %q, want %q", got.Message, "Unauthorized")
	}

	// The server must close the connection without registering a
	// session: the next read reaches end of stream.
	var next json.RawMessage
	if err := json.NewDecoder(conn).Decode(&next); err == nil {
		t.Fatalf("read after rejection succeeded with %s, want closed connection", next)
	}
}

func TestWebSocketIgnoresFramesBeforeAuth(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env.srv)

	writeWSFrame(t, conn, map[string]any{"type": "ping"})
	writeWSFrame(t, conn, map[string]any{"type": "items_updated"})

	snap := authenticateWS(t, conn, "user2")
	if snap.Seq != 0 {
		t.Fatalf("snapshot seq = %d, want 0", snap.Seq)
	}
}

func TestWebSocketHandshakeTimeoutClosesConnection(t *testing.T) {
	env := newTestEnvWithHandshakeTimeout(t, 100*time.Millisecond)
	conn := dialWS(t, env.srv)

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got json.RawMessage
	if err := json.NewDecoder(conn).Decode(&got); err == nil {
		t.Fatalf("read succeeded with %s, want connection closed after handshake deadline", got)
	}
}

func TestWebSocketBroadcastReachesAllSessions(t *testing.T) {
	env := newTestEnv(t)

	connA := dialWS(t, env.srv)
	connB := dialWS(t, env.srv)
	authenticateWS(t, connA, "user1")
	authenticateWS(t, connB, "user2")

	alice, ok := env.table.Resolve("user1")
	if !ok {
		t.Fatalf("resolve user1")
	}
	item, err := env.store.Create("Milk", 2, alice)
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		snap := readSnapshotFrame(t, conn)
		if snap.Seq != 1 {
			t.Fatalf("broadcast seq = %d, want 1", snap.Seq)
		}
		if len(snap.Items) != 1 {
			t.Fatalf("broadcast items = %d, want 1", len(snap.Items))
		}
		got := snap.Items[0]
		if got.ID != item.ID || got.Name != "Milk" || got.Quantity != 2 || got.State != domain.StateMissing {
			t.Fatalf("broadcast item = %+v", got)
		}
		if got.CreatedBy != alice.ID {
			t.Fatalf("broadcast item createdBy = %q, want %q", got.CreatedBy, alice.ID)
		}
	}
}

func TestWebSocketSnapshotsArriveInMutationOrder(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env.srv)
	authenticateWS(t, conn, "user1")

	alice, _ := env.table.Resolve("user1")
	bob, _ := env.table.Resolve("user2")

	item, err := env.store.Create("Bread", 1, alice)
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if _, err := env.store.SetState(item.ID, domain.StateBuying, bob); err != nil {
		t.Fatalf("claim item: %v", err)
	}
	if _, err := env.store.SetState(item.ID, domain.StateDone, bob); err != nil {
		t.Fatalf("complete item: %v", err)
	}

	for wantSeq := uint64(1); wantSeq <= 3; wantSeq++ {
		snap := readSnapshotFrame(t, conn)
		if snap.Seq != wantSeq {
			t.Fatalf("snapshot seq = %d, want %d", snap.Seq, wantSeq)
		}
	}
}

func TestWebSocketLateJoinerSeesCurrentState(t *testing.T) {
	env := newTestEnv(t)

	alice, _ := env.table.Resolve("user1")
	if _, err := env.store.Create("Eggs", 12, alice); err != nil {
		t.Fatalf("create item: %v", err)
	}

	conn := dialWS(t, env.srv)
	snap := authenticateWS(t, conn, "user3")

	if snap.Seq != 1 {
		t.Fatalf("late joiner snapshot seq = %d, want 1", snap.Seq)
	}
	if len(snap.Items) != 1 || snap.Items[0].Name != "Eggs" {
		t.Fatalf("late joiner snapshot items = %+v", snap.Items)
	}
}

func TestRegistryRegisterAndUnregisterAreIdempotent(t *testing.T) {
	reg := newRegistry(metrics.New())
	sess := newSession(domain.User{ID: "user1", Name: "Alice"}, nil)

	reg.register(sess)
	reg.register(sess)
	if got := len(reg.snapshot()); got != 1 {
		t.Fatalf("registered sessions = %d, want 1", got)
	}

	if !reg.unregister(sess) {
		t.Fatalf("first unregister = false, want true")
	}
	if reg.unregister(sess) {
		t.Fatalf("second unregister = true, want false")
	}
	if got := len(reg.snapshot()); got != 0 {
		t.Fatalf("registered sessions after unregister = %d, want 0", got)
	}
}

func TestWebSocketDisconnectUnregistersSession(t *testing.T) {
	env := newTestEnv(t)

	connA := dialWS(t, env.srv)
	connB := dialWS(t, env.srv)
	authenticateWS(t, connA, "user1")
	authenticateWS(t, connB, "user2")

	_ = connB.Close()

	// The surviving session keeps receiving broadcasts after its peer
	// disconnects.
	alice, _ := env.table.Resolve("user1")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(env.registry.snapshot()) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnected session was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := env.store.Create("Butter", 1, alice); err != nil {
		t.Fatalf("create item: %v", err)
	}
	snap := readSnapshotFrame(t, connA)
	if snap.Seq != 1 || len(snap.Items) != 1 {
		t.Fatalf("surviving session snapshot = %+v", snap)
	}
}
