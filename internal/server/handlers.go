package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/romano/lista/internal/domain"
	"github.com/romano/lista/internal/errors"
	"github.com/romano/lista/internal/identity"
	"github.com/romano/lista/internal/platform/metrics"
	"github.com/romano/lista/internal/store"
)

type loginRequest struct {
	Token string `json:"token"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

type itemsResponse struct {
	Items []domain.Item `json:"items"`
	Users []domain.User `json:"users"`
}

type addItemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// BuyingUser is accepted for compatibility with older clients but
// ignored; the buying user is always derived from the caller.
type updateItemRequest struct {
	State      domain.ItemState `json:"state"`
	BuyingUser string           `json:"buyingUser,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type handlers struct {
	table   *identity.Table
	store   *store.Store
	metrics *metrics.Metrics
}

func newHandler(table *identity.Table, st *store.Store, registry *registry, m *metrics.Metrics, handshakeTimeout time.Duration) http.Handler {
	h := &handlers{table: table, store: st, metrics: m}
	ws := &wsHandler{
		table:            table,
		store:            st,
		registry:         registry,
		handshakeTimeout: handshakeTimeout,
	}
	wsServer := websocket.Handler(ws.handle)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("GET /items", h.handleListItems)
	mux.HandleFunc("POST /items", h.handleCreateItem)
	mux.HandleFunc("PUT /items/{itemId}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /items/{itemId}", h.handleDeleteItem)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		wsServer.ServeHTTP(w, r)
	})
	mux.HandleFunc("GET /up", handleUp)
	mux.Handle("GET /metrics", m.Handler())
	return mux
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "Invalid request"})
		return
	}

	user, ok := h.table.Resolve(req.Token)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Message: "Invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: &user})
}

func (h *handlers) handleListItems(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	snap := h.store.List()
	writeJSON(w, http.StatusOK, itemsResponse{Items: snap.Items, Users: snap.Users})
}

func (h *handlers) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeValidation, "invalid request body"))
		return
	}

	item, err := h.store.Create(req.Name, req.Quantity, user)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordMutation("create")
	writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeValidation, "invalid request body"))
		return
	}

	item, err := h.store.SetState(r.PathValue("itemId"), req.State, user)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordMutation("update")
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.PathValue("itemId"), user); err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordMutation("delete")
	w.WriteHeader(http.StatusNoContent)
}

func handleUp(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// authenticate resolves the bearer token on r. On failure it writes the
// 401 response and reports false.
func (h *handlers) authenticate(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, errors.New(errors.CodeUnauthenticated, "missing bearer token"))
		return domain.User{}, false
	}
	user, ok := h.table.Resolve(token)
	if !ok {
		writeError(w, errors.New(errors.CodeUnauthenticated, "invalid token"))
		return domain.User{}, false
	}
	return user, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("lista: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{
		Error:   string(code),
		Message: err.Error(),
	})
}
