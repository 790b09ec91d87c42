// Package peer serves a document store to other replicas over the HTTP
// peer protocol. Any store satisfying the document store port can be
// served; the handlers never interpret document bodies beyond the
// replication metadata.
package peer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/remote/httpsync"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

const defaultPollEvery = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server exposes a document store at /db/changes, /db/bulk_docs and /db/ws.
type Server struct {
	store     driven.DocumentStore
	router    *mux.Router
	pollEvery time.Duration
}

// NewServer creates a peer server around store.
func NewServer(store driven.DocumentStore) *Server {
	s := &Server{
		store:     store,
		router:    mux.NewRouter(),
		pollEvery: defaultPollEvery,
	}

	db := s.router.PathPrefix("/db").Subrouter()
	db.HandleFunc("/changes", s.handleChanges).Methods(http.MethodGet)
	db.HandleFunc("/bulk_docs", s.handleBulkDocs).Methods(http.MethodPost)
	db.HandleFunc("/ws", s.handleFeed).Methods(http.MethodGet)

	return s
}

// SetPollInterval overrides how often the live feed re-reads the store.
func (s *Server) SetPollInterval(d time.Duration) {
	s.pollEvery = d
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	changes, last, err := s.store.Changes(r.Context(), since)
	if err != nil {
		logger.Error("peer: reading changes: %v", err)
		http.Error(w, "reading changes", http.StatusInternalServerError)
		return
	}

	resp := httpsync.ChangesResponse{
		Results: make([]httpsync.ChangeRow, 0, len(changes)),
		LastSeq: last,
	}
	for _, ch := range changes {
		resp.Results = append(resp.Results, httpsync.ChangeRow{Seq: ch.Seq, Doc: ch.Doc})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request) {
	var req httpsync.BulkDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decoding request body", http.StatusBadRequest)
		return
	}

	if err := s.store.ApplyReplicated(r.Context(), req.Docs); err != nil {
		logger.Error("peer: applying %d documents: %v", len(req.Docs), err)
		http.Error(w, "applying documents", http.StatusInternalServerError)
		return
	}

	logger.Debug("peer: applied %d inbound documents", len(req.Docs))
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

// handleFeed upgrades to a WebSocket and streams change rows as they appear,
// polling the store. The connection stays open until the client goes away.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("peer: upgrading feed connection: %v", err)
		return
	}
	defer conn.Close()

	// Reads only surface client disconnects; inbound messages are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	cursor := since
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		changes, last, err := s.store.Changes(ctx, cursor)
		if err != nil {
			logger.Error("peer: reading feed changes: %v", err)
			return
		}
		for _, ch := range changes {
			row := httpsync.ChangeRow{Seq: ch.Seq, Doc: ch.Doc}
			if err := conn.WriteJSON(row); err != nil {
				return
			}
		}
		cursor = last

		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
		}
	}
}

func parseSince(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return since, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("peer: encoding response: %v", err)
	}
}
