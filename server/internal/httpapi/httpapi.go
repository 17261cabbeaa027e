// Package httpapi serves the admin and spectator HTTP endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/actor/messages"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

const lookupTimeout = 5 * time.Second

// Match is the read side of the running match, served by the match actor.
type Match interface {
	Snapshot() (*messages.SnapshotResponse, error)
	History() (*messages.HistoryResponse, error)
	Ping() error
}

// MatchStore looks up archived matches by id.
type MatchStore interface {
	GetMatch(ctx context.Context, id string) ([]byte, error)
}

// Options wires the router. Store, Metrics and WebSocket are optional.
type Options struct {
	Match     Match
	Tables    *model.Tables
	Store     MatchStore
	Metrics   http.Handler
	WebSocket http.Handler
}

type api struct {
	match  Match
	tables *model.Tables
	store  MatchStore
}

// NewRouter builds the route table.
func NewRouter(opts Options) *mux.Router {
	a := &api{match: opts.Match, tables: opts.Tables, store: opts.Store}

	r := mux.NewRouter()
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/state", a.state).Methods(http.MethodGet)
	r.HandleFunc("/history", a.history).Methods(http.MethodGet)
	r.HandleFunc("/descriptors", a.descriptors).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}", a.archivedMatch).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}/summary", a.archivedSummary).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}
	r.Use(logRequests)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		utils.LogDebugf("[HTTP] %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.match.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

type playerView struct {
	ID model.PlayerID `json:"id"`
	model.Player
}

type tileView struct {
	Index int `json:"index"`
	model.BoardTile
}

type stateView struct {
	MatchID      string         `json:"matchId"`
	Stage        model.Stage    `json:"stage"`
	ActivePlayer model.PlayerID `json:"activePlayer"`
	TurnIncome   uint32         `json:"turnIncome"`
	Players      []playerView   `json:"players"`
	Tiles        []tileView     `json:"tiles"`
	Events       int            `json:"events"`
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	snap, err := a.match.Snapshot()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s := snap.State
	view := stateView{
		MatchID:      snap.MatchID,
		Stage:        s.Stage,
		ActivePlayer: s.ActivePlayer,
		TurnIncome:   s.TurnIncome,
		Players:      []playerView{},
		Tiles:        make([]tileView, 0, len(s.Board)),
		Events:       len(s.History),
	}
	for _, id := range s.PlayerIDs() {
		view.Players = append(view.Players, playerView{ID: id, Player: *s.Players[id]})
	}
	for i, tile := range s.Board {
		view.Tiles = append(view.Tiles, tileView{Index: i, BoardTile: tile})
	}
	writeJSON(w, view)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	hist, err := a.match.History()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	events := make([]map[string]interface{}, 0, len(hist.Events))
	for _, e := range hist.Events {
		events = append(events, protocol.Describe(e))
	}
	writeJSON(w, map[string]interface{}{"matchId": hist.MatchID, "events": events})
}

func (a *api) descriptors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"units":     a.tables.Units,
		"terrain":   a.tables.Terrain,
		"buildings": a.tables.Buildings,
	})
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "match archive is disabled")
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	raw, err := a.store.GetMatch(ctx, mux.Vars(r)["id"])
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	case err != nil:
		utils.LogErrorf("[HTTP] Archive lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return nil, false
	}
	return raw, true
}

func (a *api) archivedMatch(w http.ResponseWriter, r *http.Request) {
	raw, ok := a.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (a *api) archivedSummary(w http.ResponseWriter, r *http.Request) {
	raw, ok := a.lookup(w, r)
	if !ok {
		return
	}
	summary, err := archive.Summarize(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}
