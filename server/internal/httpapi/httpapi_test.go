package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/actor/messages"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

type fakeMatch struct {
	state *game.GameState
	down  bool
}

func (m *fakeMatch) Snapshot() (*messages.SnapshotResponse, error) {
	if m.down {
		return nil, errors.New("future: timeout")
	}
	return &messages.SnapshotResponse{MatchID: "m-1", State: m.state.Clone()}, nil
}

func (m *fakeMatch) History() (*messages.HistoryResponse, error) {
	return &messages.HistoryResponse{MatchID: "m-1", Events: m.state.History}, nil
}

func (m *fakeMatch) Ping() error {
	if m.down {
		return errors.New("future: timeout")
	}
	return nil
}

type fakeStore map[string][]byte

func (s fakeStore) GetMatch(_ context.Context, id string) ([]byte, error) {
	if raw, ok := s[id]; ok {
		return raw, nil
	}
	return nil, archive.ErrNotFound
}

func newTestRouter(t *testing.T, store MatchStore) (http.Handler, *fakeMatch) {
	t.Helper()
	tables := &model.Tables{
		Units:   []model.UnitDescriptor{{Name: "raptor", FactionLabel: "Dinosaur"}},
		Terrain: []model.TerrainDescriptor{{Name: "grass"}},
	}
	if err := tables.ResolveFactions(); err != nil {
		t.Fatal(err)
	}
	s := game.NewGameState(tables, nil)
	for _, e := range []protocol.Event{
		protocol.PlayerJoined{PlayerID: 1, Name: "Alice"},
		protocol.PlayerJoined{PlayerID: 2, Name: "Bob"},
		protocol.BeginGame{GoesFirst: 2},
	} {
		game.Consume(s, tables, e)
	}
	s.Board[3].Unit = &model.Unit{Position: model.PositionOf(3), Kind: 0, Health: 9}

	match := &fakeMatch{state: s}
	m := metrics.New()
	m.EventsAccepted.WithLabelValues("EndTurn").Inc()
	return NewRouter(Options{Match: match, Tables: tables, Store: store, Metrics: m.Handler()}), match
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h, match := newTestRouter(t, nil)
	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}
	match.down = true
	if rec := get(t, h, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health with a stuck actor = %d", rec.Code)
	}
}

func TestState(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := get(t, h, "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /state = %d: %s", rec.Code, rec.Body)
	}

	var view struct {
		MatchID      string `json:"matchId"`
		Stage        string `json:"stage"`
		ActivePlayer uint64 `json:"activePlayer"`
		Players      []struct {
			ID      uint64 `json:"id"`
			Name    string `json:"name"`
			Faction string `json:"faction"`
		} `json:"players"`
		Tiles []struct {
			Index int `json:"index"`
			Unit  *struct {
				Health uint32 `json:"health"`
			} `json:"unit"`
		} `json:"tiles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.MatchID != "m-1" || view.Stage != "InGame" || view.ActivePlayer != 2 {
		t.Errorf("view = %+v", view)
	}
	if len(view.Players) != 2 || view.Players[1].Name != "Bob" || view.Players[1].Faction != "Dinosaur" {
		t.Errorf("players = %+v", view.Players)
	}
	if len(view.Tiles) != model.BoardSize || view.Tiles[3].Unit == nil || view.Tiles[3].Unit.Health != 9 {
		t.Errorf("tile 3 = %+v", view.Tiles[3])
	}
}

func TestHistoryAndDescriptors(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/history")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"type": "BeginGame"`) {
		t.Errorf("GET /history = %d: %s", rec.Code, rec.Body)
	}

	rec = get(t, h, "/descriptors")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"faction": "Dinosaur"`) {
		t.Errorf("GET /descriptors = %d: %s", rec.Code, rec.Body)
	}
}

func TestArchivedMatches(t *testing.T) {
	raw := []byte(`{"id":"old","winner":2,"players":[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}],"events":[{},{},{}]}`)

	t.Run("Disabled", func(t *testing.T) {
		h, _ := newTestRouter(t, nil)
		if rec := get(t, h, "/matches/old"); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET /matches/old = %d", rec.Code)
		}
	})

	h, _ := newTestRouter(t, fakeStore{"old": raw})
	tests := []struct {
		path string
		code int
		body string
	}{
		{"/matches/old", http.StatusOK, `"winner":2`},
		{"/matches/old/summary", http.StatusOK, `"eventCount": 3`},
		{"/matches/missing", http.StatusNotFound, "not found"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := get(t, h, tc.path)
			if rec.Code != tc.code || !strings.Contains(rec.Body.String(), tc.body) {
				t.Errorf("GET %s = %d: %s", tc.path, rec.Code, rec.Body)
			}
		})
	}
}

func TestMetricsAndMethods(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `dinojam_events_accepted_total{event="EndTurn"} 1`) {
		t.Errorf("GET /metrics = %d", rec.Code)
	}

	post := httptest.NewRecorder()
	h.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/state", nil))
	if post.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /state = %d", post.Code)
	}
}
