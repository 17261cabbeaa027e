package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/tidwall/gjson"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// ErrNotFound is returned when no match with the requested id was archived.
var ErrNotFound = errors.New("archive: match not found")

const (
	cacheTTL    = time.Hour
	cachePrefix = "match:"

	createTableSQL = `CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL,
	winner     BIGINT,
	record     JSONB NOT NULL
)`
	upsertSQL = `INSERT INTO matches (id, started_at, ended_at, winner, record)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET ended_at = $3, winner = $4, record = $5`
	selectSQL = `SELECT record FROM matches WHERE id = $1`
)

// Archiver persists finished matches.
type Archiver interface {
	SaveMatch(ctx context.Context, rec *MatchRecord) error
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Store keeps match records in PostgreSQL with a Redis read cache in front.
type Store struct {
	db          *sql.DB
	redisClient *redis.Client // nil when no cache is configured
}

// Open prepares the connections. Nothing is dialed until Start.
func Open(postgresURL string, redisCfg RedisConfig) (*Store, error) {
	utils.LogInfo("Initializing match archive...")
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed: %w", err)
	}
	s := &Store{db: db}
	if redisCfg.Addr != "" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
	}
	return s, nil
}

// Start checks both connections and creates the matches table.
func (s *Store) Start(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db.Ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create matches table: %w", err)
	}
	utils.LogInfo("PostgreSQL connection successful.")

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis.Ping failed: %w", err)
		}
		utils.LogInfo("Redis connection successful.")
	}
	return nil
}

// Stop closes database and cache connections.
func (s *Store) Stop() {
	if err := s.db.Close(); err != nil {
		utils.LogErrorf("Error closing PostgreSQL connection: %v", err)
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			utils.LogErrorf("Error closing Redis connection: %v", err)
		}
	}
	utils.LogInfo("Match archive stopped.")
}

// SaveMatch writes the record to the database and refreshes the cache.
func (s *Store) SaveMatch(ctx context.Context, rec *MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", rec.ID, err)
	}
	var winner sql.NullInt64
	if rec.Winner != nil {
		winner = sql.NullInt64{Int64: int64(*rec.Winner), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, upsertSQL, rec.ID, rec.StartedAt, rec.EndedAt, winner, data); err != nil {
		return fmt.Errorf("db save failed for match %s: %w", rec.ID, err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, cachePrefix+rec.ID, data, cacheTTL).Err(); err != nil {
			utils.LogWarnf("Error caching match %s in Redis: %v", rec.ID, err)
		}
	}
	utils.LogInfof("Archived match %s with %d events.", rec.ID, len(rec.Events))
	return nil
}

// GetMatch returns the archived JSON record using a cache-aside lookup.
func (s *Store) GetMatch(ctx context.Context, id string) ([]byte, error) {
	if s.redisClient != nil {
		val, err := s.redisClient.Get(ctx, cachePrefix+id).Bytes()
		switch {
		case err == nil:
			utils.LogDebugf("Cache hit for match %s", id)
			return val, nil
		case errors.Is(err, redis.Nil):
			utils.LogDebugf("Cache miss for match %s", id)
		default:
			utils.LogWarnf("Error fetching match %s from Redis: %v", id, err)
		}
	}

	var data []byte
	if err := s.db.QueryRowContext(ctx, selectSQL, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db scan failed for match %s: %w", id, err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, cachePrefix+id, data, cacheTTL).Err(); err != nil {
			utils.LogWarnf("Error caching match %s in Redis: %v", id, err)
		}
	}
	return data, nil
}

// PlayerRecord is a participant as it appeared in the match.
type PlayerRecord struct {
	ID      model.PlayerID `json:"id"`
	Name    string         `json:"name"`
	Faction string         `json:"faction"`
}

// MatchRecord is the archived form of a finished match.
type MatchRecord struct {
	ID        string                   `json:"id"`
	StartedAt time.Time                `json:"startedAt"`
	EndedAt   time.Time                `json:"endedAt"`
	Winner    *model.PlayerID          `json:"winner,omitempty"`
	Players   []PlayerRecord           `json:"players"`
	Events    []map[string]interface{} `json:"events"`
}

// NewMatchRecord summarizes a match history. Participants and the winner are
// recovered from the events themselves since players are gone by the time a
// match is archived.
func NewMatchRecord(id string, startedAt, endedAt time.Time, history []protocol.Event) *MatchRecord {
	rec := &MatchRecord{
		ID:        id,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Players:   []PlayerRecord{},
		Events:    make([]map[string]interface{}, 0, len(history)),
	}
	present := make(map[model.PlayerID]bool)
	for _, e := range history {
		rec.Events = append(rec.Events, protocol.Describe(e))
		switch ev := e.(type) {
		case protocol.PlayerJoined:
			faction := model.FactionVolcano
			if len(present) > 0 {
				faction = model.FactionDinosaur
			}
			present[ev.PlayerID] = true
			rec.Players = append(rec.Players, PlayerRecord{ID: ev.PlayerID, Name: ev.Name, Faction: faction.String()})
		case protocol.PlayerDisconnected:
			delete(present, ev.PlayerID)
		case protocol.EndGame:
			if won, ok := ev.Reason.(protocol.PlayerWon); ok {
				w := won.Winner
				rec.Winner = &w
			}
		}
	}
	return rec
}

// Summary is the headline of an archived match.
type Summary struct {
	ID         string   `json:"id"`
	Winner     string   `json:"winner,omitempty"`
	EventCount int      `json:"eventCount"`
	Players    []string `json:"players"`
}

// Summarize extracts the headline fields from an archived record without
// decoding the full event list.
func Summarize(raw []byte) (Summary, error) {
	if !gjson.ValidBytes(raw) {
		return Summary{}, errors.New("archive: record is not valid JSON")
	}
	res := gjson.GetManyBytes(raw, "id", "winner", "events.#", "players.#.name")
	s := Summary{
		ID:         res[0].String(),
		EventCount: int(res[2].Int()),
		Players:    []string{},
	}
	if res[1].Exists() {
		s.Winner = res[1].String()
	}
	for _, name := range res[3].Array() {
		s.Players = append(s.Players, name.String())
	}
	return s, nil
}
