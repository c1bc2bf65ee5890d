package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/playbingo/backend/internal/game"
	"github.com/playbingo/backend/internal/logger"
	"github.com/playbingo/backend/internal/store"
)

// Recorder archives finished games in Postgres. It is an observer only: the
// game protocol never reads the archive, so a recorder failure degrades
// reporting, not play.
type Recorder struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// Open connects to Postgres and returns a Recorder.
func Open(databaseURL string) (*Recorder, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// A recorder writes one small row per game; keep the pool modest.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Recorder{db: db, log: logger.Log}, nil
}

// Close releases the database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Watch subscribes to the session document and inserts one row every time
// the game reaches a terminal state (a winning claim or an exhausted pool).
// A reset arms the watcher for the next game.
func (r *Recorder) Watch(ctx context.Context, st store.Store, appID string) (store.Unsubscribe, error) {
	recorded := false
	var lastVersion int64 = -1

	return st.SubscribeDocument(ctx, store.SessionPath(appID),
		func(raw json.RawMessage, exists bool) {
			if !exists {
				return
			}
			var session game.Session
			if err := json.Unmarshal(raw, &session); err != nil {
				r.log.Errorf("[history] malformed session document: %v", err)
				return
			}
			if session.Version == lastVersion {
				return // duplicate delivery
			}
			lastVersion = session.Version

			switch session.Status {
			case game.StatusBingoCalled, game.StatusGameOver:
				if recorded {
					return
				}
				if err := r.record(ctx, appID, &session); err != nil {
					r.log.Errorf("[history] failed to archive game: %v", err)
					return
				}
				recorded = true
			default:
				recorded = false
			}
		},
		func(err error) {
			r.log.Errorf("[history] session subscription failed: %v", err)
		},
	)
}

func (r *Recorder) record(ctx context.Context, appID string, session *game.Session) error {
	last, _ := session.LastNumber()
	var winner interface{}
	if session.Winner != "" {
		winner = session.Winner
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_results (app_id, outcome, winner_id, numbers_called, last_number)
		VALUES ($1, $2, $3, $4, $5)`,
		appID, string(session.Status), winner, len(session.CalledNumbers), last)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}

	r.log.Infof("[history] archived %s game for app %s (%d numbers called)",
		session.Status, appID, len(session.CalledNumbers))
	return nil
}

// Recent returns the most recent archived games, newest first.
func (r *Recorder) Recent(ctx context.Context, appID string, limit int) ([]Result, error) {
	var results []Result
	err := r.db.SelectContext(ctx, &results, `
		SELECT id, app_id, outcome, winner_id, numbers_called, last_number, recorded_at
		FROM game_results
		WHERE app_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("select game results: %w", err)
	}
	return results, nil
}

// Result is one archived game.
type Result struct {
	ID            int64     `db:"id" json:"id"`
	AppID         string    `db:"app_id" json:"appId"`
	Outcome       string    `db:"outcome" json:"outcome"`
	WinnerID      *string   `db:"winner_id" json:"winnerId,omitempty"`
	NumbersCalled int       `db:"numbers_called" json:"numbersCalled"`
	LastNumber    int       `db:"last_number" json:"lastNumber"`
	RecordedAt    time.Time `db:"recorded_at" json:"recordedAt"`
}
