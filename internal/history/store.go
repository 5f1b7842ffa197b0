// Package history keeps past searches and the connections they found in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ressuche.dev/internal/appconf"
	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema.sql
var ddl string

var (
	// ErrNotFound is returned for unknown search ids.
	ErrNotFound = errors.New("search not found")
	// ErrFileDatabaseInTest guards against tests writing to disk.
	ErrFileDatabaseInTest = errors.New("file database used in test environment")
)

// Fixed width, so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Config struct {
	DBPath string
	Env    appconf.Environment
}

// SearchRecord is one past search.
type SearchRecord struct {
	ID          string                  `json:"id"`
	Params      models.SearchParameters `json:"params"`
	StartedAt   time.Time               `json:"startedAt"`
	FinishedAt  *time.Time              `json:"finishedAt,omitempty"`
	State       string                  `json:"state"`
	FinalStatus string                  `json:"finalStatus,omitempty"`
	Connections int                     `json:"connections"`
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and migrates) the database at config.DBPath.
func Open(config Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("%w: %s", ErrFileDatabaseInTest, config.DBPath)
	}

	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error opening history database: %w", err)
	}
	// SQLite serializes writers, and every :memory: connection would be a
	// separate database.
	db.SetMaxOpenConns(1)

	if err := performDatabaseMigration(context.Background(), db); err != nil {
		logging.SafeCloseWithLogging(db, logger, "close_history_db_after_failed_migration")
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return &Store{db: db, logger: logger.With(slog.String("component", "history"))}, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmed); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmed, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSearch records the start of a search.
func (s *Store) SaveSearch(ctx context.Context, id string, params models.SearchParameters, started time.Time) error {
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("error encoding search parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO searches (
			id, start_station, final_station, travel_date, earliest_dep_time,
			latest_dep_time, reservation_category, params_json, started_at, state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'running')`,
		id, params.StartStation, params.FinalStation, params.TravelDateString(),
		params.EarliestDepTime, params.LatestDepTime, string(params.ReservationCategory),
		string(encoded), started.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("error inserting search: %w", err)
	}
	return nil
}

// AppendConnection stores the seq-th connection found by a search.
func (s *Store) AppendConnection(ctx context.Context, id string, seq int, conn models.Connection) error {
	encoded, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("error encoding connection: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO connections (
			search_id, seq, start_time, end_time, duration, bookable, connection_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, seq, conn.StartTime, conn.EndTime, conn.Duration, conn.Bookable, string(encoded))
	if err != nil {
		return fmt.Errorf("error inserting connection: %w", err)
	}
	return nil
}

// FinishSearch records how a search ended.
func (s *Store) FinishSearch(ctx context.Context, id, state, status string, finished time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE searches SET state = ?, final_status = ?, finished_at = ? WHERE id = ?`,
		state, status, finished.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("error finishing search: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSearches returns the most recent searches first.
func (s *Store) ListSearches(ctx context.Context, limit int) (records []SearchRecord, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.params_json, s.started_at, s.finished_at, s.state, s.final_status,
			(SELECT COUNT(*) FROM connections c WHERE c.search_id = s.id)
		FROM searches s
		ORDER BY s.started_at DESC, s.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing searches: %w", err)
	}
	defer logging.HandleDeferredError(&err, rows.Close, s.logger, "close_search_rows")

	for rows.Next() {
		record, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error listing searches: %w", err)
	}
	return records, nil
}

// LoadSearch returns a search with its connections in discovery order.
func (s *Store) LoadSearch(ctx context.Context, id string) (record SearchRecord, conns []models.Connection, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.params_json, s.started_at, s.finished_at, s.state, s.final_status,
			(SELECT COUNT(*) FROM connections c WHERE c.search_id = s.id)
		FROM searches s WHERE s.id = ?`, id)
	record, err = scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchRecord{}, nil, ErrNotFound
	}
	if err != nil {
		return SearchRecord{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT connection_json FROM connections WHERE search_id = ? ORDER BY seq`, id)
	if err != nil {
		return SearchRecord{}, nil, fmt.Errorf("error loading connections: %w", err)
	}
	defer logging.HandleDeferredError(&err, rows.Close, s.logger, "close_connection_rows")

	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return SearchRecord{}, nil, fmt.Errorf("error scanning connection: %w", err)
		}
		var conn models.Connection
		if err := json.Unmarshal([]byte(encoded), &conn); err != nil {
			return SearchRecord{}, nil, fmt.Errorf("error decoding connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return SearchRecord{}, nil, fmt.Errorf("error loading connections: %w", err)
	}
	return record, conns, nil
}

// DeleteSearch removes a search and its connections.
func (s *Store) DeleteSearch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "delete_search")

	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE search_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting connections: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM searches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting search: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSearch(row scanner) (SearchRecord, error) {
	var (
		record   SearchRecord
		params   string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&record.ID, &params, &started, &finished, &record.State, &record.FinalStatus, &record.Connections); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SearchRecord{}, err
		}
		return SearchRecord{}, fmt.Errorf("error scanning search: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &record.Params); err != nil {
		return SearchRecord{}, fmt.Errorf("error decoding search parameters: %w", err)
	}
	startedAt, err := time.Parse(timeLayout, started)
	if err != nil {
		return SearchRecord{}, fmt.Errorf("error parsing start time: %w", err)
	}
	record.StartedAt = startedAt
	if finished.Valid {
		finishedAt, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return SearchRecord{}, fmt.Errorf("error parsing finish time: %w", err)
		}
		record.FinishedAt = &finishedAt
	}
	return record, nil
}
