// Package store persists board snapshots in SQLite so a restarted board can
// show the last known arrivals while its first poll is in flight.
package store

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

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/logging"
)

//go:embed schema.sql
var ddl string

const memoryPath = ":memory:"

// ErrNoSnapshot is returned by Latest on an empty store.
var ErrNoSnapshot = errors.New("no snapshot stored")

type Store struct {
	DB     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or migrates the database at path. ":memory:" keeps everything
// in a single in-memory connection.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "snapshot_store"))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	configureConnectionPool(db, path)

	if err := configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	logging.LogOperation(logger, "snapshot_store_opened", slog.String("path", path))
	return &Store{DB: db, path: path, logger: logger}, nil
}

func configure(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", stmt, err)
		}
	}
	return nil
}

// Each connection to ":memory:" is its own database, so the pool is pinned
// to one connection there.
func configureConnectionPool(db *sql.DB, path string) {
	if path == memoryPath {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Save stores snap taken at the given time and returns its row id.
func (s *Store) Save(ctx context.Context, snap *board.Snapshot, takenAt time.Time) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO board_snapshots (taken_at, feed_timestamp, payload) VALUES (?, ?, ?)`,
		takenAt.Unix(), int64(snap.FeedTimestamp), string(payload))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns the most recently saved snapshot and when it was taken.
func (s *Store) Latest(ctx context.Context) (*board.Snapshot, time.Time, error) {
	var (
		takenAt int64
		payload string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT taken_at, payload FROM board_snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&takenAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query latest snapshot: %w", err)
	}

	var snap board.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, time.Unix(takenAt, 0), nil
}

// Prune deletes all but the newest keep snapshots and returns how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM board_snapshots WHERE id NOT IN (
			SELECT id FROM board_snapshots ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM board_snapshots`).Scan(&n)
	return n, err
}
