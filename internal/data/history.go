package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// historyRepo implements the alert delivery history over SQLite
type historyRepo struct {
	db *sql.DB
}

// NewHistoryRepo creates a new alert history repository
func NewHistoryRepo(dbPath string) (repo.HistoryRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			channel_name TEXT NOT NULL,
			topics TEXT NOT NULL,
			match_count INTEGER NOT NULL,
			delivered_at INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_alerts_delivered_at ON alerts(delivered_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &historyRepo{db: db}, nil
}

// Record stores one delivery attempt
func (r *historyRepo) Record(ctx context.Context, rec *repo.AlertRecord) error {
	ok := 0
	if rec.OK {
		ok = 1
	}
	deliveredAt := rec.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (channel_id, channel_name, topics, match_count, delivered_at, ok, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ChannelID, rec.ChannelName, strings.Join(rec.Topics, ","), rec.MatchCount,
		deliveredAt.Unix(), ok, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// Recent returns the most recent delivery attempts, newest first
func (r *historyRepo) Recent(ctx context.Context, limit int) ([]*repo.AlertRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, channel_id, channel_name, topics, match_count, delivered_at, ok, error
		FROM alerts
		ORDER BY delivered_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []*repo.AlertRecord
	for rows.Next() {
		var rec repo.AlertRecord
		var topics string
		var deliveredAt int64
		var ok int
		if err := rows.Scan(&rec.ID, &rec.ChannelID, &rec.ChannelName, &topics,
			&rec.MatchCount, &deliveredAt, &ok, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if topics != "" {
			rec.Topics = strings.Split(topics, ",")
		}
		rec.DeliveredAt = time.Unix(deliveredAt, 0)
		rec.OK = ok == 1
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database
func (r *historyRepo) Close() error {
	return r.db.Close()
}
