package repo

import (
	"context"
	"time"
)

// AlertRecord represents one alert delivery attempt
type AlertRecord struct {
	ID          int64
	ChannelID   string
	ChannelName string
	Topics      []string
	MatchCount  int
	DeliveredAt time.Time
	OK          bool
	Error       string
}

// HistoryRepo is the alert delivery history interface
type HistoryRepo interface {
	// Record stores one delivery attempt
	Record(ctx context.Context, rec *AlertRecord) error

	// Recent returns the most recent delivery attempts, newest first
	Recent(ctx context.Context, limit int) ([]*AlertRecord, error)

	// Close releases the underlying store
	Close() error
}
