package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
)

// stateStore persists the monitor state as a human-readable JSON record.
// The record is read once at startup and rewritten wholesale per save; the
// write goes through a temp file and a rename so a crash mid-write never
// leaves a torn record.
type stateStore struct {
	path string
	log  zerolog.Logger
}

// NewStateStore creates a state store backed by a JSON file at path
func NewStateStore(path string, log zerolog.Logger) repo.StateRepo {
	return &stateStore{
		path: path,
		log:  log.With().Str("component", "state").Logger(),
	}
}

// Load returns the persisted state, or a default one when the record is
// absent or unparsable. Parse failure is logged, never fatal.
func (s *stateStore) Load() (*domain.MonitorState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("state record unreadable, starting fresh")
		}
		return domain.NewMonitorState(), false
	}

	var state domain.MonitorState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("state record unparsable, starting fresh")
		return domain.NewMonitorState(), false
	}
	if state.ProcessedIDs == nil {
		state.ProcessedIDs = make(map[string]map[string]bool)
	}
	return &state, true
}

// Save rewrites the entire state, setting last-run to the current time
func (s *stateStore) Save(state *domain.MonitorState) error {
	state.LastRun = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
