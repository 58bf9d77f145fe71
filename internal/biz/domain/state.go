package domain

import "time"

// MonitorState is the durable ledger of processed message ids per channel
// plus the last-run timestamp. It is mutated only through the state store.
type MonitorState struct {
	LastRun      time.Time                  `json:"last_run"`
	ProcessedIDs map[string]map[string]bool `json:"processed_ids"` // channel id -> message id set
}

// NewMonitorState returns the default state used when no prior record
// exists or the persisted record fails to parse.
func NewMonitorState() *MonitorState {
	return &MonitorState{
		LastRun:      time.Now(),
		ProcessedIDs: make(map[string]map[string]bool),
	}
}

// IsProcessed is a pure lookup: whether msgID was already evaluated for
// channelID in some earlier cycle.
func (s *MonitorState) IsProcessed(channelID, msgID string) bool {
	return s.ProcessedIDs[channelID][msgID]
}

// MarkProcessed records msgID as evaluated for channelID. Idempotent:
// repeat calls are no-ops.
func (s *MonitorState) MarkProcessed(channelID, msgID string) {
	if s.ProcessedIDs == nil {
		s.ProcessedIDs = make(map[string]map[string]bool)
	}
	set, ok := s.ProcessedIDs[channelID]
	if !ok {
		set = make(map[string]bool)
		s.ProcessedIDs[channelID] = set
	}
	set[msgID] = true
}

// ProcessedCount returns the number of processed ids recorded for a channel
func (s *MonitorState) ProcessedCount(channelID string) int {
	return len(s.ProcessedIDs[channelID])
}
