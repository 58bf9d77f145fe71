package repo

import "github.com/anthropics/feishu-topic-monitor/internal/biz/domain"

// StateRepo is the durable monitor state interface.
type StateRepo interface {
	// Load returns the persisted state, or a default one when the backing
	// record is absent or unparsable. The second return reports whether a
	// prior record existed, which drives first-run detection.
	Load() (*domain.MonitorState, bool)

	// Save rewrites the entire state, setting last-run to the current time.
	// Best-effort: callers log a failure and continue the cycle.
	Save(state *domain.MonitorState) error
}
