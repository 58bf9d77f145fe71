package domain

import "testing"

func TestMarkProcessedIdempotent(t *testing.T) {
	state := NewMonitorState()

	state.MarkProcessed("ch1", "om_1")
	state.MarkProcessed("ch1", "om_1")
	state.MarkProcessed("ch1", "om_1")

	if !state.IsProcessed("ch1", "om_1") {
		t.Error("expected om_1 to be processed")
	}
	if got := state.ProcessedCount("ch1"); got != 1 {
		t.Errorf("expected 1 processed id, got %d", got)
	}
}

func TestIsProcessedScopedPerChannel(t *testing.T) {
	state := NewMonitorState()
	state.MarkProcessed("ch1", "om_1")

	if state.IsProcessed("ch2", "om_1") {
		t.Error("processed marking must be scoped to the channel")
	}
}

func TestMarkProcessedOnZeroValueState(t *testing.T) {
	var state MonitorState

	state.MarkProcessed("ch1", "om_1")
	if !state.IsProcessed("ch1", "om_1") {
		t.Error("expected marking to work on a zero-value state")
	}
}
