package data

import (
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
	"github.com/anthropics/feishu-topic-monitor/llm"
)

// NewClassifierBackend wraps the LLM client as a classification backend.
// Returns nil when no client is configured; the classifier falls back to
// keyword matching in that case.
func NewClassifierBackend(client *llm.Client) repo.ClassifierBackend {
	if client == nil {
		return nil
	}
	return client
}
