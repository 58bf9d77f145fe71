package data

import (
	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/feishu"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
	"github.com/anthropics/feishu-topic-monitor/internal/conf"
	"github.com/anthropics/feishu-topic-monitor/llm"
)

// Repositories contains all repositories
type Repositories struct {
	Workspace  repo.WorkspaceRepo
	Classifier repo.ClassifierBackend
	State      repo.StateRepo
	History    repo.HistoryRepo
}

// NewRepositories creates all repositories from configuration
func NewRepositories(cfg *conf.Config, log zerolog.Logger) (*Repositories, error) {
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, log)

	var llmClient *llm.Client
	if cfg.LLM.Enabled() {
		llmClient = llm.NewClient(llm.Options{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       firstNonEmpty(cfg.LLM.Model, cfg.Monitor.Classifier.Model),
			MaxTokens:   cfg.Monitor.Classifier.MaxTokens,
			Temperature: cfg.Monitor.Classifier.Temperature,
			Timeout:     cfg.LLM.Timeout,
		})
	}

	historyRepo, err := NewHistoryRepo(cfg.HistoryDBPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Workspace:  NewWorkspaceRepo(feishuClient, cfg.Feishu.APITimeout),
		Classifier: NewClassifierBackend(llmClient),
		State:      NewStateStore(cfg.StatePath, log),
		History:    historyRepo,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
