package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
)

// ClassifierParams holds the per-process classification configuration
type ClassifierParams struct {
	Topics               []string
	FetchLimit           int
	FirstRunEnabled      bool
	FirstRunLimit        int
	AssignAllOnAmbiguous bool
	Synonyms             map[string][]string
}

// ClassifierUsecase runs the two-tier classification for one channel per
// cycle: the LLM-backed primary policy when a backend is configured, the
// deterministic keyword fallback otherwise or on any backend failure.
type ClassifierUsecase struct {
	workspace repo.WorkspaceRepo
	backend   repo.ClassifierBackend // nil when no backend is configured
	keyword   *KeywordClassifier
	params    ClassifierParams
	log       zerolog.Logger
}

// NewClassifierUsecase creates a new classifier usecase
func NewClassifierUsecase(
	workspace repo.WorkspaceRepo,
	backend repo.ClassifierBackend,
	params ClassifierParams,
	log zerolog.Logger,
) *ClassifierUsecase {
	return &ClassifierUsecase{
		workspace: workspace,
		backend:   backend,
		keyword:   NewKeywordClassifier(params.Synonyms),
		params:    params,
		log:       log.With().Str("component", "classifier").Logger(),
	}
}

// ClassifyChannel classifies the new messages of one configured channel.
//
// channels is the normalized channel list for the cycle; an unresolved name
// yields (nil, nil) and a log line, skipping that channel only. All fetched
// candidates are marked processed on state before returning, whether or not
// they matched; that marking is irrevocable. A nil result with nil error
// means no candidates or zero matches.
func (uc *ClassifierUsecase) ClassifyChannel(
	ctx context.Context,
	channels []domain.Channel,
	channelName string,
	state *domain.MonitorState,
	firstRun bool,
) (*domain.ClassificationResult, error) {
	channel := resolveChannel(channels, channelName)
	if channel == nil {
		uc.log.Warn().Str("channel", channelName).Msg("channel name not resolved, skipping")
		return nil, nil
	}

	limit := uc.params.FetchLimit
	if firstRun && uc.params.FirstRunEnabled {
		limit = uc.params.FirstRunLimit
	}

	fetched, err := uc.workspace.ListMessages(ctx, channel.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", channelName, err)
	}

	var candidates []domain.Message
	for _, msg := range fetched {
		if !state.IsProcessed(channel.ID, msg.ID) {
			candidates = append(candidates, msg)
		}
	}
	if len(candidates) == 0 {
		uc.log.Debug().Str("channel", channelName).Msg("no new messages")
		return nil, nil
	}

	assignments := uc.classify(ctx, channelName, candidates)

	// Every candidate is marked processed regardless of match outcome, so a
	// message is never re-evaluated by this channel's classification step.
	for _, msg := range candidates {
		state.MarkProcessed(channel.ID, msg.ID)
	}

	result := buildResult(channel, channelName, candidates, uc.params.Topics, assignments)
	if result == nil {
		uc.log.Info().Str("channel", channelName).Int("candidates", len(candidates)).Msg("no matches")
	} else {
		uc.log.Info().Str("channel", channelName).
			Int("candidates", len(candidates)).
			Int("matches", result.MatchCount()).
			Strs("topics", result.MatchedTopics).
			Msg("matches found")
	}
	return result, nil
}

// classify runs the primary policy and silently downgrades to the keyword
// fallback when the backend is missing, errors, or replies unusably
func (uc *ClassifierUsecase) classify(ctx context.Context, channelName string, candidates []domain.Message) map[string][]string {
	if uc.backend == nil {
		return uc.keyword.Classify(candidates, uc.params.Topics)
	}

	reply, err := uc.backend.Complete(ctx, classifySystemPrompt, uc.buildPrompt(candidates))
	if err != nil {
		uc.log.Warn().Err(err).Str("channel", channelName).Msg("backend error, using keyword fallback")
		return uc.keyword.Classify(candidates, uc.params.Topics)
	}

	validIDs := make(map[string]bool, len(candidates))
	for _, msg := range candidates {
		validIDs[msg.ID] = true
	}

	assignments, ok := ParseClassification(reply, uc.params.Topics, validIDs,
		ParsePolicy{AssignAllOnAmbiguous: uc.params.AssignAllOnAmbiguous})
	if !ok {
		uc.log.Warn().Str("channel", channelName).Msg("backend reply unparsable, using keyword fallback")
		return uc.keyword.Classify(candidates, uc.params.Topics)
	}
	return assignments
}

const classifySystemPrompt = `You are a topic relevance classifier for chat messages.

You will receive a list of topics and a batch of messages, each with an id.
Decide which messages are relevant to which topics.

Reply with a single JSON object mapping each topic to the list of matching
message ids, for example:

{"topic a": ["om_111", "om_222"], "topic b": []}

Only include ids from the batch. Reply with the JSON object only.`

// buildPrompt batches all candidate messages plus the full topic list into
// one classification request
func (uc *ClassifierUsecase) buildPrompt(candidates []domain.Message) string {
	var sb strings.Builder

	sb.WriteString("Topics:\n")
	for _, t := range uc.params.Topics {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}

	sb.WriteString("\nMessages:\n")
	for _, msg := range candidates {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", msg.ID, msg.AuthorLabel(), msg.Content))
	}
	return sb.String()
}

// buildResult collapses topic -> id associations into one result, keeping
// matching messages in fetch order and topics in configured order
func buildResult(channel *domain.Channel, channelName string, candidates []domain.Message, topics []string, assignments map[string][]string) *domain.ClassificationResult {
	matchedIDs := make(map[string]bool)
	for _, ids := range assignments {
		for _, id := range ids {
			matchedIDs[id] = true
		}
	}
	if len(matchedIDs) == 0 {
		return nil
	}

	var matching []domain.Message
	for _, msg := range candidates {
		if matchedIDs[msg.ID] {
			matching = append(matching, msg)
		}
	}

	var matchedTopics []string
	for _, t := range topics {
		if len(assignments[t]) > 0 {
			matchedTopics = append(matchedTopics, t)
		}
	}

	return &domain.ClassificationResult{
		ChannelID:        channel.ID,
		ChannelName:      channelName,
		MatchingMessages: matching,
		MatchedTopics:    matchedTopics,
	}
}

func resolveChannel(channels []domain.Channel, name string) *domain.Channel {
	for i := range channels {
		if channels[i].Name == name {
			return &channels[i]
		}
	}
	return nil
}
