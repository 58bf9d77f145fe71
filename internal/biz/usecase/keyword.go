package usecase

import (
	"strings"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
)

// builtinHeuristics holds co-occurrence term groups for a few stock
// categories: a message matches the category when at least two distinct
// terms from its group appear, even if the label itself never does.
var builtinHeuristics = map[string][]string{
	"table tennis": {"ping pong", "paddle", "blade", "rubber", "butterfly", "stiga", "serve", "loop", "smash", "topspin"},
	"cycling":      {"bike", "bicycle", "saddle", "derailleur", "peloton", "gravel", "chainring"},
	"climbing":     {"bouldering", "belay", "crimp", "crag", "chalk", "carabiner", "crux"},
}

// KeywordClassifier is the deterministic fallback policy: case-insensitive
// substring containment of each topic label against message text, extended
// with a static per-topic synonym table and the built-in co-occurrence
// heuristics.
type KeywordClassifier struct {
	synonyms map[string][]string
}

// NewKeywordClassifier creates a keyword classifier with an optional
// synonym table (topic label -> extra terms)
func NewKeywordClassifier(synonyms map[string][]string) *KeywordClassifier {
	norm := make(map[string][]string, len(synonyms))
	for topic, terms := range synonyms {
		key := strings.ToLower(topic)
		for _, t := range terms {
			norm[key] = append(norm[key], strings.ToLower(t))
		}
	}
	return &KeywordClassifier{synonyms: norm}
}

// Classify returns the topic -> message-id associations found in the batch
func (k *KeywordClassifier) Classify(messages []domain.Message, topics []string) map[string][]string {
	result := make(map[string][]string)
	for _, msg := range messages {
		text := strings.ToLower(msg.Content)
		for _, topic := range topics {
			if k.matches(text, topic) {
				result[topic] = appendUnique(result[topic], msg.ID)
			}
		}
	}
	return result
}

func (k *KeywordClassifier) matches(lowerText, topic string) bool {
	label := strings.ToLower(topic)

	if strings.Contains(lowerText, label) {
		return true
	}

	for _, syn := range k.synonyms[label] {
		if syn != "" && strings.Contains(lowerText, syn) {
			return true
		}
	}

	if terms, ok := builtinHeuristics[label]; ok {
		hits := 0
		for _, term := range terms {
			if strings.Contains(lowerText, term) {
				hits++
				if hits >= 2 {
					return true
				}
			}
		}
	}
	return false
}
