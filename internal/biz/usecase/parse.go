package usecase

import (
	"encoding/json"
	"regexp"
	"strings"
)

// messageIDPattern matches the Feishu message-id lexeme (om_ prefix)
var messageIDPattern = regexp.MustCompile(`\bom_[A-Za-z0-9]+\b`)

// ParsePolicy names the recall-favoring tie-break applied when the lenient
// scan finds message ids it cannot associate to a specific topic: attribute
// every found id to every configured topic.
type ParsePolicy struct {
	AssignAllOnAmbiguous bool
}

// ParseClassification extracts topic -> message-id associations from the
// classification backend's free-form reply.
//
// Two stages: (1) strict structured extraction of an embedded JSON object;
// (2) on failure, a tolerant scan that pulls message ids out of free text
// and associates them with topic labels found nearby. If stage 2 finds ids
// but cannot associate any with a topic, the ParsePolicy tie-break applies.
//
// The second return is false when the reply carries no usable signal at all,
// which callers treat as an unparsable response.
func ParseClassification(reply string, topics []string, validIDs map[string]bool, policy ParsePolicy) (map[string][]string, bool) {
	if m, ok := parseStrict(reply, topics, validIDs); ok {
		return m, true
	}
	return parseLenient(reply, topics, validIDs, policy)
}

// parseStrict locates a JSON object in the reply and unmarshals it as a
// topic -> id-list mapping
func parseStrict(reply string, topics []string, validIDs map[string]bool) (map[string][]string, bool) {
	candidate := extractJSONObject(reply)
	if candidate == "" {
		return nil, false
	}

	// Values may be a list of ids or a single id string.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}

	result := make(map[string][]string)
	matchedKey := false
	for key, val := range raw {
		topic, ok := matchTopic(key, topics)
		if !ok {
			continue
		}
		matchedKey = true

		var ids []string
		if err := json.Unmarshal(val, &ids); err != nil {
			var single string
			if err := json.Unmarshal(val, &single); err != nil {
				continue
			}
			ids = []string{single}
		}

		for _, id := range ids {
			if keepID(id, validIDs) {
				result[topic] = appendUnique(result[topic], id)
			}
		}
	}

	// A mapping whose keys name no configured topic carries no usable
	// structured signal; any ids inside it are left for the lenient scan.
	// With at least one matched key, an empty result is a valid answer:
	// the backend classified the batch and found nothing.
	if !matchedKey {
		return nil, false
	}
	return result, true
}

// parseLenient scans free text for message ids and associates each id to
// topic labels found on the same line, or on the nearest preceding line
// that names a topic
func parseLenient(reply string, topics []string, validIDs map[string]bool, policy ParsePolicy) (map[string][]string, bool) {
	var foundIDs []string
	result := make(map[string][]string)

	lastTopics := []string(nil)
	for _, line := range strings.Split(reply, "\n") {
		lineTopics := topicsInLine(line, topics)
		if len(lineTopics) > 0 {
			lastTopics = lineTopics
		}

		ids := messageIDPattern.FindAllString(line, -1)
		for _, id := range ids {
			if !keepID(id, validIDs) {
				continue
			}
			foundIDs = appendUnique(foundIDs, id)
			for _, t := range lastTopics {
				result[t] = appendUnique(result[t], id)
			}
		}
	}

	if len(foundIDs) == 0 {
		return nil, false
	}

	if len(result) == 0 {
		if !policy.AssignAllOnAmbiguous {
			return map[string][]string{}, true
		}
		// Tie-break: treat every found id as relevant to every topic.
		for _, t := range topics {
			result[t] = append([]string(nil), foundIDs...)
		}
	}
	return result, true
}

// extractJSONObject returns the outermost {...} span of the reply, with any
// markdown code fences stripped first
func extractJSONObject(reply string) string {
	reply = strings.ReplaceAll(reply, "```json", "```")
	reply = strings.ReplaceAll(reply, "```", "")

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

// matchTopic matches a response key against the configured topics,
// case-insensitively
func matchTopic(key string, topics []string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, t := range topics {
		if strings.ToLower(t) == key {
			return t, true
		}
	}
	return "", false
}

// topicsInLine returns the configured topics named in a line
func topicsInLine(line string, topics []string) []string {
	lower := strings.ToLower(line)
	var found []string
	for _, t := range topics {
		if strings.Contains(lower, strings.ToLower(t)) {
			found = append(found, t)
		}
	}
	return found
}

func keepID(id string, validIDs map[string]bool) bool {
	if len(validIDs) == 0 {
		return messageIDPattern.MatchString(id)
	}
	return validIDs[id]
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
