package domain

// ClassificationResult holds the matches found in one channel during one
// cycle. Produced only when at least one message matched a topic.
type ClassificationResult struct {
	ChannelID        string
	ChannelName      string
	MatchingMessages []Message
	MatchedTopics    []string
}

// MatchCount returns the number of matching messages
func (r *ClassificationResult) MatchCount() int {
	return len(r.MatchingMessages)
}

// NotificationTarget is the alert destination, resolved once at startup and
// cached for the process lifetime.
type NotificationTarget struct {
	Recipient         UserProfile
	DeliveryChannelID string
}
