package usecase

import (
	"fmt"
	"strings"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
)

// maxAlertMessages is how many matching messages an alert lists before
// collapsing the rest into an "and N more" suffix
const maxAlertMessages = 5

// ComposeAlert renders one human-readable alert for a channel with matches:
// a header naming the recipient, channel, match count and matched topics,
// followed by up to maxAlertMessages matches in fetch order.
func ComposeAlert(target *domain.NotificationTarget, result *domain.ClassificationResult) string {
	var sb strings.Builder

	sb.WriteString(target.Recipient.FormatMention())
	sb.WriteString(fmt.Sprintf(" Topic alert for #%s: %d matching message(s) on %s\n",
		result.ChannelName, result.MatchCount(), strings.Join(result.MatchedTopics, ", ")))

	shown := result.MatchingMessages
	if len(shown) > maxAlertMessages {
		shown = shown[:maxAlertMessages]
	}
	for _, msg := range shown {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			msg.CreateTime.Format("15:04"), msg.AuthorLabel(), msg.Content))
	}

	if extra := result.MatchCount() - maxAlertMessages; extra > 0 {
		sb.WriteString(fmt.Sprintf("...and %d more\n", extra))
	}

	return sb.String()
}
