package usecase

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
)

func alertTarget() *domain.NotificationTarget {
	return &domain.NotificationTarget{
		Recipient:         domain.UserProfile{UserID: "ou_admin", DisplayName: "Alice"},
		DeliveryChannelID: "ch_alerts",
	}
}

func TestComposeAlertHeader(t *testing.T) {
	result := &domain.ClassificationResult{
		ChannelID:   "ch1",
		ChannelName: "general",
		MatchingMessages: []domain.Message{
			{ID: "om_1", Content: "table tennis tonight?", SenderName: "Bob", CreateTime: time.Date(2024, 5, 1, 15, 4, 0, 0, time.UTC)},
		},
		MatchedTopics: []string{"table tennis"},
	}

	alert := ComposeAlert(alertTarget(), result)

	for _, want := range []string{"@Alice", "#general", "1 matching message", "table tennis", "[15:04] Bob: table tennis tonight?"} {
		if !strings.Contains(alert, want) {
			t.Errorf("alert missing %q:\n%s", want, alert)
		}
	}
}

func TestComposeAlertTruncation(t *testing.T) {
	var matches []domain.Message
	for i := 0; i < 7; i++ {
		matches = append(matches, domain.Message{
			ID:         fmt.Sprintf("om_%d", i),
			Content:    fmt.Sprintf("match %d", i),
			SenderID:   "u1",
			CreateTime: time.Now(),
		})
	}
	result := &domain.ClassificationResult{
		ChannelName:      "general",
		MatchingMessages: matches,
		MatchedTopics:    []string{"table tennis"},
	}

	alert := ComposeAlert(alertTarget(), result)

	for i := 0; i < 5; i++ {
		if !strings.Contains(alert, fmt.Sprintf("match %d", i)) {
			t.Errorf("alert should list match %d:\n%s", i, alert)
		}
	}
	for i := 5; i < 7; i++ {
		if strings.Contains(alert, fmt.Sprintf("match %d", i)) {
			t.Errorf("alert should not list match %d:\n%s", i, alert)
		}
	}
	if !strings.Contains(alert, "...and 2 more") {
		t.Errorf("alert missing truncation suffix:\n%s", alert)
	}
}

func TestComposeAlertUnresolvedAuthorFallsBackToID(t *testing.T) {
	result := &domain.ClassificationResult{
		ChannelName: "general",
		MatchingMessages: []domain.Message{
			{ID: "om_1", Content: "hello", SenderID: "ou_raw", CreateTime: time.Now()},
		},
		MatchedTopics: []string{"table tennis"},
	}

	alert := ComposeAlert(alertTarget(), result)
	if !strings.Contains(alert, "ou_raw: hello") {
		t.Errorf("expected the raw sender id when no name resolved:\n%s", alert)
	}
}
