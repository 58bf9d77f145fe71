package repo

import (
	"context"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
)

// WorkspaceRepo is the workspace API interface.
// Implementations normalize API responses into the canonical domain shapes
// before they enter the pipeline.
type WorkspaceRepo interface {
	// ListChannels lists the channels visible to the bot. The listing API
	// does not report channel modes, so Type is ChannelTypeUnknown; callers
	// that need it resolve the type per channel via GetChannel.
	ListChannels(ctx context.Context) ([]domain.Channel, error)

	// GetChannel fetches a single channel with its type resolved
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)

	// ListMessages fetches up to limit most recent messages from a channel,
	// ordered as fetched (newest batch, chronological within the batch)
	ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error)

	// GetUserProfile fetches a single user profile
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// ListUsers lists workspace users visible to the bot
	ListUsers(ctx context.Context) ([]domain.UserProfile, error)

	// CreateDirectChannel creates (or reuses) a direct channel with a user
	CreateDirectChannel(ctx context.Context, userID string) (*domain.Channel, error)

	// PostMessage posts a text message to a channel
	PostMessage(ctx context.Context, channelID, text string) error
}
