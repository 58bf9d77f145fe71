package data

import (
	"context"
	"strconv"
	"time"

	"github.com/anthropics/feishu-topic-monitor/feishu"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/domain"
	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
)

// workspaceRepo implements the workspace repository over the Feishu client.
// Every call is bounded by a timeout, and API shapes are normalized into the
// domain types here so nothing downstream sees the raw SDK structures.
type workspaceRepo struct {
	client  *feishu.Client
	timeout time.Duration
}

// NewWorkspaceRepo creates a new Feishu-backed workspace repository
func NewWorkspaceRepo(client *feishu.Client, timeout time.Duration) repo.WorkspaceRepo {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &workspaceRepo{client: client, timeout: timeout}
}

func (r *workspaceRepo) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// ListChannels lists the channels visible to the bot
func (r *workspaceRepo) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	chats, err := r.client.ListChats(ctx)
	if err != nil {
		return nil, err
	}

	var channels []domain.Channel
	for _, c := range chats {
		channels = append(channels, domain.Channel{
			ID:   c.ChatID,
			Name: c.Name,
			Type: channelType(c.Mode),
		})
	}
	return channels, nil
}

// GetChannel fetches a single channel with its type resolved
func (r *workspaceRepo) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	info, err := r.client.GetChatInfo(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &domain.Channel{
		ID:   info.ChatID,
		Name: info.Name,
		Type: channelType(info.Mode),
	}, nil
}

// ListMessages fetches up to limit most recent messages from a channel,
// resolving sender display names from the channel member list
func (r *workspaceRepo) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	msgs, err := r.client.GetChatHistory(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}

	// Member list resolves sender names; failure leaves names empty and the
	// notifier falls back to raw sender ids.
	memberMap := make(map[string]string)
	if members, err := r.client.GetChatMembers(ctx, channelID); err == nil {
		for _, m := range members {
			memberMap[m.MemberID] = m.Name
		}
	}

	var result []domain.Message
	for _, m := range msgs {
		createTime := time.Now()
		if m.CreateTime != "" {
			// Feishu timestamp is a millisecond string
			if ms, err := strconv.ParseInt(m.CreateTime, 10, 64); err == nil {
				createTime = time.UnixMilli(ms)
			}
		}

		senderID := ""
		senderName := ""
		isBot := false
		if m.Sender != nil {
			senderID = m.Sender.SenderID
			senderName = memberMap[senderID]
			isBot = m.Sender.SenderType == "bot" || m.Sender.SenderType == "app"
		}

		result = append(result, domain.Message{
			ID:         m.MsgID,
			ChannelID:  channelID,
			Content:    m.Content,
			SenderID:   senderID,
			SenderName: senderName,
			MsgType:    m.MsgType,
			CreateTime: createTime,
			IsBot:      isBot,
		})
	}
	return result, nil
}

// GetUserProfile fetches a single user profile
func (r *workspaceRepo) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	info, err := r.client.GetUserInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userProfile(info), nil
}

// ListUsers lists workspace users visible to the bot
func (r *workspaceRepo) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	infos, err := r.client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var users []domain.UserProfile
	for _, info := range infos {
		users = append(users, *userProfile(info))
	}
	return users, nil
}

// CreateDirectChannel creates (or reuses) a direct channel with a user
func (r *workspaceRepo) CreateDirectChannel(ctx context.Context, userID string) (*domain.Channel, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	chat, err := r.client.CreateP2PChat(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Channel{
		ID:   chat.ChatID,
		Name: chat.Name,
		Type: domain.ChannelTypeP2P,
	}, nil
}

// PostMessage posts a text message to a channel
func (r *workspaceRepo) PostMessage(ctx context.Context, channelID, text string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return r.client.SendText(ctx, channelID, text)
}

func channelType(mode string) domain.ChannelType {
	switch mode {
	case "p2p":
		return domain.ChannelTypeP2P
	case "group", "topic":
		return domain.ChannelTypeGroup
	default:
		return domain.ChannelTypeUnknown
	}
}

func userProfile(info *feishu.UserInfo) *domain.UserProfile {
	var roles []string
	if info.IsTenantManager {
		roles = append(roles, "admin")
	}
	return &domain.UserProfile{
		UserID:      info.OpenID,
		DisplayName: info.Name,
		Roles:       roles,
	}
}
