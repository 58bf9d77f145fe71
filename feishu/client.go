package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/rs/zerolog"
)

// ChatInfo represents a chat visible to the bot
type ChatInfo struct {
	ChatID string `json:"chat_id"`
	Name   string `json:"name"`
	Mode   string `json:"chat_mode"` // p2p, group
}

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string `json:"message_id"`
	MsgType    string `json:"msg_type"`
	Content    string `json:"content"`
	CreateTime string `json:"create_time"`
	Sender     *Sender
}

// Sender represents the message sender
type Sender struct {
	SenderID   string
	SenderType string // user, bot, app
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// UserInfo represents a workspace user
type UserInfo struct {
	OpenID          string
	Name            string
	IsTenantManager bool
}

// Client is the Feishu API client used by the monitor. It is a plain
// request/response client; the monitor polls, it does not listen for events.
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	log       zerolog.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, log zerolog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		log:       log.With().Str("component", "feishu").Logger(),
	}
}

// ListChats lists chats the bot is a member of, following pagination
func (c *Client) ListChats(ctx context.Context) ([]*ChatInfo, error) {
	var chats []*ChatInfo
	var pageToken string

	for {
		reqBuilder := larkim.NewListChatReqBuilder().
			UserIdType("open_id").
			PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Chat.List(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("list chats failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list chats error: %s", resp.Msg)
		}

		// The list endpoint does not carry the chat mode; Mode stays empty
		// here and callers resolve it per chat via GetChatInfo when needed.
		for _, item := range resp.Data.Items {
			chat := &ChatInfo{}
			if item.ChatId != nil {
				chat.ChatID = *item.ChatId
			}
			if item.Name != nil {
				chat.Name = *item.Name
			}
			chats = append(chats, chat)
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	c.log.Debug().Int("count", len(chats)).Msg("listed chats")
	return chats, nil
}

// GetChatInfo retrieves information about a single chat, including its mode
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	if resp.Data.ChatMode != nil {
		info.Mode = *resp.Data.ChatMode
	}
	return info, nil
}

// GetChatHistory retrieves the most recent messages from a chat.
// Returns messages in chronological order (oldest first, newest last).
func (c *Client) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*HistoryMessage, error) {
	if pageSize > 50 {
		pageSize = 50
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	// Descending sort so the newest messages come back; the API default is
	// ascending from the start of the chat.
	req := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat history failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
	}

	var messages []*HistoryMessage
	for _, item := range resp.Data.Items {
		msg := &HistoryMessage{
			MsgID:      *item.MessageId,
			MsgType:    *item.MsgType,
			CreateTime: *item.CreateTime,
		}

		mentionMap := make(map[string]string)
		if item.Mentions != nil {
			for _, mention := range item.Mentions {
				if mention.Key != nil && mention.Name != nil {
					mentionMap[*mention.Key] = *mention.Name
				}
			}
		}

		if item.Body != nil && item.Body.Content != nil {
			rawContent := *item.Body.Content
			switch *item.MsgType {
			case "text":
				msg.Content = parseTextContent(rawContent, mentionMap)
			case "post":
				msg.Content = parsePostContent(rawContent, mentionMap)
			default:
				msg.Content = rawContent
			}
		}

		if item.Sender != nil {
			msg.Sender = &Sender{}
			if item.Sender.Id != nil {
				msg.Sender.SenderID = *item.Sender.Id
			}
			if item.Sender.SenderType != nil {
				msg.Sender.SenderType = *item.Sender.SenderType
			}
		}

		messages = append(messages, msg)
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	c.log.Debug().Str("chat_id", chatID).Int("count", len(messages)).Msg("fetched chat history")
	return messages, nil
}

// GetChatMembers retrieves members of a chat, following pagination
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		reqBuilder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			member := &ChatMember{}
			if item.MemberId != nil {
				member.MemberID = *item.MemberId
			}
			if item.Name != nil {
				member.Name = *item.Name
			}
			members = append(members, member)
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	return members, nil
}

// ListUsers lists workspace users from the root department, following pagination
func (c *Client) ListUsers(ctx context.Context) ([]*UserInfo, error) {
	var users []*UserInfo
	var pageToken string

	for {
		reqBuilder := larkcontact.NewFindByDepartmentUserReqBuilder().
			UserIdType("open_id").
			DepartmentIdType("department_id").
			DepartmentId("0").
			PageSize(50)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Contact.User.FindByDepartment(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("list users failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list users error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			users = append(users, userFromContact(item))
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	c.log.Debug().Int("count", len(users)).Msg("listed users")
	return users, nil
}

// GetUserInfo retrieves a single user profile
func (c *Client) GetUserInfo(ctx context.Context, openID string) (*UserInfo, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get user error: %s", resp.Msg)
	}
	if resp.Data.User == nil {
		return nil, fmt.Errorf("get user: empty response for %s", openID)
	}

	return userFromContact(resp.Data.User), nil
}

func userFromContact(u *larkcontact.User) *UserInfo {
	info := &UserInfo{}
	if u.OpenId != nil {
		info.OpenID = *u.OpenId
	}
	if u.Name != nil {
		info.Name = *u.Name
	}
	if u.IsTenantManager != nil {
		info.IsTenantManager = *u.IsTenantManager
	}
	return info
}

// CreateP2PChat creates (or reuses) a chat containing the bot and one user
func (c *Client) CreateP2PChat(ctx context.Context, openID string) (*ChatInfo, error) {
	req := larkim.NewCreateChatReqBuilder().
		UserIdType("open_id").
		Body(larkim.NewCreateChatReqBodyBuilder().
			Name("Topic Monitor Alerts").
			UserIdList([]string{openID}).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Chat.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create chat failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("create chat error: %s", resp.Msg)
	}

	chat := &ChatInfo{Mode: "p2p"}
	if resp.Data.ChatId != nil {
		chat.ChatID = *resp.Data.ChatId
	}
	if resp.Data.Name != nil {
		chat.Name = *resp.Data.Name
	}

	c.log.Info().Str("chat_id", chat.ChatID).Str("open_id", openID).Msg("created delivery chat")
	return chat, nil
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	content := map[string]string{"text": text}
	contentJSON, _ := json.Marshal(content)

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.log.Debug().Str("chat_id", chatID).Msg("message sent")
	return nil
}

// parseTextContent extracts text from a text message, replacing mention
// placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent extracts the plain text of a rich text (post) message
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var textParts []string
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}
	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if elem.UserID != "" {
					if name, ok := mentionMap[elem.UserID]; ok {
						lineParts = append(lineParts, "@"+name)
					} else {
						lineParts = append(lineParts, "@"+elem.UserID)
					}
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return replaceMentions(strings.Join(textParts, "\n"), mentionMap)
}

// replaceMentions replaces mention placeholders (@_user_1, ...) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}
