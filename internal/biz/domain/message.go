package domain

import "time"

// Message represents a message entity fetched from a monitored channel
type Message struct {
	ID         string
	ChannelID  string
	Content    string
	SenderID   string
	SenderName string // resolved display name, empty if unresolved
	MsgType    string // text, image, post, etc.
	CreateTime time.Time
	IsBot      bool // whether the message was sent by a bot
}

// AuthorLabel returns the resolved display name, or the raw sender id
// when no name could be resolved
func (m *Message) AuthorLabel() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderID
}

// IsAfter checks if the message is after the specified time
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreateTime.After(t)
}
