package domain

// ChannelType represents the channel type
type ChannelType string

const (
	ChannelTypeGroup ChannelType = "group"
	ChannelTypeP2P   ChannelType = "p2p"

	// ChannelTypeUnknown marks a channel whose mode the listing API did not
	// carry; it must never pass IsPublic until resolved.
	ChannelTypeUnknown ChannelType = ""
)

// Channel represents a workspace channel, normalized at the collaborator
// boundary into this single canonical shape
type Channel struct {
	ID   string
	Name string
	Type ChannelType
}

// IsPublic reports whether the channel is a group channel rather than a
// direct (p2p) one
func (c *Channel) IsPublic() bool {
	return c.Type == ChannelTypeGroup
}
