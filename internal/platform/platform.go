// Package platform defines the collaborator interface the bot requires from
// its hosting chat platform. The bot never talks to the platform directly;
// everything goes through this interface so tests can substitute a fake.
package platform

import (
	"context"
	"errors"

	"github.com/TheGitHubist/MaskerBot/internal/model"
)

// Errors returned by platform implementations.
var (
	// ErrForbidden means the bot account lacks the privilege for the call.
	ErrForbidden = errors.New("platform: forbidden")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("platform: not found")
)

// ChannelKind distinguishes the channel flavors the bot manipulates.
type ChannelKind string

const (
	ChannelText     ChannelKind = "text"
	ChannelVoice    ChannelKind = "voice"
	ChannelCategory ChannelKind = "category"
)

// Member is a guild member as seen by the platform.
type Member struct {
	ID          model.MemberID `json:"id"`
	DisplayName string         `json:"display_name"`
	Roles       []model.RoleID `json:"roles"`
	IsBot       bool           `json:"is_bot"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
}

// Channel is a guild channel or category.
type Channel struct {
	ID         model.ChannelID `json:"id"`
	Name       string          `json:"name"`
	Kind       ChannelKind     `json:"kind"`
	CategoryID model.ChannelID `json:"category_id,omitempty"`
}

// InCategory reports whether the channel lives under the given category.
func (c *Channel) InCategory(category model.ChannelID) bool {
	return category != "" && c.CategoryID == category
}

// Attachment references an uploaded file on an incoming message.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// File is an in-memory file to send with an outgoing message.
type File struct {
	Name string
	Data []byte
}

// Message is an incoming or historical channel message.
type Message struct {
	ID          string          `json:"id"`
	ChannelID   model.ChannelID `json:"channel_id"`
	AuthorID    model.MemberID  `json:"author_id"`
	Content     string          `json:"content"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// Outgoing is a message to post. Username and AvatarURL apply only to
// webhook sends, where they override the displayed identity.
type Outgoing struct {
	Content   string
	Username  string
	AvatarURL string
	Files     []File
}

// Webhook is a temporary channel-scoped impersonation endpoint.
type Webhook struct {
	ID        string          `json:"id"`
	ChannelID model.ChannelID `json:"channel_id"`
	Token     string          `json:"token"`
}

// ChannelPermissions restricts who can see a created channel. Channels are
// hidden from the default role; the listed roles and members are allowed.
type ChannelPermissions struct {
	AllowRoles   []model.RoleID
	AllowMembers []model.MemberID
}

// CreateChannelRequest describes a channel to provision.
type CreateChannelRequest struct {
	Name        string
	CategoryID  model.ChannelID
	Voice       bool
	Permissions ChannelPermissions
}

// Platform is the full collaborator surface the bot consumes. The bot is a
// single-guild deployment; implementations are bound to one guild.
type Platform interface {
	// Bot returns the bot's own member entry.
	Bot(ctx context.Context) (*Member, error)

	// BotAvatar fetches the bot's avatar image and its public URL.
	BotAvatar(ctx context.Context) ([]byte, string, error)

	// Member resolves a guild member by account id.
	Member(ctx context.Context, id model.MemberID) (*Member, error)

	// GuildOwner returns the owning account of the guild.
	GuildOwner(ctx context.Context) (model.MemberID, error)

	// AddRole / RemoveRole change a member's live platform roles.
	AddRole(ctx context.Context, member model.MemberID, role model.RoleID) error
	RemoveRole(ctx context.Context, member model.MemberID, role model.RoleID) error

	// Kick and Ban remove a member from the guild.
	Kick(ctx context.Context, member model.MemberID, reason string) error
	Ban(ctx context.Context, member model.MemberID, reason string) error

	// Channel resolves a channel by id.
	Channel(ctx context.Context, id model.ChannelID) (*Channel, error)

	// ResolveChannel resolves a channel reference token: either a mention
	// of the form <#id> or a bare channel name.
	ResolveChannel(ctx context.Context, token string) (*Channel, error)

	// ResolveRole resolves a role reference token: <@&id> or a role name.
	ResolveRole(ctx context.Context, token string) (model.RoleID, error)

	// FindCategory resolves a category by name.
	FindCategory(ctx context.Context, name string) (*Channel, error)

	// ChannelsInCategory lists the channels under a category.
	ChannelsInCategory(ctx context.Context, category model.ChannelID) ([]*Channel, error)

	// CreateChannel provisions a channel; CreateCategory a category.
	CreateChannel(ctx context.Context, req CreateChannelRequest) (*Channel, error)
	CreateCategory(ctx context.Context, name string, perms ChannelPermissions) (*Channel, error)

	// DeleteChannel removes a channel or category.
	DeleteChannel(ctx context.Context, id model.ChannelID) error

	// SendMessage posts as the bot's own identity.
	SendMessage(ctx context.Context, channel model.ChannelID, msg Outgoing) error

	// SendDirectMessage posts a DM to a member's real account.
	SendDirectMessage(ctx context.Context, member model.MemberID, content string) error

	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channel model.ChannelID, messageID string) error

	// History fetches up to limit recent messages; limit <= 0 means all.
	History(ctx context.Context, channel model.ChannelID, limit int) ([]Message, error)

	// PurgeMessages bulk-deletes up to limit messages; limit <= 0 means
	// all. Returns how many were removed.
	PurgeMessages(ctx context.Context, channel model.ChannelID, limit int) (int, error)

	// CreateWebhook opens a temporary impersonation endpoint in a channel.
	CreateWebhook(ctx context.Context, channel model.ChannelID, name string, avatar []byte) (*Webhook, error)

	// SendWebhook posts through an impersonation endpoint.
	SendWebhook(ctx context.Context, wh *Webhook, msg Outgoing) error

	// DeleteWebhook tears the endpoint down.
	DeleteWebhook(ctx context.Context, wh *Webhook) error

	// FetchAttachment downloads an attachment into memory.
	FetchAttachment(ctx context.Context, url string) ([]byte, error)
}
