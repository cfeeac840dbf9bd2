// Package platformtest provides an in-memory platform fake that records the
// calls made against it, for use in service and dispatcher tests.
package platformtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// SentMessage records one delivered message, whichever path it took.
type SentMessage struct {
	ChannelID model.ChannelID
	Member    model.MemberID // set for direct messages
	WebhookID string         // set for webhook sends
	Username  string
	Content   string
	Files     []platform.File
}

// Fake is an in-memory platform.Platform. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	BotMember  platform.Member
	Avatar     []byte
	OwnerID    model.MemberID
	Members    map[model.MemberID]*platform.Member
	Channels   map[model.ChannelID]*platform.Channel
	Messages   map[model.ChannelID][]platform.Message
	Atts       map[string][]byte // attachment URL -> bytes
	Bans       []model.MemberID
	Kicks      []model.MemberID
	Sent       []SentMessage
	DMs        []SentMessage
	Deleted    []string // deleted message ids
	DeletedChs []model.ChannelID

	// Webhook bookkeeping
	Webhooks     map[string]*platform.Webhook
	WebhookNames map[string]string

	// Failure switches
	ForbidWebhooks  bool  // CreateWebhook returns ErrForbidden
	ForbidSends     bool  // SendMessage returns ErrForbidden
	DMErr           error // SendDirectMessage returns this
	RoleErr         error // AddRole and RemoveRole return this
	nextChannelID   int
	nextWebhookID   int
}

// New creates an empty fake with a bot member installed.
func New() *Fake {
	return &Fake{
		BotMember: platform.Member{
			ID:          "bot",
			DisplayName: "masker",
			IsBot:       true,
			AvatarURL:   "https://cdn.example.com/avatar.png",
		},
		Avatar:       []byte("avatar-bytes"),
		Members:      make(map[model.MemberID]*platform.Member),
		Channels:     make(map[model.ChannelID]*platform.Channel),
		Messages:     make(map[model.ChannelID][]platform.Message),
		Atts:         make(map[string][]byte),
		Webhooks:     make(map[string]*platform.Webhook),
		WebhookNames: make(map[string]string),
	}
}

// Ensure Fake implements the interface
var _ platform.Platform = (*Fake)(nil)

// AddMember registers a guild member.
func (f *Fake) AddMember(id model.MemberID, name string, roles ...model.RoleID) *platform.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &platform.Member{ID: id, DisplayName: name, Roles: roles}
	f.Members[id] = m
	return m
}

// AddChannel registers a channel.
func (f *Fake) AddChannel(id model.ChannelID, name string, kind platform.ChannelKind, category model.ChannelID) *platform.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &platform.Channel{ID: id, Name: name, Kind: kind, CategoryID: category}
	f.Channels[id] = ch
	return ch
}

// AddAttachment registers downloadable attachment bytes.
func (f *Fake) AddAttachment(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Atts[url] = data
}

func (f *Fake) Bot(ctx context.Context) (*platform.Member, error) {
	return &f.BotMember, nil
}

func (f *Fake) BotAvatar(ctx context.Context) ([]byte, string, error) {
	return f.Avatar, f.BotMember.AvatarURL, nil
}

func (f *Fake) Member(ctx context.Context, id model.MemberID) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	cp := *m
	cp.Roles = append([]model.RoleID(nil), m.Roles...)
	return &cp, nil
}

func (f *Fake) GuildOwner(ctx context.Context) (model.MemberID, error) {
	return f.OwnerID, nil
}

func (f *Fake) AddRole(ctx context.Context, member model.MemberID, role model.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return f.RoleErr
	}
	m, ok := f.Members[member]
	if !ok {
		return platform.ErrNotFound
	}
	for _, r := range m.Roles {
		if r == role {
			return nil
		}
	}
	m.Roles = append(m.Roles, role)
	return nil
}

func (f *Fake) RemoveRole(ctx context.Context, member model.MemberID, role model.RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return f.RoleErr
	}
	m, ok := f.Members[member]
	if !ok {
		return platform.ErrNotFound
	}
	out := m.Roles[:0]
	for _, r := range m.Roles {
		if r != role {
			out = append(out, r)
		}
	}
	m.Roles = out
	return nil
}

func (f *Fake) Kick(ctx context.Context, member model.MemberID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Kicks = append(f.Kicks, member)
	delete(f.Members, member)
	return nil
}

func (f *Fake) Ban(ctx context.Context, member model.MemberID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Bans = append(f.Bans, member)
	delete(f.Members, member)
	return nil
}

func (f *Fake) Channel(ctx context.Context, id model.ChannelID) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *Fake) ResolveChannel(ctx context.Context, token string) (*platform.Channel, error) {
	if strings.HasPrefix(token, "<#") && strings.HasSuffix(token, ">") {
		return f.Channel(ctx, model.ChannelID(token[2:len(token)-1]))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.Channels {
		if ch.Name == token {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, platform.ErrNotFound
}

func (f *Fake) ResolveRole(ctx context.Context, token string) (model.RoleID, error) {
	if strings.HasPrefix(token, "<@&") && strings.HasSuffix(token, ">") {
		return model.RoleID(token[3 : len(token)-1]), nil
	}
	return model.RoleID(token), nil
}

func (f *Fake) FindCategory(ctx context.Context, name string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.Channels {
		if ch.Name == name && ch.Kind == platform.ChannelCategory {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, platform.ErrNotFound
}

func (f *Fake) ChannelsInCategory(ctx context.Context, category model.ChannelID) ([]*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*platform.Channel
	for _, ch := range f.Channels {
		if ch.CategoryID == category {
			cp := *ch
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) CreateChannel(ctx context.Context, req platform.CreateChannelRequest) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChannelID++
	kind := platform.ChannelText
	if req.Voice {
		kind = platform.ChannelVoice
	}
	ch := &platform.Channel{
		ID:         model.ChannelID(fmt.Sprintf("ch-%d", f.nextChannelID)),
		Name:       req.Name,
		Kind:       kind,
		CategoryID: req.CategoryID,
	}
	f.Channels[ch.ID] = ch
	return ch, nil
}

func (f *Fake) CreateCategory(ctx context.Context, name string, perms platform.ChannelPermissions) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChannelID++
	ch := &platform.Channel{
		ID:   model.ChannelID(fmt.Sprintf("cat-%d", f.nextChannelID)),
		Name: name,
		Kind: platform.ChannelCategory,
	}
	f.Channels[ch.ID] = ch
	return ch, nil
}

func (f *Fake) DeleteChannel(ctx context.Context, id model.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Channels[id]; !ok {
		return platform.ErrNotFound
	}
	delete(f.Channels, id)
	f.DeletedChs = append(f.DeletedChs, id)
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, channel model.ChannelID, msg platform.Outgoing) error {
	if f.ForbidSends {
		return platform.ErrForbidden
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, SentMessage{
		ChannelID: channel,
		Content:   msg.Content,
		Files:     msg.Files,
	})
	return nil
}

func (f *Fake) SendDirectMessage(ctx context.Context, member model.MemberID, content string) error {
	if f.DMErr != nil {
		return f.DMErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DMs = append(f.DMs, SentMessage{Member: member, Content: content})
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channel model.ChannelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) History(ctx context.Context, channel model.ChannelID, limit int) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channel]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return append([]platform.Message(nil), msgs...), nil
}

func (f *Fake) PurgeMessages(ctx context.Context, channel model.ChannelID, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channel]
	n := len(msgs)
	if limit > 0 && limit < n {
		n = limit
	}
	f.Messages[channel] = msgs[n:]
	return n, nil
}

func (f *Fake) CreateWebhook(ctx context.Context, channel model.ChannelID, name string, avatar []byte) (*platform.Webhook, error) {
	if f.ForbidWebhooks {
		return nil, platform.ErrForbidden
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWebhookID++
	wh := &platform.Webhook{
		ID:        fmt.Sprintf("wh-%d", f.nextWebhookID),
		ChannelID: channel,
		Token:     "token",
	}
	f.Webhooks[wh.ID] = wh
	f.WebhookNames[wh.ID] = name
	return wh, nil
}

func (f *Fake) SendWebhook(ctx context.Context, wh *platform.Webhook, msg platform.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Webhooks[wh.ID]; !ok {
		return platform.ErrNotFound
	}
	f.Sent = append(f.Sent, SentMessage{
		ChannelID: wh.ChannelID,
		WebhookID: wh.ID,
		Username:  msg.Username,
		Content:   msg.Content,
		Files:     msg.Files,
	})
	return nil
}

func (f *Fake) DeleteWebhook(ctx context.Context, wh *platform.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Webhooks[wh.ID]; !ok {
		return platform.ErrNotFound
	}
	delete(f.Webhooks, wh.ID)
	return nil
}

func (f *Fake) FetchAttachment(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Atts[url]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return data, nil
}
