// Package rest implements the platform interface against a Discord-style
// guild REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// Config holds connection settings for the platform API
type Config struct {
	// BaseURL is the API root, e.g. https://platform.example.com/api
	BaseURL string

	// Token authenticates the bot account.
	Token string

	// GuildID scopes every call to one guild.
	GuildID string

	// Timeout applies to each HTTP round-trip, attachment fetches included.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Client is the HTTP implementation of platform.Platform
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a platform client
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Ensure Client implements the interface
var _ platform.Platform = (*Client)(nil)

// do performs an HTTP request against the platform API
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	u := c.cfg.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return platform.ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		return platform.ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("platform API: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) guildPath(format string, args ...any) string {
	return fmt.Sprintf("/guilds/%s", c.cfg.GuildID) + fmt.Sprintf(format, args...)
}

func (c *Client) Bot(ctx context.Context) (*platform.Member, error) {
	var m platform.Member
	if err := c.do(ctx, http.MethodGet, c.guildPath("/members/@me"), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) BotAvatar(ctx context.Context) ([]byte, string, error) {
	bot, err := c.Bot(ctx)
	if err != nil {
		return nil, "", err
	}
	if bot.AvatarURL == "" {
		return nil, "", nil
	}
	data, err := c.FetchAttachment(ctx, bot.AvatarURL)
	if err != nil {
		return nil, "", err
	}
	return data, bot.AvatarURL, nil
}

func (c *Client) Member(ctx context.Context, id model.MemberID) (*platform.Member, error) {
	var m platform.Member
	if err := c.do(ctx, http.MethodGet, c.guildPath("/members/%s", id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GuildOwner(ctx context.Context) (model.MemberID, error) {
	var out struct {
		OwnerID model.MemberID `json:"owner_id"`
	}
	if err := c.do(ctx, http.MethodGet, c.guildPath(""), nil, &out); err != nil {
		return "", err
	}
	return out.OwnerID, nil
}

func (c *Client) AddRole(ctx context.Context, member model.MemberID, role model.RoleID) error {
	return c.do(ctx, http.MethodPut, c.guildPath("/members/%s/roles/%s", member, role), nil, nil)
}

func (c *Client) RemoveRole(ctx context.Context, member model.MemberID, role model.RoleID) error {
	return c.do(ctx, http.MethodDelete, c.guildPath("/members/%s/roles/%s", member, role), nil, nil)
}

func (c *Client) Kick(ctx context.Context, member model.MemberID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodDelete, c.guildPath("/members/%s", member), body, nil)
}

func (c *Client) Ban(ctx context.Context, member model.MemberID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPut, c.guildPath("/bans/%s", member), body, nil)
}

func (c *Client) Channel(ctx context.Context, id model.ChannelID) (*platform.Channel, error) {
	var ch platform.Channel
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%s", id), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) ResolveChannel(ctx context.Context, token string) (*platform.Channel, error) {
	if id, ok := parseMention(token, "<#", ">"); ok {
		return c.Channel(ctx, model.ChannelID(id))
	}
	var ch platform.Channel
	path := c.guildPath("/channels/by-name/%s", url.PathEscape(token))
	if err := c.do(ctx, http.MethodGet, path, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) ResolveRole(ctx context.Context, token string) (model.RoleID, error) {
	if id, ok := parseMention(token, "<@&", ">"); ok {
		return model.RoleID(id), nil
	}
	var out struct {
		ID model.RoleID `json:"id"`
	}
	path := c.guildPath("/roles/by-name/%s", url.PathEscape(token))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) FindCategory(ctx context.Context, name string) (*platform.Channel, error) {
	ch, err := c.ResolveChannel(ctx, name)
	if err != nil {
		return nil, err
	}
	if ch.Kind != platform.ChannelCategory {
		return nil, platform.ErrNotFound
	}
	return ch, nil
}

func (c *Client) ChannelsInCategory(ctx context.Context, category model.ChannelID) ([]*platform.Channel, error) {
	var chs []*platform.Channel
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%s/children", category), nil, &chs); err != nil {
		return nil, err
	}
	return chs, nil
}

type createChannelBody struct {
	Name         string           `json:"name"`
	CategoryID   model.ChannelID  `json:"category_id,omitempty"`
	Voice        bool             `json:"voice,omitempty"`
	Category     bool             `json:"category,omitempty"`
	AllowRoles   []model.RoleID   `json:"allow_roles,omitempty"`
	AllowMembers []model.MemberID `json:"allow_members,omitempty"`
}

func (c *Client) CreateChannel(ctx context.Context, req platform.CreateChannelRequest) (*platform.Channel, error) {
	body := createChannelBody{
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		Voice:        req.Voice,
		AllowRoles:   req.Permissions.AllowRoles,
		AllowMembers: req.Permissions.AllowMembers,
	}
	var ch platform.Channel
	if err := c.do(ctx, http.MethodPost, c.guildPath("/channels"), body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string, perms platform.ChannelPermissions) (*platform.Channel, error) {
	body := createChannelBody{
		Name:         name,
		Category:     true,
		AllowRoles:   perms.AllowRoles,
		AllowMembers: perms.AllowMembers,
	}
	var ch platform.Channel
	if err := c.do(ctx, http.MethodPost, c.guildPath("/channels"), body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) DeleteChannel(ctx context.Context, id model.ChannelID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s", id), nil, nil)
}

type outgoingBody struct {
	Content   string     `json:"content"`
	Username  string     `json:"username,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Files     []fileBody `json:"files,omitempty"`
}

type fileBody struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64
}

func encodeOutgoing(msg platform.Outgoing) outgoingBody {
	body := outgoingBody{
		Content:   msg.Content,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
	}
	for _, f := range msg.Files {
		body.Files = append(body.Files, fileBody{
			Name: f.Name,
			Data: base64.StdEncoding.EncodeToString(f.Data),
		})
	}
	return body
}

func (c *Client) SendMessage(ctx context.Context, channel model.ChannelID, msg platform.Outgoing) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channel), encodeOutgoing(msg), nil)
}

func (c *Client) SendDirectMessage(ctx context.Context, member model.MemberID, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPost, c.guildPath("/members/%s/messages", member), body, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, channel model.ChannelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channel, messageID), nil, nil)
}

func (c *Client) History(ctx context.Context, channel model.ChannelID, limit int) ([]platform.Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", channel)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var msgs []platform.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) PurgeMessages(ctx context.Context, channel model.ChannelID, limit int) (int, error) {
	body := map[string]int{"limit": limit}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages/purge", channel), body, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) CreateWebhook(ctx context.Context, channel model.ChannelID, name string, avatar []byte) (*platform.Webhook, error) {
	body := map[string]string{"name": name}
	if len(avatar) > 0 {
		body["avatar"] = base64.StdEncoding.EncodeToString(avatar)
	}
	var wh platform.Webhook
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/webhooks", channel), body, &wh); err != nil {
		return nil, err
	}
	return &wh, nil
}

func (c *Client) SendWebhook(ctx context.Context, wh *platform.Webhook, msg platform.Outgoing) error {
	path := fmt.Sprintf("/webhooks/%s/%s", wh.ID, wh.Token)
	return c.do(ctx, http.MethodPost, path, encodeOutgoing(msg), nil)
}

func (c *Client) DeleteWebhook(ctx context.Context, wh *platform.Webhook) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/webhooks/%s/%s", wh.ID, wh.Token), nil, nil)
}

func (c *Client) FetchAttachment(ctx context.Context, attachmentURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachmentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attachment fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch failed: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseMention extracts the id from a mention token like <#123> or <@&123>.
func parseMention(token, prefix, suffix string) (string, bool) {
	if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, suffix) {
		id := token[len(prefix) : len(token)-len(suffix)]
		if id != "" {
			return id, true
		}
	}
	return "", false
}
