package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/authz"
	"github.com/TheGitHubist/MaskerBot/internal/services/identity"
	"github.com/TheGitHubist/MaskerBot/internal/services/roleconfig"
)

// Service relays a member's message into a channel under their pseudonym.
// The pseudonym is presented via a temporary channel-scoped webhook carrying
// the bot's avatar, so the platform renders the message as if posted by an
// account named after the pseudonym.
type Service struct {
	identity *identity.Service
	config   *roleconfig.Service
	gate     *authz.Gate
	platform platform.Platform
	logger   *slog.Logger
}

// NewService creates a new relay Service
func NewService(
	identity *identity.Service,
	config *roleconfig.Service,
	gate *authz.Gate,
	platform platform.Platform,
	logger *slog.Logger,
) *Service {
	return &Service{
		identity: identity,
		config:   config,
		gate:     gate,
		platform: platform,
		logger:   logger,
	}
}

// SendRequest describes one relayed message.
type SendRequest struct {
	Caller      model.MemberID
	ChannelRef  string
	Text        string
	Attachments []platform.Attachment
	AsAdmin     bool
}

// SendResult reports how the relay ended up delivering.
type SendResult struct {
	// Delivered is false when the target sits in the protected category
	// and the relay deliberately did nothing.
	Delivered bool
	// Degraded is true when webhook creation was forbidden and the message
	// went out under the bot's own identity instead of the pseudonym.
	Degraded bool
	// DisplayName is the pseudonymous identity the message was sent under.
	DisplayName string
}

// Send relays the caller's message. The caller needs a migrated identity
// record; sending as admin additionally requires the admin gate and an
// admin pseudonym on the record.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	rec, err := s.identity.Get(ctx, req.Caller)
	if err != nil {
		return nil, err
	}

	display := fmt.Sprintf("user_%s", rec.UserID)
	if req.AsAdmin {
		if err := s.gate.RequireTier(ctx, req.Caller, model.TierAdmin); err != nil {
			return nil, err
		}
		if rec.AdminID == nil {
			return nil, model.ErrNotAdmin
		}
		display = fmt.Sprintf("admin_%s", *rec.AdminID)
	}

	channel, err := s.platform.ResolveChannel(ctx, req.ChannelRef)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, model.ErrChannelNotFound
		}
		return nil, errors.Join(model.ErrExternal, err)
	}

	// Relaying into the private identity category would pin pseudonyms to
	// the channels named after them; the relay silently refuses.
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	if channel.InCategory(cfg.AllowedCategoryID) {
		return &SendResult{Delivered: false, DisplayName: display}, nil
	}

	files, err := s.fetchAttachments(ctx, req.Attachments)
	if err != nil {
		return nil, err
	}

	out := platform.Outgoing{
		Content:  req.Text,
		Username: display,
		Files:    files,
	}

	avatar, avatarURL, err := s.platform.BotAvatar(ctx)
	if err != nil {
		return nil, errors.Join(model.ErrExternal, err)
	}
	out.AvatarURL = avatarURL

	wh, err := s.platform.CreateWebhook(ctx, channel.ID, display, avatar)
	if errors.Is(err, platform.ErrForbidden) {
		// No webhook permission in this channel. Fall back to posting as
		// the bot itself, with the pseudonym prefixed into the text.
		s.logger.Warn("webhook creation forbidden, relaying as bot",
			"channel", channel.ID,
			"display", display,
		)
		fallback := platform.Outgoing{
			Content: fmt.Sprintf("**%s**: %s", display, req.Text),
			Files:   files,
		}
		if err := s.platform.SendMessage(ctx, channel.ID, fallback); err != nil {
			return nil, errors.Join(model.ErrExternal, err)
		}
		return &SendResult{Delivered: true, Degraded: true, DisplayName: display}, nil
	}
	if err != nil {
		return nil, errors.Join(model.ErrExternal, err)
	}

	if err := s.platform.SendWebhook(ctx, wh, out); err != nil {
		if derr := s.platform.DeleteWebhook(ctx, wh); derr != nil {
			s.logger.Warn("failed to delete relay webhook", "webhook", wh.ID, "error", derr)
		}
		return nil, errors.Join(model.ErrExternal, err)
	}
	if err := s.platform.DeleteWebhook(ctx, wh); err != nil {
		s.logger.Warn("failed to delete relay webhook", "webhook", wh.ID, "error", err)
	}

	return &SendResult{Delivered: true, DisplayName: display}, nil
}

// fetchAttachments downloads every attachment into memory. Any single
// failure aborts the whole send so a relayed message is never partial.
func (s *Service) fetchAttachments(ctx context.Context, atts []platform.Attachment) ([]platform.File, error) {
	var files []platform.File
	for _, att := range atts {
		data, err := s.platform.FetchAttachment(ctx, att.URL)
		if err != nil {
			return nil, errors.Join(model.ErrExternal, err)
		}
		files = append(files, platform.File{Name: att.Filename, Data: data})
	}
	return files, nil
}
