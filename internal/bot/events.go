package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// HandleMemberJoin provisions the newcomer: an identity record, a private
// channel named after their pseudonym, and a greeting in the welcome channel.
func (d *Dispatcher) HandleMemberJoin(ctx context.Context, member platform.Member) {
	defer d.recoverPanic("member_join", string(member.ID))

	if member.IsBot {
		return
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "loading role config on join",
			slog.String("member", string(member.ID)),
			slog.Any("error", err))
		return
	}

	adminAtJoin := model.Intersects(member.Roles, cfg.AdminRoleIDs)
	rec, err := d.identity.GetOrCreate(ctx, member.ID, member.DisplayName, adminAtJoin)
	if err != nil {
		d.logger.ErrorContext(ctx, "creating identity on join",
			slog.String("member", string(member.ID)),
			slog.Any("error", err))
		return
	}

	d.createPrivateChannel(ctx, cfg, member, rec)

	if cfg.WelcomeChannelID != "" {
		greeting := fmt.Sprintf("Welcome %s! Your anonymous ID is user_%s.", member.DisplayName, rec.UserID)
		if err := d.platform.SendMessage(ctx, cfg.WelcomeChannelID, platform.Outgoing{Content: greeting}); err != nil {
			d.logger.WarnContext(ctx, "sending welcome message",
				slog.String("member", string(member.ID)),
				slog.Any("error", err))
		}
	}
}

// createPrivateChannel makes the member's own channel under the allowed
// category, visible only to them and to the staff tiers.
func (d *Dispatcher) createPrivateChannel(ctx context.Context, cfg *model.RoleConfig, member platform.Member, rec *model.IdentityRecord) {
	if cfg.AllowedCategoryID == "" {
		return
	}
	perms := staffOnlyPermissions(cfg)
	perms.AllowMembers = []model.MemberID{member.ID}
	_, err := d.platform.CreateChannel(ctx, platform.CreateChannelRequest{
		Name:        string(rec.UserID),
		CategoryID:  cfg.AllowedCategoryID,
		Permissions: perms,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "creating private channel",
			slog.String("member", string(member.ID)),
			slog.Any("error", err))
	}
}

// HandleMemberRemove forgets the member: their identity record is dropped
// and their private channel, if one exists, is torn down.
func (d *Dispatcher) HandleMemberRemove(ctx context.Context, member platform.Member) {
	defer d.recoverPanic("member_remove", string(member.ID))

	pseudonym, err := d.identity.Remove(ctx, member.ID)
	if err != nil {
		if !errors.Is(err, model.ErrIdentityNotFound) {
			d.logger.ErrorContext(ctx, "removing identity on leave",
				slog.String("member", string(member.ID)),
				slog.Any("error", err))
		}
		return
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "loading role config on leave",
			slog.String("member", string(member.ID)),
			slog.Any("error", err))
		return
	}
	ch, err := d.privateChannel(ctx, cfg, pseudonym)
	if err != nil {
		return
	}
	if err := d.platform.DeleteChannel(ctx, ch.ID); err != nil {
		d.logger.WarnContext(ctx, "deleting private channel",
			slog.String("member", string(member.ID)),
			slog.Any("error", err))
	}
}
