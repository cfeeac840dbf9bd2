package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// parseRoleArgs resolves role mentions and names, silently dropping tokens
// that match nothing so a typo does not abort the whole command.
func (d *Dispatcher) parseRoleArgs(ctx context.Context, tokens []string) []model.RoleID {
	var out []model.RoleID
	for _, token := range tokens {
		role, err := d.platform.ResolveRole(ctx, token)
		if err != nil {
			continue
		}
		out = append(out, role)
	}
	return out
}

func (d *Dispatcher) handleSetRole(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) < 2 {
		return "", newUsageError("MM setRole <superAdmin/admin/member> <roles>")
	}
	tier, ok := model.ParseTier(inv.args[0])
	if !ok {
		return "", model.ErrInvalidTier
	}

	if err := d.gate.RequireSetRole(ctx, inv.msg.AuthorID, tier); err != nil {
		return "", err
	}

	roles := d.parseRoleArgs(ctx, inv.args[1:])
	if len(roles) == 0 {
		return "No valid roles found.", nil
	}
	if _, err := d.config.SetTier(ctx, tier, roles); err != nil {
		return "", err
	}
	return fmt.Sprintf("Set %s roles successfully.", tier), nil
}

func (d *Dispatcher) handleAddRole(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) < 2 {
		return "", newUsageError("MM addRole <admin/member> <roles>")
	}
	tier, ok := model.ParseTier(inv.args[0])
	if !ok {
		return "", model.ErrInvalidTier
	}
	roles := d.parseRoleArgs(ctx, inv.args[1:])
	if len(roles) == 0 {
		return "No valid roles found.", nil
	}
	if _, err := d.config.AddToTier(ctx, tier, roles); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added roles to %s successfully.", tier), nil
}

func (d *Dispatcher) handleRemoveFromRole(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) < 2 {
		return "", newUsageError("MM removeFromRole <admin/member> <roles>")
	}
	tier, ok := model.ParseTier(inv.args[0])
	if !ok {
		return "", model.ErrInvalidTier
	}
	roles := d.parseRoleArgs(ctx, inv.args[1:])
	if len(roles) == 0 {
		return "No valid roles found.", nil
	}
	if _, err := d.config.RemoveFromTier(ctx, tier, roles); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed roles from %s successfully.", tier), nil
}

func (d *Dispatcher) handleSetAllowedCategory(ctx context.Context, inv *invocation) (string, error) {
	ch, err := d.platform.Channel(ctx, inv.msg.ChannelID)
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	if ch.CategoryID == "" {
		return "This channel is not in a category.", nil
	}
	if _, err := d.config.SetAllowedCategory(ctx, ch.CategoryID); err != nil {
		return "", err
	}

	name := string(ch.CategoryID)
	if cat, err := d.platform.Channel(ctx, ch.CategoryID); err == nil {
		name = cat.Name
	}
	return fmt.Sprintf("Set allowed category to %s.", name), nil
}

func (d *Dispatcher) handleSetWelcomeHere(ctx context.Context, inv *invocation) (string, error) {
	if _, err := d.config.SetWelcomeChannel(ctx, inv.msg.ChannelID); err != nil {
		return "", err
	}
	return "Welcome channel set to this channel.", nil
}

func (d *Dispatcher) handleMakeChannel(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) < 2 {
		return "", newUsageError("MM makeChannel <category> <channel> [voc] [adminOnly]")
	}
	categoryName, channelName := inv.args[0], inv.args[1]

	voice, adminOnly, asAdmin := false, false, false
	for _, flag := range inv.args[2:] {
		switch {
		case strings.EqualFold(flag, "voc"):
			voice = true
		case strings.EqualFold(flag, "adminOnly"):
			adminOnly = true
		case strings.EqualFold(flag, "asAdmin"):
			asAdmin = true
		}
	}

	if asAdmin {
		if err := d.gate.RequireTier(ctx, inv.msg.AuthorID, model.TierAdmin); err != nil {
			return "", err
		}
	}
	if adminOnly {
		if err := d.gate.RequireTier(ctx, inv.msg.AuthorID, model.TierSuperAdmin); err != nil {
			return "", err
		}
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if len(cfg.MemberRoleIDs) == 0 {
		return "Member roles must be set before using this command.", nil
	}

	category, err := d.findCategory(ctx, categoryName)
	if err != nil {
		return "", err
	}

	created, err := d.platform.CreateChannel(ctx, platform.CreateChannelRequest{
		Name:        channelName,
		CategoryID:  category.ID,
		Voice:       voice,
		Permissions: channelPermissions(cfg, adminOnly),
	})
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}

	kind := "text"
	if voice {
		kind = "voice"
	}
	return fmt.Sprintf("Created %s channel %s in category %s.", kind, created.Name, category.Name), nil
}

func (d *Dispatcher) handleRemoveChannel(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 2 {
		return "", newUsageError("MM removeChannel <category> <channel>")
	}
	category, err := d.findCategory(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	channels, err := d.platform.ChannelsInCategory(ctx, category.ID)
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	for _, ch := range channels {
		if ch.Name == inv.args[1] {
			if err := d.platform.DeleteChannel(ctx, ch.ID); err != nil {
				return "", errors.Join(model.ErrExternal, err)
			}
			return fmt.Sprintf("Removed channel %s from category %s.", ch.Name, category.Name), nil
		}
	}
	return "Channel not found in that category.", nil
}

func (d *Dispatcher) handleMakeCategory(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) < 1 {
		return "", newUsageError("MM makeCategory <category> [adminOnly]")
	}
	adminOnly := len(inv.args) > 1 && strings.EqualFold(inv.args[1], "adminOnly")

	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	perms := platform.ChannelPermissions{}
	if adminOnly {
		perms = staffOnlyPermissions(cfg)
	}
	created, err := d.platform.CreateCategory(ctx, inv.args[0], perms)
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	return fmt.Sprintf("Created category %s.", created.Name), nil
}

func (d *Dispatcher) handleRemoveCategory(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM removeCategory <category>")
	}
	category, err := d.findCategory(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if err := d.platform.DeleteChannel(ctx, category.ID); err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	return fmt.Sprintf("Removed category %s.", category.Name), nil
}

func (d *Dispatcher) findCategory(ctx context.Context, name string) (*platform.Channel, error) {
	category, err := d.platform.FindCategory(ctx, name)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, model.ErrCategoryNotFound
		}
		return nil, errors.Join(model.ErrExternal, err)
	}
	return category, nil
}

// channelPermissions is the default visibility for provisioned channels:
// hidden from everyone except the member and admin tiers. adminOnly narrows
// it to admins and the super admin.
func channelPermissions(cfg *model.RoleConfig, adminOnly bool) platform.ChannelPermissions {
	if adminOnly {
		return staffOnlyPermissions(cfg)
	}
	roles := append([]model.RoleID(nil), cfg.MemberRoleIDs...)
	roles = append(roles, cfg.AdminRoleIDs...)
	return platform.ChannelPermissions{AllowRoles: roles}
}

func staffOnlyPermissions(cfg *model.RoleConfig) platform.ChannelPermissions {
	roles := append([]model.RoleID(nil), cfg.AdminRoleIDs...)
	if cfg.HasSuperAdmin() {
		roles = append(roles, cfg.SuperAdminRoleID)
	}
	return platform.ChannelPermissions{AllowRoles: roles}
}
