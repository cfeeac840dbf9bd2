package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// requireUnprotectedTarget returns a reply refusing the action when the
// target holds the super-admin role.
func (d *Dispatcher) requireUnprotectedTarget(ctx context.Context, target model.MemberID, action string) (string, error) {
	err := d.gate.RequireTargetNotSuperAdmin(ctx, target)
	if errors.Is(err, model.ErrPermissionDenied) {
		return fmt.Sprintf("You cannot %s a super admin.", action), nil
	}
	return "", err
}

// targetIdentity fetches the target's record, turning the caller-centric
// identity errors into target-centric replies.
func (d *Dispatcher) targetIdentity(ctx context.Context, target model.MemberID) (*model.IdentityRecord, string, error) {
	rec, err := d.identity.Get(ctx, target)
	switch {
	case errors.Is(err, model.ErrIdentityNotFound):
		return nil, "User not found in database.", nil
	case errors.Is(err, model.ErrLegacyRecord):
		return nil, "User data is in the old format. Have them run MM generateID to migrate.", nil
	case err != nil:
		return nil, "", err
	}
	return rec, "", nil
}

func (d *Dispatcher) handleMakeAdmin(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM makeAdmin <user>")
	}
	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, "grant admin privileges to"); msg != "" || err != nil {
		return msg, err
	}

	rec, msg, err := d.targetIdentity(ctx, target.ID)
	if msg != "" || err != nil {
		return msg, err
	}
	if rec.Role == model.RoleAdmin {
		return "", model.ErrAlreadyAdmin
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if len(cfg.AdminRoleIDs) == 0 {
		return "Admin roles must be set before using this command.", nil
	}

	// store first: the broker and the relay trust the record, so a member
	// must never hold the live admin role without an admin pseudonym
	updated, err := d.identity.SetRole(ctx, target.ID, model.RoleAdmin)
	if err != nil {
		return "", err
	}
	if err := d.platform.AddRole(ctx, target.ID, cfg.AdminRoleIDs[0]); err != nil {
		// put the record back so a retry starts clean
		if _, rbErr := d.identity.SetRole(ctx, target.ID, rec.Role); rbErr != nil {
			d.logger.Warn("could not roll back admin grant",
				"member", target.ID,
				"error", rbErr,
			)
		}
		return "", errors.Join(model.ErrExternal, err)
	}
	return fmt.Sprintf("Granted admin privileges to %s. Admin ID: %s", target.DisplayName, *updated.AdminID), nil
}

func (d *Dispatcher) handleRemoveAdmin(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM removeAdmin <user>")
	}
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if len(cfg.MemberRoleIDs) == 0 {
		return "Member roles must be set before using this command.", nil
	}
	if len(cfg.AdminRoleIDs) == 0 {
		return "Admin roles must be set before using this command.", nil
	}

	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, "remove admin privileges from"); msg != "" || err != nil {
		return msg, err
	}

	rec, msg, err := d.targetIdentity(ctx, target.ID)
	if msg != "" || err != nil {
		return msg, err
	}
	if rec.Role != model.RoleAdmin {
		return "", model.ErrNotAdmin
	}

	if err := d.platform.RemoveRole(ctx, target.ID, cfg.AdminRoleIDs[0]); err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	if _, err := d.identity.SetRole(ctx, target.ID, model.RoleUser); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed admin privileges from %s.", target.DisplayName), nil
}

func (d *Dispatcher) handleMakeUser(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM makeUser <user>")
	}
	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, "grant member role to"); msg != "" || err != nil {
		return msg, err
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if len(cfg.MemberRoleIDs) == 0 {
		return "Member roles must be set before using this command.", nil
	}
	if err := d.platform.AddRole(ctx, target.ID, cfg.MemberRoleIDs[0]); err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}

	if _, msg, err := d.targetIdentity(ctx, target.ID); msg != "" || err != nil {
		return msg, err
	}
	// role history gets an entry even when the member already held the role
	if _, err := d.identity.SetRole(ctx, target.ID, model.RoleMember); err != nil {
		return "", err
	}
	return fmt.Sprintf("Granted member role to %s.", target.DisplayName), nil
}

func (d *Dispatcher) handleRemoveMemberRole(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM removeMemberRole <user>")
	}
	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, "remove member role from"); msg != "" || err != nil {
		return msg, err
	}

	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	for _, role := range cfg.MemberRoleIDs {
		if err := d.platform.RemoveRole(ctx, target.ID, role); err != nil {
			return "", errors.Join(model.ErrExternal, err)
		}
	}

	rec, msg, err := d.targetIdentity(ctx, target.ID)
	if msg != "" || err != nil {
		return msg, err
	}
	// stored role only steps down when it was member; admins keep theirs
	if rec.Role == model.RoleMember {
		if _, err := d.identity.SetRole(ctx, target.ID, model.RoleUser); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Removed member role from %s.", target.DisplayName), nil
}

func (d *Dispatcher) handleWarnUser(ctx context.Context, inv *invocation) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError("MM warnUser <user>")
	}
	caller, err := d.identity.Get(ctx, inv.msg.AuthorID)
	if err != nil {
		return "", err
	}
	if caller.AdminID == nil {
		return "You don't have an admin ID. Use MM generateID to generate one.", nil
	}

	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, "warn"); msg != "" || err != nil {
		return msg, err
	}
	rec, msg, err := d.targetIdentity(ctx, target.ID)
	if msg != "" || err != nil {
		return msg, err
	}

	warning := fmt.Sprintf("You have been warned by admin_%s.", *caller.AdminID)

	// both deliveries are best effort; the warning counts once either lands
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if ch, err := d.privateChannel(ctx, cfg, rec.UserID); err == nil {
		if err := d.platform.SendMessage(ctx, ch.ID, platform.Outgoing{Content: warning}); err != nil {
			d.logger.Warn("could not post warning in private channel", "channel", ch.ID, "error", err)
		}
	}
	if err := d.platform.SendDirectMessage(ctx, target.ID, warning); err != nil {
		d.logger.Debug("could not DM warning", "member", target.ID)
	}

	return fmt.Sprintf("Warned %s.", target.DisplayName), nil
}

func (d *Dispatcher) handleKickUser(ctx context.Context, inv *invocation) (string, error) {
	return d.expelUser(ctx, inv, "kick")
}

func (d *Dispatcher) handleBanUser(ctx context.Context, inv *invocation) (string, error) {
	return d.expelUser(ctx, inv, "ban")
}

func (d *Dispatcher) expelUser(ctx context.Context, inv *invocation, action string) (string, error) {
	if len(inv.args) != 1 {
		return "", newUsageError(fmt.Sprintf("MM %sUser <user>", action))
	}
	target, err := d.resolveTarget(ctx, inv.args[0])
	if err != nil {
		return "", err
	}
	if msg, err := d.requireUnprotectedTarget(ctx, target.ID, action); msg != "" || err != nil {
		return msg, err
	}

	// tear the private channel down up front; the remove event cleans up
	// the identity entry once the platform confirms the departure
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if rec, err := d.identity.Get(ctx, target.ID); err == nil {
		if ch, err := d.privateChannel(ctx, cfg, rec.UserID); err == nil {
			if err := d.platform.DeleteChannel(ctx, ch.ID); err != nil {
				d.logger.Warn("could not delete private channel", "channel", ch.ID, "error", err)
			}
		}
	}

	verb := "Kicked"
	if action == "ban" {
		verb = "Banned"
	}
	reason := verb + " by admin"
	if action == "kick" {
		err = d.platform.Kick(ctx, target.ID, reason)
	} else {
		err = d.platform.Ban(ctx, target.ID, reason)
	}
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	return fmt.Sprintf("%s %s.", verb, target.DisplayName), nil
}

func (d *Dispatcher) handlePurgeChannel(ctx context.Context, inv *invocation) (string, error) {
	channel := inv.msg.ChannelID
	amount := 0 // all messages

	for _, arg := range inv.args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n <= 0 {
				return "Amount must be greater than 0.", nil
			}
			amount = n
			continue
		}
		ch, err := d.platform.ResolveChannel(ctx, arg)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return "", model.ErrChannelNotFound
			}
			return "", errors.Join(model.ErrExternal, err)
		}
		channel = ch.ID
	}

	deleted, err := d.platform.PurgeMessages(ctx, channel, amount)
	if err != nil {
		return "", errors.Join(model.ErrExternal, err)
	}
	if deleted == 0 {
		return "No messages to purge.", nil
	}
	return fmt.Sprintf("Purged %d messages from <#%s>.", deleted, channel), nil
}
