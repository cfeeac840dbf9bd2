package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/relay"
)

func (d *Dispatcher) handleSend(ctx context.Context, inv *invocation) (string, error) {
	args := inv.args
	asAdmin := false
	if len(args) > 0 && strings.EqualFold(args[0], "asadmin") {
		asAdmin = true
		args = args[1:]
	}
	if len(args) < 2 {
		return "", newUsageError("MM send [asAdmin] <channel> <message>")
	}

	res, err := d.relay.Send(ctx, relay.SendRequest{
		Caller:      inv.msg.AuthorID,
		ChannelRef:  args[0],
		Text:        strings.Join(args[1:], " "),
		Attachments: inv.msg.Attachments,
		AsAdmin:     asAdmin,
	})
	if err != nil {
		return "", err
	}
	if !res.Delivered {
		// target sits inside the private category; stay silent
		return "", nil
	}
	if res.Degraded {
		return fmt.Sprintf("Sent, but without impersonation (no webhook permission); posted as the bot with your pseudonym %s in the text.", res.DisplayName), nil
	}
	return "", nil
}

func (d *Dispatcher) handleGenerateID(ctx context.Context, inv *invocation) (string, error) {
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return "", err
	}
	hasAdminRole := model.Intersects(inv.author.Roles, cfg.AdminRoleIDs)

	rec, _, err := d.identity.Generate(ctx, inv.msg.AuthorID, inv.author.DisplayName, hasAdminRole)
	if err != nil {
		return "", err
	}

	reply := fmt.Sprintf("Your user ID is: %s\nRole: %s", rec.UserID, rec.Role)
	if rec.AdminID != nil {
		reply += fmt.Sprintf("\nAdmin ID: %s", *rec.AdminID)
	}
	return reply, nil
}

func (d *Dispatcher) handleAdminRequest(ctx context.Context, inv *invocation) (string, error) {
	// member or admin tier; super-admin alone does not qualify
	memberErr := d.gate.RequireTier(ctx, inv.msg.AuthorID, model.TierMember)
	adminErr := d.gate.RequireTier(ctx, inv.msg.AuthorID, model.TierAdmin)
	if memberErr != nil && adminErr != nil {
		if !errors.Is(memberErr, model.ErrPermissionDenied) {
			return "", memberErr
		}
		return "", model.ErrPermissionDenied
	}

	if len(inv.args) == 0 {
		return "", newUsageError("MM adminRequest <content>")
	}

	target, err := d.broker.Request(ctx, inv.msg.AuthorID, strings.Join(inv.args, " "))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Your request was sent to admin_%s.", target), nil
}

func (d *Dispatcher) handleHelpDisplay(ctx context.Context, inv *invocation) (string, error) {
	caller := inv.msg.AuthorID
	isSuperAdmin := d.gate.RequireTier(ctx, caller, model.TierSuperAdmin) == nil
	isAdmin := d.gate.RequireTier(ctx, caller, model.TierAdmin) == nil
	isMember := d.gate.RequireTier(ctx, caller, model.TierMember) == nil

	var b strings.Builder
	b.WriteString("MaskerBot commands:\n")
	for _, name := range d.order {
		cmd := d.commands[name]
		visible := false
		switch cmd.level {
		case gatePublic:
			// adminRequest is member-or-admin; setRole is open during
			// bootstrap but listed for staff only
			switch cmd.name {
			case "adminRequest":
				visible = isMember || isAdmin
			case "setRole":
				visible = isSuperAdmin
			default:
				visible = true
			}
		case gateCommunity:
			visible = isMember || isAdmin || isSuperAdmin
		case gateAdmin:
			visible = isAdmin
		case gateSuperAdmin:
			visible = isSuperAdmin
		}
		if visible {
			fmt.Fprintf(&b, "%s - %s\n", cmd.usage, cmd.summary)
		}
	}
	return b.String(), nil
}

func (d *Dispatcher) handleDisplayMemberRoleHistory(ctx context.Context, inv *invocation) (string, error) {
	return d.formatTenure(ctx, model.RoleMember, "Member role history:")
}

func (d *Dispatcher) handleDisplayAdminRoleHistory(ctx context.Context, inv *invocation) (string, error) {
	return d.formatTenure(ctx, model.RoleAdmin, "Admin role history:")
}

func (d *Dispatcher) formatTenure(ctx context.Context, role model.Role, header string) (string, error) {
	tenures, err := d.identity.RoleTenure(ctx, role)
	if err != nil {
		return "", err
	}
	if len(tenures) == 0 {
		return "No role history recorded.", nil
	}

	now := d.clock.Now()
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, t := range tenures {
		days := int(now.Sub(t.Since).Hours() / 24)
		fmt.Fprintf(&b, "%s_%s - since %s (%d days)\n",
			role, t.Pseudonym, t.Since.Format("2006-01-02 15:04:05"), days)
	}
	return b.String(), nil
}

// parseMemberRef turns a user mention (<@id> or <@!id>) or a bare account id
// into a MemberID.
func parseMemberRef(token string) model.MemberID {
	if strings.HasPrefix(token, "<@") && strings.HasSuffix(token, ">") {
		token = strings.TrimSuffix(strings.TrimPrefix(token, "<@"), ">")
		token = strings.TrimPrefix(token, "!")
	}
	return model.MemberID(token)
}

// resolveTarget looks the referenced member up on the platform.
func (d *Dispatcher) resolveTarget(ctx context.Context, token string) (*platform.Member, error) {
	target, err := d.platform.Member(ctx, parseMemberRef(token))
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, model.ErrMemberNotFound
		}
		return nil, errors.Join(model.ErrExternal, err)
	}
	return target, nil
}

// privateChannel finds a member's identity channel: the channel inside the
// allowed category named after their user pseudonym.
func (d *Dispatcher) privateChannel(ctx context.Context, cfg *model.RoleConfig, pseudonym model.PseudonymID) (*platform.Channel, error) {
	if cfg.AllowedCategoryID == "" {
		return nil, model.ErrChannelNotFound
	}
	channels, err := d.platform.ChannelsInCategory(ctx, cfg.AllowedCategoryID)
	if err != nil {
		return nil, errors.Join(model.ErrExternal, err)
	}
	for _, ch := range channels {
		if ch.Name == string(pseudonym) {
			return ch, nil
		}
	}
	return nil, model.ErrChannelNotFound
}

