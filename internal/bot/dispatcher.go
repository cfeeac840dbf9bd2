// Package bot parses prefixed commands out of guild messages and routes them
// to the identity, relay, config and request services. It also reacts to
// member join/remove events and polices messages posted outside the private
// identity category.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TheGitHubist/MaskerBot/internal/dependencies/clock"
	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/authz"
	"github.com/TheGitHubist/MaskerBot/internal/services/identity"
	"github.com/TheGitHubist/MaskerBot/internal/services/relay"
	"github.com/TheGitHubist/MaskerBot/internal/services/request"
	"github.com/TheGitHubist/MaskerBot/internal/services/roleconfig"
)

// CommandPrefix starts every command message
const CommandPrefix = "MM "

// gateLevel is the tier requirement checked before a handler runs. Levels
// are independent sets, not ranks; see authz.Gate.
type gateLevel int

const (
	// gatePublic skips the gate entirely; the handler does its own checks
	gatePublic gateLevel = iota
	// gateCommunity requires membership of any configured tier
	gateCommunity
	// gateAdmin requires an admin tier role
	gateAdmin
	// gateSuperAdmin requires the super-admin role
	gateSuperAdmin
)

type invocation struct {
	msg    platform.Message
	author *platform.Member
	args   []string
}

type command struct {
	name    string
	usage   string
	summary string
	level   gateLevel
	handler func(ctx context.Context, inv *invocation) (string, error)
}

// Dispatcher routes commands and events. It is safe for concurrent use; all
// shared state lives behind the storage layer's transactions.
type Dispatcher struct {
	identity *identity.Service
	config   *roleconfig.Service
	gate     *authz.Gate
	relay    *relay.Service
	broker   *request.Broker
	platform platform.Platform
	clock    clock.Clock
	logger   *slog.Logger

	commands map[string]*command
	// ordered names for helpDisplay output
	order []string
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	identityService *identity.Service,
	configService *roleconfig.Service,
	gate *authz.Gate,
	relayService *relay.Service,
	broker *request.Broker,
	pf platform.Platform,
	clk clock.Clock,
	logger *slog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		identity: identityService,
		config:   configService,
		gate:     gate,
		relay:    relayService,
		broker:   broker,
		platform: pf,
		clock:    clk,
		logger:   logger.With(slog.String("component", "dispatcher")),
		commands: make(map[string]*command),
	}
	d.registerCommands()
	return d
}

func (d *Dispatcher) register(c *command) {
	d.commands[c.name] = c
	d.order = append(d.order, c.name)
}

func (d *Dispatcher) registerCommands() {
	d.register(&command{
		name:    "send",
		usage:   "MM send [asAdmin] <channel> <message>",
		summary: "Send a message to a channel anonymously. Use 'asAdmin' to send as admin.",
		level:   gateCommunity,
		handler: d.handleSend,
	})
	d.register(&command{
		name:    "generateID",
		usage:   "MM generateID",
		summary: "Generate or retrieve your user ID and role.",
		level:   gateCommunity,
		handler: d.handleGenerateID,
	})
	d.register(&command{
		name:    "adminRequest",
		usage:   "MM adminRequest <content>",
		summary: "Send an admin request to a random admin. Limited to one per week.",
		level:   gatePublic, // member-or-admin, checked in the handler
		handler: d.handleAdminRequest,
	})
	d.register(&command{
		name:    "helpDisplay",
		usage:   "MM helpDisplay",
		summary: "Display this help message.",
		level:   gatePublic,
		handler: d.handleHelpDisplay,
	})
	d.register(&command{
		name:    "setRole",
		usage:   "MM setRole <superAdmin/admin/member> <roles>",
		summary: "Set roles for superAdmin, admin, or member.",
		level:   gatePublic, // bootstrap-aware, checked in the handler
		handler: d.handleSetRole,
	})
	d.register(&command{
		name:    "addRole",
		usage:   "MM addRole <admin/member> <roles>",
		summary: "Add roles to admin or member.",
		level:   gateSuperAdmin,
		handler: d.handleAddRole,
	})
	d.register(&command{
		name:    "removeFromRole",
		usage:   "MM removeFromRole <admin/member> <roles>",
		summary: "Remove roles from admin or member.",
		level:   gateSuperAdmin,
		handler: d.handleRemoveFromRole,
	})
	d.register(&command{
		name:    "setAllowedCategory",
		usage:   "MM setAllowedCategory",
		summary: "Set the category of this channel as the allowed category.",
		level:   gateSuperAdmin,
		handler: d.handleSetAllowedCategory,
	})
	d.register(&command{
		name:    "setWelcomeHere",
		usage:   "MM setWelcomeHere",
		summary: "Set this channel as the welcome channel.",
		level:   gateSuperAdmin,
		handler: d.handleSetWelcomeHere,
	})
	d.register(&command{
		name:    "makeAdmin",
		usage:   "MM makeAdmin <user>",
		summary: "Grant admin privileges to a user.",
		level:   gateSuperAdmin,
		handler: d.handleMakeAdmin,
	})
	d.register(&command{
		name:    "removeAdmin",
		usage:   "MM removeAdmin <user>",
		summary: "Remove admin privileges from a user.",
		level:   gateSuperAdmin,
		handler: d.handleRemoveAdmin,
	})
	d.register(&command{
		name:    "makeUser",
		usage:   "MM makeUser <user>",
		summary: "Grant member role to a user.",
		level:   gateAdmin,
		handler: d.handleMakeUser,
	})
	d.register(&command{
		name:    "removeMemberRole",
		usage:   "MM removeMemberRole <user>",
		summary: "Remove member role from a user.",
		level:   gateAdmin,
		handler: d.handleRemoveMemberRole,
	})
	d.register(&command{
		name:    "warnUser",
		usage:   "MM warnUser <user>",
		summary: "Warn a user in their private channel and by DM.",
		level:   gateAdmin,
		handler: d.handleWarnUser,
	})
	d.register(&command{
		name:    "kickUser",
		usage:   "MM kickUser <user>",
		summary: "Kick a user from the server.",
		level:   gateAdmin,
		handler: d.handleKickUser,
	})
	d.register(&command{
		name:    "banUser",
		usage:   "MM banUser <user>",
		summary: "Ban a user from the server.",
		level:   gateAdmin,
		handler: d.handleBanUser,
	})
	d.register(&command{
		name:    "purgeChannel",
		usage:   "MM purgeChannel [amount] [channel]",
		summary: "Purge messages from a channel.",
		level:   gateAdmin,
		handler: d.handlePurgeChannel,
	})
	d.register(&command{
		name:    "makeChannel",
		usage:   "MM makeChannel <category> <channel> [voc] [adminOnly]",
		summary: "Create a private channel in a category.",
		level:   gateCommunity,
		handler: d.handleMakeChannel,
	})
	d.register(&command{
		name:    "removeChannel",
		usage:   "MM removeChannel <category> <channel>",
		summary: "Remove a channel from a category.",
		level:   gateAdmin,
		handler: d.handleRemoveChannel,
	})
	d.register(&command{
		name:    "makeCategory",
		usage:   "MM makeCategory <category> [adminOnly]",
		summary: "Create a category.",
		level:   gateSuperAdmin,
		handler: d.handleMakeCategory,
	})
	d.register(&command{
		name:    "removeCategory",
		usage:   "MM removeCategory <category>",
		summary: "Remove a category.",
		level:   gateSuperAdmin,
		handler: d.handleRemoveCategory,
	})
	d.register(&command{
		name:    "displayMemberRoleHistory",
		usage:   "MM displayMemberRoleHistory",
		summary: "Display member role history for all users.",
		level:   gateAdmin,
		handler: d.handleDisplayMemberRoleHistory,
	})
	d.register(&command{
		name:    "displayAdminRoleHistory",
		usage:   "MM displayAdminRoleHistory",
		summary: "Display admin role history for all users.",
		level:   gateSuperAdmin,
		handler: d.handleDisplayAdminRoleHistory,
	})
}

// HandleMessage processes one incoming guild message: commands are parsed
// and executed, everything else goes through message policing. It never
// returns an error; failures turn into replies or log lines.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg platform.Message) {
	defer d.recoverPanic("message", string(msg.ChannelID))

	author, err := d.platform.Member(ctx, msg.AuthorID)
	if err != nil {
		// webhook and system messages have no member entry
		return
	}
	if author.IsBot {
		return
	}

	allowed, err := d.messageAllowed(ctx, msg, author)
	if err != nil {
		d.logger.Error("message policing check failed", "error", err)
		return
	}
	if !allowed {
		d.removeDisallowed(ctx, msg)
		return
	}

	if !strings.HasPrefix(msg.Content, CommandPrefix) {
		return
	}
	d.dispatch(ctx, msg, author)
}

func (d *Dispatcher) dispatch(ctx context.Context, msg platform.Message, author *platform.Member) {
	fields := strings.Fields(strings.TrimPrefix(msg.Content, CommandPrefix))
	if len(fields) == 0 {
		return
	}
	name := fields[0]
	cmd, ok := d.commands[name]
	if !ok {
		d.reply(ctx, msg.ChannelID, "Unknown command. Use MM helpDisplay to list available commands.")
		return
	}

	inv := &invocation{msg: msg, author: author, args: fields[1:]}

	if err := d.checkGate(ctx, cmd, msg.AuthorID); err != nil {
		d.reply(ctx, msg.ChannelID, userMessage(err))
		return
	}

	reply, err := cmd.handler(ctx, inv)
	if err != nil {
		d.logger.Info("command failed",
			"command", name,
			"author", msg.AuthorID,
			"error", err,
		)
		d.reply(ctx, msg.ChannelID, userMessage(err))
		return
	}
	if reply != "" {
		d.reply(ctx, msg.ChannelID, reply)
	}
}

func (d *Dispatcher) checkGate(ctx context.Context, cmd *command, caller model.MemberID) error {
	switch cmd.level {
	case gateCommunity:
		return d.gate.RequireCommunity(ctx, caller)
	case gateAdmin:
		return d.gate.RequireTier(ctx, caller, model.TierAdmin)
	case gateSuperAdmin:
		return d.gate.RequireTier(ctx, caller, model.TierSuperAdmin)
	}
	return nil
}

// messageAllowed mirrors the policing rule: a message may stand when it sits
// inside the private identity category, or when its author holds an admin
// tier role. An unset category allows everything.
func (d *Dispatcher) messageAllowed(ctx context.Context, msg platform.Message, author *platform.Member) (bool, error) {
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return false, err
	}
	if cfg.AllowedCategoryID == "" {
		return true, nil
	}
	if model.Intersects(author.Roles, cfg.AdminRoleIDs) {
		return true, nil
	}
	ch, err := d.platform.Channel(ctx, msg.ChannelID)
	if err != nil {
		return false, err
	}
	return ch.InCategory(cfg.AllowedCategoryID), nil
}

func (d *Dispatcher) removeDisallowed(ctx context.Context, msg platform.Message) {
	if err := d.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		d.logger.Warn("failed to delete disallowed message", "channel", msg.ChannelID, "error", err)
		return
	}
	notice := fmt.Sprintf(
		"Deleted message:\n%q\nin channel %s.\nOnly MM send <channel> is allowed outside your private channel.",
		msg.Content, msg.ChannelID,
	)
	if err := d.platform.SendDirectMessage(ctx, msg.AuthorID, notice); err != nil {
		d.logger.Debug("could not DM policing notice", "member", msg.AuthorID)
	}
}

func (d *Dispatcher) reply(ctx context.Context, channel model.ChannelID, content string) {
	if err := d.platform.SendMessage(ctx, channel, platform.Outgoing{Content: content}); err != nil {
		d.logger.Warn("failed to send reply", "channel", channel, "error", err)
	}
}

func (d *Dispatcher) recoverPanic(kind, where string) {
	if r := recover(); r != nil {
		d.logger.Error("panic in event handler", "kind", kind, "where", where, "panic", r)
	}
}
