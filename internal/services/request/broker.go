package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheGitHubist/MaskerBot/internal/dependencies/clock"
	"github.com/TheGitHubist/MaskerBot/internal/dependencies/random"
	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/identity"
)

// CooldownDays is the per-member admin request quota window
const CooldownDays = 7

// Broker forwards a member's request to one randomly chosen admin without
// revealing the requester's real account. Admins are drawn from the stored
// identity table, not from live platform roles.
type Broker struct {
	identity *identity.Service
	platform platform.Platform
	clock    clock.Clock
	random   random.Random
	logger   *slog.Logger
}

// NewBroker creates a new request Broker
func NewBroker(
	identity *identity.Service,
	platform platform.Platform,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Broker {
	return &Broker{
		identity: identity,
		platform: platform,
		clock:    clock,
		random:   random,
		logger:   logger,
	}
}

// Request relays content to a random admin's direct messages and returns the
// pseudonym of the admin it was delivered to. Each member gets one accepted
// request per rolling seven days; elapsed time is counted in whole days, so
// three days in the caller is told four days remain.
//
// The quota stamp is written before delivery is attempted. A failed DM still
// burns the week, matching the long-standing behavior admins rely on to stop
// retry spam.
func (b *Broker) Request(ctx context.Context, caller model.MemberID, content string) (model.PseudonymID, error) {
	// cooldown check and quota stamp run inside one storage transaction;
	// concurrent requests from the same member race on the claim, and the
	// losers see the winner's stamp
	rec, prev, err := b.identity.ClaimAdminRequest(ctx, caller, b.clock.Now(), CooldownDays)
	if err != nil {
		return "", err
	}

	admins, err := b.identity.ListAdmins(ctx)
	if err != nil {
		b.release(ctx, caller, prev)
		return "", err
	}
	if len(admins) == 0 {
		// nobody to deliver to; hand the quota back
		b.release(ctx, caller, prev)
		return "", model.ErrNoAdmins
	}
	selected := admins[b.random.Intn(len(admins))]

	// Admins request under their admin pseudonym, everyone else under the
	// user one.
	requester := fmt.Sprintf("user_%s", rec.UserID)
	if rec.AdminID != nil {
		requester = fmt.Sprintf("admin_%s", *rec.AdminID)
	}

	target := selected.UserID
	if selected.AdminID != nil {
		target = *selected.AdminID
	}

	body := fmt.Sprintf("Admin request by %s:\n\n%s", requester, content)
	if err := b.platform.SendDirectMessage(ctx, selected.MemberID, body); err != nil {
		b.logger.Warn("admin request delivery failed",
			"admin", selected.MemberID,
			"error", err,
		)
		return "", errors.Join(model.ErrDeliveryFailed, err)
	}

	b.logger.Info("admin request delivered",
		"requester", requester,
		"admin", selected.MemberID,
	)
	return target, nil
}

// release restores the pre-claim stamp when the request could not be
// brokered. A failed release leaves the member throttled until the window
// expires; it is logged, not surfaced.
func (b *Broker) release(ctx context.Context, caller model.MemberID, prev *time.Time) {
	if err := b.identity.ReleaseAdminRequest(ctx, caller, prev); err != nil {
		b.logger.Warn("failed to release admin request slot",
			"member", caller,
			"error", err,
		)
	}
}
