package bot

import (
	"errors"
	"fmt"

	"github.com/TheGitHubist/MaskerBot/internal/model"
)

// usageError carries a command's usage string back to the channel.
type usageError struct {
	usage string
}

func (e *usageError) Error() string {
	return "usage: " + e.usage
}

func newUsageError(usage string) error {
	return &usageError{usage: usage}
}

// userMessage maps an error to the reply shown in the channel. Internal
// detail stays in the logs; the reply only says what the caller can act on.
func userMessage(err error) string {
	var ue *usageError
	if errors.As(err, &ue) {
		return "Usage: " + ue.usage
	}

	var rl *model.RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("You can only make one admin request per week. %d days left.", rl.DaysLeft)
	}

	switch {
	case errors.Is(err, model.ErrPermissionDenied):
		return "You are not allowed to use this command."
	case errors.Is(err, model.ErrIdentityNotFound):
		return "No ID found. Use MM generateID first."
	case errors.Is(err, model.ErrLegacyRecord):
		return "This ID is in the old format. Use MM generateID to migrate it."
	case errors.Is(err, model.ErrAlreadyAdmin):
		return "User is already an admin."
	case errors.Is(err, model.ErrNotAdmin):
		return "User is not an admin."
	case errors.Is(err, model.ErrInvalidRole):
		return "Invalid role."
	case errors.Is(err, model.ErrSuperAdminSingleton):
		return "Super admin must be a single role."
	case errors.Is(err, model.ErrInvalidTier):
		return "Invalid role type. Use superAdmin, admin, or member."
	case errors.Is(err, model.ErrNoSuperAdmin):
		return "No super admin role set."
	case errors.Is(err, model.ErrMemberNotFound):
		return "User not found."
	case errors.Is(err, model.ErrChannelNotFound):
		return "Invalid channel."
	case errors.Is(err, model.ErrCategoryNotFound):
		return "Category not found."
	case errors.Is(err, model.ErrNoAdmins):
		return "No admins available to handle requests."
	case errors.Is(err, model.ErrDeliveryFailed):
		return "Failed to send DM to the admin."
	case errors.Is(err, model.ErrExternal):
		return "The platform rejected the request. Try again later."
	default:
		return "An error occurred while running the command."
	}
}
