package model

import "errors"

// Common errors used across the application
var (
	// Gate errors
	ErrPermissionDenied = errors.New("permission denied")

	// Identity errors
	ErrIdentityNotFound = errors.New("identity not found")
	ErrLegacyRecord     = errors.New("identity record is in the legacy format and must be migrated")
	ErrAlreadyAdmin     = errors.New("member is already an admin")
	ErrNotAdmin         = errors.New("member is not an admin")
	ErrInvalidRole      = errors.New("invalid role")

	// Config errors
	ErrSuperAdminSingleton = errors.New("super admin must be a single role")
	ErrNoSuperAdmin        = errors.New("no super admin role configured")
	ErrInvalidTier         = errors.New("invalid tier")

	// Platform lookup errors
	ErrMemberNotFound   = errors.New("member not found")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrCategoryNotFound = errors.New("category not found")

	// Relay / broker errors
	ErrNoAdmins       = errors.New("no admins available to handle requests")
	ErrDeliveryFailed = errors.New("request delivery failed")

	// ErrExternal wraps platform failures. The original cause is logged,
	// never shown to the caller.
	ErrExternal = errors.New("platform request failed")
)

// RateLimitedError reports an admin request inside the 7-day cooldown.
// DaysLeft is whole days, computed by truncation.
type RateLimitedError struct {
	DaysLeft int
}

func (e *RateLimitedError) Error() string {
	return "rate limited: one admin request per week"
}

// ErrRateLimited allows errors.Is checks without inspecting DaysLeft.
var ErrRateLimited = &RateLimitedError{}

// Is matches any RateLimitedError regardless of the days remaining.
func (e *RateLimitedError) Is(target error) bool {
	_, ok := target.(*RateLimitedError)
	return ok
}
