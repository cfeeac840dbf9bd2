package redis

import (
	"fmt"

	"github.com/TheGitHubist/MaskerBot/internal/model"
)

// Key prefix for all bot data
const keyPrefix = "masker"

// identityKey returns the Redis key for one member's identity entry
func identityKey(member model.MemberID) string {
	return fmt.Sprintf("%s:identity:%s", keyPrefix, member)
}

// membersIndexKey returns the Redis key for the SET of known member ids
func membersIndexKey() string {
	return fmt.Sprintf("%s:idx:members", keyPrefix)
}

// pseudonymsIndexKey returns the Redis key for the SET of pseudonym ids in use
func pseudonymsIndexKey() string {
	return fmt.Sprintf("%s:idx:pseudonyms", keyPrefix)
}

// roleConfigKey returns the Redis key for the role configuration record
func roleConfigKey() string {
	return fmt.Sprintf("%s:roleconfig", keyPrefix)
}
