// Package gateway is the HTTP ingress for platform events. Deliveries are
// signed with ed25519, rate limited per sender, and handed to the bot
// dispatcher one goroutine per event; ordering guarantees come from the
// storage layer's transactions, not from the gateway.
package gateway

import (
	"context"

	"github.com/TheGitHubist/MaskerBot/internal/platform"
)

// EventType discriminates the payload of an Event.
type EventType string

const (
	EventMessageCreate EventType = "message_create"
	EventMemberJoin    EventType = "member_join"
	EventMemberRemove  EventType = "member_remove"
)

// Event is the wire envelope for one platform event. ID is assigned by the
// gateway when the sender leaves it empty.
type Event struct {
	ID     string            `json:"id,omitempty"`
	Type   EventType         `json:"type"`
	Msg    *platform.Message `json:"message,omitempty"`
	Member *platform.Member  `json:"member,omitempty"`
}

// EventSink consumes decoded events. *bot.Dispatcher is the production sink.
type EventSink interface {
	HandleMessage(ctx context.Context, msg platform.Message)
	HandleMemberJoin(ctx context.Context, member platform.Member)
	HandleMemberRemove(ctx context.Context, member platform.Member)
}
