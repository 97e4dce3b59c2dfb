package dispatcher

import (
	"context"

	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
)

// Handler processes lifecycle events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// matches reports whether the handler receives events of the given type
func (h HandlerInfo) matches(t event.Type) bool {
	return h.EventType == anyType || h.EventType == t
}

// anyType marks handlers registered through SubscribeAll
const anyType event.Type = "*"
