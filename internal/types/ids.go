// internal/types/ids.go
package types

import "github.com/google/uuid"

// ChatID identifies one Telegram conversation. It is opaque to the core;
// equality is the only operation the session store relies on.
type ChatID int64

// EventID correlates one inbound webhook event across log lines.
type EventID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
