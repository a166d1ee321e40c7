package state

import (
	"fmt"
	"time"
)

// Message types. Messages persisted before the type field existed decode
// with an empty Type; readers normalize that to plain.
const (
	MsgPlain            = "plain"
	MsgIdle             = "idle"
	MsgTaskAssignment   = "task_assignment"
	MsgShutdownRequest  = "shutdown_request"
	MsgShutdownApproved = "shutdown_approved"
)

// BroadcastRecipient is the literal "to" value for broadcast messages.
const BroadcastRecipient = "broadcast"

// Message is one inbox entry.
type Message struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Type       string    `json:"type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
	Recipients []string  `json:"recipients,omitempty"` // broadcast fan-out list
}

// EffectiveType normalizes the backward-compatible empty type to plain.
func (m *Message) EffectiveType() string {
	if m.Type == "" {
		return MsgPlain
	}
	return m.Type
}

func (m *Message) Validate() error {
	if m.From == "" {
		return fmt.Errorf("message has no sender")
	}
	if m.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	switch m.Type {
	case "", MsgPlain, MsgIdle, MsgTaskAssignment, MsgShutdownRequest, MsgShutdownApproved:
	default:
		return fmt.Errorf("invalid message type %q", m.Type)
	}
	return nil
}

// Inbox is the append-only, read-tracked message sequence for one agent.
type Inbox struct {
	Messages []Message `json:"messages"`
}

func (i *Inbox) Validate() error {
	for n := range i.Messages {
		if err := i.Messages[n].Validate(); err != nil {
			return fmt.Errorf("message %d: %w", n, err)
		}
	}
	return nil
}
