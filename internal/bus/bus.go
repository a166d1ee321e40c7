// Package bus is the in-process typed pub/sub used to connect the task
// engine, agent lifecycle, and dispatch engine. Delivery is synchronous
// and ordered: handlers run in registration order, emits in call order.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event taxonomy.
const (
	EventTaskCreated     = "task.created"
	EventTaskCompleted   = "task.completed"
	EventTaskUnblocked   = "task.unblocked"
	EventAgentIdle       = "agent.idle"
	EventAgentTerminated = "agent.terminated"
	EventTeamCreated     = "team.created"
	EventSessionIdle     = "session.idle"
)

// EventTypes lists the full taxonomy, for subscribers that want it all.
var EventTypes = []string{
	EventTaskCreated, EventTaskCompleted, EventTaskUnblocked,
	EventAgentIdle, EventAgentTerminated, EventTeamCreated, EventSessionIdle,
}

// Event is one coordination event. Payload keys are free-form
// (taskId, agentId, ...).
type Event struct {
	ID       uuid.UUID      `json:"id"`
	Type     string         `json:"type"`
	TeamName string         `json:"teamName"`
	Time     time.Time      `json:"time"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id and current timestamp.
func NewEvent(eventType, teamName string, payload map[string]any) Event {
	return Event{
		ID:       uuid.New(),
		Type:     eventType,
		TeamName: teamName,
		Time:     time.Now().UTC(),
		Payload:  payload,
	}
}

// Handler receives events. Handlers may emit further events through the
// same bus; the context carries the chain depth for the recursion guard.
type Handler func(ctx context.Context, ev Event)

// MaxEmitDepth caps handler-triggered event chains.
const MaxEmitDepth = 3

type depthKey struct{}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a process-local event bus. The zero value is not usable; use New.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for eventType and returns an unsubscribe
// closure.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers handler for every taxonomy event type.
func (b *Bus) SubscribeAll(handler Handler) func() {
	unsubs := make([]func(), 0, len(EventTypes))
	for _, et := range EventTypes {
		unsubs = append(unsubs, b.Subscribe(et, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Emit delivers ev to every subscriber of its type, sequentially in
// registration order. Handler panics are logged and swallowed so one bad
// subscriber cannot block the rest. Chains deeper than MaxEmitDepth are
// dropped with a log line.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxEmitDepth {
		slog.Warn("event chain too deep, dropping",
			"type", ev.Type, "team", ev.TeamName, "depth", depth)
		return
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	b.mu.RLock()
	list := make([]subscription, len(b.subs[ev.Type]))
	copy(list, b.subs[ev.Type])
	b.mu.RUnlock()

	for _, s := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked",
						"type", ev.Type, "team", ev.TeamName, "panic", r)
				}
			}()
			s.handler(ctx, ev)
		}()
	}
}
