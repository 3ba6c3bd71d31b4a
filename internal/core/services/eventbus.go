package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventTypePlanUpdate EventType = "plan_update"
	EventTypeJobDone    EventType = "job_done"
)

// Well-known channel names.
const (
	PlanChannel = "plans"
	JobChannel  = "jobs"
)

// Event is a single notification published on a channel.
type Event struct {
	Channel   string
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

// EventBus fans out events to subscribers keyed by channel name. Publishing
// never blocks: a subscriber that falls behind drops events.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events for the given channel name,
// and a function that unsubscribes and closes it.
func (b *EventBus) Subscribe(channel string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[channel] = append(b.subs[channel], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[channel]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[channel] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of its channel.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Channel] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event bus channel full, dropping event", "channel", e.Channel)
		}
	}
}
