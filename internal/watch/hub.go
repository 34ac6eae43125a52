package watch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"activityhub/internal/model"
)

type EventSource interface {
	GetAllEvents(ctx context.Context) ([]model.Event, error)
}

// Hub pushes full event-list snapshots to subscribers whenever the calendar
// changes. A subscriber gets a lazy, unbounded sequence of snapshots and must
// cancel its subscription on teardown.
type Hub struct {
	events EventSource
	log    *zerolog.Logger

	mu   sync.Mutex
	subs map[int]chan []model.Event
	next int
}

func NewHub(events EventSource, log *zerolog.Logger) *Hub {
	return &Hub{
		events: events,
		log:    log,
		subs:   make(map[int]chan []model.Event),
	}
}

// Subscribe registers a new consumer and returns its snapshot channel plus a
// cancel function. The channel is closed by cancel, never by the hub pushing.
func (h *Hub) Subscribe() (<-chan []model.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan []model.Event, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Broadcast fetches the current event list and fans it out. Slow consumers
// keep only the latest snapshot; intermediate ones are dropped.
func (h *Hub) Broadcast(ctx context.Context) {
	events, err := h.events.GetAllEvents(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch events for broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- events:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- events
		}
	}
}
