package watch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"activityhub/internal/model"
)

type fakeSource struct {
	events []model.Event
	err    error
}

func (f *fakeSource) GetAllEvents(_ context.Context) ([]model.Event, error) {
	return f.events, f.err
}

func newTestHub(src *fakeSource) *Hub {
	log := zerolog.Nop()
	return NewHub(src, &log)
}

func TestBroadcastDeliversSnapshot(t *testing.T) {
	src := &fakeSource{events: []model.Event{{ID: "e1", Title: "Pottery"}}}
	hub := newTestHub(src)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Broadcast(context.Background())

	snapshot := <-ch
	if len(snapshot) != 1 || snapshot[0].ID != "e1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestSlowConsumerKeepsLatest(t *testing.T) {
	src := &fakeSource{events: []model.Event{{ID: "e1"}}}
	hub := newTestHub(src)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Broadcast(context.Background())
	src.events = []model.Event{{ID: "e1"}, {ID: "e2"}}
	hub.Broadcast(context.Background())

	snapshot := <-ch
	if len(snapshot) != 2 {
		t.Fatalf("slow consumer must see the latest snapshot, got %d events", len(snapshot))
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := newTestHub(&fakeSource{})

	ch, cancel := hub.Subscribe()
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after cancel")
	}

	// A broadcast after cancel must not panic on the closed channel.
	hub.Broadcast(context.Background())
}

func TestBroadcastSkipsOnFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	hub := newTestHub(src)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Broadcast(context.Background())

	select {
	case snapshot := <-ch:
		t.Fatalf("no snapshot expected on fetch error, got %+v", snapshot)
	default:
	}
}
