package tracking

import (
	"log/slog"
	"sync"
)

// HubMetrics receives broadcast outcomes. *metrics.Collector implements it.
type HubMetrics interface {
	RecordBroadcast(delivered, dropped int)
	SetSubscribers(n int)
}

type noopHubMetrics struct{}

func (noopHubMetrics) RecordBroadcast(int, int) {}
func (noopHubMetrics) SetSubscribers(int)       {}

// Subscriber is one control client. It may join any number of project
// channels and receives their events on C.
type Subscriber struct {
	ID string
	C  <-chan Event

	ch       chan Event
	projects map[string]struct{}
}

// Hub fans events out to the subscribers of a project channel. Publishing
// never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Subscriber]struct{}
	subscribers map[*Subscriber]struct{}
	buffer      int
	metrics     HubMetrics
	logger      *slog.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 100
	}
	return &Hub{
		rooms:       make(map[string]map[*Subscriber]struct{}),
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      buffer,
		metrics:     noopHubMetrics{},
		logger:      slog.Default().With("component", "tracking.hub"),
	}
}

// SetMetrics sets the metrics sink. A nil value disables metrics.
func (h *Hub) SetMetrics(m HubMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m == nil {
		m = noopHubMetrics{}
	}
	h.metrics = m
}

// Subscribe registers a new subscriber that has joined no project yet.
func (h *Hub) Subscribe(id string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	sub := &Subscriber{
		ID:       id,
		C:        ch,
		ch:       ch,
		projects: make(map[string]struct{}),
	}
	h.subscribers[sub] = struct{}{}
	h.metrics.SetSubscribers(len(h.subscribers))
	return sub
}

// Unsubscribe leaves every project and closes sub.C. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	for project := range sub.projects {
		h.leaveLocked(sub, project)
	}
	delete(h.subscribers, sub)
	close(sub.ch)
	h.metrics.SetSubscribers(len(h.subscribers))
}

// Join adds sub to a project channel.
func (h *Hub) Join(sub *Subscriber, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	room, ok := h.rooms[projectID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[projectID] = room
	}
	room[sub] = struct{}{}
	sub.projects[projectID] = struct{}{}

	h.logger.Debug("subscriber joined project", "subscriber_id", sub.ID, "project_id", projectID)
}

// Leave removes sub from a project channel.
func (h *Hub) Leave(sub *Subscriber, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, projectID)
}

func (h *Hub) leaveLocked(sub *Subscriber, projectID string) {
	if room, ok := h.rooms[projectID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, projectID)
		}
	}
	delete(sub.projects, projectID)
}

// Publish sends ev to every subscriber of the project and returns how many
// received it and how many were skipped because their buffer was full.
func (h *Hub) Publish(projectID string, ev Event) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[projectID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}

	if dropped > 0 {
		h.logger.Warn("slow subscribers missed event",
			"project_id", projectID,
			"event", ev.Name,
			"dropped", dropped,
		)
	}
	h.metrics.RecordBroadcast(delivered, dropped)
	return delivered, dropped
}

// Subscribers returns the number of subscribers in a project channel.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}
