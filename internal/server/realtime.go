package server

import (
	"context"
	"slices"
	"sync"
	"time"
)

const (
	// EventRevalidate names the SSE event telling clients which pages changed.
	EventRevalidate         = "revalidate"
	realtimeEventHeartbeat  = "heartbeat"
	realtimeSourceBackend   = "lectern-backend"
	revalidationBufferSize  = 16
	revalidationPathHome    = "/"
	revalidationPathAdmin   = "/admin"
	revalidationPathContent = "/admin/contenus"
	revalidationPathTaxon   = "/admin/categories"
	revalidationPathProfile = "/admin/profil"
)

// RevalidationMessage lists the page paths invalidated by an admin mutation.
type RevalidationMessage struct {
	Paths     []string
	Timestamp time.Time
}

// RevalidationDispatcher fans revalidation messages out to every
// connected subscriber. Slow subscribers drop messages instead of
// blocking publishers.
type RevalidationDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*revalidationSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type revalidationSubscriber struct {
	id     int64
	stream chan RevalidationMessage
}

func NewRevalidationDispatcher() *RevalidationDispatcher {
	return &RevalidationDispatcher{
		subscribers: make(map[int64]*revalidationSubscriber),
		bufferSize:  revalidationBufferSize,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx ends or cleanup runs.
func (d *RevalidationDispatcher) Subscribe(ctx context.Context) (<-chan RevalidationMessage, func()) {
	subscriber := &revalidationSubscriber{
		stream: make(chan RevalidationMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers paths to all subscribers. Empty path lists are ignored.
func (d *RevalidationDispatcher) Publish(paths ...string) {
	unique := make([]string, 0, len(paths))
	for _, candidate := range paths {
		if candidate == "" || slices.Contains(unique, candidate) {
			continue
		}
		unique = append(unique, candidate)
	}
	if len(unique) == 0 {
		return
	}
	message := RevalidationMessage{Paths: unique, Timestamp: d.clock().UTC()}

	d.mu.RLock()
	copies := make([]*revalidationSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams are registered.
func (d *RevalidationDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RevalidationDispatcher) registerSubscriber(subscriber *revalidationSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RevalidationDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
