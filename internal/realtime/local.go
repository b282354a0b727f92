package realtime

import (
	"context"
	"sync"
)

type localSub struct {
	feed  *LocalFeed
	topic string
	fn    Handler
	once  sync.Once
}

func (s *localSub) Unsubscribe() error {
	s.once.Do(func() { s.feed.remove(s) })
	return nil
}

// LocalFeed delivers changes in-process, synchronously, to every subscriber
// of the change's table and room.
type LocalFeed struct {
	mu     sync.RWMutex
	topics map[string]map[*localSub]struct{} // table/roomID -> subscribers
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{topics: make(map[string]map[*localSub]struct{})}
}

func (f *LocalFeed) Subscribe(table, roomID string, fn Handler) (Subscription, error) {
	s := &localSub{feed: f, topic: topic(table, roomID), fn: fn}

	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.topics[s.topic]
	if !ok {
		subs = make(map[*localSub]struct{})
		f.topics[s.topic] = subs
	}
	subs[s] = struct{}{}
	return s, nil
}

func (f *LocalFeed) Publish(ctx context.Context, c Change) error {
	f.mu.RLock()
	subs := make([]*localSub, 0, len(f.topics[topic(c.Table, c.RoomID)]))
	for s := range f.topics[topic(c.Table, c.RoomID)] {
		subs = append(subs, s)
	}
	f.mu.RUnlock()

	// handlers run without the lock so they may unsubscribe or publish.
	for _, s := range subs {
		s.fn(ctx, c)
	}
	return nil
}

func (f *LocalFeed) remove(s *localSub) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if subs, ok := f.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(f.topics, s.topic)
		}
	}
}

func (f *LocalFeed) subscribers(table, roomID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[topic(table, roomID)])
}

func topic(table, roomID string) string {
	return table + "/" + roomID
}
