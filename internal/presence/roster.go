package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
)

// Roster is the set of other users currently typing in the open room, as
// seen through typing events.
type Roster struct {
	self string
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	users map[string]time.Time
}

func NewRoster(self string, ttl time.Duration) *Roster {
	return &Roster{self: self, ttl: ttl, now: time.Now, users: map[string]time.Time{}}
}

func (r *Roster) Reset(states []domain.TypingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = map[string]time.Time{}
	for _, st := range states {
		r.users[st.UserID] = r.now()
	}
}

// Apply reports whether the set changed.
func (r *Roster) Apply(ev realtime.TypingEvent) bool {
	if ev.State.UserID == r.self {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Op {
	case realtime.OpInsert, realtime.OpUpdate:
		_, had := r.users[ev.State.UserID]
		r.users[ev.State.UserID] = r.now()
		return !had
	case realtime.OpDelete:
		_, had := r.users[ev.State.UserID]
		delete(r.users, ev.State.UserID)
		return had
	}
	return false
}

// Users lists typing users, dropping entries not refreshed within the TTL.
func (r *Roster) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	out := make([]string, 0, len(r.users))
	for id, seen := range r.users {
		if id == r.self {
			continue
		}
		if r.ttl > 0 && seen.Before(cutoff) {
			delete(r.users, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
