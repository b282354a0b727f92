package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for every postgres repository.
type memStore struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	rooms    map[string]domain.Room
	members  map[string]map[string]domain.Membership // room -> user -> membership
	messages map[string]domain.Message
	typing   map[[2]string]domain.TypingState
	direct   map[string]string // pair key -> room id

	failAddMembers error
	failPage       error
}

func newMemStore() *memStore {
	return &memStore{
		clock:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		rooms:    map[string]domain.Room{},
		members:  map[string]map[string]domain.Membership{},
		messages: map[string]domain.Message{},
		typing:   map[[2]string]domain.TypingState{},
		direct:   map[string]string{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// RoomStore

func (s *memStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room.ID = s.nextID("room")
	room.IsActive = true
	room.CreatedAt = s.tick()
	room.UpdatedAt = room.CreatedAt
	s.rooms[room.ID] = *room
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &r, nil
}

func (s *memStore) EnsureScoped(_ context.Context, room domain.Room) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.ScopeKey != nil && room.ScopeKey != nil && *r.ScopeKey == *room.ScopeKey {
			return &r, nil
		}
	}
	room.ID = s.nextID("room")
	room.IsActive = true
	room.CreatedAt = s.tick()
	room.UpdatedAt = room.CreatedAt
	s.rooms[room.ID] = room
	return &room, nil
}

func (s *memStore) CreateDirect(_ context.Context, actorID, otherID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := min(actorID, otherID) + ":" + max(actorID, otherID)
	if id, ok := s.direct[key]; ok {
		return id, nil
	}
	id := s.nextID("room")
	now := s.tick()
	s.rooms[id] = domain.Room{ID: id, Kind: domain.RoomKindDirect, IsPrivate: true, CreatedBy: actorID,
		MaxMembers: 2, IsActive: true, CreatedAt: now, UpdatedAt: now}
	s.direct[key] = id
	s.addLocked(id, domain.Membership{UserID: actorID, IsAdmin: true})
	s.addLocked(id, domain.Membership{UserID: otherID})
	return id, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *memStore) DeleteCascade(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return domain.ErrRoomNotFound
	}
	for mid, m := range s.messages {
		if m.RoomID == id {
			delete(s.messages, mid)
		}
	}
	for k := range s.typing {
		if k[0] == id {
			delete(s.typing, k)
		}
	}
	delete(s.members, id)
	delete(s.rooms, id)
	return nil
}

// MemberStore, reached through memberView to avoid the Get name clash.

type memberView struct{ *memStore }

func (v memberView) AddMany(_ context.Context, roomID string, members []domain.Membership) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failAddMembers != nil {
		return v.failAddMembers
	}
	for _, m := range members {
		v.addLocked(roomID, m)
	}
	return nil
}

func (v memberView) Get(_ context.Context, roomID, userID string) (*domain.Membership, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.members[roomID][userID]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	return &m, nil
}

func (v memberView) ListByRoom(_ context.Context, roomID string) ([]domain.Membership, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Membership, 0, len(v.members[roomID]))
	for _, m := range v.members[roomID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) addLocked(roomID string, m domain.Membership) {
	if s.members[roomID] == nil {
		s.members[roomID] = map[string]domain.Membership{}
	}
	if _, ok := s.members[roomID][m.UserID]; ok {
		return
	}
	m.RoomID = roomID
	m.JoinedAt = s.tick()
	s.members[roomID][m.UserID] = m
}

// RoomQuery computed from the maps.

type memRoomQuery struct {
	*memStore
	err error
}

func (q memRoomQuery) ListForUser(_ context.Context, userID string) ([]domain.RoomSummary, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.RoomSummary
	for roomID, ms := range q.members {
		if _, ok := ms[userID]; !ok {
			continue
		}
		s := domain.RoomSummary{Room: q.rooms[roomID], MemberCount: len(ms)}
		var last *domain.Message
		for _, m := range q.messages {
			if m.RoomID == roomID && !m.IsDeleted && (last == nil || domain.MessageBefore(*last, m)) {
				m := m
				last = &m
			}
		}
		if last != nil {
			s.LastMessage = &domain.LastMessage{SenderID: last.SenderID, SenderName: "Someone", Text: last.Text, CreatedAt: last.CreatedAt}
		}
		out = append(out, s)
	}
	return out, nil
}

// MessageStore

type messageView struct{ *memStore }

func (v messageView) Insert(_ context.Context, in domain.SendInput) (*domain.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if in.ClientID != nil {
		for _, m := range v.messages {
			if m.SenderID == in.SenderID && m.ClientID != nil && *m.ClientID == *in.ClientID {
				return &m, nil
			}
		}
	}
	m := domain.Message{
		ID: v.nextID("msg"), RoomID: in.RoomID, SenderID: in.SenderID, Text: in.Text, Kind: in.Kind,
		FileURL: in.FileURL, ReplyToID: in.ReplyToID, ClientID: in.ClientID, CreatedAt: v.tick(),
	}
	v.messages[m.ID] = m
	return &m, nil
}

func (v messageView) Get(_ context.Context, id string) (*domain.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return &m, nil
}

func (v messageView) Page(_ context.Context, roomID string, offset, limit int) ([]domain.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failPage != nil {
		return nil, v.failPage
	}
	var all []domain.Message
	for _, m := range v.messages {
		if m.RoomID == roomID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return domain.MessageBefore(all[j], all[i]) })
	if offset >= len(all) {
		return []domain.Message{}, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (v messageView) UpdateText(_ context.Context, id, senderID, text string) (*domain.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.messages[id]
	if !ok || m.SenderID != senderID || m.IsDeleted {
		return nil, domain.ErrMessageNotFound
	}
	now := v.tick()
	m.Text, m.IsEdited, m.EditedAt = text, true, &now
	v.messages[id] = m
	return &m, nil
}

func (v messageView) SoftDelete(_ context.Context, id, senderID string) (*domain.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.messages[id]
	if !ok || m.SenderID != senderID {
		return nil, domain.ErrMessageNotFound
	}
	m.IsDeleted = true
	v.messages[id] = m
	return &m, nil
}

// TypingStore

type typingView struct{ *memStore }

func (v typingView) Upsert(_ context.Context, roomID, userID string) (domain.TypingState, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := [2]string{roomID, userID}
	_, existed := v.typing[k]
	st := domain.TypingState{RoomID: roomID, UserID: userID, StartedAt: v.tick()}
	v.typing[k] = st
	return st, !existed, nil
}

func (v typingView) Delete(_ context.Context, roomID, userID string) (domain.TypingState, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := [2]string{roomID, userID}
	st, ok := v.typing[k]
	delete(v.typing, k)
	return st, ok, nil
}

func (v typingView) DeleteStale(_ context.Context, ttl time.Duration) ([]domain.TypingState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.TypingState
	for k, st := range v.typing {
		if st.StartedAt.Before(v.clock.Add(-ttl)) {
			out = append(out, st)
			delete(v.typing, k)
		}
	}
	return out, nil
}

func (v typingView) ListByRoom(_ context.Context, roomID string) ([]domain.TypingState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.TypingState
	for k, st := range v.typing {
		if k[0] == roomID {
			out = append(out, st)
		}
	}
	return out, nil
}

// recordingFeed captures published changes.
type recordingFeed struct {
	mu      sync.Mutex
	changes []realtime.Change
	err     error
}

func (f *recordingFeed) Publish(_ context.Context, c realtime.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.changes = append(f.changes, c)
	return nil
}

func (f *recordingFeed) ops() []realtime.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]realtime.Op, len(f.changes))
	for i, c := range f.changes {
		out[i] = c.Op
	}
	return out
}
