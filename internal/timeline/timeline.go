package timeline

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const localPrefix = "local:"

// Backend performs the authoritative message operations.
type Backend interface {
	Fetch(ctx context.Context, actorID, roomID string, offset, limit int) ([]domain.Message, error)
	Send(ctx context.Context, in domain.SendInput) (*domain.Message, error)
	Edit(ctx context.Context, actorID, messageID, text string) (*domain.Message, error)
	Delete(ctx context.Context, actorID, messageID string) (*domain.Message, error)
}

type Profiles interface {
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// Notifier is told about every confirmed send that named recipients.
type Notifier interface {
	MessageSent(ctx context.Context, m domain.Message, recipientIDs []string)
}

type Item struct {
	domain.Message
	Pending      bool    `json:"pending,omitempty"`
	SenderName   string  `json:"sender_name,omitempty"`
	SenderAvatar *string `json:"sender_avatar,omitempty"`
}

type View struct {
	RoomID  string `json:"room_id"`
	Items   []Item `json:"items"`
	HasMore bool   `json:"has_more"`
	Version uint64 `json:"version"`
}

type SendRequest struct {
	Text         string
	Kind         domain.MessageKind
	FileURL      *string
	ReplyToID    *string
	RecipientIDs []string
}

type Config struct {
	UserID   string
	PageSize int
	Profiles Profiles
	Notifier Notifier
	OnChange func(View)
	Log      *slog.Logger
}

// Timeline is one session's view of the open room: authoritative rows from
// the backend blended with optimistic local writes.
type Timeline struct {
	backend  Backend
	profiles Profiles
	notifier Notifier
	onChange func(View)
	log      *slog.Logger
	userID   string
	pageSize int
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	roomID    string
	gen       uint64
	items     []Item
	pending   map[string]string   // client id -> provisional item id
	confirmed map[string]struct{} // client ids whose send has returned
	names     map[string]*domain.Profile
	hasMore   bool
	version   uint64

	emitMu  sync.Mutex
	emitted uint64 // last version handed to onChange
}

func New(backend Backend, cfg Config) *Timeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Timeline{
		backend:   backend,
		profiles:  cfg.Profiles,
		notifier:  cfg.Notifier,
		onChange:  cfg.OnChange,
		log:       cfg.Log,
		userID:    cfg.UserID,
		pageSize:  cfg.PageSize,
		now:       time.Now,
		newID:     uuid.NewString,
		pending:   map[string]string{},
		confirmed: map[string]struct{}{},
		names:     map[string]*domain.Profile{},
	}
}

// Open switches the active room and drops all local state. Results of calls
// started before Open are discarded when they complete.
func (t *Timeline) Open(roomID string) {
	t.mu.Lock()
	t.gen++
	t.roomID = roomID
	t.items = nil
	t.pending = map[string]string{}
	t.confirmed = map[string]struct{}{}
	t.hasMore = false
	v := t.changedLocked()
	t.mu.Unlock()

	t.emit(v)
}

func (t *Timeline) Room() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomID
}

// Fetch loads one page. Offset 0 replaces the rows loaded before the call;
// later pages add older rows. hasMore is true when the page came back full.
func (t *Timeline) Fetch(ctx context.Context, offset, limit int) error {
	limit = domain.PageLimit(limit, t.pageSize)
	gen, roomID, err := t.active()
	if err != nil {
		return err
	}
	var before map[string]struct{}
	if offset == 0 {
		before = t.settledIDs()
	}

	msgs, err := t.backend.Fetch(ctx, t.userID, roomID, offset, limit)
	if err != nil {
		if t.stale(gen) {
			return nil
		}
		return err
	}
	t.loadNames(ctx, lo.Map(msgs, func(m domain.Message, _ int) string { return m.SenderID }))

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return nil
	}
	if offset == 0 {
		// rows that arrived while the page was loading may be newer than it
		t.items = lo.Filter(t.items, func(it Item, _ int) bool {
			_, old := before[it.ID]
			return it.Pending || !old
		})
	}
	for _, m := range msgs {
		if t.indexLocked(m.ID) < 0 {
			t.items = append(t.items, t.itemLocked(m))
		}
	}
	t.sortLocked()
	t.hasMore = len(msgs) == limit
	v := t.changedLocked()
	t.mu.Unlock()

	t.emit(v)
	return nil
}

// LoadMore fetches the page after the rows already loaded.
func (t *Timeline) LoadMore(ctx context.Context) error {
	t.mu.Lock()
	loaded := lo.CountBy(t.items, func(it Item) bool { return !it.Pending })
	t.mu.Unlock()
	return t.Fetch(ctx, loaded, t.pageSize)
}

// Send shows the message at once as a pending item, then swaps in the stored
// row. A failed send removes the pending item again.
func (t *Timeline) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	gen, roomID, err := t.active()
	if err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = domain.MessageKindText
	}
	clientID := t.newID()
	provisional := domain.Message{
		ID:        localPrefix + clientID,
		RoomID:    roomID,
		SenderID:  t.userID,
		Text:      strings.TrimSpace(req.Text),
		Kind:      req.Kind,
		FileURL:   req.FileURL,
		ReplyToID: req.ReplyToID,
		ClientID:  &clientID,
		CreatedAt: t.now(),
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return nil, domain.Invalid("room changed")
	}
	it := t.itemLocked(provisional)
	it.Pending = true
	t.items = append(t.items, it)
	t.pending[clientID] = provisional.ID
	v := t.changedLocked()
	t.mu.Unlock()
	t.emit(v)

	m, err := t.backend.Send(ctx, domain.SendInput{
		RoomID:    roomID,
		SenderID:  t.userID,
		Text:      req.Text,
		Kind:      req.Kind,
		FileURL:   req.FileURL,
		ReplyToID: req.ReplyToID,
		ClientID:  &clientID,
	})

	t.mu.Lock()
	current := gen == t.gen
	if current {
		delete(t.pending, clientID)
		if err != nil {
			t.removeLocked(provisional.ID)
		} else {
			t.confirmed[clientID] = struct{}{}
			t.confirmLocked(provisional.ID, *m)
		}
		v = t.changedLocked()
	}
	t.mu.Unlock()
	if current {
		t.emit(v)
	}
	if err != nil {
		return nil, err
	}

	if t.notifier != nil && len(req.RecipientIDs) > 0 {
		t.notifier.MessageSent(ctx, *m, req.RecipientIDs)
	}
	return m, nil
}

// Edit applies the new text locally, then confirms or rolls back.
func (t *Timeline) Edit(ctx context.Context, messageID, text string) (*domain.Message, error) {
	return t.mutate(ctx, messageID,
		func(m *domain.Message) {
			m.Text = strings.TrimSpace(text)
			m.IsEdited = true
			now := t.now()
			m.EditedAt = &now
		},
		func(ctx context.Context) (*domain.Message, error) {
			return t.backend.Edit(ctx, t.userID, messageID, text)
		},
	)
}

// Delete hides the message locally, then confirms or rolls back.
func (t *Timeline) Delete(ctx context.Context, messageID string) (*domain.Message, error) {
	return t.mutate(ctx, messageID,
		func(m *domain.Message) { m.IsDeleted = true },
		func(ctx context.Context) (*domain.Message, error) {
			return t.backend.Delete(ctx, t.userID, messageID)
		},
	)
}

func (t *Timeline) mutate(
	ctx context.Context,
	messageID string,
	apply func(m *domain.Message),
	call func(ctx context.Context) (*domain.Message, error),
) (*domain.Message, error) {
	t.mu.Lock()
	gen := t.gen
	i := t.indexLocked(messageID)
	if i < 0 {
		t.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if t.items[i].SenderID != t.userID {
		t.mu.Unlock()
		return nil, domain.ErrPermissionDenied
	}
	if t.items[i].Pending {
		t.mu.Unlock()
		return nil, domain.Invalid("message is not sent yet")
	}
	if t.items[i].IsDeleted {
		t.mu.Unlock()
		return nil, domain.ErrMessageDeleted
	}
	prev := t.items[i].Message
	apply(&t.items[i].Message)
	v := t.changedLocked()
	t.mu.Unlock()
	t.emit(v)

	m, err := call(ctx)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return m, err
	}
	if i := t.indexLocked(messageID); i >= 0 {
		if err != nil {
			t.items[i].Message = prev
		} else {
			t.items[i].Message = *m
		}
	}
	v = t.changedLocked()
	t.mu.Unlock()
	t.emit(v)
	return m, err
}

// Apply reconciles one feed event with local state. An INSERT carrying the
// client id of this timeline's own send is merged into the pending item or
// dropped; everything else is inserted in order once.
func (t *Timeline) Apply(ctx context.Context, ev realtime.MessageEvent) {
	m := ev.Message

	t.mu.Lock()
	gen := t.gen
	if m.RoomID != t.roomID {
		t.mu.Unlock()
		return
	}

	switch ev.Op {
	case realtime.OpUpdate:
		i := t.indexLocked(m.ID)
		if i < 0 {
			t.mu.Unlock()
			return
		}
		t.items[i].Message = m

	case realtime.OpDelete:
		if !t.removeLocked(m.ID) {
			t.mu.Unlock()
			return
		}

	case realtime.OpInsert:
		switch t.reconcileLocked(m) {
		case known:
			t.mu.Unlock()
			return
		case fresh:
			_, haveName := t.names[m.SenderID]
			t.mu.Unlock()
			if !haveName {
				t.loadNames(ctx, []string{m.SenderID})
			}

			t.mu.Lock()
			if gen != t.gen {
				t.mu.Unlock()
				return
			}
			switch t.reconcileLocked(m) {
			case known:
				t.mu.Unlock()
				return
			case fresh:
				t.items = append(t.items, t.itemLocked(m))
				t.sortLocked()
			}
		}

	default:
		t.mu.Unlock()
		return
	}

	v := t.changedLocked()
	t.mu.Unlock()
	t.emit(v)
}

type reconcileResult int

const (
	fresh  reconcileResult = iota // not seen yet
	merged                        // echo of an in-flight send, now confirmed
	known                         // already shown
)

// reconcileLocked matches an inserted row against local state by client id
// first, then by id.
func (t *Timeline) reconcileLocked(m domain.Message) reconcileResult {
	if m.ClientID != nil {
		cid := *m.ClientID
		if provisionalID, ok := t.pending[cid]; ok {
			delete(t.pending, cid)
			t.confirmed[cid] = struct{}{}
			t.confirmLocked(provisionalID, m)
			return merged
		}
		if _, ok := t.confirmed[cid]; ok {
			return known
		}
	}
	if t.indexLocked(m.ID) >= 0 {
		return known
	}
	return fresh
}

// View returns the visible items (deleted excluded) in display order.
func (t *Timeline) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *Timeline) active() (uint64, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.roomID == "" {
		return 0, "", domain.Invalid("no open room")
	}
	return t.gen, t.roomID, nil
}

// settledIDs snapshots the ids of confirmed items.
func (t *Timeline) settledIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make(map[string]struct{}, len(t.items))
	for _, it := range t.items {
		if !it.Pending {
			ids[it.ID] = struct{}{}
		}
	}
	return ids
}

func (t *Timeline) stale(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.gen
}

// confirmLocked replaces the provisional item with the stored row, or drops it
// when the stored row is already present.
func (t *Timeline) confirmLocked(provisionalID string, m domain.Message) {
	if t.indexLocked(m.ID) >= 0 {
		t.removeLocked(provisionalID)
		return
	}
	if i := t.indexLocked(provisionalID); i >= 0 {
		t.items[i].Message = m
		t.items[i].Pending = false
	} else {
		t.items = append(t.items, t.itemLocked(m))
	}
	t.sortLocked()
}

func (t *Timeline) removeLocked(id string) bool {
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	t.items = append(t.items[:i], t.items[i+1:]...)
	return true
}

func (t *Timeline) indexLocked(id string) int {
	for i := range t.items {
		if t.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) itemLocked(m domain.Message) Item {
	it := Item{Message: m}
	p := t.names[m.SenderID]
	it.SenderName = p.Name()
	if p != nil {
		it.SenderAvatar = p.AvatarURL
	}
	return it
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.items, func(i, j int) bool {
		return domain.MessageBefore(t.items[i].Message, t.items[j].Message)
	})
}

func (t *Timeline) changedLocked() View {
	t.version++
	return t.viewLocked()
}

func (t *Timeline) viewLocked() View {
	return View{
		RoomID:  t.roomID,
		Items:   lo.Filter(t.items, func(it Item, _ int) bool { return !it.IsDeleted }),
		HasMore: t.hasMore,
		Version: t.version,
	}
}

// emit delivers views in version order; a view overtaken by a newer one is dropped.
func (t *Timeline) emit(v View) {
	if t.onChange == nil {
		return
	}
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if v.Version <= t.emitted {
		return
	}
	t.emitted = v.Version
	t.onChange(v)
}

// loadNames fetches unknown sender profiles; failures leave the fallback name.
func (t *Timeline) loadNames(ctx context.Context, ids []string) {
	if t.profiles == nil {
		return
	}
	t.mu.Lock()
	missing := lo.Uniq(lo.Filter(ids, func(id string, _ int) bool {
		_, ok := t.names[id]
		return !ok
	}))
	t.mu.Unlock()
	if len(missing) == 0 {
		return
	}

	found, err := t.profiles.GetMany(ctx, missing)
	if err != nil {
		t.log.WarnContext(ctx, "load sender profiles failed", slog.Any("err", err))
		return
	}

	t.mu.Lock()
	for _, id := range missing {
		t.names[id] = found[id] // nil marks a known-unknown sender
	}
	t.mu.Unlock()
}
