package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/samber/lo"
)

const maxRoomNameLength = 100

type RoomDirectoryConfig struct {
	DefaultRoomName string
	MaxGroupMembers int64
}

type GroupInput struct {
	Name        string
	Description string
	CreatorID   string
	MemberIDs   []string
	IsPrivate   bool
	MaxMembers  int64
}

type RoomDirectory struct {
	rooms   RoomStore
	members MemberStore
	query   RoomQuery
	guard   guard
	cfg     RoomDirectoryConfig
	log     *slog.Logger
}

func NewRoomDirectory(rooms RoomStore, members MemberStore, query RoomQuery, cfg RoomDirectoryConfig, log *slog.Logger) *RoomDirectory {
	if cfg.DefaultRoomName == "" {
		cfg.DefaultRoomName = "General"
	}
	if cfg.MaxGroupMembers <= 0 {
		cfg.MaxGroupMembers = 50
	}
	return &RoomDirectory{
		rooms:   rooms,
		members: members,
		query:   query,
		guard:   guard{members: members},
		cfg:     cfg,
		log:     log,
	}
}

// ListRooms returns the user's rooms with member counts and last-message
// previews, most recently active first. An empty list is not an error.
func (d *RoomDirectory) ListRooms(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	list, err := d.query.ListForUser(ctx, userID)
	if err != nil {
		return nil, domain.Transport(err)
	}
	sortSummaries(list)
	return list, nil
}

// Rooms is ListRooms that bootstraps a default room for users with none.
func (d *RoomDirectory) Rooms(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	list, err := d.ListRooms(ctx, userID)
	if err != nil || len(list) > 0 {
		return list, err
	}
	if _, err := d.EnsureDefaultRoom(ctx, userID); err != nil {
		return nil, err
	}
	return d.ListRooms(ctx, userID)
}

// CreateDirect returns the direct room of the unordered pair, creating it once.
func (d *RoomDirectory) CreateDirect(ctx context.Context, userA, userB string) (string, error) {
	if err := requireActor(userA); err != nil {
		return "", err
	}
	if userB == "" || userA == userB {
		return "", domain.Invalid("direct room needs two distinct users")
	}
	id, err := d.rooms.CreateDirect(ctx, userA, userB)
	if err != nil {
		return "", domain.Transport(err)
	}
	return id, nil
}

func (d *RoomDirectory) CreateGroup(ctx context.Context, in GroupInput) (*domain.Room, error) {
	if err := requireActor(in.CreatorID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid("room name is required")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, domain.Invalid("room name longer than %d characters", maxRoomNameLength)
	}

	others := lo.Uniq(lo.Filter(in.MemberIDs, func(id string, _ int) bool {
		return id != "" && id != in.CreatorID
	}))
	maxMembers := in.MaxMembers
	if maxMembers <= 0 {
		maxMembers = d.cfg.MaxGroupMembers
	}
	if int64(len(others)+1) > maxMembers {
		return nil, domain.ErrRoomFull
	}

	room := &domain.Room{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Kind:        domain.RoomKindGroup,
		IsPrivate:   in.IsPrivate,
		CreatedBy:   in.CreatorID,
		MaxMembers:  maxMembers,
	}
	if err := d.rooms.Create(ctx, room); err != nil {
		return nil, domain.Transport(err)
	}

	members := append([]domain.Membership{{RoomID: room.ID, UserID: in.CreatorID, IsAdmin: true}},
		lo.Map(others, func(id string, _ int) domain.Membership {
			return domain.Membership{RoomID: room.ID, UserID: id}
		})...)
	if err := d.members.AddMany(ctx, room.ID, members); err != nil {
		// a group must never exist without members.
		if cerr := d.rooms.Delete(context.WithoutCancel(ctx), room.ID); cerr != nil {
			d.log.ErrorContext(ctx, "compensating room delete failed",
				slog.String("room_id", room.ID), slog.Any("err", cerr))
		}
		return nil, domain.Transport(err)
	}
	return room, nil
}

// DeleteRoom is allowed to admins, and to any member of a direct room.
// Messages, memberships, typing rows and the room go away together.
func (d *RoomDirectory) DeleteRoom(ctx context.Context, roomID, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	room, err := d.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.Transport(err)
	}

	if err := d.guard.requireMember(ctx, roomID, actorID); err != nil {
		if errors.Is(err, domain.ErrNotInRoom) {
			return domain.ErrPermissionDenied
		}
		return err
	}
	if room.Kind != domain.RoomKindDirect {
		admin, err := d.guard.isAdmin(ctx, roomID, actorID)
		if err != nil {
			return err
		}
		if !admin {
			return domain.ErrPermissionDenied
		}
	}

	if err := d.rooms.DeleteCascade(ctx, roomID); err != nil {
		return domain.Transport(err)
	}
	access.FromContext(ctx).InvalidateResource(roomResource(roomID))
	return nil
}

// EnsureDefaultRoom is an upsert on the user's scope key, so concurrent
// calls for the same user converge on one room.
func (d *RoomDirectory) EnsureDefaultRoom(ctx context.Context, userID string) (*domain.Room, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	scope := "default:" + userID
	room, err := d.rooms.EnsureScoped(ctx, domain.Room{
		Name:       d.cfg.DefaultRoomName,
		Kind:       domain.RoomKindGroup,
		IsPrivate:  true,
		CreatedBy:  userID,
		MaxMembers: d.cfg.MaxGroupMembers,
		ScopeKey:   &scope,
	})
	if err != nil {
		return nil, domain.Transport(err)
	}

	err = d.members.AddMany(ctx, room.ID, []domain.Membership{{RoomID: room.ID, UserID: userID, IsAdmin: true}})
	if err != nil {
		return nil, domain.Transport(err)
	}
	access.FromContext(ctx).InvalidateResource(roomResource(room.ID))
	return room, nil
}

func (d *RoomDirectory) Members(ctx context.Context, roomID, actorID string) ([]domain.Membership, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := d.guard.requireMember(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	list, err := d.members.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, domain.Transport(err)
	}
	return list, nil
}
