package service

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/access"
	"github.com/cwrk-planet/chat-service/internal/domain"
)

const (
	actionMember = "member"
	actionAdmin  = "admin"
)

func roomResource(roomID string) string { return "room:" + roomID }

// guard answers membership questions through the access cache in ctx.
type guard struct {
	members MemberStore
}

func (g guard) check(ctx context.Context, roomID, userID, action string) (bool, error) {
	key := access.Key{Subject: userID, Resource: roomResource(roomID), Action: action}
	return access.FromContext(ctx).Check(ctx, key, func(ctx context.Context) (bool, error) {
		m, err := g.members.Get(ctx, roomID, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotInRoom) {
				return false, nil
			}
			return false, domain.Transport(err)
		}
		if action == actionAdmin {
			return m.IsAdmin, nil
		}
		return true, nil
	})
}

func (g guard) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := g.check(ctx, roomID, userID, actionMember)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotInRoom
	}
	return nil
}

func (g guard) isAdmin(ctx context.Context, roomID, userID string) (bool, error) {
	return g.check(ctx, roomID, userID, actionAdmin)
}
