package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired          = errors.New("authentication required")
	ErrAmbiguousRelationship = errors.New("ambiguous relationship")
	ErrNotFound              = errors.New("not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrTransport             = errors.New("transport failure")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")

	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrNotInRoom       = fmt.Errorf("user not in the room: %w", ErrPermissionDenied)
	ErrRoomFull        = errors.New("room is full")
	ErrMessageDeleted  = errors.New("message is deleted")
)

// Transport wraps an unexpected backend error so callers can match ErrTransport
// while the original cause stays reachable through errors.Is/As.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	if isKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func isKnown(err error) bool {
	for _, target := range []error{
		ErrAuthRequired,
		ErrAmbiguousRelationship,
		ErrNotFound,
		ErrPermissionDenied,
		ErrTransport,
		ErrInvalidInput,
		ErrConflict,
		ErrRoomFull,
		ErrMessageDeleted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
