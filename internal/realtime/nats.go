package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/natsx"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "realtime"

// NATSFeed fans changes out across instances on realtime.<table>.<roomId>.
type NATSFeed struct {
	nc  *nats.Conn
	log *slog.Logger
}

func NewNATSFeed(nc *nats.Conn, log *slog.Logger) *NATSFeed {
	return &NATSFeed{nc: nc, log: log}
}

func (f *NATSFeed) Publish(ctx context.Context, c Change) error {
	subject, err := Subject(c.Table, c.RoomID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := natsx.TracedPublish(ctx, f.nc, subject, data); err != nil {
		return domain.Transport(err)
	}
	return nil
}

func (f *NATSFeed) Subscribe(table, roomID string, fn Handler) (Subscription, error) {
	subject, err := Subject(table, roomID)
	if err != nil {
		return nil, err
	}
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, span := natsx.StartConsumerSpan(context.Background(), msg, subject+" receive")
		defer span.End()

		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			f.log.WarnContext(ctx, "drop malformed change",
				slog.String("subject", msg.Subject), slog.Any("err", err))
			return
		}
		fn(ctx, c)
	})
	if err != nil {
		return nil, domain.Transport(err)
	}
	return sub, nil
}

// Subject rejects tokens that would turn the subject into a wildcard.
func Subject(table, roomID string) (string, error) {
	for _, tok := range []string{table, roomID} {
		if tok == "" || strings.ContainsAny(tok, ".*> \t") {
			return "", domain.Invalid("bad subject token %q", tok)
		}
	}
	return subjectPrefix + "." + table + "." + roomID, nil
}
