package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/natsx"
)

// NATSPusher sends push requests as NATS requests; the push service replies
// with an empty body or {"error": "..."}.
type NATSPusher struct {
	nc      natsx.Publisher
	subject string
}

func NewNATSPusher(nc natsx.Publisher, subject string) *NATSPusher {
	return &NATSPusher{nc: nc, subject: subject}
}

func (p *NATSPusher) Push(ctx context.Context, req PushRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}
	reply, err := natsx.TracedRequest(ctx, p.nc, p.subject, data)
	if err != nil {
		return err
	}
	if len(reply.Data) == 0 {
		return nil
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}
