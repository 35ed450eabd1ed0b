package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime"
)

const DefaultChannel = "trackflow:sse"

// frame is the pub/sub payload. Origin names the publishing instance.
type frame struct {
	Origin   uuid.UUID              `json:"origin"`
	Messages []realtime.SSEMessage `json:"messages"`
}

// Redis relays frames over one redis pub/sub channel. The client belongs to
// the caller and is not closed by Close.
type Redis struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
	origin  uuid.UUID
}

func NewRedis(log *logger.Logger, rdb goredis.UniversalClient, channel string) (*Redis, error) {
	if rdb == nil {
		return nil, errors.New("redis bus: nil client")
	}
	if log == nil {
		log = logger.Nop()
	}
	if channel = strings.TrimSpace(channel); channel == "" {
		channel = DefaultChannel
	}
	origin := uuid.New()
	return &Redis{
		log:     log.With("component", "sse_bus", "channel", channel, "origin", origin),
		rdb:     rdb,
		channel: channel,
		origin:  origin,
	}, nil
}

func (r *Redis) Publish(ctx context.Context, msgs ...realtime.SSEMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	raw, err := json.Marshal(frame{Origin: r.origin, Messages: msgs})
	if err != nil {
		return fmt.Errorf("encode sse frame: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

func (r *Redis) Relay(ctx context.Context, deliver func(realtime.SSEMessage)) error {
	if deliver == nil {
		return errors.New("redis bus: nil deliver func")
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	go func() {
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					r.log.Warn("sse relay subscription closed")
					return
				}
				msgs, err := decodeFrame(m.Payload)
				if err != nil {
					r.log.Warn("dropping sse frame", "error", err)
					continue
				}
				for _, msg := range msgs {
					deliver(msg)
				}
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error { return nil }

// decodeFrame drops messages without a channel; a frame left empty is an error.
func decodeFrame(payload string) ([]realtime.SSEMessage, error) {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return nil, err
	}
	out := f.Messages[:0]
	for _, m := range f.Messages {
		if strings.TrimSpace(m.Channel) != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("frame has no routable messages")
	}
	return out, nil
}
