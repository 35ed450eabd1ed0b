package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/realtime/bus"
	"github.com/yungbote/trackflow-backend/internal/temporalx"
)

// Clients holds connections to external systems. Redis, Kafka and Temporal are optional.
type Clients struct {
	Redis    goredis.UniversalClient
	SSEBus   bus.Bus
	Bucket   gcp.BucketService
	Kafka    *events.KafkaPublisher
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		b, err := bus.NewRedis(log, rdb, cfg.RedisChannel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.Redis = rdb
		out.SSEBus = b
	}

	bucket, err := openBucketService(ctx, log, cfg, metrics)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Bucket = bucket

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(log, cfg.KafkaBrokers, cfg.KafkaTopic, metrics)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init kafka publisher: %w", err)
		}
		out.Kafka = kp
	}

	tc, err := temporalx.NewClient(ctx, cfg.Temporal, log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Kafka != nil {
		_ = c.Kafka.Close()
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
