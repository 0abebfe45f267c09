// Package relay republishes committed auction events to Redis so observers
// outside this process can follow the auction. A pub/sub channel carries
// live traffic and a capped stream keeps an ordered backlog.
package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	"github.com/DoyleJ11/cricket-auction-backend/internal/types"
)

// streamMaxLen caps the backlog stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// Bus is where relayed messages go.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Source hands out observer subscriptions; the auctioneer is one.
type Source interface {
	Subscribe(ctx context.Context) (*hub.Subscription, error)
	Unsubscribe(sub *hub.Subscription)
}

type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
}

// RedisBus is a Bus backed by go-redis.
type RedisBus struct {
	rdb *redis.Client
}

// Dial connects to Redis and pings it before returning.
func Dial(ctx context.Context, cfg ClientConfig) (*RedisBus, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBus{rdb: rdb}, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

func (b *RedisBus) Close() error { return b.rdb.Close() }

type Relay struct {
	src     Source
	bus     Bus
	channel string
	stream  string
	timeout time.Duration
	backoff time.Duration
	log     *zap.Logger
}

type Options struct {
	Channel        string
	Stream         string
	PublishTimeout time.Duration
	Backoff        time.Duration
}

func New(src Source, bus Bus, log *zap.Logger, opts Options) *Relay {
	if opts.Channel == "" {
		opts.Channel = "auction:events"
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		src:     src,
		bus:     bus,
		channel: opts.Channel,
		stream:  opts.Stream,
		timeout: opts.PublishTimeout,
		backoff: opts.Backoff,
		log:     log,
	}
}

// Run relays events until ctx is done. If the relay falls behind and the
// hub drops it, it subscribes again and announces the fresh snapshot.
func (r *Relay) Run(ctx context.Context) error {
	for {
		sub, err := r.src.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("relay subscribe failed", zap.Error(err))
		} else {
			r.drain(ctx, sub)
			r.src.Unsubscribe(sub)
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("relay dropped by hub, resubscribing")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.backoff):
		}
	}
}

func (r *Relay) drain(ctx context.Context, sub *hub.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg hub.Message) {
	payload, err := json.Marshal(types.FromHub(msg))
	if err != nil {
		r.log.Error("relay encode failed", zap.Int("version", msg.Version), zap.Error(err))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.bus.Publish(pctx, r.channel, payload); err != nil {
		r.log.Warn("relay publish failed", zap.Int("version", msg.Version), zap.Error(err))
	}
	// Snapshots are not history; only events go to the backlog.
	if r.stream != "" && msg.Event != nil {
		if err := r.bus.StreamAppend(pctx, r.stream, payload); err != nil {
			r.log.Warn("relay stream append failed", zap.Int("version", msg.Version), zap.Error(err))
		}
	}
}
