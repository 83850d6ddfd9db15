package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrFeedClosed is reported when a feed transport ends while still subscribed.
var ErrFeedClosed = errors.New("profile feed closed")

const defaultRedisPrefix = "profile:"

func docKey(prefix, uid string) string     { return prefix + uid }
func channelKey(prefix, uid string) string { return prefix + uid + ":changed" }

// RedisFeed reads profiles mirrored into Redis. The document lives under
// "profile:<uid>" as JSON and every change is published on
// "profile:<uid>:changed" carrying the new document; an empty message means
// the document was removed.
type RedisFeed struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

// NewRedisFeed creates a Redis-backed feed. Prefix may be empty.
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisFeed{client: client, prefix: prefix, log: logger.Named("profile.redis")}
}

func (f *RedisFeed) Subscribe(uid string, onUpdate func(*Profile), onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.watch(ctx, uid, onUpdate, onError)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (f *RedisFeed) watch(ctx context.Context, uid string, onUpdate func(*Profile), onError func(error)) {
	ps := f.client.Subscribe(ctx, channelKey(f.prefix, uid))
	defer ps.Close()

	// wait for the subscription to be confirmed so no publish is missed
	// between the initial read and the first message
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			onError(fmt.Errorf("subscribe profile %s: %w", uid, err))
		}
		return
	}

	p, err := f.get(ctx, uid)
	if err != nil {
		if ctx.Err() == nil {
			onError(err)
		}
		return
	}
	onUpdate(p)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() == nil {
					onError(ErrFeedClosed)
				}
				return
			}
			p, err := decodePayload(msg.Payload)
			if err != nil {
				f.log.Warnf("bad payload on %s: %v", msg.Channel, err)
				onError(err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			onUpdate(p)
		}
	}
}

func (f *RedisFeed) get(ctx context.Context, uid string) (*Profile, error) {
	b, err := f.client.Get(ctx, docKey(f.prefix, uid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return decodePayload(string(b))
}

func decodePayload(payload string) (*Profile, error) {
	if payload == "" {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// RedisPublisher writes profiles in the layout RedisFeed reads.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish stores p under uid and announces the change.
func (p *RedisPublisher) Publish(ctx context.Context, uid string, doc *Profile) error {
	if doc == nil {
		return p.Delete(ctx, uid)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(p.prefix, uid), b, 0)
		pipe.Publish(ctx, channelKey(p.prefix, uid), string(b))
		return nil
	})
	return err
}

// Delete removes the document and publishes the not-exists signal.
func (p *RedisPublisher) Delete(ctx context.Context, uid string) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(p.prefix, uid))
		pipe.Publish(ctx, channelKey(p.prefix, uid), "")
		return nil
	})
	return err
}
