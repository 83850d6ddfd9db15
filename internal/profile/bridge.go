package profile

import (
	"context"
	"fmt"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Publisher receives profile changes. RedisPublisher is the production one.
type Publisher interface {
	Publish(ctx context.Context, uid string, doc *Profile) error
	Delete(ctx context.Context, uid string) error
}

// Bridge mirrors the users collection into a Publisher so gateways can read
// profiles from Redis without a Mongo replica set of their own.
type Bridge struct {
	col *mongo.Collection
	pub Publisher
	log *logger.Logger
}

func NewBridge(col *mongo.Collection, pub Publisher) *Bridge {
	return &Bridge{col: col, pub: pub, log: logger.Named("profile.bridge")}
}

// Sync copies every document once and returns how many were published.
func (b *Bridge) Sync(ctx context.Context) (int, error) {
	cur, err := b.col.Find(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	defer cur.Close(ctx)
	n := 0
	for cur.Next(ctx) {
		var p Profile
		if err := cur.Decode(&p); err != nil {
			b.log.Warnf("skip undecodable profile: %v", err)
			continue
		}
		if err := b.pub.Publish(ctx, p.ID, &p); err != nil {
			return n, fmt.Errorf("publish %s: %w", p.ID, err)
		}
		n++
	}
	return n, cur.Err()
}

// Run performs a Sync and then forwards every change until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := b.col.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return fmt.Errorf("watch profiles: %w", err)
	}
	defer cs.Close(context.Background())

	n, err := b.Sync(ctx)
	if err != nil {
		return err
	}
	b.log.Infof("initial sync published %d profiles", n)

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			b.log.Warnf("decode change: %v", err)
			continue
		}
		if err := b.Apply(ctx, ev.DocumentKey.ID, ev.profileFor()); err != nil {
			b.log.Errorf("forward %s %s: %v", ev.OperationType, ev.DocumentKey.ID, err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := cs.Err(); err != nil {
		return fmt.Errorf("profile change stream: %w", err)
	}
	return ErrFeedClosed
}

// Apply forwards one change; a nil doc removes the mirrored document.
func (b *Bridge) Apply(ctx context.Context, uid string, doc *Profile) error {
	if uid == "" {
		return fmt.Errorf("change without document key")
	}
	if doc == nil {
		return b.pub.Delete(ctx, uid)
	}
	return b.pub.Publish(ctx, uid, doc)
}
