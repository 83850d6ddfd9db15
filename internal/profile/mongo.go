package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// changeEvent is the subset of a change stream event the feeds read.
type changeEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  *Profile `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// profileFor maps a change event to the document it leaves behind.
func (e changeEvent) profileFor() *Profile {
	switch e.OperationType {
	case "delete":
		return nil
	default:
		return e.FullDocument
	}
}

// MongoFeed watches the users collection, whose _id is the identity uid.
// It requires a replica set since it relies on change streams.
type MongoFeed struct {
	col *mongo.Collection
	log *logger.Logger
}

func NewMongoFeed(col *mongo.Collection) *MongoFeed {
	return &MongoFeed{col: col, log: logger.Named("profile.mongo")}
}

func (f *MongoFeed) Subscribe(uid string, onUpdate func(*Profile), onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := f.watch(ctx, uid, onUpdate); err != nil && ctx.Err() == nil {
			onError(err)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (f *MongoFeed) watch(ctx context.Context, uid string, onUpdate func(*Profile)) error {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": uid}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	// open the stream before the initial read so no change is lost in between
	cs, err := f.col.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("watch profile %s: %w", uid, err)
	}
	defer cs.Close(context.Background())

	p, err := f.Get(ctx, uid)
	if err != nil {
		return err
	}
	onUpdate(p)

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			f.log.Warnf("decode change for %s: %v", uid, err)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		onUpdate(ev.profileFor())
	}
	if err := cs.Err(); err != nil {
		return fmt.Errorf("profile change stream %s: %w", uid, err)
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrFeedClosed
}

// Get reads the current document for uid, or nil when it does not exist.
func (f *MongoFeed) Get(ctx context.Context, uid string) (*Profile, error) {
	var p Profile
	if err := f.col.FindOne(ctx, bson.M{"_id": uid}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("find profile %s: %w", uid, err)
	}
	return &p, nil
}
