package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/presence"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type mongoUser struct {
	Subject     string    `bson:"subject"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"displayName"`
	AvatarColor string    `bson:"avatarColor"`
	Status      string    `bson:"status"`
	LastLogin   time.Time `bson:"lastLogin"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// MongoStore keeps profiles in the users collection, one document per subject.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo 连接 MongoDB 并 Ping，失败时退避重试几次。
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri).SetMaxPoolSize(20)
	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < 5; i++ {
		cli, err = mongo.Connect(ctx, opts)
		if err == nil {
			if err = cli.Ping(ctx, nil); err == nil {
				break
			}
			_ = cli.Disconnect(ctx)
		}
		log.Debug().Err(err).Int("attempt", i+1).Msg("mongo connect retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(500+i*200) * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("profile: connect mongo: %w", err)
	}
	s := &MongoStore{client: cli, coll: cli.Database(database).Collection(usersCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subject", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("profile: ensure indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Upsert(ctx context.Context, id identity.Identity) (*Profile, error) {
	now := time.Now()
	fresh := newProfile(id, now)
	update := bson.M{
		"$set": bson.M{"status": string(presence.StatusOnline), "lastLogin": now},
		"$setOnInsert": bson.M{
			"subject":     fresh.Subject,
			"email":       fresh.Email,
			"displayName": fresh.DisplayName,
			"avatarColor": fresh.AvatarColor,
			"createdAt":   now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc mongoUser
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"subject": id.Subject}, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	p := doc.profile()
	return &p, nil
}

func (s *MongoStore) Get(ctx context.Context, subject string) (*Profile, error) {
	var doc mongoUser
	if err := s.coll.FindOne(ctx, bson.M{"subject": subject}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p := doc.profile()
	return &p, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, subject string, status presence.Status) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"subject": subject}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d mongoUser) profile() Profile {
	return Profile{
		Subject:     d.Subject,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		AvatarColor: d.AvatarColor,
		Status:      presence.Status(d.Status),
		LastLogin:   d.LastLogin,
	}
}
