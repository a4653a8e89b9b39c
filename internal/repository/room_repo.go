package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoomRecord is the durable trace of a meeting: who opened it and when it
// started and ended. Live state never touches Mongo; this exists so ended
// meetings leave something behind after their Redis key is gone.
type RoomRecord struct {
	Code      string     `bson:"code"`
	AdminName string     `bson:"adminName"`
	CreatedAt time.Time  `bson:"createdAt"`
	EndedAt   *time.Time `bson:"endedAt,omitempty"`
}

type RoomRepo interface {
	Create(ctx context.Context, rec *RoomRecord) error
	GetByCode(ctx context.Context, code string) (*RoomRecord, error)
	MarkEnded(ctx context.Context, code string, endedAt time.Time) error
}

type roomRepo struct {
	collection *mongo.Collection
}

func NewRoomRepo(client *mongo.Client, database string) RoomRepo {
	return &roomRepo{
		collection: client.Database(database).Collection("rooms"),
	}
}

func (r *roomRepo) Create(ctx context.Context, rec *RoomRecord) error {
	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

func (r *roomRepo) GetByCode(ctx context.Context, code string) (*RoomRecord, error) {
	// Codes recycle across meetings; the newest record wins.
	opts := options.FindOne().SetSort(bson.M{"createdAt": -1})
	var rec RoomRecord
	err := r.collection.FindOne(ctx, bson.M{"code": code}, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *roomRepo) MarkEnded(ctx context.Context, code string, endedAt time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"code": code, "endedAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"endedAt": endedAt}},
	)
	return err
}
