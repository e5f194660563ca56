package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blogCPT/internal/clock"
)

// MongoStore maps each collection onto a MongoDB collection of the same name.
// Server timestamps are stored as BSON dates and come back as primitive.DateTime.
type MongoStore struct {
	db    *mongo.Database
	clock clock.Clock
}

func NewMongoStore(db *mongo.Database, c clock.Clock) *MongoStore {
	if c == nil {
		c = clock.System()
	}
	return &MongoStore{db: db, clock: c}
}

func (s *MongoStore) resolve(fields map[string]any) bson.M {
	now := primitive.NewDateTimeFromTime(storeTime(s.clock.Now()))
	out := bson.M{}
	for k, v := range fields {
		if isServerTimestamp(v) {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

func (s *MongoStore) Add(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	doc := s.resolve(fields)
	id := uuid.New().String()
	doc["_id"] = id

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("mongo: insert into %s: %w", collection, err)
	}

	return fromBSON(doc), nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, fmt.Errorf("mongo: find %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": s.resolve(fields)})
	if err != nil {
		return fmt.Errorf("mongo: update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	cur, err := s.db.Collection(q.Collection).Find(ctx, mongoFilter(q), mongoFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("mongo: query %s: %w", q.Collection, err)
	}

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo: read %s: %w", q.Collection, err)
	}

	docs := make([]Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSON(m))
	}
	return docs, nil
}

func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Where {
		filter[f.Field] = f.Value
	}

	if q.StartAfter != nil && q.OrderBy != "" {
		op := "$gt"
		if q.Direction == Descending {
			op = "$lt"
		}
		value := mongoValue(q.StartAfter.Value)
		sameValue := bson.M{q.OrderBy: value, "_id": bson.M{op: q.StartAfter.ID}}

		// null and missing values sort lowest.
		switch {
		case value == nil && q.Direction == Descending:
			filter["$or"] = bson.A{sameValue}
		case value == nil:
			filter["$or"] = bson.A{bson.M{q.OrderBy: bson.M{"$ne": nil}}, sameValue}
		case q.Direction == Descending:
			filter["$or"] = bson.A{bson.M{q.OrderBy: bson.M{op: value}}, sameValue, bson.M{q.OrderBy: nil}}
		default:
			filter["$or"] = bson.A{bson.M{q.OrderBy: bson.M{op: value}}, sameValue}
		}
	}
	return filter
}

func mongoFindOptions(q Query) *options.FindOptions {
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Direction == Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

// mongoValue converts cursor timestamps to BSON dates so they compare with stored dates.
func mongoValue(v any) any {
	if _, ok := v.(primitive.DateTime); ok {
		return v
	}
	if t, ok := asTime(v); ok {
		return primitive.NewDateTimeFromTime(t)
	}
	return v
}

func fromBSON(m bson.M) Document {
	fields := make(map[string]any, len(m))
	var id string
	for k, v := range m {
		if k == "_id" {
			id = fmt.Sprint(v)
			continue
		}
		fields[k] = v
	}
	return Document{ID: id, Fields: fields}
}

var _ Store = (*MongoStore)(nil)
