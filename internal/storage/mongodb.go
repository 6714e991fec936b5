package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/models"
)

// MongoDBStorage implements Storage interface using a MongoDB collection
type MongoDBStorage struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongoDBStorage connects to MongoDB and ensures the collection indexes
func NewMongoDBStorage(cfg config.StorageConfig) (*MongoDBStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoDBURI).
		SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	storage := &MongoDBStorage{
		client: client,
		col:    client.Database(cfg.MongoDatabase).Collection(cfg.TableName),
	}

	if err := storage.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return storage, nil
}

// ensureIndexes creates the unique movieId index and the ranking indexes
func (m *MongoDBStorage) ensureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "movieId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "searchCount", Value: -1},
				{Key: "lastSearchedAt", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "lastSearchedAt", Value: -1}},
		},
	})
	return err
}

// UpsertAndIncrement runs a single findOneAndUpdate with upsert. Two concurrent
// upserts for a new movieId can race on the unique index; the loser gets a
// duplicate key error and is replayed once, at which point the document exists
// and the update takes the $inc path. $max keeps lastSearchedAt from moving
// backwards when writes commit out of clock order.
func (m *MongoDBStorage) UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error) {
	set := bson.M{}
	if meta.PosterPath != nil {
		set["poster_path"] = *meta.PosterPath
	}
	if meta.Overview != nil {
		set["overview"] = *meta.Overview
	}
	if meta.VoteAverage != nil {
		set["vote_average"] = *meta.VoteAverage
	}
	if meta.ReleaseDate != nil {
		set["release_date"] = *meta.ReleaseDate
	}

	update := bson.M{
		"$inc": bson.M{"searchCount": 1},
		"$max": bson.M{"lastSearchedAt": now},
		"$setOnInsert": bson.M{
			"title":     meta.Title,
			"createdAt": now,
		},
	}
	if len(set) > 0 {
		update["$set"] = set
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var rec models.PopularityRecord
	err := m.col.FindOneAndUpdate(ctx, bson.M{"movieId": movieID}, update, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		err = m.col.FindOneAndUpdate(ctx, bson.M{"movieId": movieID}, update, opts).Decode(&rec)
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to upsert movie %d", movieID), err)
	}

	normalize(&rec)
	return &rec, nil
}

// Find queries with a server-side sort and limit
func (m *MongoDBStorage) Find(ctx context.Context, q Query) ([]models.PopularityRecord, error) {
	filter := bson.M{}
	if !q.Since.IsZero() {
		filter["lastSearchedAt"] = bson.M{"$gte": q.Since}
	}

	sortDoc := bson.D{
		{Key: "lastSearchedAt", Value: -1},
		{Key: "movieId", Value: 1},
	}
	if q.Sort == SortByPopularity {
		sortDoc = append(bson.D{{Key: "searchCount", Value: -1}}, sortDoc...)
	}

	findOptions := options.Find().SetSort(sortDoc)
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	cursor, err := m.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, unavailable("failed to find movies", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	records := make([]models.PopularityRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, unavailable("failed to decode movies", err)
	}
	for i := range records {
		normalize(&records[i])
	}

	return records, nil
}

// Get retrieves the record for a specific movie
func (m *MongoDBStorage) Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error) {
	var rec models.PopularityRecord
	err := m.col.FindOne(ctx, bson.M{"movieId": movieID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to get movie %d", movieID), err)
	}

	normalize(&rec)
	return &rec, nil
}

// CountAll counts documents in the collection
func (m *MongoDBStorage) CountAll(ctx context.Context) (int64, error) {
	n, err := m.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, unavailable("failed to count movies", err)
	}
	return n, nil
}

// SumSearchCount aggregates searchCount over the collection
func (m *MongoDBStorage) SumSearchCount(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$searchCount"}}},
		}}},
	}

	cursor, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, unavailable("failed to sum searches", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, unavailable("failed to decode search total", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// Ping checks connectivity to the primary
func (m *MongoDBStorage) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("failed to ping MongoDB", err)
	}
	return nil
}

// Close disconnects the client
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// normalize converts decoded BSON datetimes to UTC.
func normalize(rec *models.PopularityRecord) {
	rec.LastSearchedAt = rec.LastSearchedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
}

var _ Storage = (*MongoDBStorage)(nil)
