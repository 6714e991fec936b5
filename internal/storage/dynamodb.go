package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/models"
)

// dynamoItem is the attribute layout of one table item. Timestamps are stored as
// Unix nanoseconds so range filters compare numerically.
type dynamoItem struct {
	MovieID        int64    `dynamodbav:"movie_id"`
	Title          string   `dynamodbav:"title"`
	PosterPath     *string  `dynamodbav:"poster_path,omitempty"`
	Overview       *string  `dynamodbav:"overview,omitempty"`
	VoteAverage    *float64 `dynamodbav:"vote_average,omitempty"`
	ReleaseDate    *string  `dynamodbav:"release_date,omitempty"`
	SearchCount    int64    `dynamodbav:"search_count"`
	LastSearchedAt int64    `dynamodbav:"last_searched_at"`
	CreatedAt      int64    `dynamodbav:"created_at"`
}

func (it dynamoItem) record() models.PopularityRecord {
	return models.PopularityRecord{
		MovieID: it.MovieID,
		MovieMetadata: models.MovieMetadata{
			Title:       it.Title,
			PosterPath:  it.PosterPath,
			Overview:    it.Overview,
			VoteAverage: it.VoteAverage,
			ReleaseDate: it.ReleaseDate,
		},
		SearchCount:    it.SearchCount,
		LastSearchedAt: time.Unix(0, it.LastSearchedAt).UTC(),
		CreatedAt:      time.Unix(0, it.CreatedAt).UTC(),
	}
}

// DynamoDBStorage implements Storage interface using AWS DynamoDB
type DynamoDBStorage struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	storage := &DynamoDBStorage{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := storage.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}

	return storage, nil
}

// ensureTable creates the DynamoDB table if it doesn't exist
func (d *DynamoDBStorage) ensureTable(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("movie_id"),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("movie_id"),
				AttributeType: aws.String(dynamodb.ScalarAttributeTypeN),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}

	if _, err := d.client.CreateTableWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
}

// UpsertAndIncrement issues one UpdateItem: ADD increments atomically and
// creates the item when absent, if_not_exists keeps title and created_at from
// the first observation. The condition keeps last_searched_at from moving
// backwards; when it fails a stamp newer than now is already stored and the
// search is counted without touching it.
func (d *DynamoDBStorage) UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error) {
	key := map[string]*dynamodb.AttributeValue{
		"movie_id": {N: aws.String(strconv.FormatInt(movieID, 10))},
	}

	names, values, sets := metadataUpdate(meta)
	names["#title"] = aws.String("title")
	names["#last"] = aws.String("last_searched_at")
	names["#created"] = aws.String("created_at")
	values[":title"] = &dynamodb.AttributeValue{S: aws.String(meta.Title)}
	values[":now"] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(now.UnixNano(), 10))}
	sets = append([]string{
		"#title = if_not_exists(#title, :title)",
		"#last = :now",
		"#created = if_not_exists(#created, :now)",
	}, sets...)

	result, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       key,
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ") + " ADD #count :one"),
		ConditionExpression:       aws.String("attribute_not_exists(#last) OR #last <= :now"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		names, values, sets = metadataUpdate(meta)
		expr := "ADD #count :one"
		if len(sets) > 0 {
			expr = "SET " + strings.Join(sets, ", ") + " " + expr
		}
		result, err = d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(d.tableName),
			Key:                       key,
			UpdateExpression:          aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
		})
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to upsert movie %d", movieID), err)
	}

	var item dynamoItem
	if err := dynamodbattribute.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal movie %d: %w", movieID, err)
	}

	rec := item.record()
	return &rec, nil
}

// metadataUpdate returns the counter placeholders plus a SET clause for every
// optional field supplied in meta.
func metadataUpdate(meta models.MovieMetadata) (map[string]*string, map[string]*dynamodb.AttributeValue, []string) {
	names := map[string]*string{
		"#count": aws.String("search_count"),
	}
	values := map[string]*dynamodb.AttributeValue{
		":one": {N: aws.String("1")},
	}
	var sets []string

	setOptional := func(placeholder, attr string, v *dynamodb.AttributeValue) {
		names["#"+placeholder] = aws.String(attr)
		values[":"+placeholder] = v
		sets = append(sets, fmt.Sprintf("#%s = :%s", placeholder, placeholder))
	}
	if meta.PosterPath != nil {
		setOptional("poster", "poster_path", &dynamodb.AttributeValue{S: meta.PosterPath})
	}
	if meta.Overview != nil {
		setOptional("overview", "overview", &dynamodb.AttributeValue{S: meta.Overview})
	}
	if meta.VoteAverage != nil {
		setOptional("vote", "vote_average", &dynamodb.AttributeValue{
			N: aws.String(strconv.FormatFloat(*meta.VoteAverage, 'f', -1, 64)),
		})
	}
	if meta.ReleaseDate != nil {
		setOptional("release", "release_date", &dynamodb.AttributeValue{S: meta.ReleaseDate})
	}
	return names, values, sets
}

// Find scans the table, filtering by recency server side, and sorts the
// matches in memory. DynamoDB has no global ordering across partition keys.
func (d *DynamoDBStorage) Find(ctx context.Context, q Query) ([]models.PopularityRecord, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	}
	if !q.Since.IsZero() {
		input.FilterExpression = aws.String("#last >= :since")
		input.ExpressionAttributeNames = map[string]*string{"#last": aws.String("last_searched_at")}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":since": {N: aws.String(strconv.FormatInt(q.Since.UnixNano(), 10))},
		}
	}

	var (
		records []models.PopularityRecord
		pageErr error
	)
	err := d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var items []dynamoItem
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); err != nil {
			pageErr = fmt.Errorf("failed to unmarshal movies: %w", err)
			return false
		}
		for _, it := range items {
			records = append(records, it.record())
		}
		return true
	})
	if err != nil {
		return nil, unavailable("failed to scan movies", err)
	}
	if pageErr != nil {
		return nil, pageErr
	}

	sortRecords(records, q.Sort)
	return applyLimit(records, q.Limit), nil
}

// Get retrieves the record for a specific movie
func (d *DynamoDBStorage) Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"movie_id": {N: aws.String(strconv.FormatInt(movieID, 10))},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to get movie %d", movieID), err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal movie %d: %w", movieID, err)
	}

	rec := item.record()
	return &rec, nil
}

// CountAll counts items with a COUNT scan
func (d *DynamoDBStorage) CountAll(ctx context.Context) (int64, error) {
	var total int64
	err := d.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
		Select:    aws.String(dynamodb.SelectCount),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		total += aws.Int64Value(page.Count)
		return true
	})
	if err != nil {
		return 0, unavailable("failed to count movies", err)
	}
	return total, nil
}

// SumSearchCount sums search_count over a projected scan
func (d *DynamoDBStorage) SumSearchCount(ctx context.Context) (int64, error) {
	var (
		total   int64
		pageErr error
	)
	err := d.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		ProjectionExpression:     aws.String("#count"),
		ExpressionAttributeNames: map[string]*string{"#count": aws.String("search_count")},
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			v, ok := item["search_count"]
			if !ok || v.N == nil {
				continue
			}
			n, err := strconv.ParseInt(*v.N, 10, 64)
			if err != nil {
				pageErr = fmt.Errorf("invalid search_count %q: %w", *v.N, err)
				return false
			}
			total += n
		}
		return true
	})
	if err != nil {
		return 0, unavailable("failed to sum searches", err)
	}
	if pageErr != nil {
		return 0, pageErr
	}
	return total, nil
}

// Ping checks that the table is reachable
func (d *DynamoDBStorage) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return unavailable("failed to describe table", err)
	}
	return nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

var _ Storage = (*DynamoDBStorage)(nil)
