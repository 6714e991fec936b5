package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/models"
)

const recordColumns = `movie_id, title, poster_path, overview, vote_average, release_date,
	search_count, last_searched_at, created_at`

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db    *sql.DB
	table string
}

// NewPostgreSQLStorage opens the connection pool and ensures the schema
func NewPostgreSQLStorage(cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(15 * time.Minute)

	storage := &PostgreSQLStorage{
		db:    db,
		table: pq.QuoteIdentifier(cfg.TableName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := storage.ensureSchema(ctx, cfg.TableName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return storage, nil
}

// ensureSchema creates the table and ranking indexes if they don't exist
func (p *PostgreSQLStorage) ensureSchema(ctx context.Context, name string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	movie_id         BIGINT PRIMARY KEY,
	title            TEXT NOT NULL,
	poster_path      TEXT,
	overview         TEXT,
	vote_average     DOUBLE PRECISION,
	release_date     TEXT,
	search_count     BIGINT NOT NULL DEFAULT 1 CHECK (search_count >= 1),
	last_searched_at TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	CHECK (last_searched_at >= created_at)
)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (search_count DESC, last_searched_at DESC)`,
			pq.QuoteIdentifier(name+"_popularity_idx"), p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (last_searched_at DESC)`,
			pq.QuoteIdentifier(name+"_recency_idx"), p.table),
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertAndIncrement is one INSERT ... ON CONFLICT statement; the row lock taken
// by the conflicting update serializes concurrent increments for a movie.
// last_searched_at only moves forward, so a write stamped earlier than one
// already committed keeps the newer time.
func (p *PostgreSQLStorage) UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error) {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (movie_id, title, poster_path, overview, vote_average, release_date,
	search_count, last_searched_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
ON CONFLICT (movie_id) DO UPDATE SET
	search_count     = %[1]s.search_count + 1,
	poster_path      = COALESCE(EXCLUDED.poster_path, %[1]s.poster_path),
	overview         = COALESCE(EXCLUDED.overview, %[1]s.overview),
	vote_average     = COALESCE(EXCLUDED.vote_average, %[1]s.vote_average),
	release_date     = COALESCE(EXCLUDED.release_date, %[1]s.release_date),
	last_searched_at = GREATEST(%[1]s.last_searched_at, EXCLUDED.last_searched_at)
RETURNING %[2]s`, p.table, recordColumns)

	row := p.db.QueryRowContext(ctx, query,
		movieID,
		meta.Title,
		nullString(meta.PosterPath),
		nullString(meta.Overview),
		nullFloat(meta.VoteAverage),
		nullString(meta.ReleaseDate),
		now.UTC(),
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to upsert movie %d", movieID), err)
	}
	return rec, nil
}

// Find selects matching rows with a server-side ORDER BY and LIMIT
func (p *PostgreSQLStorage) Find(ctx context.Context, q Query) ([]models.PopularityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, recordColumns, p.table)
	args := []any{}

	if !q.Since.IsZero() {
		args = append(args, q.Since.UTC())
		query += fmt.Sprintf(` WHERE last_searched_at >= $%d`, len(args))
	}

	switch q.Sort {
	case SortByPopularity:
		query += ` ORDER BY search_count DESC, last_searched_at DESC, movie_id ASC`
	default:
		query += ` ORDER BY last_searched_at DESC, movie_id ASC`
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("failed to query movies", err)
	}
	defer rows.Close()

	records := make([]models.PopularityRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("failed to scan movie", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read movies", err)
	}

	return records, nil
}

// Get retrieves the record for a specific movie
func (p *PostgreSQLStorage) Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE movie_id = $1`, recordColumns, p.table)

	rec, err := scanRecord(p.db.QueryRowContext(ctx, query, movieID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to get movie %d", movieID), err)
	}
	return rec, nil
}

// CountAll counts rows in the table
func (p *PostgreSQLStorage) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n)
	if err != nil {
		return 0, unavailable("failed to count movies", err)
	}
	return n, nil
}

// SumSearchCount sums search_count, 0 on an empty table
func (p *PostgreSQLStorage) SumSearchCount(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(SUM(search_count), 0) FROM %s`, p.table)).Scan(&n)
	if err != nil {
		return 0, unavailable("failed to sum searches", err)
	}
	return n, nil
}

// Ping checks connectivity
func (p *PostgreSQLStorage) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return unavailable("failed to ping PostgreSQL", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.PopularityRecord, error) {
	var (
		rec                           models.PopularityRecord
		poster, overview, releaseDate sql.NullString
		vote                          sql.NullFloat64
	)
	err := row.Scan(
		&rec.MovieID,
		&rec.Title,
		&poster,
		&overview,
		&vote,
		&releaseDate,
		&rec.SearchCount,
		&rec.LastSearchedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if poster.Valid {
		rec.PosterPath = &poster.String
	}
	if overview.Valid {
		rec.Overview = &overview.String
	}
	if vote.Valid {
		rec.VoteAverage = &vote.Float64
	}
	if releaseDate.Valid {
		rec.ReleaseDate = &releaseDate.String
	}
	rec.LastSearchedAt = rec.LastSearchedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()

	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

var _ Storage = (*PostgreSQLStorage)(nil)
