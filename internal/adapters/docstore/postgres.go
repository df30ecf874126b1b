package docstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// DefaultPostgresQuery selects the corpus from a "documents" table.
const DefaultPostgresQuery = `SELECT id, title, content, COALESCE(category, '') FROM documents ORDER BY position, id`

// PostgresSource reads the corpus from PostgreSQL.
type PostgresSource struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresSource connects to databaseURL. query must select
// id, title, content and category, in that order.
func NewPostgresSource(ctx context.Context, databaseURL, query string) (*PostgresSource, error) {
	if query == "" {
		query = DefaultPostgresQuery
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresSource{pool: pool, query: query}, nil
}

// Load runs the corpus query.
func (s *PostgresSource) Load(ctx context.Context) ([]entities.Document, error) {
	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		var d entities.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Category); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	return docs, nil
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}
