// Package postgres stores per-URL download results in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "news_results"

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes one row per URL. Rows are upserted on (batch_id, url).
type ResultStore struct {
	pool   execCloser
	table  string
	hasher crawler.Hasher
	clock  crawler.Clock
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, hasher crawler.Hasher, clock crawler.Clock) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table, hasher, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string, hasher crawler.Hasher, clock crawler.Clock) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("hasher and clock are required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: pool, table: table, hasher: hasher, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreResults writes every result of a batch, in URL order.
func (s *ResultStore) StoreResults(ctx context.Context, batchID string, results map[string]crawler.Result) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if batchID == "" {
		return fmt.Errorf("batch id is required")
	}
	urls := make([]string, 0, len(results))
	for u := range results {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	query := fmt.Sprintf(`
INSERT INTO %s (
	batch_id,
	url,
	status,
	final_url,
	page_type,
	title,
	published,
	content_hash,
	message,
	result,
	stored_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (batch_id, url) DO UPDATE SET
	status = EXCLUDED.status,
	final_url = EXCLUDED.final_url,
	page_type = EXCLUDED.page_type,
	title = EXCLUDED.title,
	published = EXCLUDED.published,
	content_hash = EXCLUDED.content_hash,
	message = EXCLUDED.message,
	result = EXCLUDED.result,
	stored_at = EXCLUDED.stored_at`, s.table)

	storedAt := s.clock.Now()
	for _, u := range urls {
		args, err := s.rowArgs(batchID, u, results[u], storedAt)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert result for %s: %w", u, err)
		}
	}
	return nil
}

func (s *ResultStore) rowArgs(batchID, rawURL string, res crawler.Result, storedAt time.Time) ([]any, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result for %s: %w", rawURL, err)
	}
	var pageType, title, published, contentHash string
	if res.Page != nil {
		pageType = string(res.Page.Type)
		title = res.Page.Title
		published = res.Page.Time
		pageJSON, err := json.Marshal(res.Page)
		if err != nil {
			return nil, fmt.Errorf("marshal page for %s: %w", rawURL, err)
		}
		if contentHash, err = s.hasher.Hash(pageJSON); err != nil {
			return nil, fmt.Errorf("hash page for %s: %w", rawURL, err)
		}
	}
	return []any{
		batchID,
		rawURL,
		string(res.Status),
		res.FinalURL,
		pageType,
		title,
		published,
		contentHash,
		res.Message,
		payload,
		storedAt,
	}, nil
}
