package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// FileEntry maps a quote to the uploaded model kept for it.
type FileEntry struct {
	QuoteID   string
	Path      string
	ExpiresAt time.Time
}

// FileStore tracks model files by quote id. Entries expire; Expired lists
// those past their deadline so the files on disk can be removed with them.
type FileStore interface {
	Put(ctx context.Context, quoteID, path string, ttl time.Duration) error
	Get(ctx context.Context, quoteID string) (FileEntry, error)
	Delete(ctx context.Context, quoteID string) error
	Expired(ctx context.Context, now time.Time) ([]FileEntry, error)
}

// SQLFiles keeps file entries in the quote_files table.
type SQLFiles struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLFiles(db *sql.DB) *SQLFiles {
	return &SQLFiles{db: db, now: time.Now}
}

func (s *SQLFiles) Put(ctx context.Context, quoteID, path string, ttl time.Duration) error {
	expires := s.now().Add(ttl).Unix()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_files (quote_id, path, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(quote_id) DO UPDATE SET path = excluded.path, expires_at = excluded.expires_at
	`, quoteID, path, expires); err != nil {
		return fmt.Errorf("insert quote file %s: %w", quoteID, err)
	}
	return nil
}

// Get returns the live entry for quoteID. Expired entries are not found.
func (s *SQLFiles) Get(ctx context.Context, quoteID string) (FileEntry, error) {
	var (
		e       FileEntry
		expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT quote_id, path, expires_at FROM quote_files WHERE quote_id = ? AND expires_at > ?
	`, quoteID, s.now().Unix()).Scan(&e.QuoteID, &e.Path, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return FileEntry{}, ErrNotFound
	}
	if err != nil {
		return FileEntry{}, fmt.Errorf("query quote file %s: %w", quoteID, err)
	}
	e.ExpiresAt = time.Unix(expires, 0).UTC()
	return e, nil
}

func (s *SQLFiles) Delete(ctx context.Context, quoteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quote_files WHERE quote_id = ?`, quoteID); err != nil {
		return fmt.Errorf("delete quote file %s: %w", quoteID, err)
	}
	return nil
}

func (s *SQLFiles) Expired(ctx context.Context, now time.Time) ([]FileEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT quote_id, path, expires_at FROM quote_files WHERE expires_at <= ? ORDER BY expires_at
	`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expired quote files: %w", err)
	}
	defer rows.Close()

	var out []FileEntry
	for rows.Next() {
		var (
			e       FileEntry
			expires int64
		)
		if err := rows.Scan(&e.QuoteID, &e.Path, &expires); err != nil {
			return nil, fmt.Errorf("scan quote file row: %w", err)
		}
		e.ExpiresAt = time.Unix(expires, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote files: %w", err)
	}
	return out, nil
}

const (
	redisPathsKey  = "printquote:files"
	redisExpiryKey = "printquote:files:expiry"
)

// RedisFiles keeps file entries in a hash of paths plus a sorted set of
// expiry times, so expired entries stay listable until swept.
type RedisFiles struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisFiles(client *redis.Client) *RedisFiles {
	return &RedisFiles{client: client, now: time.Now}
}

func (r *RedisFiles) Put(ctx context.Context, quoteID, path string, ttl time.Duration) error {
	expires := r.now().Add(ttl).Unix()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisPathsKey, quoteID, path)
		p.ZAdd(ctx, redisExpiryKey, &redis.Z{Score: float64(expires), Member: quoteID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store quote file %s: %w", quoteID, err)
	}
	return nil
}

func (r *RedisFiles) Get(ctx context.Context, quoteID string) (FileEntry, error) {
	path, err := r.client.HGet(ctx, redisPathsKey, quoteID).Result()
	if errors.Is(err, redis.Nil) {
		return FileEntry{}, ErrNotFound
	}
	if err != nil {
		return FileEntry{}, fmt.Errorf("get quote file %s: %w", quoteID, err)
	}
	score, err := r.client.ZScore(ctx, redisExpiryKey, quoteID).Result()
	if errors.Is(err, redis.Nil) {
		return FileEntry{}, ErrNotFound
	}
	if err != nil {
		return FileEntry{}, fmt.Errorf("get quote file expiry %s: %w", quoteID, err)
	}
	expires := time.Unix(int64(score), 0).UTC()
	if !expires.After(r.now()) {
		return FileEntry{}, ErrNotFound
	}
	return FileEntry{QuoteID: quoteID, Path: path, ExpiresAt: expires}, nil
}

func (r *RedisFiles) Delete(ctx context.Context, quoteID string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, redisPathsKey, quoteID)
		p.ZRem(ctx, redisExpiryKey, quoteID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete quote file %s: %w", quoteID, err)
	}
	return nil
}

func (r *RedisFiles) Expired(ctx context.Context, now time.Time) ([]FileEntry, error) {
	members, err := r.client.ZRangeByScoreWithScores(ctx, redisExpiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired quote files: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = fmt.Sprint(m.Member)
	}
	paths, err := r.client.HMGet(ctx, redisPathsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get expired quote file paths: %w", err)
	}
	out := make([]FileEntry, 0, len(ids))
	for i, id := range ids {
		path, _ := paths[i].(string)
		out = append(out, FileEntry{
			QuoteID:   id,
			Path:      path,
			ExpiresAt: time.Unix(int64(members[i].Score), 0).UTC(),
		})
	}
	return out, nil
}
