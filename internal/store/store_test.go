package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printquote/internal/db"
	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/migrations"
	"github.com/Simplici0/printquote/internal/quote"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, migrations.Up(ctx, database, nil))
	return database
}

func result(id, file string, created time.Time, price *float64) *quote.Result {
	status := dfm.StatusFail
	if price != nil {
		status = dfm.StatusPass
	}
	return &quote.Result{
		ID:            id,
		FileName:      file,
		Process:       "3d_printing",
		Material:      "pla",
		DFM:           dfm.Report{Status: status, Issues: []dfm.Issue{}},
		CustomerPrice: price,
		State:         quote.StateDone,
		Stages:        []quote.State{quote.StateDone},
		CreatedAt:     created,
	}
}

func TestQuotesSaveAndGet(t *testing.T) {
	q := NewQuotes(openDB(t))
	ctx := context.Background()
	price := 12.5
	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, q.Save(ctx, result("q-1", "gear.stl", created, &price)))

	rec, err := q.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, "gear.stl", rec.FileName)
	assert.Equal(t, "PASS", rec.Status)
	assert.Equal(t, "DONE", rec.State)
	require.NotNil(t, rec.CustomerPrice)
	assert.Equal(t, 12.5, *rec.CustomerPrice)
	assert.Equal(t, "2026-05-01T09:30:00Z", rec.CreatedAt)

	var snapshot quote.Result
	require.NoError(t, json.Unmarshal(rec.Payload, &snapshot))
	assert.Equal(t, "q-1", snapshot.ID)
	require.NotNil(t, snapshot.CustomerPrice)
	assert.Equal(t, 12.5, *snapshot.CustomerPrice)
}

func TestQuotesGetMissing(t *testing.T) {
	q := NewQuotes(openDB(t))

	_, err := q.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuotesSaveReplaces(t *testing.T) {
	q := NewQuotes(openDB(t))
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, q.Save(ctx, result("q-1", "gear.stl", created, nil)))
	price := 3.0
	require.NoError(t, q.Save(ctx, result("q-1", "gear.stl", created, &price)))

	rec, err := q.Get(ctx, "q-1")
	require.NoError(t, err)
	require.NotNil(t, rec.CustomerPrice)
	assert.Equal(t, 3.0, *rec.CustomerPrice)
}

func TestQuotesListSearchAndOrder(t *testing.T) {
	q := NewQuotes(openDB(t))
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	price := 1.0

	require.NoError(t, q.Save(ctx, result("q-a", "bracket.stl", base, &price)))
	require.NoError(t, q.Save(ctx, result("q-b", "gear_50%.stl", base.Add(time.Hour), nil)))
	require.NoError(t, q.Save(ctx, result("q-c", "bracket-v2.stl", base.Add(2*time.Hour), &price)))

	all, err := q.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"q-c", "q-b", "q-a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Nil(t, all[1].CustomerPrice)

	brackets, err := q.List(ctx, ListOptions{Search: "bracket"})
	require.NoError(t, err)
	assert.Len(t, brackets, 2)

	literal, err := q.List(ctx, ListOptions{Search: "50%"})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "q-b", literal[0].ID)

	limited, err := q.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := q.List(ctx, ListOptions{Search: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testFileStore(t *testing.T, fs FileStore, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	setNow(start)

	require.NoError(t, fs.Put(ctx, "q-1", "/uploads/q-1.stl", time.Hour))
	require.NoError(t, fs.Put(ctx, "q-2", "/uploads/q-2.stl", 3*time.Hour))

	e, err := fs.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/q-1.stl", e.Path)
	assert.Equal(t, start.Add(time.Hour), e.ExpiresAt)

	expired, err := fs.Expired(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "q-1", expired[0].QuoteID)
	assert.Equal(t, "/uploads/q-1.stl", expired[0].Path)

	setNow(start.Add(2 * time.Hour))
	_, err = fs.Get(ctx, "q-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Delete(ctx, "q-1"))
	expired, err = fs.Expired(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	_, err = fs.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLFiles(t *testing.T) {
	fs := NewSQLFiles(openDB(t))
	testFileStore(t, fs, func(now time.Time) { fs.now = func() time.Time { return now } })
}

func TestRedisFiles(t *testing.T) {
	addr := os.Getenv("PRINTQUOTE_TEST_REDIS")
	if addr == "" {
		t.Skip("PRINTQUOTE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() {
		client.Del(ctx, redisPathsKey, redisExpiryKey)
		client.Close()
	})
	client.Del(ctx, redisPathsKey, redisExpiryKey)

	fs := NewRedisFiles(client)
	testFileStore(t, fs, func(now time.Time) { fs.now = func() time.Time { return now } })
}
