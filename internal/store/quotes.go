// Package store persists generated quotes and tracks the model files behind
// them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/printquote/internal/quote"
)

// ErrNotFound is returned when a quote or file entry does not exist.
var ErrNotFound = errors.New("not found")

// Summary is the listing view of a stored quote.
type Summary struct {
	ID            string   `json:"quote_id"`
	FileName      string   `json:"file_name"`
	Process       string   `json:"process"`
	MaterialID    string   `json:"material_id"`
	Status        string   `json:"status"`
	State         string   `json:"state"`
	CustomerPrice *float64 `json:"customer_price"`
	ErrorKind     string   `json:"error_kind,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

// Record is a stored quote: its summary plus the result exactly as it was
// returned when generated.
type Record struct {
	Summary
	Payload json.RawMessage `json:"quote"`
}

// Quotes stores quote results as JSON snapshots. A stored quote is never
// recalculated.
type Quotes struct {
	db *sql.DB
}

func NewQuotes(db *sql.DB) *Quotes {
	return &Quotes{db: db}
}

// Save inserts res. Saving the same id twice replaces the snapshot.
func (q *Quotes) Save(ctx context.Context, res *quote.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", res.ID, err)
	}

	var price sql.NullFloat64
	if res.CustomerPrice != nil {
		price = sql.NullFloat64{Float64: *res.CustomerPrice, Valid: true}
	}
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO quotes (id, file_name, process, material_id, status, state, customer_price, error_kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			customer_price = excluded.customer_price,
			error_kind = excluded.error_kind,
			payload = excluded.payload
	`, res.ID, res.FileName, res.Process, res.Material, string(res.DFM.Status), string(res.State),
		price, string(res.ErrorKind), string(payload), res.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert quote %s: %w", res.ID, err)
	}
	return nil
}

// Get returns the stored quote with id.
func (q *Quotes) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec     Record
		price   sql.NullFloat64
		payload string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, file_name, process, material_id, status, state, customer_price, error_kind, created_at, payload
		FROM quotes
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.FileName, &rec.Process, &rec.MaterialID, &rec.Status, &rec.State,
		&price, &rec.ErrorKind, &rec.CreatedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query quote %s: %w", id, err)
	}
	if price.Valid {
		rec.CustomerPrice = &price.Float64
	}
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}

// ListOptions filters List. Search matches id, file name or material id.
type ListOptions struct {
	Search string
	Limit  int
}

const defaultListLimit = 100

// List returns quotes newest first.
func (q *Quotes) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, file_name, process, material_id, status, state, customer_price, error_kind, created_at
		FROM quotes`
	args := []any{}
	if search := strings.TrimSpace(opts.Search); search != "" {
		like := "%" + escapeLike(search) + "%"
		query += `
		WHERE id LIKE ? ESCAPE '\' OR file_name LIKE ? ESCAPE '\' OR material_id LIKE ? ESCAPE '\'`
		args = append(args, like, like, like)
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			s     Summary
			price sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.FileName, &s.Process, &s.MaterialID, &s.Status, &s.State,
			&price, &s.ErrorKind, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		if price.Valid {
			v := price.Float64
			s.CustomerPrice = &v
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
