package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"finedu/content"
	"finedu/errs"
)

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// InitDB opens the SQLite database behind the data service and creates its schema.
func InitDB(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize through a single connection.
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS documents (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        id TEXT NOT NULL,
        category TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT '',
        search TEXT NOT NULL DEFAULT '',
        views INTEGER NOT NULL DEFAULT 0,
        body TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        UNIQUE(kind, id)
    );
    CREATE INDEX IF NOT EXISTS idx_documents_kind_created ON documents(kind, created_at DESC);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Documents stores one resource kind as JSON documents. Filter columns are
// derived from the decoded record on every write.
type Documents[T content.Resource, I any] struct {
	db   *sql.DB
	kind content.Kind
	now  func() time.Time
}

func NewDocuments[T content.Resource, I any](database *sql.DB, kind content.Kind) *Documents[T, I] {
	return &Documents[T, I]{db: database, kind: kind, now: func() time.Time { return time.Now().UTC() }}
}

func (d *Documents[T, I]) List(ctx context.Context, f content.Filter) ([]T, error) {
	q := f.Values()
	where := []string{"kind = ?"}
	args := []any{string(d.kind)}
	if c := q.Get("category"); c != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, c)
	}
	if s := q.Get("status"); s != "" {
		where = append(where, "status = ? COLLATE NOCASE")
		args = append(args, s)
	}
	if s := q.Get("search"); s != "" {
		where = append(where, `search LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(content.FoldSearch(s))+"%")
	}
	limit := -1
	if f.Limit > 0 {
		limit = f.Limit
	}
	args = append(args, limit, f.Offset)

	rows, err := d.db.QueryContext(ctx, `
        SELECT body FROM documents
        WHERE `+strings.Join(where, " AND ")+`
        ORDER BY created_at DESC, seq DESC
        LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, errs.New(errs.Transport, "list", string(d.kind), err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errs.New(errs.Transport, "list", string(d.kind), err)
		}
		var item T
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			return nil, errs.New(errs.Transport, "list", string(d.kind), err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.Transport, "list", string(d.kind), err)
	}
	return out, nil
}

func (d *Documents[T, I]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := d.load(ctx, d.db, "get", id)
	if err != nil {
		return zero, err
	}
	return decode[T](doc)
}

func (d *Documents[T, I]) Create(ctx context.Context, in I) (T, error) {
	var zero T
	doc, err := toDoc(in)
	if err != nil {
		return zero, errs.New(errs.Validation, "create", string(d.kind), err)
	}
	now := d.now()
	doc["id"] = uuid.NewString()
	doc["created_at"] = now
	doc["updated_at"] = now

	item, err := decode[T](doc)
	if err != nil {
		return zero, errs.New(errs.Validation, "create", string(d.kind), err)
	}
	if err := d.Put(ctx, item); err != nil {
		return zero, err
	}
	return item, nil
}

// Put inserts or replaces item as-is. Used for seeding.
func (d *Documents[T, I]) Put(ctx context.Context, item T) error {
	body, err := json.Marshal(item)
	if err != nil {
		return errs.New(errs.Validation, "put", string(d.kind), err)
	}
	doc, err := toDoc(item)
	if err != nil {
		return errs.New(errs.Validation, "put", string(d.kind), err)
	}
	created, updated := timeField(doc, "created_at", d.now()), timeField(doc, "updated_at", d.now())
	views, _ := doc["views"].(float64)

	_, err = d.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO documents (kind, id, category, status, search, views, body, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(d.kind), item.ResourceID(), item.ResourceCategory(), item.ResourceStatus(),
		content.FoldSearch(item.SearchText()), int64(views), string(body),
		created.Format(tsLayout), updated.Format(tsLayout))
	if err != nil {
		return errs.New(errs.Transport, "put", string(d.kind), err)
	}
	return nil
}

func (d *Documents[T, I]) Update(ctx context.Context, id string, patch content.Patch) (T, error) {
	var zero T
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, errs.New(errs.Transport, "update", string(d.kind), err)
	}
	defer tx.Rollback()

	doc, err := d.load(ctx, tx, "update", id)
	if err != nil {
		return zero, err
	}
	for k, v := range patch {
		switch k {
		case "id", "created_at", "updated_at", "views":
			continue
		}
		doc[k] = v
	}
	now := d.now()
	doc["updated_at"] = now

	item, err := decode[T](doc)
	if err != nil {
		return zero, errs.New(errs.Validation, "update", string(d.kind), err)
	}
	body, err := json.Marshal(item)
	if err != nil {
		return zero, errs.New(errs.Validation, "update", string(d.kind), err)
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE documents SET category = ?, status = ?, search = ?, body = ?, updated_at = ?
        WHERE kind = ? AND id = ?`,
		item.ResourceCategory(), item.ResourceStatus(), content.FoldSearch(item.SearchText()),
		string(body), now.Format(tsLayout), string(d.kind), id)
	if err != nil {
		return zero, errs.New(errs.Transport, "update", string(d.kind), err)
	}
	if err := tx.Commit(); err != nil {
		return zero, errs.New(errs.Transport, "update", string(d.kind), err)
	}
	return item, nil
}

func (d *Documents[T, I]) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE kind = ? AND id = ?`, string(d.kind), id)
	if err != nil {
		return errs.New(errs.Transport, "delete", string(d.kind), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Errorf(errs.NotFound, "delete", string(d.kind), "id %s", id)
	}
	return nil
}

// IncrementViews bumps the views column and the copy inside the body together.
func (d *Documents[T, I]) IncrementViews(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `
        UPDATE documents SET views = views + 1, body = json_set(body, '$.views', views + 1)
        WHERE kind = ? AND id = ?`, string(d.kind), id)
	if err != nil {
		return errs.New(errs.Transport, "views", string(d.kind), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Errorf(errs.NotFound, "views", string(d.kind), "id %s", id)
	}
	return nil
}

// Count returns how many documents of this kind are stored.
func (d *Documents[T, I]) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE kind = ?`, string(d.kind)).Scan(&n)
	return n, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Documents[T, I]) load(ctx context.Context, q queryer, op, id string) (map[string]any, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM documents WHERE kind = ? AND id = ?`, string(d.kind), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Errorf(errs.NotFound, op, string(d.kind), "id %s", id)
	}
	if err != nil {
		return nil, errs.New(errs.Transport, op, string(d.kind), err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, errs.New(errs.Transport, op, string(d.kind), err)
	}
	return doc, nil
}

func toDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	return doc, nil
}

func decode[T any](doc map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(doc)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

func timeField(doc map[string]any, key string, def time.Time) time.Time {
	s, _ := doc[key].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.IsZero() {
		return def
	}
	return t.UTC()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
