package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"blogCPT/internal/clock"
	"blogCPT/internal/models"
)

// PostgresStore keeps every collection in one JSONB table:
//
//	documents(collection text, id text, data jsonb, primary key (collection, id))
//
// Timestamps are written into data as canonical ISO-8601 strings, which sort
// lexically in time order.
type PostgresStore struct {
	db    *sqlx.DB
	clock clock.Clock
}

type documentRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func NewPostgresStore(db *sqlx.DB, c clock.Clock) *PostgresStore {
	if c == nil {
		c = clock.System()
	}
	return &PostgresStore{db: db, clock: c}
}

func (s *PostgresStore) resolve(fields map[string]any) map[string]any {
	now := storeTime(s.clock.Now()).Format(models.TimeLayout)
	out := copyFields(fields)
	for k, v := range out {
		if isServerTimestamp(v) {
			out[k] = now
		}
	}
	return out
}

func (s *PostgresStore) Add(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	resolved := s.resolve(fields)
	data, err := json.Marshal(resolved)
	if err != nil {
		return Document{}, fmt.Errorf("ошибка при сериализации документа: %w", err)
	}

	id := uuid.New().String()
	query := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, collection, id, string(data)); err != nil {
		return Document{}, fmt.Errorf("ошибка при создании документа в %s: %w", collection, err)
	}

	return Document{ID: id, Fields: resolved}, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1 AND id = $2`

	var row documentRow
	err := s.db.GetContext(ctx, &row, query, collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, fmt.Errorf("ошибка при получении документа: %w", err)
	}

	return row.document()
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := json.Marshal(s.resolve(fields))
	if err != nil {
		return fmt.Errorf("ошибка при сериализации документа: %w", err)
	}

	query := `UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, query, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("ошибка при обновлении документа: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка при проверке обновленных строк: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("ошибка при удалении документа: %w", err)
	}

	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка при выполнении запроса к %s: %w", q.Collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// buildSelect renders q as a parameterized statement. Field names travel as
// bind parameters to the ->> and -> operators, never as SQL text.
func buildSelect(q Query) (string, []any, error) {
	if err := validateQuery(q); err != nil {
		return "", nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("SELECT id, data FROM documents WHERE collection = ")
	sb.WriteString(bind(q.Collection))

	for _, f := range q.Where {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("query: filter %s: %w", f.Field, err)
		}
		fmt.Fprintf(&sb, " AND data -> %s::text = %s::jsonb", bind(f.Field), bind(string(value)))
	}

	if q.OrderBy != "" {
		// Missing values order first ascending and last descending, like the
		// other backends.
		op, dir, nulls := ">", "ASC", "NULLS FIRST"
		if q.Direction == Descending {
			op, dir, nulls = "<", "DESC", "NULLS LAST"
		}

		if c := q.StartAfter; c != nil {
			switch {
			case c.Value == nil && q.Direction == Descending:
				fmt.Fprintf(&sb, " AND data ->> %s::text IS NULL AND id < %s", bind(q.OrderBy), bind(c.ID))
			case c.Value == nil:
				fmt.Fprintf(&sb, " AND (data ->> %s::text IS NOT NULL OR id > %s)", bind(q.OrderBy), bind(c.ID))
			case q.Direction == Descending:
				fmt.Fprintf(&sb, " AND (((data ->> %s::text) COLLATE \"C\", id) < (%s, %s) OR data ->> %s::text IS NULL)",
					bind(q.OrderBy), bind(cursorText(c.Value)), bind(c.ID), bind(q.OrderBy))
			default:
				fmt.Fprintf(&sb, " AND ((data ->> %s::text) COLLATE \"C\", id) %s (%s, %s)",
					bind(q.OrderBy), op, bind(cursorText(c.Value)), bind(c.ID))
			}
		}

		fmt.Fprintf(&sb, " ORDER BY (data ->> %s::text) COLLATE \"C\" %s %s, id %s", bind(q.OrderBy), dir, nulls, dir)
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(bind(q.Limit))
	}

	return sb.String(), args, nil
}

// cursorText renders a cursor value the way it is stored inside data.
func cursorText(v any) string {
	if t, ok := v.(string); ok {
		return t
	}
	if t, ok := asTime(v); ok {
		return storeTime(t).Format(models.TimeLayout)
	}
	return fmt.Sprint(v)
}

func (r documentRow) document() (Document, error) {
	fields := make(map[string]any)
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &fields); err != nil {
			return Document{}, fmt.Errorf("ошибка при разборе документа %s: %w", r.ID, err)
		}
	}
	return Document{ID: r.ID, Fields: fields}, nil
}

var _ Store = (*PostgresStore)(nil)
